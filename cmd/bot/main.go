package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rvazquez/aspen-grade-bot/internal/config"
	"github.com/rvazquez/aspen-grade-bot/internal/dispatcher"
	"github.com/rvazquez/aspen-grade-bot/internal/handler"
	"github.com/rvazquez/aspen-grade-bot/internal/repository"
	"github.com/rvazquez/aspen-grade-bot/internal/scheduler"
	"github.com/rvazquez/aspen-grade-bot/internal/service"
	"github.com/rvazquez/aspen-grade-bot/pkg/aspen"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		chicago = time.UTC
	}

	zcfg := zap.NewDevelopmentConfig()
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(chicago).Format("2006-01-02T15:04:05-07:00"))
	}

	logger, err := zcfg.Build()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	zap.S().Info("logger initialized")

	if err := godotenv.Load(); err != nil {
		zap.S().Debug("load .env file", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.S().Fatal("load config", zap.Error(err))
	}

	encKey, err := base64.StdEncoding.DecodeString(cfg.CredentialsKey)
	if err != nil {
		zap.S().Fatal("decode credentials key", zap.Error(err))
	}
	switch len(encKey) {
	case 16, 24, 32:
	default:
		zap.S().Fatal("credentials key must be 16, 24 or 32 bytes", zap.Int("got", len(encKey)))
	}

	repo, err := repository.NewDB(cfg.DSN(), 10, 20, encKey)
	if err != nil {
		zap.S().Error("connect to PostgreSQL", zap.Error(err), zap.String("host", cfg.PostgresHost))
		os.Exit(1)
	}
	defer repo.Close()

	if err = repo.Up("migrations"); err != nil {
		zap.S().Error("run migrations", zap.Error(err))
		os.Exit(1)
	}

	blackout, err := cfg.Blackout()
	if err != nil {
		zap.S().Fatal("parse blackout days", zap.Error(err))
	}

	aspenCfg := aspen.Config{BaseURL: cfg.AspenBaseURL, Timeout: cfg.AspenTimeout}
	svc := service.NewService(repo, aspenCfg, cfg.DefaultTimezone, cfg.DefaultNotifyTime)

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		zap.S().Error("create bot API", zap.Error(err))
		os.Exit(1)
	}

	disp := dispatcher.New(dispatcher.Config{
		Slots:        cfg.MaxConcurrentFetches,
		PacingMin:    cfg.PacingMin,
		PacingMax:    cfg.PacingMax,
		BlackoutDays: blackout,
	}, svc, handler.NewNotifier(api))

	sched := scheduler.New(repo, disp, scheduler.Defaults{
		Timezone:         cfg.DefaultTimezone,
		NotificationTime: cfg.DefaultNotifyTime,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Rebuild(ctx); err != nil {
		zap.S().Error("rebuild schedules", zap.Error(err))
		os.Exit(1)
	}
	defer sched.StopAll()

	bot := handler.NewTelegramHandler(api, svc, sched)
	bot.Start(ctx)

	zap.S().Info("shutdown complete")
}
