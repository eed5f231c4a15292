package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rvazquez/aspen-grade-bot/internal/models"
	"github.com/rvazquez/aspen-grade-bot/pkg/aspen"
	"go.uber.org/zap"
)

type Service interface {
	RegisterUser(ctx context.Context, telegramID int64, username, password string) error
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	GetUserSettings(ctx context.Context, telegramID int64) (*models.UserSettings, error)
	UpdateNotificationTime(ctx context.Context, telegramID int64, notificationTime string) error
	UpdateTimezone(ctx context.Context, telegramID int64, timezone string) error
	Deactivate(ctx context.Context, telegramID int64) error
	FetchGrades(ctx context.Context, creds aspen.Credentials, title string) ([]string, error)
}

type Rescheduler interface {
	Schedule(user *models.User, settings *models.UserSettings) (time.Time, error)
	Cancel(telegramID int64)
}

type TelegramHandler struct {
	api     *tgbotapi.BotAPI
	service Service
	sched   Rescheduler
}

func NewTelegramHandler(api *tgbotapi.BotAPI, service Service, sched Rescheduler) *TelegramHandler {
	return &TelegramHandler{
		api:     api,
		service: service,
		sched:   sched,
	}
}

// Start runs the long-poll update loop until ctx is cancelled.
func (h *TelegramHandler) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.api.GetUpdatesChan(u)

	zap.S().Info("bot started", zap.String("username", h.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			h.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From == nil {
				zap.S().Warn("received command from nil user")
				continue
			}
			h.handleCommand(ctx, update)
		}
	}
}

func (h *TelegramHandler) handleCommand(ctx context.Context, update tgbotapi.Update) {
	switch update.Message.Command() {
	case "start":
		h.sendMessage(update.Message.Chat.ID, startText)
	case "help":
		h.sendMessage(update.Message.Chat.ID, helpText)
	case "register":
		h.handleRegister(ctx, update)
	case "grades":
		h.handleGrades(ctx, update)
	case "settime":
		h.handleSetTime(ctx, update)
	case "settimezone":
		h.handleSetTimezone(ctx, update)
	case "stop":
		h.handleStop(ctx, update)
	default:
		h.sendMessage(update.Message.Chat.ID, "Unknown command. Use /help")
	}
}

func (h *TelegramHandler) handleRegister(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID
	telegramID := update.Message.From.ID

	args := strings.Fields(update.Message.CommandArguments())
	if len(args) != 2 {
		h.sendMessage(chatID, "Usage: /register &lt;aspen username&gt; &lt;aspen password&gt;")
		return
	}

	if err := h.service.RegisterUser(ctx, telegramID, args[0], args[1]); err != nil {
		zap.S().Error("register user failed", zap.Error(err), zap.Int64("telegram_id", telegramID))
		h.sendMessage(chatID, "❌ Registration failed. Please try again later.")
		return
	}

	next, ok := h.rescheduleFromStore(ctx, telegramID)
	if !ok {
		h.sendMessage(chatID, "✅ Credentials saved, but scheduling failed. Use /settime to retry.")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"✅ You're registered! Daily grade updates are scheduled.\n\nNext update: %s\n\nUse /grades to fetch your grades right now.",
		next.Format("Mon Jan 2 15:04 MST")))
}

func (h *TelegramHandler) handleGrades(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID
	telegramID := update.Message.From.ID

	user, err := h.service.GetUser(ctx, telegramID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			h.sendMessage(chatID, "You're not registered yet. Use /register &lt;username&gt; &lt;password&gt; first.")
			return
		}
		zap.S().Error("get user failed", zap.Error(err), zap.Int64("telegram_id", telegramID))
		h.sendMessage(chatID, "❌ Something went wrong. Please try again later.")
		return
	}

	h.sendMessage(chatID, "Fetching your grades... Please wait.")

	// The portal round-trip takes a while; keep the update loop responsive.
	go func() {
		creds := aspen.Credentials{Username: user.PortalUsername, Password: user.PortalPassword}
		chunks, err := h.service.FetchGrades(ctx, creds, "📚 Current Grades")
		if err != nil {
			zap.S().Error("on-demand grade fetch failed", zap.Error(err), zap.Int64("telegram_id", telegramID))
			if errors.Is(err, aspen.ErrInvalidCredentials) || errors.Is(err, aspen.ErrLoginRejected) {
				h.sendMessage(chatID, "❌ Failed to login to Aspen. Please check your credentials and /register again.")
			} else {
				h.sendMessage(chatID, "❌ Failed to fetch grades. Please try again later.")
			}
			return
		}
		for _, chunk := range chunks {
			h.sendMessage(chatID, chunk)
		}
	}()
}

func (h *TelegramHandler) handleSetTime(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID
	telegramID := update.Message.From.ID

	arg := strings.TrimSpace(update.Message.CommandArguments())
	if arg == "" {
		h.sendMessage(chatID, "Usage: /settime HH:MM (e.g. /settime 15:30)")
		return
	}

	if err := h.service.UpdateNotificationTime(ctx, telegramID, arg); err != nil {
		zap.S().Warn("update notification time rejected", zap.Error(err), zap.Int64("telegram_id", telegramID))
		h.sendMessage(chatID, "❌ That doesn't look like a valid time. Use HH:MM, e.g. 15:30.")
		return
	}

	next, ok := h.rescheduleFromStore(ctx, telegramID)
	if !ok {
		h.sendMessage(chatID, "✅ Time saved, but rescheduling failed. It will apply after the next restart.")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Notification time updated.\nNext update: %s", next.Format("Mon Jan 2 15:04 MST")))
}

func (h *TelegramHandler) handleSetTimezone(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID
	telegramID := update.Message.From.ID

	arg := strings.TrimSpace(update.Message.CommandArguments())
	if arg == "" {
		h.sendMessage(chatID, "Usage: /settimezone &lt;IANA name&gt; (e.g. /settimezone America/Chicago)")
		return
	}

	if err := h.service.UpdateTimezone(ctx, telegramID, arg); err != nil {
		zap.S().Warn("update timezone rejected", zap.Error(err), zap.Int64("telegram_id", telegramID))
		h.sendMessage(chatID, "❌ Unknown timezone. Use an IANA name like America/Chicago.")
		return
	}

	next, ok := h.rescheduleFromStore(ctx, telegramID)
	if !ok {
		h.sendMessage(chatID, "✅ Timezone saved, but rescheduling failed. It will apply after the next restart.")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Timezone updated.\nNext update: %s", next.Format("Mon Jan 2 15:04 MST")))
}

func (h *TelegramHandler) handleStop(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID
	telegramID := update.Message.From.ID

	if err := h.service.Deactivate(ctx, telegramID); err != nil {
		zap.S().Error("deactivate user failed", zap.Error(err), zap.Int64("telegram_id", telegramID))
		h.sendMessage(chatID, "❌ Something went wrong. Please try again later.")
		return
	}
	h.sched.Cancel(telegramID)
	h.sendMessage(chatID, "🛑 Daily updates stopped. Use /register to start again.")
}

// rescheduleFromStore reloads the user's stored state and replaces their
// timer, so exactly one timer stays armed per user.
func (h *TelegramHandler) rescheduleFromStore(ctx context.Context, telegramID int64) (time.Time, bool) {
	user, err := h.service.GetUser(ctx, telegramID)
	if err != nil {
		zap.S().Error("reload user for reschedule failed", zap.Error(err), zap.Int64("telegram_id", telegramID))
		return time.Time{}, false
	}
	settings, err := h.service.GetUserSettings(ctx, telegramID)
	if err != nil {
		zap.S().Error("reload settings for reschedule failed", zap.Error(err), zap.Int64("telegram_id", telegramID))
		return time.Time{}, false
	}

	next, err := h.sched.Schedule(user, settings)
	if err != nil {
		zap.S().Error("reschedule failed", zap.Error(err), zap.Int64("telegram_id", telegramID))
		return time.Time{}, false
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return next, true
	}
	return next.In(loc), true
}

func (h *TelegramHandler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := h.api.Send(msg); err != nil {
		zap.S().Error("send message failed", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}
