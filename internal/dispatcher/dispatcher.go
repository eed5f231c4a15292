// Package dispatcher executes fetch-and-deliver cycles under a global
// concurrency bound and a randomized pacing delay, so bursts of users
// scheduled in the same slot do not hit the portal simultaneously.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rvazquez/aspen-grade-bot/internal/models"
	"github.com/rvazquez/aspen-grade-bot/pkg/aspen"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type Fetcher interface {
	FetchGrades(ctx context.Context, creds aspen.Credentials, title string) ([]string, error)
}

type Sink interface {
	Deliver(userID int64, text string) error
}

type Config struct {
	Slots        int64
	PacingMin    time.Duration
	PacingMax    time.Duration
	BlackoutDays map[time.Weekday]bool
}

type Dispatcher struct {
	cfg     Config
	sem     *semaphore.Weighted
	fetcher Fetcher
	sink    Sink

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func New(cfg Config, fetcher Fetcher, sink Sink) *Dispatcher {
	if cfg.Slots <= 0 {
		cfg.Slots = 3
	}
	return &Dispatcher{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.Slots),
		fetcher: fetcher,
		sink:    sink,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Dispatch runs one user's cycle: acquire a slot, check the blackout rule,
// pace, fetch, deliver. The slot is released on every exit path. Failures
// are converted into the outcome; the next scheduled fire is the retry
// boundary.
func (d *Dispatcher) Dispatch(ctx context.Context, trig models.Trigger) models.FetchOutcome {
	id := trig.User.TelegramID
	outcome := models.FetchOutcome{UserID: id}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		outcome.Err = fmt.Errorf("acquire fetch slot (telegram_id: %d): %w", id, err)
		return outcome
	}
	defer d.sem.Release(1)

	now := d.now()
	if d.cfg.BlackoutDays[now.Weekday()] {
		zap.S().Info("skipping cycle, blackout weekday", zap.Int64("telegram_id", id), zap.String("weekday", now.Weekday().String()))
		outcome.Skipped = true
		return outcome
	}

	pacing := d.pacingDelay()
	zap.S().Info("pacing before portal request", zap.Duration("delay", pacing), zap.Int64("telegram_id", id))
	d.sleep(ctx, pacing)
	if ctx.Err() != nil {
		outcome.Err = ctx.Err()
		return outcome
	}

	start := d.now()
	title := fmt.Sprintf("📚 Daily Grade Update (%s)", start.Format("Monday, January 2, 2006 at 3:04 PM MST"))

	creds := aspen.Credentials{Username: trig.User.PortalUsername, Password: trig.User.PortalPassword}
	chunks, err := d.fetcher.FetchGrades(ctx, creds, title)
	if err != nil {
		outcome.Err = err
		zap.S().Error("scheduled grade fetch failed", zap.Error(err), zap.Int64("telegram_id", id))
		if derr := d.sink.Deliver(id, failureMessage(err)); derr != nil {
			zap.S().Error("deliver failure notice failed", zap.Error(derr), zap.Int64("telegram_id", id))
		}
		return outcome
	}
	outcome.Chunks = chunks

	if delivery := d.now(); delivery.After(trig.ScheduledAt) {
		outcome.DelayMinutes = int(delivery.Sub(trig.ScheduledAt).Minutes())
	}

	for i, chunk := range chunks {
		if err := d.sink.Deliver(id, chunk); err != nil {
			zap.S().Error("deliver chunk failed", zap.Error(err), zap.Int64("telegram_id", id), zap.Int("chunk", i))
		}
	}

	if outcome.DelayMinutes > 0 {
		if err := d.sink.Deliver(id, delayNotice(outcome.DelayMinutes)); err != nil {
			zap.S().Error("deliver delay notice failed", zap.Error(err), zap.Int64("telegram_id", id))
		}
	}

	return outcome
}

func (d *Dispatcher) pacingDelay() time.Duration {
	window := d.cfg.PacingMax - d.cfg.PacingMin
	if window <= 0 {
		return d.cfg.PacingMin
	}
	return d.cfg.PacingMin + time.Duration(rand.Int63n(int64(window)))
}

func failureMessage(err error) string {
	if errors.Is(err, aspen.ErrInvalidCredentials) || errors.Is(err, aspen.ErrLoginRejected) {
		return "❌ Failed to login to Aspen. Please check your credentials and /register again."
	}
	return "❌ Failed to fetch your grades today. The next scheduled update will try again."
}

func delayNotice(minutes int) string {
	return fmt.Sprintf("⏰ <b>Delay Notice</b>\n\n"+
		"Your notification was delayed by %d minutes due to rate limiting protection.\n\n"+
		"This ensures reliable service for all users by preventing server overload.", minutes)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
