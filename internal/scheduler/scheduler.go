// Package scheduler maintains one recurring per-user timer that fires at the
// user's preferred local time in the user's timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rvazquez/aspen-grade-bot/internal/models"
	"go.uber.org/zap"
)

type Registry interface {
	GetAllActiveUsers(ctx context.Context) ([]*models.User, error)
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	GetUserSettings(ctx context.Context, telegramID int64) (*models.UserSettings, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, trig models.Trigger) models.FetchOutcome
}

// Defaults are applied when a user has no stored settings row.
type Defaults struct {
	Timezone         string
	NotificationTime string
}

// Scheduler owns the per-user timer table. It is the only writer: every arm
// and cancel goes through the mutex, which keeps the invariant of at most
// one live timer per user.
type Scheduler struct {
	registry   Registry
	dispatcher Dispatcher
	defaults   Defaults
	jitter     JitterFunc
	now        func() time.Time

	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	timer    *time.Timer
	nextFire time.Time
	user     *models.User
	settings *models.UserSettings
}

func New(registry Registry, dispatcher Dispatcher, defaults Defaults) *Scheduler {
	return &Scheduler{
		registry:   registry,
		dispatcher: dispatcher,
		defaults:   defaults,
		jitter:     QuantizedJitter,
		now:        time.Now,
		entries:    make(map[int64]*entry),
	}
}

// Schedule arms the user's next timer, cancelling any existing one first.
// A stale timer firing with outdated time or timezone is an incorrectness,
// so the swap happens under the lock. Returns the armed UTC fire instant.
func (s *Scheduler) Schedule(user *models.User, settings *models.UserSettings) (time.Time, error) {
	next, err := NextFire(s.now().UTC(), settings.NotificationTime, settings.Timezone, s.jitter())
	if err != nil {
		return time.Time{}, fmt.Errorf("compute next fire (telegram_id: %d): %w", user.TelegramID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[user.TelegramID]; ok {
		old.timer.Stop()
	}

	e := &entry{nextFire: next, user: user, settings: settings}
	id := user.TelegramID
	e.timer = time.AfterFunc(next.Sub(s.now()), func() { s.fire(id, e) })
	s.entries[id] = e

	zap.S().Info("scheduled grade check",
		zap.Int64("telegram_id", id),
		zap.String("time", settings.NotificationTime),
		zap.String("timezone", settings.Timezone),
		zap.Time("next_fire_utc", next),
	)
	return next, nil
}

// Cancel stops and removes the user's timer, if any. An in-flight dispatch
// for that user is allowed to complete.
func (s *Scheduler) Cancel(telegramID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[telegramID]; ok {
		e.timer.Stop()
		delete(s.entries, telegramID)
	}
}

// StopAll clears the whole timer table.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
}

// NextFireUTC reports the last known armed fire instant for a user.
func (s *Scheduler) NextFireUTC(telegramID int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[telegramID]
	if !ok {
		return time.Time{}, false
	}
	return e.nextFire, true
}

// Active returns the number of armed timers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Rebuild clears all timer state and re-arms a timer for every active user.
// A failure for one user is logged and skipped; it must not prevent the rest
// from being scheduled.
func (s *Scheduler) Rebuild(ctx context.Context) error {
	s.StopAll()

	users, err := s.registry.GetAllActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	zap.S().Info("rebuilding schedules", zap.Int("users", len(users)))

	for _, user := range users {
		settings, err := s.settingsFor(ctx, user.TelegramID)
		if err != nil {
			zap.S().Error("load settings, skipping user", zap.Error(err), zap.Int64("telegram_id", user.TelegramID))
			continue
		}
		if _, err := s.Schedule(user, settings); err != nil {
			zap.S().Error("schedule user failed, skipping", zap.Error(err), zap.Int64("telegram_id", user.TelegramID))
			continue
		}
	}

	zap.S().Info("schedules rebuilt", zap.Int("active_timers", s.Active()))
	return nil
}

// fire runs when a timer goes off: re-arm for the next day first, then hand
// the trigger to the dispatcher. Re-arming before dispatch keeps the timer
// table current while the fetch is in flight.
func (s *Scheduler) fire(id int64, e *entry) {
	s.mu.Lock()
	if s.entries[id] != e {
		// Replaced or cancelled after the timer already fired.
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	s.mu.Unlock()

	ctx := context.Background()

	user, settings := e.user, e.settings
	if fresh, freshSettings, err := s.lookup(ctx, id); err != nil {
		zap.S().Warn("refresh user before dispatch failed, using armed snapshot", zap.Error(err), zap.Int64("telegram_id", id))
	} else if fresh == nil {
		zap.S().Info("user no longer active, dropping schedule", zap.Int64("telegram_id", id))
		return
	} else {
		user, settings = fresh, freshSettings
	}

	if _, err := s.Schedule(user, settings); err != nil {
		zap.S().Error("re-arm timer failed", zap.Error(err), zap.Int64("telegram_id", id))
	}

	outcome := s.dispatcher.Dispatch(ctx, models.Trigger{User: user, Settings: settings, ScheduledAt: e.nextFire})
	switch {
	case outcome.Err != nil:
		zap.S().Error("scheduled dispatch failed", zap.Error(outcome.Err), zap.Int64("telegram_id", id))
	case outcome.Skipped:
		zap.S().Info("scheduled dispatch skipped", zap.Int64("telegram_id", id))
	default:
		zap.S().Info("scheduled dispatch delivered",
			zap.Int64("telegram_id", id),
			zap.Int("chunks", len(outcome.Chunks)),
			zap.Int("delay_minutes", outcome.DelayMinutes),
		)
	}
}

// lookup refreshes user and settings from the registry. Returns a nil user
// when the account was deactivated or deleted since the timer was armed.
func (s *Scheduler) lookup(ctx context.Context, id int64) (*models.User, *models.UserSettings, error) {
	user, err := s.registry.GetUser(ctx, id)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, nil
	}
	settings, err := s.settingsFor(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return user, settings, nil
}

func (s *Scheduler) settingsFor(ctx context.Context, id int64) (*models.UserSettings, error) {
	settings, err := s.registry.GetUserSettings(ctx, id)
	if err == nil {
		return settings, nil
	}
	// Fall back to defaults so a missing settings row does not strand the user.
	zap.S().Warn("settings lookup failed, using defaults", zap.Error(err), zap.Int64("telegram_id", id))
	return &models.UserSettings{
		TelegramID:            id,
		Timezone:              s.defaults.Timezone,
		NotificationFrequency: "daily",
		NotificationTime:      s.defaults.NotificationTime,
	}, nil
}
