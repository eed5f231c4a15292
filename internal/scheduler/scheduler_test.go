package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rvazquez/aspen-grade-bot/internal/models"
)

type fakeRegistry struct {
	users    []*models.User
	settings map[int64]*models.UserSettings
}

func (f *fakeRegistry) GetAllActiveUsers(context.Context) ([]*models.User, error) {
	return f.users, nil
}

func (f *fakeRegistry) GetUser(_ context.Context, id int64) (*models.User, error) {
	for _, u := range f.users {
		if u.TelegramID == id {
			return u, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (f *fakeRegistry) GetUserSettings(_ context.Context, id int64) (*models.UserSettings, error) {
	s, ok := f.settings[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return s, nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	triggers []models.Trigger
}

func (f *fakeDispatcher) Dispatch(_ context.Context, trig models.Trigger) models.FetchOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trig)
	return models.FetchOutcome{UserID: trig.User.TelegramID}
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggers)
}

func testUser(id int64) *models.User {
	return &models.User{TelegramID: id, PortalUsername: "u", PortalPassword: "p", IsActive: true}
}

// settings that fire comfortably in the future so timers never go off
// during a test
func futureSettings(id int64) *models.UserSettings {
	clock := time.Now().UTC().Add(2 * time.Hour).Format("15:04")
	return &models.UserSettings{TelegramID: id, Timezone: "UTC", NotificationTime: clock}
}

func newTestScheduler(reg Registry, disp Dispatcher) *Scheduler {
	s := New(reg, disp, Defaults{Timezone: "UTC", NotificationTime: "15:00"})
	s.jitter = func() time.Duration { return 0 }
	return s
}

func TestSchedule_ReplacingLeavesSingleTimer(t *testing.T) {
	s := newTestScheduler(&fakeRegistry{}, &fakeDispatcher{})
	defer s.StopAll()

	user := testUser(1)
	settings := futureSettings(1)

	first, err := s.Schedule(user, settings)
	if err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	second, err := s.Schedule(user, settings)
	if err != nil {
		t.Fatalf("second schedule: %v", err)
	}

	if got := s.Active(); got != 1 {
		t.Fatalf("want exactly 1 active timer, got %d", got)
	}
	next, ok := s.NextFireUTC(1)
	if !ok {
		t.Fatal("no armed timer for user 1")
	}
	if !next.Equal(second) {
		t.Fatalf("armed fire %v, want latest %v (first was %v)", next, second, first)
	}
}

func TestCancel_RemovesTimer(t *testing.T) {
	s := newTestScheduler(&fakeRegistry{}, &fakeDispatcher{})
	defer s.StopAll()

	if _, err := s.Schedule(testUser(1), futureSettings(1)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Cancel(1)

	if got := s.Active(); got != 0 {
		t.Fatalf("want 0 active timers, got %d", got)
	}
}

func TestRebuild_ClearsStaleStateAndSkipsBadUsers(t *testing.T) {
	reg := &fakeRegistry{
		users: []*models.User{testUser(1), testUser(2)},
		settings: map[int64]*models.UserSettings{
			1: futureSettings(1),
			2: {TelegramID: 2, Timezone: "Not/AZone", NotificationTime: "15:00"},
		},
	}
	s := newTestScheduler(reg, &fakeDispatcher{})
	defer s.StopAll()

	// Stale timer for a user the registry no longer knows about.
	if _, err := s.Schedule(testUser(99), futureSettings(99)); err != nil {
		t.Fatalf("pre-arm stale timer: %v", err)
	}

	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if got := s.Active(); got != 1 {
		t.Fatalf("want 1 active timer (bad tz skipped, stale cleared), got %d", got)
	}
	if _, ok := s.NextFireUTC(99); ok {
		t.Fatal("stale timer for user 99 survived rebuild")
	}
	if _, ok := s.NextFireUTC(1); !ok {
		t.Fatal("user 1 not scheduled after rebuild")
	}
}

func TestFire_DispatchesAndRearms(t *testing.T) {
	reg := &fakeRegistry{
		users:    []*models.User{testUser(1)},
		settings: map[int64]*models.UserSettings{1: futureSettings(1)},
	}
	disp := &fakeDispatcher{}
	s := newTestScheduler(reg, disp)
	defer s.StopAll()

	scheduled := time.Now().UTC().Add(-12 * time.Minute)
	e := &entry{nextFire: scheduled, user: testUser(1), settings: futureSettings(1)}
	s.mu.Lock()
	s.entries[1] = e
	s.mu.Unlock()

	s.fire(1, e)

	if got := disp.count(); got != 1 {
		t.Fatalf("want 1 dispatch, got %d", got)
	}
	disp.mu.Lock()
	trig := disp.triggers[0]
	disp.mu.Unlock()
	if !trig.ScheduledAt.Equal(scheduled) {
		t.Fatalf("trigger carries ScheduledAt %v, want %v", trig.ScheduledAt, scheduled)
	}
	if got := s.Active(); got != 1 {
		t.Fatalf("want timer re-armed for next day, got %d active", got)
	}
}

func TestFire_StaleEntryIsIgnored(t *testing.T) {
	disp := &fakeDispatcher{}
	s := newTestScheduler(&fakeRegistry{}, disp)
	defer s.StopAll()

	if _, err := s.Schedule(testUser(1), futureSettings(1)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	stale := &entry{nextFire: time.Now().UTC(), user: testUser(1), settings: futureSettings(1)}
	s.fire(1, stale)

	if got := disp.count(); got != 0 {
		t.Fatalf("stale entry must not dispatch, got %d", got)
	}
	if got := s.Active(); got != 1 {
		t.Fatalf("live timer must survive stale fire, got %d", got)
	}
}

func TestFire_DeactivatedUserIsDropped(t *testing.T) {
	inactive := testUser(1)
	inactive.IsActive = false
	reg := &fakeRegistry{
		users:    []*models.User{inactive},
		settings: map[int64]*models.UserSettings{1: futureSettings(1)},
	}
	disp := &fakeDispatcher{}
	s := newTestScheduler(reg, disp)
	defer s.StopAll()

	e := &entry{nextFire: time.Now().UTC(), user: testUser(1), settings: futureSettings(1)}
	s.mu.Lock()
	s.entries[1] = e
	s.mu.Unlock()

	s.fire(1, e)

	if got := disp.count(); got != 0 {
		t.Fatalf("deactivated user must not dispatch, got %d", got)
	}
	if got := s.Active(); got != 0 {
		t.Fatalf("deactivated user must not re-arm, got %d active", got)
	}
}
