package models

import "time"

type User struct {
	TelegramID         int64     `db:"telegram_id"`
	PortalUsername     string    `db:"aspen_username"`
	PortalPassword     string    `db:"aspen_password"`
	NotificationMethod string    `db:"notification_method"`
	IsActive           bool      `db:"is_active"`
	CreatedAt          time.Time `db:"created_at"`
	LastUpdated        time.Time `db:"last_updated"`
}

type UserSettings struct {
	TelegramID            int64  `db:"telegram_id"`
	Timezone              string `db:"timezone"`
	NotificationFrequency string `db:"notification_frequency"`
	NotificationTime      string `db:"notification_time"` // "HH:MM" local to Timezone
}

// Trigger is the payload a fired per-user timer hands to the dispatcher.
// ScheduledAt is the nominal UTC instant the timer was armed for; delivery
// delay is measured against it, not against the actual timer fire time.
type Trigger struct {
	User        *User
	Settings    *UserSettings
	ScheduledAt time.Time
}

// FetchOutcome is the transient result of one dispatch cycle. It is handed
// to the delivery sink and never persisted.
type FetchOutcome struct {
	UserID       int64
	Chunks       []string
	DelayMinutes int
	Skipped      bool // blackout weekday, deliberate skip
	Err          error
}
