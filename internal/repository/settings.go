package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rvazquez/aspen-grade-bot/internal/models"
)

func (r *Postgres) GetUserSettings(ctx context.Context, telegramID int64) (*models.UserSettings, error) {
	query := `
		SELECT telegram_id, timezone, notification_frequency, notification_time
		FROM user_settings WHERE telegram_id = $1
	`

	var settings models.UserSettings
	if err := r.GetContext(ctx, &settings, query, telegramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user settings (telegram_id: %d): %w", telegramID, err)
	}
	return &settings, nil
}

// EnsureUserSettings inserts default settings for a user, leaving existing
// rows untouched so re-registration keeps prior preferences.
func (r *Postgres) EnsureUserSettings(ctx context.Context, settings *models.UserSettings) error {
	query := r.psql.Insert("user_settings").
		Columns("telegram_id", "timezone", "notification_frequency", "notification_time").
		Values(settings.TelegramID, settings.Timezone, settings.NotificationFrequency, settings.NotificationTime).
		Suffix("ON CONFLICT (telegram_id) DO NOTHING")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d): %w", settings.TelegramID, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("ensure user settings (telegram_id: %d): %w", settings.TelegramID, err)
	}
	return nil
}

func (r *Postgres) UpdateNotificationTime(ctx context.Context, telegramID int64, notificationTime string) error {
	query := r.psql.Update("user_settings").
		Set("notification_time", notificationTime).
		Where("telegram_id = ?", telegramID)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d): %w", telegramID, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update notification time (telegram_id: %d, time: %s): %w", telegramID, notificationTime, err)
	}
	return nil
}

func (r *Postgres) UpdateTimezone(ctx context.Context, telegramID int64, timezone string) error {
	query := r.psql.Update("user_settings").
		Set("timezone", timezone).
		Where("telegram_id = ?", telegramID)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d): %w", telegramID, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update timezone (telegram_id: %d, timezone: %s): %w", telegramID, timezone, err)
	}
	return nil
}
