package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rvazquez/aspen-grade-bot/internal/crypto"
	"github.com/rvazquez/aspen-grade-bot/internal/models"
)

// CreateOrUpdateUser upserts a user's portal credentials, encrypting them
// before they touch the database. Re-registering reactivates the account.
func (r *Postgres) CreateOrUpdateUser(ctx context.Context, user *models.User) error {
	encUsername, err := crypto.Encrypt(r.encKey, user.PortalUsername)
	if err != nil {
		return fmt.Errorf("encrypt username (telegram_id: %d): %w", user.TelegramID, err)
	}
	encPassword, err := crypto.Encrypt(r.encKey, user.PortalPassword)
	if err != nil {
		return fmt.Errorf("encrypt password (telegram_id: %d): %w", user.TelegramID, err)
	}

	query := r.psql.Insert("users").
		Columns("telegram_id", "aspen_username", "aspen_password", "notification_method", "is_active", "created_at", "last_updated").
		Values(user.TelegramID, encUsername, encPassword, user.NotificationMethod, true, time.Now().UTC(), time.Now().UTC()).
		Suffix(`ON CONFLICT (telegram_id) DO UPDATE SET
			aspen_username = EXCLUDED.aspen_username,
			aspen_password = EXCLUDED.aspen_password,
			notification_method = EXCLUDED.notification_method,
			is_active = TRUE,
			last_updated = EXCLUDED.last_updated`)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d): %w", user.TelegramID, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert user (telegram_id: %d): %w", user.TelegramID, err)
	}
	return nil
}

func (r *Postgres) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `
		SELECT telegram_id, aspen_username, aspen_password, notification_method, is_active, created_at, last_updated
		FROM users WHERE telegram_id = $1
	`

	var user models.User
	if err := r.GetContext(ctx, &user, query, telegramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user (telegram_id: %d): %w", telegramID, err)
	}

	if err := r.decryptCredentials(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Postgres) UserExists(ctx context.Context, telegramID int64) (bool, error) {
	query := r.psql.Select("COUNT(*)").From("users").Where("telegram_id = ?", telegramID)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build SQL query (telegram_id: %d): %w", telegramID, err)
	}

	var count int
	if err = r.GetContext(ctx, &count, sqlStr, args...); err != nil {
		return false, fmt.Errorf("check user exists (telegram_id: %d): %w", telegramID, err)
	}
	return count > 0, nil
}

func (r *Postgres) GetAllActiveUsers(ctx context.Context) ([]*models.User, error) {
	query := r.psql.Select("telegram_id", "aspen_username", "aspen_password", "notification_method", "is_active", "created_at", "last_updated").
		From("users").
		Where("is_active = TRUE")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SQL query: %w", err)
	}

	var users []*models.User
	if err = r.SelectContext(ctx, &users, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("get all active users: %w", err)
	}

	for _, user := range users {
		if err := r.decryptCredentials(user); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *Postgres) DeactivateUser(ctx context.Context, telegramID int64) error {
	query := r.psql.Update("users").
		Set("is_active", false).
		Set("last_updated", time.Now().UTC()).
		Where("telegram_id = ?", telegramID)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d): %w", telegramID, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("deactivate user (telegram_id: %d): %w", telegramID, err)
	}
	return nil
}

func (r *Postgres) DeleteUser(ctx context.Context, telegramID int64) error {
	for _, table := range []string{"user_settings", "users"} {
		query := r.psql.Delete(table).Where("telegram_id = ?", telegramID)

		sqlStr, args, err := query.ToSql()
		if err != nil {
			return fmt.Errorf("build SQL query (table: %s, telegram_id: %d): %w", table, telegramID, err)
		}

		if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("delete user (table: %s, telegram_id: %d): %w", table, telegramID, err)
		}
	}
	return nil
}

func (r *Postgres) decryptCredentials(user *models.User) error {
	username, err := crypto.Decrypt(r.encKey, user.PortalUsername)
	if err != nil {
		return fmt.Errorf("decrypt username (telegram_id: %d): %w", user.TelegramID, err)
	}
	password, err := crypto.Decrypt(r.encKey, user.PortalPassword)
	if err != nil {
		return fmt.Errorf("decrypt password (telegram_id: %d): %w", user.TelegramID, err)
	}

	user.PortalUsername = username
	user.PortalPassword = password
	return nil
}
