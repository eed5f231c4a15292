package models

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned by registry lookups for unknown users.
var ErrUserNotFound = errors.New("user not found")

type Repository interface {
	CreateOrUpdateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, telegramID int64) (*User, error)
	UserExists(ctx context.Context, telegramID int64) (bool, error)
	GetAllActiveUsers(ctx context.Context) ([]*User, error)
	DeactivateUser(ctx context.Context, telegramID int64) error
	DeleteUser(ctx context.Context, telegramID int64) error

	GetUserSettings(ctx context.Context, telegramID int64) (*UserSettings, error)
	EnsureUserSettings(ctx context.Context, settings *UserSettings) error
	UpdateNotificationTime(ctx context.Context, telegramID int64, notificationTime string) error
	UpdateTimezone(ctx context.Context, telegramID int64, timezone string) error

	RunInTx(ctx context.Context, fn func(Repository) error) error
}
