package service

import (
	"context"
	"fmt"

	"github.com/rvazquez/aspen-grade-bot/internal/format"
	"github.com/rvazquez/aspen-grade-bot/internal/models"
	"github.com/rvazquez/aspen-grade-bot/internal/scheduler"
	"github.com/rvazquez/aspen-grade-bot/pkg/aspen"
	"go.uber.org/zap"
)

type Repository interface {
	CreateOrUpdateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	UserExists(ctx context.Context, telegramID int64) (bool, error)
	GetAllActiveUsers(ctx context.Context) ([]*models.User, error)
	DeactivateUser(ctx context.Context, telegramID int64) error
	DeleteUser(ctx context.Context, telegramID int64) error

	GetUserSettings(ctx context.Context, telegramID int64) (*models.UserSettings, error)
	EnsureUserSettings(ctx context.Context, settings *models.UserSettings) error
	UpdateNotificationTime(ctx context.Context, telegramID int64, notificationTime string) error
	UpdateTimezone(ctx context.Context, telegramID int64, timezone string) error

	RunInTx(ctx context.Context, fn func(models.Repository) error) error
}

type Service struct {
	repo              Repository
	aspenCfg          aspen.Config
	defaultTimezone   string
	defaultNotifyTime string
}

func NewService(repo Repository, aspenCfg aspen.Config, defaultTimezone, defaultNotifyTime string) *Service {
	return &Service{
		repo:              repo,
		aspenCfg:          aspenCfg,
		defaultTimezone:   defaultTimezone,
		defaultNotifyTime: defaultNotifyTime,
	}
}

// RegisterUser upserts credentials and makes sure a settings row exists, in
// one transaction. Re-registering keeps any previously chosen settings.
func (s *Service) RegisterUser(ctx context.Context, telegramID int64, username, password string) error {
	user := &models.User{
		TelegramID:         telegramID,
		PortalUsername:     username,
		PortalPassword:     password,
		NotificationMethod: "telegram",
	}

	err := s.repo.RunInTx(ctx, func(r models.Repository) error {
		if err := r.CreateOrUpdateUser(ctx, user); err != nil {
			return err
		}
		return r.EnsureUserSettings(ctx, &models.UserSettings{
			TelegramID:            telegramID,
			Timezone:              s.defaultTimezone,
			NotificationFrequency: "daily",
			NotificationTime:      s.defaultNotifyTime,
		})
	})
	if err != nil {
		return fmt.Errorf("register user (telegram_id: %d): %w", telegramID, err)
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.repo.GetUser(ctx, telegramID)
}

func (s *Service) GetUserSettings(ctx context.Context, telegramID int64) (*models.UserSettings, error) {
	return s.repo.GetUserSettings(ctx, telegramID)
}

// UpdateNotificationTime validates "HH:MM" before persisting; a malformed
// value is an error, never silently adjusted.
func (s *Service) UpdateNotificationTime(ctx context.Context, telegramID int64, notificationTime string) error {
	if _, _, err := scheduler.ParseClock(notificationTime); err != nil {
		return fmt.Errorf("invalid notification time %q: %w", notificationTime, err)
	}
	return s.repo.UpdateNotificationTime(ctx, telegramID, notificationTime)
}

// UpdateTimezone rejects unknown IANA names at settings-update time; there
// is deliberately no fallback to a default zone.
func (s *Service) UpdateTimezone(ctx context.Context, telegramID int64, timezone string) error {
	canonical, err := scheduler.ValidateTimezone(timezone)
	if err != nil {
		return err
	}
	return s.repo.UpdateTimezone(ctx, telegramID, canonical)
}

func (s *Service) Deactivate(ctx context.Context, telegramID int64) error {
	return s.repo.DeactivateUser(ctx, telegramID)
}

// FetchGrades runs one full portal pass: fresh session, login, resolve the
// student, list classes, then fetch each graded class's assignments. A
// per-class assignment failure degrades that class to its summary line and
// never aborts the siblings.
func (s *Service) FetchGrades(ctx context.Context, creds aspen.Credentials, title string) ([]string, error) {
	sess, err := aspen.NewSession(s.aspenCfg)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := sess.Login(ctx, creds); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := sess.ResolveStudent(ctx); err != nil {
		return nil, err
	}

	classes, err := sess.ListClasses(ctx)
	if err != nil {
		return nil, err
	}

	details := make([]format.ClassDetail, 0, len(classes))
	for _, class := range classes {
		detail := format.ClassDetail{Class: class}
		if class.Percentage != nil && class.ScheduleOID != "" {
			assignments, err := sess.ListAssignments(ctx, class.ScheduleOID)
			if err != nil {
				zap.S().Warn("fetch assignments failed, degrading to class summary",
					zap.Error(err), zap.String("course", class.CourseName))
			} else {
				detail.Assignments = assignments
			}
		}
		details = append(details, detail)
	}

	return format.Messages(sess.StudentName(), details, title), nil
}
