package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
// The pacing window, concurrency bound and blackout days are configuration,
// not embedded constants.
type Config struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error

	PostgresHost     string `envconfig:"POSTGRES_HOST" required:"true"`
	PostgresPort     string `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" required:"true"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	PostgresDB       string `envconfig:"POSTGRES_DB" required:"true"`

	// Base64 AES key (16, 24 or 32 bytes) for credential encryption at rest.
	CredentialsKey string `envconfig:"CREDENTIALS_KEY" required:"true"`

	AspenBaseURL string        `envconfig:"ASPEN_BASE_URL" default:"https://aspen.cps.edu/aspen"`
	AspenTimeout time.Duration `envconfig:"ASPEN_TIMEOUT" default:"30s"`

	MaxConcurrentFetches int64         `envconfig:"MAX_CONCURRENT_FETCHES" default:"3"`
	PacingMin            time.Duration `envconfig:"PACING_MIN" default:"30s"`
	PacingMax            time.Duration `envconfig:"PACING_MAX" default:"2m"`
	BlackoutDays         []string      `envconfig:"BLACKOUT_DAYS" default:"Saturday,Sunday"`

	DefaultTimezone   string `envconfig:"DEFAULT_TZ" default:"America/Chicago"`
	DefaultNotifyTime string `envconfig:"DEFAULT_NOTIFY_TIME" default:"15:00"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB)
}

// Blackout resolves the configured weekday names into a lookup set.
func (c Config) Blackout() (map[time.Weekday]bool, error) {
	days := map[time.Weekday]bool{}
	for _, name := range c.BlackoutDays {
		day, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		days[day] = true
	}
	return days, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}
