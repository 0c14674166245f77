package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store drivers accepted by SCHEDULER_STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config captures environment driven configuration values for the scheduler
// API and the notification worker.
type Config struct {
	HTTPPort            int           `env:"SCHEDULER_HTTP_PORT" validate:"min=1,max=65535"`
	Store               string        `env:"SCHEDULER_STORE" validate:"oneof=memory sqlite postgres"`
	SQLitePath          string        `env:"SCHEDULER_SQLITE_PATH" validate:"required_if=Store sqlite"`
	PostgresDSN         string        `env:"SCHEDULER_POSTGRES_DSN" validate:"required_if=Store postgres"`
	PostgresExclusion   bool          `env:"SCHEDULER_POSTGRES_EXCLUSION"`
	TenantFile          string        `env:"SCHEDULER_TENANT_FILE" validate:"required"`
	RedisAddr           string        `env:"SCHEDULER_REDIS_ADDR" validate:"omitempty,hostname_port"`
	TenantCacheTTL      time.Duration `env:"SCHEDULER_TENANT_CACHE_TTL" validate:"min=0"`
	AuthCacheTTL        time.Duration `env:"SCHEDULER_AUTH_CACHE_TTL" validate:"min=0"`
	MaxOccurrences      int           `env:"SCHEDULER_MAX_OCCURRENCES" validate:"min=1"`
	TelegramToken       string        `env:"SCHEDULER_TELEGRAM_TOKEN"`
	ReminderSpec        string        `env:"SCHEDULER_REMINDER_SPEC" validate:"required"`
	NotifierConcurrency int           `env:"SCHEDULER_NOTIFIER_CONCURRENCY" validate:"min=1"`
	ShutdownTimeout     time.Duration `env:"SCHEDULER_SHUTDOWN_TIMEOUT" validate:"min=0"`
}

func defaults() Config {
	return Config{
		HTTPPort:            8080,
		Store:               StoreSQLite,
		SQLitePath:          "scheduler.db",
		PostgresExclusion:   true,
		TenantCacheTTL:      5 * time.Minute,
		AuthCacheTTL:        time.Minute,
		MaxOccurrences:      100,
		ReminderSpec:        "0 18 * * *",
		NotifierConcurrency: 5,
		ShutdownTimeout:     10 * time.Second,
	}
}

// Load reads an optional .env file from the working directory and parses
// configuration values from the process environment.
func Load() (Config, error) {
	return LoadWithEnvFile(".env")
}

// LoadWithEnvFile is Load with an explicit env file. Variables already set in
// the process environment take precedence over the file; a missing file is
// ignored.
//
// Missing required values and unparsable or out of range values are reported
// with localized messages naming the offending variables.
func LoadWithEnvFile(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("環境ファイルを読み込めません: %s: %w", path, err)
		}
	}

	cfg := defaults()
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	lookup := func(key string) (string, bool) {
		value := strings.TrimSpace(os.Getenv(key))
		return value, value != ""
	}
	parseInt := func(key string, dst *int) {
		if value, ok := lookup(key); ok {
			n, err := strconv.Atoi(value)
			if err != nil {
				invalid = append(invalid, key)
				return
			}
			*dst = n
		}
	}
	parseDuration := func(key string, dst *time.Duration) {
		if value, ok := lookup(key); ok {
			d, err := time.ParseDuration(value)
			if err != nil {
				invalid = append(invalid, key)
				return
			}
			*dst = d
		}
	}
	parseString := func(key string, dst *string) {
		if value, ok := lookup(key); ok {
			*dst = value
		}
	}

	parseInt("SCHEDULER_HTTP_PORT", &cfg.HTTPPort)
	if value, ok := lookup("SCHEDULER_STORE"); ok {
		cfg.Store = strings.ToLower(value)
	}
	parseString("SCHEDULER_SQLITE_PATH", &cfg.SQLitePath)
	parseString("SCHEDULER_POSTGRES_DSN", &cfg.PostgresDSN)
	if value, ok := lookup("SCHEDULER_POSTGRES_EXCLUSION"); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_POSTGRES_EXCLUSION")
		} else {
			cfg.PostgresExclusion = enabled
		}
	}
	if file, ok := lookup("SCHEDULER_TENANT_FILE"); ok {
		cfg.TenantFile = file
	} else {
		missing = append(missing, "SCHEDULER_TENANT_FILE")
	}
	parseString("SCHEDULER_REDIS_ADDR", &cfg.RedisAddr)
	parseDuration("SCHEDULER_TENANT_CACHE_TTL", &cfg.TenantCacheTTL)
	parseDuration("SCHEDULER_AUTH_CACHE_TTL", &cfg.AuthCacheTTL)
	parseInt("SCHEDULER_MAX_OCCURRENCES", &cfg.MaxOccurrences)
	parseString("SCHEDULER_TELEGRAM_TOKEN", &cfg.TelegramToken)
	parseString("SCHEDULER_REMINDER_SPEC", &cfg.ReminderSpec)
	parseInt("SCHEDULER_NOTIFIER_CONCURRENCY", &cfg.NotifierConcurrency)
	parseDuration("SCHEDULER_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	invalid = append(invalid, validate(cfg, invalid)...)
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// validate returns the variables whose values break a struct rule, skipping
// those already reported.
func validate(cfg Config, reported []string) []string {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("env")
	})

	err := v.Struct(cfg)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}

	seen := make(map[string]bool, len(reported))
	for _, key := range reported {
		seen[key] = true
	}
	var out []string
	for _, fe := range fieldErrs {
		if key := fe.Field(); !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// RedisEnabled reports whether a Redis address is configured.
func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}
