package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"SCHEDULER_HTTP_PORT",
	"SCHEDULER_STORE",
	"SCHEDULER_SQLITE_PATH",
	"SCHEDULER_POSTGRES_DSN",
	"SCHEDULER_POSTGRES_EXCLUSION",
	"SCHEDULER_TENANT_FILE",
	"SCHEDULER_REDIS_ADDR",
	"SCHEDULER_TENANT_CACHE_TTL",
	"SCHEDULER_AUTH_CACHE_TTL",
	"SCHEDULER_MAX_OCCURRENCES",
	"SCHEDULER_TELEGRAM_TOKEN",
	"SCHEDULER_REMINDER_SPEC",
	"SCHEDULER_NOTIFIER_CONCURRENCY",
	"SCHEDULER_SHUTDOWN_TIMEOUT",
}

// clearEnv unsets every scheduler variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_TENANT_FILE", "tenants.yaml")

		cfg, err := LoadWithEnvFile("")
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.Store != StoreSQLite || cfg.SQLitePath != "scheduler.db" {
			t.Fatalf("unexpected default store: %q %q", cfg.Store, cfg.SQLitePath)
		}
		if cfg.MaxOccurrences != 100 || cfg.ReminderSpec != "0 18 * * *" {
			t.Fatalf("unexpected defaults: %+v", cfg)
		}
		if cfg.RedisEnabled() {
			t.Fatalf("expected redis to be disabled by default")
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := LoadWithEnvFile("")
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "必須の環境変数が設定されていません: SCHEDULER_TENANT_FILE"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_TENANT_FILE", "/etc/scheduler/tenants.yaml")
		t.Setenv("SCHEDULER_HTTP_PORT", "9090")
		t.Setenv("SCHEDULER_STORE", "Postgres")
		t.Setenv("SCHEDULER_POSTGRES_DSN", "postgres://scheduler@localhost/scheduler")
		t.Setenv("SCHEDULER_POSTGRES_EXCLUSION", "false")
		t.Setenv("SCHEDULER_REDIS_ADDR", "localhost:6379")
		t.Setenv("SCHEDULER_TENANT_CACHE_TTL", "30s")
		t.Setenv("SCHEDULER_MAX_OCCURRENCES", "52")
		t.Setenv("SCHEDULER_NOTIFIER_CONCURRENCY", "2")

		cfg, err := LoadWithEnvFile("")
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.Store != StorePostgres || cfg.PostgresExclusion {
			t.Fatalf("unexpected store settings: %q exclusion=%v", cfg.Store, cfg.PostgresExclusion)
		}
		if cfg.TenantCacheTTL != 30*time.Second {
			t.Fatalf("expected tenant cache TTL 30s, got %s", cfg.TenantCacheTTL)
		}
		if cfg.MaxOccurrences != 52 || cfg.NotifierConcurrency != 2 {
			t.Fatalf("unexpected numeric fields: %+v", cfg)
		}
		if !cfg.RedisEnabled() {
			t.Fatalf("expected redis to be enabled")
		}
	})

	t.Run("reports unparsable and out of range values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_TENANT_FILE", "tenants.yaml")
		t.Setenv("SCHEDULER_HTTP_PORT", "70000")
		t.Setenv("SCHEDULER_AUTH_CACHE_TTL", "soon")
		t.Setenv("SCHEDULER_STORE", "mysql")

		_, err := LoadWithEnvFile("")
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "環境変数の値が不正です: SCHEDULER_AUTH_CACHE_TTL, SCHEDULER_HTTP_PORT, SCHEDULER_STORE"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("requires the DSN of the selected store", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_TENANT_FILE", "tenants.yaml")
		t.Setenv("SCHEDULER_STORE", "postgres")

		_, err := LoadWithEnvFile("")
		if err == nil || !strings.Contains(err.Error(), "SCHEDULER_POSTGRES_DSN") {
			t.Fatalf("expected postgres DSN to be reported, got %v", err)
		}
	})

	t.Run("reads the env file without overriding the environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_HTTP_PORT", "7070")

		path := filepath.Join(t.TempDir(), ".env")
		contents := "SCHEDULER_TENANT_FILE=from-file.yaml\nSCHEDULER_HTTP_PORT=6060\nSCHEDULER_STORE=memory\n"
		if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
			t.Fatalf("write env file: %v", err)
		}

		cfg, err := LoadWithEnvFile(path)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.TenantFile != "from-file.yaml" || cfg.Store != StoreMemory {
			t.Fatalf("expected values from env file, got %+v", cfg)
		}
		if cfg.HTTPPort != 7070 {
			t.Fatalf("expected process environment to win, got port %d", cfg.HTTPPort)
		}
	})

	t.Run("ignores a missing env file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_TENANT_FILE", "tenants.yaml")

		if _, err := LoadWithEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
			t.Fatalf("expected missing env file to be ignored, got %v", err)
		}
	})
}
