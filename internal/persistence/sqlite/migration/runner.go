package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embedded embed.FS

// Runner applies pending migrations from a file system.
type Runner struct {
	executor *SQLiteExecutor
	files    fs.FS
	dir      string
	logger   *slog.Logger
}

// NewRunner returns a Runner over the embedded schema migrations.
func NewRunner(db *sql.DB, logger *slog.Logger) *Runner {
	return NewRunnerFS(db, embedded, "sql", logger)
}

// NewRunnerFS returns a Runner reading *.sql files from dir in files.
func NewRunnerFS(db *sql.DB, files fs.FS, dir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		executor: NewSQLiteExecutor(db),
		files:    files,
		dir:      dir,
		logger:   logger.With("component", "migration"),
	}
}

// Run applies every migration whose version is not yet recorded, in version order.
func (r *Runner) Run(ctx context.Context) error {
	started := time.Now()

	if err := r.executor.InitializeVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to initialize version table: %w", err)
	}

	migrations, err := r.Load()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		done, err := r.executor.IsVersionApplied(ctx, m.Version)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		if err := r.executor.ExecuteMigration(ctx, m); err != nil {
			r.logger.ErrorContext(ctx, "migration failed", "version", m.Version, "file", m.FilePath, "error", err)
			return err
		}
		r.logger.InfoContext(ctx, "migration applied", "version", m.Version, "description", m.Description)
		applied++
	}

	r.logger.InfoContext(ctx, "migrations complete",
		"applied", applied,
		"total", len(migrations),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// Load reads and orders the migration files.
func (r *Runner) Load() ([]Migration, error) {
	entries, err := fs.ReadDir(r.files, r.dir)
	if err != nil {
		return nil, NewMigrationError("", r.dir, "read directory", err)
	}

	seen := make(map[string]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		filePath := path.Join(r.dir, entry.Name())
		version, description, err := parseFileName(entry.Name())
		if err != nil {
			return nil, NewMigrationError("", filePath, "parse file name", err)
		}
		if prev, ok := seen[version]; ok {
			return nil, NewMigrationError(version, filePath, "scan", fmt.Errorf("%w: also in %s", ErrDuplicateVersion, prev))
		}
		seen[version] = filePath

		content, err := fs.ReadFile(r.files, filePath)
		if err != nil {
			return nil, NewMigrationError(version, filePath, "read file", err)
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			SQL:         string(content),
			FilePath:    filePath,
			Checksum:    hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseFileName splits "001_create_appointments.sql" into its version and description.
func parseFileName(name string) (string, string, error) {
	base := strings.TrimSuffix(name, ".sql")
	version, description, ok := strings.Cut(base, "_")
	if !ok || version == "" || description == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidMigrationFile, name)
	}
	for _, r := range version {
		if r < '0' || r > '9' {
			return "", "", fmt.Errorf("%w: %s", ErrInvalidMigrationFile, name)
		}
	}
	return version, strings.ReplaceAll(description, "_", " "), nil
}
