// Package bootstrap opens the storage and tenant dependencies shared by the
// scheduler API and the notification worker.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/config"
	"github.com/example/appointment-scheduler/internal/persistence/memory"
	"github.com/example/appointment-scheduler/internal/persistence/postgres"
	"github.com/example/appointment-scheduler/internal/persistence/sqlite"
	"github.com/example/appointment-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/appointment-scheduler/internal/tenant"
)

// Store is an appointment store owning its connections.
type Store interface {
	application.AppointmentStore
	Close() error
}

type sqliteStore struct {
	*sqlite.AppointmentRepository
	pool *sqlite.ConnectionPool
}

func (s sqliteStore) Close() error {
	return s.pool.Close()
}

// OpenStore opens and migrates the store selected by cfg.Store.
func OpenStore(ctx context.Context, cfg config.Config, zones civiltime.ZoneResolver, logger *slog.Logger) (Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; appointments are lost on restart")
		return memory.Open(), nil

	case config.StoreSQLite:
		pool, err := sqlite.NewConnectionPool(migration.DefaultSQLiteConfig(cfg.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := pool.Migrate(ctx, logger); err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.Info("sqlite store ready", "path", cfg.SQLitePath)
		return sqliteStore{AppointmentRepository: sqlite.NewAppointmentRepository(pool, zones), pool: pool}, nil

	case config.StorePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, zones, postgres.WithExclusion(cfg.PostgresExclusion))
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("postgres store ready", "exclusion", cfg.PostgresExclusion)
		return store, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// Tenants bundles the tenant provider with the Redis client backing its
// cache, if any.
type Tenants struct {
	*tenant.Provider
	Redis redis.UniversalClient
}

// Close releases the Redis client.
func (t *Tenants) Close() error {
	if t == nil || t.Redis == nil {
		return nil
	}
	return t.Redis.Close()
}

// OpenTenants loads the tenant file and, when Redis is configured, puts a
// read-through cache in front of it.
func OpenTenants(cfg config.Config, logger *slog.Logger) (*Tenants, error) {
	file, err := tenant.LoadFile(cfg.TenantFile)
	if err != nil {
		return nil, fmt.Errorf("load tenants: %w", err)
	}

	var (
		source tenant.Source = file
		client redis.UniversalClient
	)
	if cfg.RedisEnabled() && cfg.TenantCacheTTL > 0 {
		client = redis.NewClient(RedisOptions(cfg))
		source = tenant.NewCachedSource(file, client, cfg.TenantCacheTTL, logger)
	}
	ids, _ := file.TenantIDs(context.Background())
	logger.Info("tenants loaded", "count", len(ids), "cached", client != nil)
	return &Tenants{Provider: tenant.NewProvider(source, logger), Redis: client}, nil
}

// RedisOptions derives go-redis options from cfg.
func RedisOptions(cfg config.Config) *redis.Options {
	return &redis.Options{
		Addr:         cfg.RedisAddr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// CloseAll closes every closer and joins the errors.
func CloseAll(closers ...interface{ Close() error }) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
