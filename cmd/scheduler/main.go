package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/bootstrap"
	"github.com/example/appointment-scheduler/internal/calendar"
	"github.com/example/appointment-scheduler/internal/config"
	httptransport "github.com/example/appointment-scheduler/internal/http"
	"github.com/example/appointment-scheduler/internal/identity"
	"github.com/example/appointment-scheduler/internal/notify"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		logger.Error("scheduler exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	if len(args) > 0 {
		switch args[0] {
		case "hash-key":
			return hashKey(args[1:], stdout)
		case "serve":
		default:
			return fmt.Errorf("unknown command %q (want serve or hash-key)", args[0])
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return serve(ctx, cfg, logger)
}

// hashKey prints the argon2id hash of an API key for the tenant file.
func hashKey(args []string, stdout io.Writer) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("usage: scheduler hash-key <api-key>")
	}
	encoded, err := identity.HashKey(args[0], identity.DefaultHashParams)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, encoded)
	return err
}

// app is the wired API with everything it must release on shutdown.
type app struct {
	handler http.Handler
	closers []interface{ Close() error }
}

func (a *app) Close() error {
	return bootstrap.CloseAll(a.closers...)
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	tenants, err := bootstrap.OpenTenants(cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{closers: []interface{ Close() error }{tenants}}

	store, err := bootstrap.OpenStore(ctx, cfg, tenants, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append([]interface{ Close() error }{store}, a.closers...)

	var notifier application.Notifier
	if cfg.RedisEnabled() {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		a.closers = append([]interface{ Close() error }{client}, a.closers...)
		notifier = notify.NewQueueDispatcher(client, logger)
	} else {
		logger.Warn("no redis configured; appointment notifications are disabled")
	}

	now := time.Now
	bookings := application.NewBookingServiceWithLogger(
		store,
		tenants,
		tenants,
		notifier,
		recurrence.NewEngine(cfg.MaxOccurrences),
		uuid.NewString,
		now,
		logger,
	)
	appointments := application.NewAppointmentServiceWithLogger(store, tenants, now, logger)
	exporter := calendar.NewExporter(appointments, tenants, now, logger)
	evaluator := identity.NewEvaluator(tenants, cfg.AuthCacheTTL, now, logger)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Bookings:      httptransport.NewBookingHandler(bookings, tenants, logger),
		Appointments:  httptransport.NewAppointmentHandler(appointments, exporter, tenants, logger),
		Authenticator: evaluator,
		Logger:        logger,
	})
	return a, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Error("failed to release resources", "error", cerr)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr, "store", cfg.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}
