package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/example/appointment-scheduler/internal/bootstrap"
	"github.com/example/appointment-scheduler/internal/config"
	"github.com/example/appointment-scheduler/internal/notify"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("notifier exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if !cfg.RedisEnabled() {
		return errors.New("SCHEDULER_REDIS_ADDR is required for the notifier")
	}

	tenants, err := bootstrap.OpenTenants(cfg, logger)
	if err != nil {
		return err
	}
	store, err := bootstrap.OpenStore(ctx, cfg, tenants, logger)
	if err != nil {
		_ = tenants.Close()
		return err
	}

	sender, err := newSender(cfg, logger)
	if err != nil {
		_ = bootstrap.CloseAll(store, tenants)
		return err
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := asynq.NewClient(redisOpt)
	defer func() {
		if cerr := bootstrap.CloseAll(client, store, tenants); cerr != nil {
			logger.Error("failed to release resources", "error", cerr)
		}
	}()

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.NotifierConcurrency,
		Queues:          map[string]int{notify.Queue: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          asynqLogger{logger: logger.With("component", "asynq")},
	})
	mux := asynq.NewServeMux()
	notify.NewHandler(tenants, sender, logger).Register(mux)
	if err := server.Start(mux); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	reminders := notify.NewReminderScheduler(tenants, store, client, time.Now, logger)
	if _, err := reminders.Schedule(ctx, scheduler, cfg.ReminderSpec); err != nil {
		server.Shutdown()
		return err
	}
	scheduler.Start()

	logger.Info("notifier running", "queue", notify.Queue, "reminder_spec", cfg.ReminderSpec)
	<-ctx.Done()

	logger.Info("notifier shutting down")
	stopped := scheduler.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn("reminder pass still running at shutdown")
	}
	server.Shutdown()
	return nil
}

// newSender delivers through Telegram when a bot token is configured and to
// the log otherwise.
func newSender(cfg config.Config, logger *slog.Logger) (notify.Sender, error) {
	if cfg.TelegramToken == "" {
		logger.Warn("no telegram token configured; notifications are logged only")
		return notify.LogSender{Logger: logger}, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logger.Info("telegram bot authorized", "bot", bot.Self.UserName)
	return notify.NewTelegramSender(bot, logger), nil
}

// asynqLogger routes asynq's internal logging to slog.
type asynqLogger struct {
	logger *slog.Logger
	exit   func(int)
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	if l.exit != nil {
		l.exit(1)
		return
	}
	os.Exit(1)
}
