package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/example/appointment-scheduler/internal/config"
	"github.com/example/appointment-scheduler/internal/notify"
)

func TestNewSenderFallsBackToLog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sender, err := newSender(config.Config{}, logger)
	if err != nil {
		t.Fatalf("newSender: %v", err)
	}
	if _, ok := sender.(notify.LogSender); !ok {
		t.Fatalf("expected LogSender, got %T", sender)
	}
	if err := sender.Send(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected the message in the log, got %q", buf.String())
	}
}

func TestRunRequiresRedis(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), config.Config{Store: config.StoreMemory}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil || !strings.Contains(err.Error(), "SCHEDULER_REDIS_ADDR") {
		t.Fatalf("expected redis requirement error, got %v", err)
	}
}

func TestAsynqLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	code := -1
	l := asynqLogger{logger: slog.New(slog.NewTextHandler(&buf, nil)), exit: func(c int) { code = c }}
	l.Info("worker ", "started")
	l.Fatal("broken")

	out := buf.String()
	if !strings.Contains(out, "worker started") || !strings.Contains(out, "broken") {
		t.Fatalf("unexpected log output %q", out)
	}
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}
