package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestScopedFallbacks(t *testing.T) {
	t.Parallel()

	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	attached := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	if got := Scoped(context.Background(), nil); got != slog.Default() {
		t.Fatalf("expected slog.Default without context logger or fallback")
	}
	if got := Scoped(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}
	ctx := WithLogger(context.Background(), attached)
	if got := Scoped(ctx, fallback); got != attached {
		t.Fatalf("expected context logger to win over fallback")
	}
	if got := WithLogger(ctx, nil); FromContext(got) != attached {
		t.Fatalf("nil logger must not replace the attached one")
	}
}

func TestWithTenantAddsAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	ctx = WithTenant(ctx, "salon-1", "front-desk")
	FromContext(ctx).Info("booked")

	out := buf.String()
	for _, want := range []string{"tenant_id=salon-1", "user_id=front-desk", "msg=booked"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}

	buf.Reset()
	system := WithTenant(WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil))), "salon-2", "")
	FromContext(system).Info("reminder")
	if strings.Contains(buf.String(), "user_id") {
		t.Fatalf("unexpected user_id for system context: %q", buf.String())
	}
}

func TestWithTenantWithoutLogger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := WithTenant(ctx, "salon-1", "u"); got != ctx {
		t.Fatalf("expected context without logger to be returned unchanged")
	}
}
