package tenant

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/availability"
)

func loadTestdata(t *testing.T) *FileSource {
	t.Helper()
	src, err := LoadFile("testdata/tenants.yaml")
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	return src
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	src := loadTestdata(t)
	ids, err := src.TenantIDs(context.Background())
	if err != nil || len(ids) != 2 || ids[0] != "clinic-2" || ids[1] != "salon-1" {
		t.Fatalf("unexpected tenant IDs %v, %v", ids, err)
	}

	if _, err := src.Tenant(context.Background(), "missing"); !errors.Is(err, ErrUnknownTenant) || !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected unknown tenant error, got %v", err)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty": `tenants: []`,
		"bad clock": `
tenants:
  - id: t
    timezone: UTC
    business_hours: {days: [1], open: "9am", close: "18:00"}`,
		"bad zone": `
tenants:
  - id: t
    timezone: Mars/Olympus`,
		"bad weekday": `
tenants:
  - id: t
    timezone: UTC
    employees:
      - id: e
        schedule:
          funday: [{start: "09:00", end: "10:00"}]`,
		"bad price": `
tenants:
  - id: t
    timezone: UTC
    services: [{id: s, name: S, duration_minutes: 30, price: free}]`,
		"plain key": `
tenants:
  - id: t
    timezone: UTC
    users: [{id: u, key_hash: secret}]`,
		"duplicate": `
tenants:
  - {id: t, timezone: UTC}
  - {id: t, timezone: UTC}`,
	}

	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected Parse to fail", name)
		}
	}
}

func TestRecordAvailabilityConfig(t *testing.T) {
	t.Parallel()

	r, err := loadTestdata(t).Tenant(context.Background(), "salon-1")
	if err != nil {
		t.Fatalf("Tenant failed: %v", err)
	}

	cfg, err := r.AvailabilityConfig("emp-1")
	if err != nil {
		t.Fatalf("AvailabilityConfig failed: %v", err)
	}
	if cfg.Business == nil || len(cfg.Business.Days) != 6 || cfg.Business.Open.String() != "09:00" || len(cfg.Business.Breaks) != 1 {
		t.Fatalf("unexpected business hours %+v", cfg.Business)
	}
	if len(cfg.Employee[time.Monday]) != 1 || len(cfg.Employee[time.Tuesday]) != 0 {
		t.Fatalf("unexpected employee schedule %+v", cfg.Employee)
	}

	loc, _ := r.Location()
	monday := time.Date(2024, 3, 4, 10, 0, 0, 0, loc)
	res := availability.Check(availability.Candidate{EmployeeID: "emp-1", Start: monday, End: monday.Add(time.Hour)}, cfg, nil)
	if res.Status != availability.StatusAvailable {
		t.Fatalf("expected Monday morning to be available, got %+v", res)
	}
	tuesday := monday.AddDate(0, 0, 1)
	res = availability.Check(availability.Candidate{EmployeeID: "emp-1", Start: tuesday, End: tuesday.Add(time.Hour)}, cfg, nil)
	if res.Status != availability.StatusNoWork {
		t.Fatalf("expected Tuesday to be a day off, got %+v", res)
	}

	open, err := r.AvailabilityConfig("emp-2")
	if err != nil || open.Employee != nil {
		t.Fatalf("expected employee without schedule to follow business hours, got %+v, %v", open, err)
	}
	if _, err := r.AvailabilityConfig("ghost"); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProvider(t *testing.T) {
	t.Parallel()

	p := NewProvider(loadTestdata(t), nil)
	ctx := context.Background()

	services, err := p.Services(ctx, "salon-1", []string{"color", "cut"})
	if err != nil {
		t.Fatalf("Services failed: %v", err)
	}
	if services[0].Duration != 90*time.Minute || services[0].Price.String() != "8000.5" || services[1].Name != "Haircut" {
		t.Fatalf("unexpected services %+v", services)
	}
	if _, err := p.Services(ctx, "salon-1", []string{"cut", "perm"}); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown service, got %v", err)
	}

	employee, err := p.Employee(ctx, "salon-1", "emp-1")
	if err != nil || employee.TelegramChatID != 4242 {
		t.Fatalf("unexpected employee %+v, %v", employee, err)
	}
	client, err := p.Client(ctx, "salon-1", "client-1")
	if err != nil || client.Email != "tanaka@example.com" {
		t.Fatalf("unexpected client %+v, %v", client, err)
	}
	user, err := p.User(ctx, "salon-1", "front-desk")
	if err != nil || !user.CanViewAll || !strings.HasPrefix(user.KeyHash, "$argon2id$") {
		t.Fatalf("unexpected user %+v, %v", user, err)
	}

	if loc := p.Location("salon-1"); loc.String() != "Asia/Tokyo" {
		t.Fatalf("expected Asia/Tokyo, got %s", loc)
	}
	if loc := p.Location("missing"); loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %s", loc)
	}
}

func TestCachedSourceFailsOpen(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	cached := NewCachedSource(loadTestdata(t), client, time.Minute, nil)
	r, err := cached.Tenant(context.Background(), "clinic-2")
	if err != nil || r.ID != "clinic-2" {
		t.Fatalf("expected lookup to fall through to the file, got %+v, %v", r, err)
	}
	if _, err := cached.Tenant(context.Background(), "missing"); !errors.Is(err, ErrUnknownTenant) {
		t.Fatalf("expected unknown tenant, got %v", err)
	}
}

// TestCachedSourceAgainstRedis runs when SCHEDULER_TEST_REDIS_ADDR is set.
func TestCachedSourceAgainstRedis(t *testing.T) {
	addr := os.Getenv("SCHEDULER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SCHEDULER_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	cached := NewCachedSource(loadTestdata(t), client, time.Minute, nil)
	cached.prefix = "scheduler:test:tenant:"
	defer cached.Invalidate(ctx, "salon-1")

	if _, err := cached.Tenant(ctx, "salon-1"); err != nil {
		t.Fatalf("first lookup failed: %v", err)
	}
	if n, err := client.Exists(ctx, cached.key("salon-1")).Result(); err != nil || n != 1 {
		t.Fatalf("expected record to be cached, got %d, %v", n, err)
	}
	r, err := cached.Tenant(ctx, "salon-1")
	if err != nil || len(r.Employees) != 2 || r.Employees[0].Schedule["monday"][0].End != "13:00" {
		t.Fatalf("unexpected cached record %+v, %v", r, err)
	}
}
