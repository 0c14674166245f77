package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/persistence"
	"github.com/example/appointment-scheduler/internal/testfixtures"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, persistence.ErrNotFound},
		{"exclusion", &pgconn.PgError{Code: "23P01"}, persistence.ErrSlotTaken},
		{"unique", &pgconn.PgError{Code: "23505"}, persistence.ErrDuplicate},
		{"foreign key", &pgconn.PgError{Code: "23503"}, persistence.ErrForeignKeyViolation},
		{"check", &pgconn.PgError{Code: "23514"}, persistence.ErrConstraintViolation},
		{"wrapped exclusion", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01"}), persistence.ErrSlotTaken},
	}

	for _, tc := range cases {
		if got := mapError(tc.err); !errors.Is(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	plain := errors.New("boom")
	if got := mapError(plain); got != plain {
		t.Fatalf("expected unknown errors to pass through, got %v", got)
	}
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	q, args := buildQuery(persistence.AppointmentFilter{
		TenantID:   "tenant-1",
		EmployeeID: "emp-1",
		RangeStart: testfixtures.At(4, 0, 0),
		RangeEnd:   testfixtures.At(11, 0, 0),
	})

	for _, fragment := range []string{"tenant_id = $1", "employee_id = $2", "start_at >= $3::timestamp", "start_at < $4::timestamp"} {
		if !strings.Contains(q, fragment) {
			t.Fatalf("expected %q in query %s", fragment, q)
		}
	}
	if len(args) != 4 || args[2] != "2024-03-04T00:00:00" {
		t.Fatalf("unexpected args %v", args)
	}
	if strings.Contains(q, "series_id =") {
		t.Fatalf("unexpected series condition in %s", q)
	}
}

// TestStoreAgainstDatabase runs against a real server when
// SCHEDULER_TEST_POSTGRES_DSN is set.
func TestStoreAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("SCHEDULER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SCHEDULER_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn, civiltime.FixedZone(testfixtures.Zone()), WithExclusion(true))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	tenant := fmt.Sprintf("pg-test-%d", testfixtures.ReferenceTime().Unix())
	_, _ = store.pool.Exec(ctx, `DELETE FROM appointments WHERE tenant_id = $1`, tenant)

	first := testfixtures.NewAppointmentFixture(testfixtures.WithAppointmentTenant(tenant)).Appointment()
	if _, err := store.CreateAppointment(ctx, first); err != nil {
		t.Fatalf("CreateAppointment failed: %v", err)
	}

	overlapping := testfixtures.NewAppointmentFixture(
		testfixtures.WithAppointmentTenant(tenant),
		testfixtures.WithAppointmentWindow(testfixtures.At(4, 9, 30), testfixtures.At(4, 10, 30)),
	).Appointment()
	if _, err := store.CreateAppointment(ctx, overlapping); !errors.Is(err, persistence.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}

	got, err := store.GetAppointment(ctx, tenant, first.ID)
	if err != nil {
		t.Fatalf("GetAppointment failed: %v", err)
	}
	if !got.Start.Equal(first.Start) {
		t.Fatalf("expected start %v, got %v", first.Start, got.Start)
	}

	list, err := store.QueryAppointments(ctx, persistence.AppointmentFilter{TenantID: tenant})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one appointment, got %d, %v", len(list), err)
	}

	if err := store.DeleteAppointment(ctx, tenant, first.ID); err != nil {
		t.Fatalf("DeleteAppointment failed: %v", err)
	}
}
