// Package postgres stores appointments in PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/persistence"
)

var (
	//go:embed schema.sql
	schemaSQL string
	//go:embed exclusion.sql
	exclusionSQL string
)

const civilFormat = `'YYYY-MM-DD"T"HH24:MI:SS'`

const selectColumns = `id, tenant_id, client_id, employee_id, service_id,
	to_char(start_at, ` + civilFormat + `), to_char(end_at, ` + civilFormat + `), status,
	client_confirmed, client_confirmed_at, advance_payment::text, custom_price::text, document::text, notes,
	COALESCE(series_id, ''), occurrence_number, created_at, updated_at`

// Option configures a Store.
type Option func(*Store)

// WithExclusion installs an exclusion constraint rejecting overlapping
// non-cancelled appointments of the same employee. Rejected writes return
// persistence.ErrSlotTaken. Overbooking is impossible while it is enabled.
func WithExclusion(enabled bool) Option {
	return func(s *Store) {
		s.exclusion = enabled
	}
}

// Store implements persistence.AppointmentRepository on PostgreSQL.
type Store struct {
	pool      *pgxpool.Pool
	zones     civiltime.ZoneResolver
	exclusion bool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, zones civiltime.ZoneResolver, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if zones == nil {
		zones = civiltime.ZoneFunc(nil)
	}
	s := &Store{pool: pool, zones: zones}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	if s.exclusion {
		if _, err := s.pool.Exec(ctx, exclusionSQL); err != nil {
			return fmt.Errorf("postgres: apply exclusion constraint: %w", err)
		}
	}
	return nil
}

// CreateAppointment inserts a new appointment.
func (s *Store) CreateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	if a.ID == "" {
		return appointment.Appointment{}, persistence.ErrConstraintViolation
	}
	rec, err := persistence.ToRecord(a)
	if err != nil {
		return appointment.Appointment{}, err
	}

	const q = `
		INSERT INTO appointments (id, tenant_id, client_id, employee_id, service_id, start_at, end_at, status,
			client_confirmed, client_confirmed_at, advance_payment, custom_price, document, notes,
			series_id, occurrence_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::timestamp, $7::timestamp, $8,
			$9, $10::timestamptz, $11::numeric, $12::numeric, $13::jsonb, $14,
			$15, $16, COALESCE($17::timestamptz, now()), COALESCE($18::timestamptz, now()))
	`
	_, err = s.pool.Exec(ctx, q,
		rec.ID, rec.TenantID, rec.ClientID, rec.EmployeeID, rec.ServiceID,
		rec.StartAt, rec.EndAt, rec.Status,
		rec.ClientConfirmed, nullable(rec.ClientConfirmedAt), rec.AdvancePayment, rec.CustomPrice,
		string(rec.Document), rec.Notes, nullable(rec.SeriesID), rec.OccurrenceNumber,
		nullable(rec.CreatedAt), nullable(rec.UpdatedAt),
	)
	if err != nil {
		return appointment.Appointment{}, mapError(err)
	}
	return a.Clone(), nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Store) GetAppointment(ctx context.Context, tenantID, id string) (appointment.Appointment, error) {
	q := `SELECT ` + selectColumns + ` FROM appointments WHERE tenant_id = $1 AND id = $2`
	rec, err := scanRecord(s.pool.QueryRow(ctx, q, tenantID, id))
	if err != nil {
		return appointment.Appointment{}, mapError(err)
	}
	return persistence.FromRecord(rec, s.zones.Location(tenantID))
}

// UpdateAppointment replaces every mutable column of an existing appointment.
func (s *Store) UpdateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	rec, err := persistence.ToRecord(a)
	if err != nil {
		return appointment.Appointment{}, err
	}

	const q = `
		UPDATE appointments
		SET client_id = $3, employee_id = $4, service_id = $5, start_at = $6::timestamp, end_at = $7::timestamp,
			status = $8, client_confirmed = $9, client_confirmed_at = $10::timestamptz,
			advance_payment = $11::numeric, custom_price = $12::numeric, document = $13::jsonb, notes = $14,
			series_id = $15, occurrence_number = $16, updated_at = COALESCE($17::timestamptz, now())
		WHERE tenant_id = $1 AND id = $2
	`
	tag, err := s.pool.Exec(ctx, q,
		rec.TenantID, rec.ID, rec.ClientID, rec.EmployeeID, rec.ServiceID,
		rec.StartAt, rec.EndAt, rec.Status,
		rec.ClientConfirmed, nullable(rec.ClientConfirmedAt), rec.AdvancePayment, rec.CustomPrice,
		string(rec.Document), rec.Notes, nullable(rec.SeriesID), rec.OccurrenceNumber,
		nullable(rec.UpdatedAt),
	)
	if err != nil {
		return appointment.Appointment{}, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return appointment.Appointment{}, persistence.ErrNotFound
	}
	return a.Clone(), nil
}

// DeleteAppointment removes an appointment.
func (s *Store) DeleteAppointment(ctx context.Context, tenantID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointments WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// QueryAppointments lists appointments matching filter ordered by start, then ID.
func (s *Store) QueryAppointments(ctx context.Context, filter persistence.AppointmentFilter) ([]appointment.Appointment, error) {
	q, args := buildQuery(filter)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	loc := s.zones.Location(filter.TenantID)
	out := make([]appointment.Appointment, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, mapError(err)
		}
		a, err := persistence.FromRecord(rec, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func buildQuery(filter persistence.AppointmentFilter) (string, []any) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}

	add := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}
	if filter.EmployeeID != "" {
		add("employee_id = $%d", filter.EmployeeID)
	}
	if filter.SeriesID != "" {
		add("series_id = $%d", filter.SeriesID)
	}
	if !filter.RangeStart.IsZero() {
		add("start_at >= $%d::timestamp", civiltime.ToWire(filter.RangeStart))
	}
	if !filter.RangeEnd.IsZero() {
		add("start_at < $%d::timestamp", civiltime.ToWire(filter.RangeEnd))
	}

	q := `SELECT ` + selectColumns + ` FROM appointments WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY start_at ASC, id ASC`
	return q, args
}

func scanRecord(row pgx.Row) (persistence.AppointmentRecord, error) {
	var rec persistence.AppointmentRecord
	var confirmedAt *time.Time
	var createdAt, updatedAt time.Time
	var document string

	err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.ClientID,
		&rec.EmployeeID,
		&rec.ServiceID,
		&rec.StartAt,
		&rec.EndAt,
		&rec.Status,
		&rec.ClientConfirmed,
		&confirmedAt,
		&rec.AdvancePayment,
		&rec.CustomPrice,
		&document,
		&rec.Notes,
		&rec.SeriesID,
		&rec.OccurrenceNumber,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return rec, err
	}

	rec.Document = []byte(document)
	rec.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	rec.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	if confirmedAt != nil {
		rec.ClientConfirmedAt = confirmedAt.UTC().Format(time.RFC3339Nano)
	}
	return rec, nil
}

// mapError translates pgx errors onto the persistence sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01":
		return fmt.Errorf("%w: %s", persistence.ErrSlotTaken, pgErr.Message)
	case "23505":
		return fmt.Errorf("%w: %s", persistence.ErrDuplicate, pgErr.Message)
	case "23503":
		return fmt.Errorf("%w: %s", persistence.ErrForeignKeyViolation, pgErr.Message)
	case "23514", "23502":
		return fmt.Errorf("%w: %s", persistence.ErrConstraintViolation, pgErr.Message)
	}
	return err
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

var _ persistence.AppointmentRepository = (*Store)(nil)
