package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/persistence"
)

const appointmentColumns = `id, tenant_id, client_id, employee_id, service_id, start_at, end_at, status,
	client_confirmed, client_confirmed_at, advance_payment, custom_price, document, notes,
	series_id, occurrence_number, created_at, updated_at`

// AppointmentRepository implements persistence.AppointmentRepository using SQLite.
type AppointmentRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
	zones  civiltime.ZoneResolver
}

// NewAppointmentRepository creates a repository reading civil times in the
// zone zones resolves for each tenant.
func NewAppointmentRepository(pool *ConnectionPool, zones civiltime.ZoneResolver) *AppointmentRepository {
	if zones == nil {
		zones = civiltime.ZoneFunc(nil)
	}
	return &AppointmentRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		zones:  zones,
	}
}

// CreateAppointment inserts a new appointment.
func (r *AppointmentRepository) CreateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	if a.ID == "" {
		return appointment.Appointment{}, persistence.ErrConstraintViolation
	}
	rec, err := persistence.ToRecord(a)
	if err != nil {
		return appointment.Appointment{}, err
	}

	query := `INSERT INTO appointments (` + appointmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err = r.retry.WithRetry(ctx, func() error {
		_, execErr := r.helper.Exec(ctx, query, recordArgs(rec)...)
		return execErr
	})
	if err != nil {
		return appointment.Appointment{}, err
	}
	return a.Clone(), nil
}

// GetAppointment retrieves an appointment by ID.
func (r *AppointmentRepository) GetAppointment(ctx context.Context, tenantID, id string) (appointment.Appointment, error) {
	if id == "" {
		return appointment.Appointment{}, persistence.ErrNotFound
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE tenant_id = ? AND id = ?`
	rec, err := scanRecord(r.helper.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return appointment.Appointment{}, r.mapper.MapError(err)
	}
	return persistence.FromRecord(rec, r.zones.Location(tenantID))
}

// UpdateAppointment replaces every mutable column of an existing appointment.
func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	rec, err := persistence.ToRecord(a)
	if err != nil {
		return appointment.Appointment{}, err
	}

	query := `
		UPDATE appointments
		SET client_id = ?, employee_id = ?, service_id = ?, start_at = ?, end_at = ?, status = ?,
			client_confirmed = ?, client_confirmed_at = ?, advance_payment = ?, custom_price = ?,
			document = ?, notes = ?, series_id = ?, occurrence_number = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	err = r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, execErr := r.helper.ExecTx(ctx, tx, query,
			rec.ClientID,
			rec.EmployeeID,
			rec.ServiceID,
			rec.StartAt,
			rec.EndAt,
			rec.Status,
			rec.ClientConfirmed,
			nullString(rec.ClientConfirmedAt),
			rec.AdvancePayment,
			rec.CustomPrice,
			string(rec.Document),
			rec.Notes,
			nullString(rec.SeriesID),
			rec.OccurrenceNumber,
			rec.UpdatedAt,
			rec.TenantID,
			rec.ID,
		)
		if execErr != nil {
			return r.mapper.MapError(execErr)
		}
		rows, execErr := result.RowsAffected()
		if execErr != nil {
			return fmt.Errorf("failed to get rows affected: %w", execErr)
		}
		if rows == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return appointment.Appointment{}, err
	}
	return a.Clone(), nil
}

// DeleteAppointment removes an appointment.
func (r *AppointmentRepository) DeleteAppointment(ctx context.Context, tenantID, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM appointments WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// QueryAppointments lists appointments matching filter ordered by start, then ID.
func (r *AppointmentRepository) QueryAppointments(ctx context.Context, filter persistence.AppointmentFilter) ([]appointment.Appointment, error) {
	query, args := buildQuery(filter)

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	loc := r.zones.Location(filter.TenantID)
	out := make([]appointment.Appointment, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		a, err := persistence.FromRecord(rec, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

func buildQuery(filter persistence.AppointmentFilter) (string, []any) {
	conditions := []string{"tenant_id = ?"}
	args := []any{filter.TenantID}

	if filter.EmployeeID != "" {
		conditions = append(conditions, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.SeriesID != "" {
		conditions = append(conditions, "series_id = ?")
		args = append(args, filter.SeriesID)
	}
	if !filter.RangeStart.IsZero() {
		conditions = append(conditions, "start_at >= ?")
		args = append(args, civiltime.ToWire(filter.RangeStart))
	}
	if !filter.RangeEnd.IsZero() {
		conditions = append(conditions, "start_at < ?")
		args = append(args, civiltime.ToWire(filter.RangeEnd))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY start_at ASC, id ASC`
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (persistence.AppointmentRecord, error) {
	var rec persistence.AppointmentRecord
	var confirmedAt, customPrice, seriesID sql.NullString
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
		&customPrice,
		&document,
		&rec.Notes,
		&seriesID,
		&rec.OccurrenceNumber,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, persistence.ErrNotFound
		}
		return rec, err
	}

	rec.ClientConfirmedAt = confirmedAt.String
	rec.SeriesID = seriesID.String
	rec.Document = []byte(document)
	if customPrice.Valid {
		price := customPrice.String
		rec.CustomPrice = &price
	}
	return rec, nil
}

func recordArgs(rec persistence.AppointmentRecord) []any {
	return []any{
		rec.ID,
		rec.TenantID,
		rec.ClientID,
		rec.EmployeeID,
		rec.ServiceID,
		rec.StartAt,
		rec.EndAt,
		rec.Status,
		rec.ClientConfirmed,
		nullString(rec.ClientConfirmedAt),
		rec.AdvancePayment,
		rec.CustomPrice,
		string(rec.Document),
		rec.Notes,
		nullString(rec.SeriesID),
		rec.OccurrenceNumber,
		rec.CreatedAt,
		rec.UpdatedAt,
	}
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

var _ persistence.AppointmentRepository = (*AppointmentRepository)(nil)
