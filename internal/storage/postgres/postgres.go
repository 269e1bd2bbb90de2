package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"tutordesk/internal/models"
	"tutordesk/internal/schedule"
	"tutordesk/pkg/response"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const clockLayout = "15:04:05"

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate() error {
	const op = "storage.postgres.Migrate"

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func parseClock(v string) (time.Time, error) {
	return time.Parse(clockLayout, v)
}

// #### availability templates ####

func (s *Storage) CreateAvailabilityTemplate(ctx context.Context, t *models.AvailabilityTemplate) (string, error) {
	const op = "storage.postgres.CreateAvailabilityTemplate"

	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO availability_templates
		(id, tutor_id, weekday, start_time, end_time, start_date, end_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id,
		t.TutorID,
		t.Weekday,
		t.StartTime.Format(clockLayout),
		t.EndTime.Format(clockLayout),
		t.StartDate,
		t.EndDate,
		t.Active,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) GetAvailabilityTemplate(ctx context.Context, id string) (*models.AvailabilityTemplate, error) {
	const op = "storage.postgres.GetAvailabilityTemplate"

	var t models.AvailabilityTemplate
	var startStr, endStr string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, tutor_id, weekday, start_time::text, end_time::text, start_date, end_date, active
		FROM availability_templates WHERE id=$1`, id).
		Scan(&t.ID, &t.TutorID, &t.Weekday, &startStr, &endStr, &t.StartDate, &t.EndDate, &t.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if t.StartTime, err = parseClock(startStr); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t.EndTime, err = parseClock(endStr); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &t, nil
}

func (s *Storage) ListAvailabilityTemplates(ctx context.Context, tutorID string) ([]*models.AvailabilityTemplate, error) {
	const op = "storage.postgres.ListAvailabilityTemplates"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tutor_id, weekday, start_time::text, end_time::text, start_date, end_date, active
		FROM availability_templates WHERE tutor_id=$1 ORDER BY weekday, start_time`, tutorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var result []*models.AvailabilityTemplate

	for rows.Next() {
		var t models.AvailabilityTemplate
		var startStr, endStr string

		err := rows.Scan(&t.ID, &t.TutorID, &t.Weekday, &startStr, &endStr, &t.StartDate, &t.EndDate, &t.Active)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if t.StartTime, err = parseClock(startStr); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if t.EndTime, err = parseClock(endStr); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		result = append(result, &t)
	}

	return result, nil
}

func (s *Storage) UpdateAvailabilityTemplate(ctx context.Context, t *models.AvailabilityTemplate) error {
	const op = "storage.postgres.UpdateAvailabilityTemplate"

	res, err := s.db.ExecContext(ctx,
		`UPDATE availability_templates
		SET weekday=$1, start_time=$2, end_time=$3, start_date=$4, end_date=$5, active=$6
		WHERE id=$7`,
		t.Weekday,
		t.StartTime.Format(clockLayout),
		t.EndTime.Format(clockLayout),
		t.StartDate,
		t.EndDate,
		t.Active,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func (s *Storage) SetTemplateActive(ctx context.Context, id string, active bool) error {
	const op = "storage.postgres.SetTemplateActive"

	res, err := s.db.ExecContext(ctx,
		`UPDATE availability_templates SET active=$1 WHERE id=$2`, active, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### date-bound slots ####

func (s *Storage) CreateSlot(ctx context.Context, slot *models.AvailabilitySlot) (string, error) {
	const op = "storage.postgres.CreateSlot"

	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO availability_slots
		(id, tutor_id, slot_date, start_time, end_time, available, origin, template_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id,
		slot.TutorID,
		slot.Date,
		slot.StartTime.Format(clockLayout),
		slot.EndTime.Format(clockLayout),
		slot.Available,
		string(slot.Origin),
		slot.TemplateID,
	)
	if err != nil {
		sqlErr, ok := err.(*pq.Error)
		if ok && sqlErr.Code == "23505" {
			return "", fmt.Errorf("%s: %w", op, response.ErrConflict)
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// CreateSlots inserts all slots in one transaction so a re-run of expansion
// either creates the whole remainder or nothing.
func (s *Storage) CreateSlots(ctx context.Context, slots []*models.AvailabilitySlot) ([]string, error) {
	const op = "storage.postgres.CreateSlots"

	if len(slots) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	ids := make([]string, 0, len(slots))

	for _, slot := range slots {
		id := uuid.NewString()

		_, err := tx.ExecContext(ctx,
			`INSERT INTO availability_slots
			(id, tutor_id, slot_date, start_time, end_time, available, origin, template_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id,
			slot.TutorID,
			slot.Date,
			slot.StartTime.Format(clockLayout),
			slot.EndTime.Format(clockLayout),
			slot.Available,
			string(slot.Origin),
			slot.TemplateID,
		)
		if err != nil {
			sqlErr, ok := err.(*pq.Error)
			if ok && sqlErr.Code == "23505" {
				return nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
			}

			return nil, fmt.Errorf("%s: %w", op, err)
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	return ids, nil
}

func (s *Storage) GetSlot(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	const op = "storage.postgres.GetSlot"

	var slot models.AvailabilitySlot
	var startStr, endStr string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, tutor_id, slot_date, start_time::text, end_time::text, available, origin, template_id
		FROM availability_slots WHERE id=$1`, id).
		Scan(&slot.ID, &slot.TutorID, &slot.Date, &startStr, &endStr, &slot.Available, &slot.Origin, &slot.TemplateID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if slot.StartTime, err = parseClock(startStr); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if slot.EndTime, err = parseClock(endStr); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &slot, nil
}

// ListSlots returns available date-bound slots for a tutor, optionally bounded
// by [from, to] dates.
func (s *Storage) ListSlots(ctx context.Context, tutorID string, from, to *time.Time) ([]*models.AvailabilitySlot, error) {
	const op = "storage.postgres.ListSlots"

	query := `SELECT id, tutor_id, slot_date, start_time::text, end_time::text, available, origin, template_id
		FROM availability_slots WHERE tutor_id=$1 AND available`
	args := []any{tutorID}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND slot_date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND slot_date <= $%d", len(args))
	}

	query += " ORDER BY slot_date, start_time"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var result []*models.AvailabilitySlot

	for rows.Next() {
		var slot models.AvailabilitySlot
		var startStr, endStr string

		err := rows.Scan(&slot.ID, &slot.TutorID, &slot.Date, &startStr, &endStr, &slot.Available, &slot.Origin, &slot.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if slot.StartTime, err = parseClock(startStr); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if slot.EndTime, err = parseClock(endStr); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		result = append(result, &slot)
	}

	return result, nil
}

// DeactivateSlot soft-disables a date-bound slot. Rows referenced by a booking
// are kept for ledger and audit history.
func (s *Storage) DeactivateSlot(ctx context.Context, id string) error {
	const op = "storage.postgres.DeactivateSlot"

	res, err := s.db.ExecContext(ctx,
		`UPDATE availability_slots SET available=FALSE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### appointments ####

const appointmentColumns = `id, student_id, tutor_id, subject, start_at, end_at, status,
	notes, rate_amount, rate_currency, cost, idempotency_key, created_at`

func scanAppointment(row interface {
	Scan(dest ...any) error
}) (*models.Appointment, error) {
	var a models.Appointment

	err := row.Scan(
		&a.ID, &a.StudentID, &a.TutorID, &a.Subject, &a.StartAt, &a.EndAt, &a.Status,
		&a.Notes, &a.RateAmount, &a.RateCurrency, &a.Cost, &a.IdempotencyKey, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// CreateAppointmentIfFree runs the conflict check and the insert as one unit:
// a per-tutor advisory lock serializes concurrent bookings for the same tutor,
// the candidate interval is checked against the tutor's non-terminal rows, and
// only then is the row inserted. The partial unique index on
// (tutor_id, start_at) is the backstop if the store is reached outside this
// path.
func (s *Storage) CreateAppointmentIfFree(ctx context.Context, a *models.Appointment) (string, error) {
	const op = "storage.postgres.CreateAppointmentIfFree"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: begin tx: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	// Row locks cannot exclude phantom inserts: two transactions that each
	// see zero rows would both pass the conflict check. The advisory lock
	// is held until commit and makes the check-then-insert mutually
	// exclusive per tutor.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, a.TutorID); err != nil {
		return "", fmt.Errorf("%s: tutor lock: %w", op, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT start_at, end_at FROM appointments
		WHERE tutor_id=$1 AND status IN ('SCHEDULED', 'CONFIRMED', 'IN_PROGRESS')
		FOR UPDATE`, a.TutorID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var existing []schedule.Interval

	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			rows.Close()
			return "", fmt.Errorf("%s: %w", op, err)
		}
		existing = append(existing, iv)
	}
	rows.Close()

	if schedule.Conflicts(schedule.Interval{Start: a.StartAt, End: a.EndAt}, existing) {
		return "", fmt.Errorf("%s: %w", op, response.ErrSlotNotAvailable)
	}

	id := uuid.NewString()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO appointments
		(id, student_id, tutor_id, subject, start_at, end_at, status, notes,
		rate_amount, rate_currency, cost, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id,
		a.StudentID,
		a.TutorID,
		a.Subject,
		a.StartAt,
		a.EndAt,
		string(a.Status),
		a.Notes,
		a.RateAmount,
		a.RateCurrency,
		a.Cost,
		a.IdempotencyKey,
	)
	if err != nil {
		sqlErr, ok := err.(*pq.Error)
		if ok && sqlErr.Code == "23505" {
			if sqlErr.Constraint == "ux_appointments_idem_key" {
				return "", fmt.Errorf("%s: %w", op, response.ErrDuplicateRequest)
			}

			return "", fmt.Errorf("%s: %w", op, response.ErrSlotNotAvailable)
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: commit: %w", op, err)
	}

	return id, nil
}

func (s *Storage) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	const op = "storage.postgres.GetAppointment"

	row := s.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id=$1`, id)

	a, err := scanAppointment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

func (s *Storage) GetAppointmentByIdempotencyKey(ctx context.Context, key string) (*models.Appointment, error) {
	const op = "storage.postgres.GetAppointmentByIdempotencyKey"

	row := s.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE idempotency_key=$1`, key)

	a, err := scanAppointment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

func (s *Storage) ListAppointments(ctx context.Context, studentID, tutorID *string, from, to *time.Time, status *string) ([]*models.Appointment, error) {
	const op = "storage.postgres.ListAppointments"

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	var args []any

	if studentID != nil {
		args = append(args, *studentID)
		query += fmt.Sprintf(" AND student_id = $%d", len(args))
	}
	if tutorID != nil {
		args = append(args, *tutorID)
		query += fmt.Sprintf(" AND tutor_id = $%d", len(args))
	}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND start_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND start_at <= $%d", len(args))
	}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY start_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var result []*models.Appointment

	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		result = append(result, a)
	}

	return result, nil
}

func (s *Storage) UpdateAppointmentStatus(ctx context.Context, id string, status models.AppointmentStatus, notes *string) error {
	const op = "storage.postgres.UpdateAppointmentStatus"

	res, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status=$1, notes=COALESCE($2, notes) WHERE id=$3`,
		string(status), notes, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}
