package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tutordesk/internal/models"
	"tutordesk/pkg/response"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const ledgerColumns = `id, student_id, tutor_id, subject, total_hours, unpaid_hours,
	payment_interval, last_session_date, reminder_sent`

func scanLedger(row interface {
	Scan(dest ...any) error
}) (*models.LectureLedger, error) {
	var l models.LectureLedger

	err := row.Scan(
		&l.ID, &l.StudentID, &l.TutorID, &l.Subject, &l.TotalHours, &l.UnpaidHours,
		&l.PaymentInterval, &l.LastSessionDate, &l.ReminderSent,
	)
	if err != nil {
		return nil, err
	}

	return &l, nil
}

func (s *Storage) GetLedgerByID(ctx context.Context, id string) (*models.LectureLedger, error) {
	const op = "storage.postgres.GetLedgerByID"

	row := s.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM lecture_ledgers WHERE id=$1`, id)

	l, err := scanLedger(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return l, nil
}

func (s *Storage) ListLedgers(ctx context.Context, studentID, tutorID, subject *string) ([]*models.LectureLedger, error) {
	const op = "storage.postgres.ListLedgers"

	query := `SELECT ` + ledgerColumns + ` FROM lecture_ledgers WHERE 1=1`
	var args []any

	if studentID != nil {
		args = append(args, *studentID)
		query += fmt.Sprintf(" AND student_id = $%d", len(args))
	}
	if tutorID != nil {
		args = append(args, *tutorID)
		query += fmt.Sprintf(" AND tutor_id = $%d", len(args))
	}
	if subject != nil {
		args = append(args, *subject)
		query += fmt.Sprintf(" AND subject = $%d", len(args))
	}

	query += " ORDER BY tutor_id, student_id, subject"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var result []*models.LectureLedger

	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		result = append(result, l)
	}

	return result, nil
}

// RecordLedgerSession accrues taught hours and appends the session record in
// one transaction: the ledger row is created lazily on the first session for
// the triple, the accrual is a single upsert statement so concurrent
// recordings cannot lose an update, and a ledger never carries hours without
// a settle-able session behind them.
func (s *Storage) RecordLedgerSession(ctx context.Context, studentID, tutorID, subject string, hours float64, taughtAt time.Time, appointmentID *string, defaultInterval float64) (*models.LectureLedger, error) {
	const op = "storage.postgres.RecordLedgerSession"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx,
		`INSERT INTO lecture_ledgers
		(id, student_id, tutor_id, subject, total_hours, unpaid_hours, payment_interval, last_session_date)
		VALUES ($1, $2, $3, $4, $5, $5, $6, $7)
		ON CONFLICT (student_id, tutor_id, subject)
		DO UPDATE
		SET total_hours = lecture_ledgers.total_hours + EXCLUDED.total_hours,
			unpaid_hours = lecture_ledgers.unpaid_hours + EXCLUDED.unpaid_hours,
			last_session_date = EXCLUDED.last_session_date
		RETURNING `+ledgerColumns,
		uuid.NewString(),
		studentID,
		tutorID,
		subject,
		hours,
		defaultInterval,
		taughtAt,
	)

	l, err := scanLedger(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO lecture_sessions (id, ledger_id, appointment_id, hours, taught_at, paid)
		VALUES ($1, $2, $3, $4, $5, FALSE)`,
		uuid.NewString(), l.ID, appointmentID, hours, taughtAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	return l, nil
}

// DeductLedgerHours decrements unpaid hours floored at zero and clears the
// reminder flag so the next cycle can fire a fresh reminder.
func (s *Storage) DeductLedgerHours(ctx context.Context, ledgerID string, hours float64) (*models.LectureLedger, error) {
	const op = "storage.postgres.DeductLedgerHours"

	row := s.db.QueryRowContext(ctx,
		`UPDATE lecture_ledgers
		SET unpaid_hours = GREATEST(unpaid_hours - $1, 0),
			reminder_sent = FALSE
		WHERE id=$2
		RETURNING `+ledgerColumns,
		hours, ledgerID)

	l, err := scanLedger(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return l, nil
}

func (s *Storage) SetReminderSent(ctx context.Context, ledgerID string, sent bool) error {
	const op = "storage.postgres.SetReminderSent"

	res, err := s.db.ExecContext(ctx,
		`UPDATE lecture_ledgers SET reminder_sent=$1 WHERE id=$2`, sent, ledgerID)
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

func (s *Storage) SetPaymentInterval(ctx context.Context, ledgerID string, hours float64) error {
	const op = "storage.postgres.SetPaymentInterval"

	res, err := s.db.ExecContext(ctx,
		`UPDATE lecture_ledgers SET payment_interval=$1 WHERE id=$2`, hours, ledgerID)
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

// #### lecture sessions ####

// SessionExistsForAppointment reports whether a completion already produced a
// session for the appointment; a completed appointment without one lost its
// accounting to a partial failure and may be re-completed.
func (s *Storage) SessionExistsForAppointment(ctx context.Context, appointmentID string) (bool, error) {
	const op = "storage.postgres.SessionExistsForAppointment"

	var exists bool

	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM lecture_sessions WHERE appointment_id=$1)`,
		appointmentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// ListUnpaidSessions returns unpaid sessions in creation order; payments
// settle them oldest-first.
func (s *Storage) ListUnpaidSessions(ctx context.Context, ledgerID string) ([]*models.LectureSession, error) {
	const op = "storage.postgres.ListUnpaidSessions"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ledger_id, appointment_id, hours, taught_at, paid, created_at
		FROM lecture_sessions WHERE ledger_id=$1 AND NOT paid
		ORDER BY created_at`, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var result []*models.LectureSession

	for rows.Next() {
		var session models.LectureSession

		err := rows.Scan(&session.ID, &session.LedgerID, &session.AppointmentID,
			&session.Hours, &session.TaughtAt, &session.Paid, &session.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		result = append(result, &session)
	}

	return result, nil
}

func (s *Storage) MarkSessionsPaid(ctx context.Context, ids []string) error {
	const op = "storage.postgres.MarkSessionsPaid"

	if len(ids) == 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE lecture_sessions SET paid=TRUE WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// #### payments ####

func (s *Storage) CreatePayment(ctx context.Context, p *models.Payment) (string, error) {
	const op = "storage.postgres.CreatePayment"

	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (id, ledger_id, amount, currency, hours_included, status, due_date, paid_date, method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id,
		p.LedgerID,
		p.Amount,
		p.Currency,
		p.HoursIncluded,
		string(p.Status),
		p.DueDate,
		p.PaidDate,
		p.Method,
	)
	if err != nil {
		sqlErr, ok := err.(*pq.Error)
		if ok && sqlErr.Code == "23503" {
			return "", fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	const op = "storage.postgres.GetPayment"

	var p models.Payment

	err := s.db.QueryRowContext(ctx,
		`SELECT id, ledger_id, amount, currency, hours_included, status, due_date, paid_date, method, created_at
		FROM payments WHERE id=$1`, id).
		Scan(&p.ID, &p.LedgerID, &p.Amount, &p.Currency, &p.HoursIncluded,
			&p.Status, &p.DueDate, &p.PaidDate, &p.Method, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &p, nil
}

// ReceivePaymentAndDeduct marks a scheduled payment paid and applies its
// hours to the ledger in one transaction, so the payment can never end up
// settled while the balance is untouched. The status guard in the UPDATE
// makes a concurrent double-receive lose with a conflict.
func (s *Storage) ReceivePaymentAndDeduct(ctx context.Context, paymentID, ledgerID string, hours float64, paidAt time.Time) (*models.LectureLedger, error) {
	const op = "storage.postgres.ReceivePaymentAndDeduct"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status=$1, paid_date=$2
		WHERE id=$3 AND status IN ('PENDING', 'OVERDUE')`,
		string(models.PaymentPaid), paidAt, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		var status string

		err := tx.QueryRowContext(ctx,
			`SELECT status FROM payments WHERE id=$1`, paymentID).Scan(&status)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return nil, fmt.Errorf("%s: %w: payment is %s", op, response.ErrConflict, status)
	}

	row := tx.QueryRowContext(ctx,
		`UPDATE lecture_ledgers
		SET unpaid_hours = GREATEST(unpaid_hours - $1, 0),
			reminder_sent = FALSE
		WHERE id=$2
		RETURNING `+ledgerColumns,
		hours, ledgerID)

	l, err := scanLedger(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	return l, nil
}
