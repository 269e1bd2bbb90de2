package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutordesk/api"
	"tutordesk/internal/identity"
	"tutordesk/internal/models"
	"tutordesk/internal/notify"
	"tutordesk/pkg/response"
)

// reminderLead is the one-hour lookahead on the billing threshold: a reminder
// fires once unpaid hours reach paymentInterval - 1, warning the student
// before the threshold is actually crossed.
const reminderLead = 1.0

const hoursEpsilon = 1e-9

func reminderDue(l *models.LectureLedger) bool {
	if l.ReminderSent || l.PaymentInterval <= 0 {
		return false
	}

	return l.UnpaidHours >= l.PaymentInterval-reminderLead
}

// recordSession is the single accounting path for taught time: it creates the
// ledger lazily, adds the hours to both totals and appends the session record
// in one store transaction. appointmentID is nil for manually backdated hours.
func (s *Service) recordSession(ctx context.Context, studentID, tutorID, subject string, hours float64, taughtAt time.Time, appointmentID *string) (*models.LectureLedger, error) {
	const op = "service.recordSession"

	if hours <= 0 {
		return nil, fmt.Errorf("%s: %w: hours must be positive", op, response.ErrValidation)
	}

	ledger, err := s.store.RecordLedgerSession(ctx, studentID, tutorID, subject, hours, taughtAt, appointmentID, s.opts.DefaultPaymentInterval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ledger, nil
}

// maybeRemind fires the payment reminder at most once per billing cycle: the
// flag is set before notifying and only a payment clears it again.
func (s *Service) maybeRemind(ctx context.Context, ledger *models.LectureLedger) (bool, error) {
	const op = "service.maybeRemind"

	if !reminderDue(ledger) {
		return false, nil
	}

	if err := s.store.SetReminderSent(ctx, ledger.ID, true); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	ledger.ReminderSent = true

	payload := map[string]any{
		"ledger_id":        ledger.ID,
		"unpaid_hours":     ledger.UnpaidHours,
		"payment_interval": ledger.PaymentInterval,
	}

	s.emit(ctx,
		notify.Event{
			RecipientUserID: ledger.StudentID,
			Kind:            notify.KindPaymentReminder,
			Title:           "Payment due soon",
			Message:         fmt.Sprintf("You have %.1f unpaid hours in %s", ledger.UnpaidHours, ledger.Subject),
			Payload:         payload,
		},
		notify.Event{
			RecipientUserID: ledger.TutorID,
			Kind:            notify.KindPaymentReminder,
			Title:           "Payment reminder sent",
			Message:         fmt.Sprintf("Student has %.1f unpaid hours in %s", ledger.UnpaidHours, ledger.Subject),
			Payload:         payload,
		},
	)

	return true, nil
}

// RecordManualHours backdates taught time that has no linked appointment.
// It runs through the same accounting path as completion.
func (s *Service) RecordManualHours(ctx context.Context, actor identity.Actor, req *api.ManualHoursRequest) (*api.LedgerResponse, error) {
	const op = "service.RecordManualHours"

	if !actor.Owns(req.TutorID) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}
	if req.StudentID == "" || req.Subject == "" {
		return nil, fmt.Errorf("%s: %w: student_id and subject are required", op, response.ErrValidation)
	}
	if req.Hours <= 0 {
		return nil, fmt.Errorf("%s: %w: hours must be positive", op, response.ErrValidation)
	}

	taughtAt := time.Now().UTC()
	if req.TaughtAt != nil {
		var err error
		taughtAt, err = time.Parse(time.RFC3339, *req.TaughtAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: invalid taught_at", op, response.ErrValidation)
		}
	}

	ledger, err := s.recordSession(ctx, req.StudentID, req.TutorID, req.Subject, req.Hours, taughtAt, nil)
	if err != nil {
		return nil, err
	}

	if _, err := s.maybeRemind(ctx, ledger); err != nil {
		return nil, err
	}

	return ledgerToResponse(ledger), nil
}

func (s *Service) GetLedger(ctx context.Context, id string) (*api.LedgerResponse, error) {
	const op = "service.GetLedger"

	ledger, err := s.store.GetLedgerByID(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ledgerToResponse(ledger), nil
}

func (s *Service) ListLedgers(ctx context.Context, studentID, tutorID, subject *string) ([]*api.LedgerResponse, error) {
	const op = "service.ListLedgers"

	ledgers, err := s.store.ListLedgers(ctx, studentID, tutorID, subject)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.LedgerResponse, 0, len(ledgers))
	for _, ledger := range ledgers {
		result = append(result, ledgerToResponse(ledger))
	}

	return result, nil
}

// SetPaymentInterval changes when future reminders fire. It never
// retroactively triggers a reminder for hours already accumulated.
func (s *Service) SetPaymentInterval(ctx context.Context, actor identity.Actor, ledgerID string, interval float64) (*api.LedgerResponse, error) {
	const op = "service.SetPaymentInterval"

	if interval <= 0 {
		return nil, fmt.Errorf("%s: %w: payment_interval must be positive", op, response.ErrValidation)
	}

	ledger, err := s.store.GetLedgerByID(ctx, ledgerID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !actor.Owns(ledger.TutorID) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}

	if err := s.store.SetPaymentInterval(ctx, ledgerID, interval); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetLedger(ctx, ledgerID)
}

// RecordPayment records a payment against a ledger. A PAID payment is applied
// immediately; a PENDING one is scheduled with a due date and applied later
// via ReceivePayment.
func (s *Service) RecordPayment(ctx context.Context, actor identity.Actor, req *api.PaymentRequest) (*api.PaymentResponse, error) {
	const op = "service.RecordPayment"

	ledger, err := s.store.GetLedgerByID(ctx, req.LedgerID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !actor.Owns(ledger.TutorID) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}

	if req.HoursIncluded <= 0 {
		return nil, fmt.Errorf("%s: %w: hours_included must be positive", op, response.ErrValidation)
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("%s: %w: amount must not be negative", op, response.ErrValidation)
	}
	if req.Currency == "" {
		return nil, fmt.Errorf("%s: %w: currency is required", op, response.ErrValidation)
	}

	status := models.PaymentPaid
	if req.Status != "" {
		status = models.PaymentStatus(req.Status)
	}

	switch status {
	case models.PaymentPaid:
		return s.applyPayment(ctx, op, ledger, req)
	case models.PaymentPending:
		if req.DueDate == nil {
			return nil, fmt.Errorf("%s: %w: due_date is required for a pending payment", op, response.ErrValidation)
		}

		dueDate, err := time.Parse(time.RFC3339, *req.DueDate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: invalid due_date", op, response.ErrValidation)
		}

		payment := &models.Payment{
			LedgerID:      ledger.ID,
			Amount:        req.Amount,
			Currency:      req.Currency,
			HoursIncluded: req.HoursIncluded,
			Status:        models.PaymentPending,
			DueDate:       &dueDate,
			Method:        req.Method,
		}

		id, err := s.store.CreatePayment(ctx, payment)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return s.GetPayment(ctx, id)
	default:
		return nil, fmt.Errorf("%s: %w: status must be PAID or PENDING", op, response.ErrValidation)
	}
}

func (s *Service) applyPayment(ctx context.Context, op string, ledger *models.LectureLedger, req *api.PaymentRequest) (*api.PaymentResponse, error) {
	updated, err := s.store.DeductLedgerHours(ctx, ledger.ID, req.HoursIncluded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()

	payment := &models.Payment{
		LedgerID:      ledger.ID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		HoursIncluded: req.HoursIncluded,
		Status:        models.PaymentPaid,
		PaidDate:      &now,
		Method:        req.Method,
	}

	id, err := s.store.CreatePayment(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.settleSessions(ctx, ledger.ID, req.HoursIncluded); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.emitPaymentReceived(ctx, updated, req.HoursIncluded, req.Amount, req.Currency)

	return s.GetPayment(ctx, id)
}

// ReceivePayment marks a scheduled payment as paid and applies it to the
// ledger the same way an immediate payment is applied.
func (s *Service) ReceivePayment(ctx context.Context, actor identity.Actor, paymentID string) (*api.PaymentResponse, error) {
	const op = "service.ReceivePayment"

	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ledger, err := s.store.GetLedgerByID(ctx, payment.LedgerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !actor.Owns(ledger.TutorID) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}

	if payment.Status != models.PaymentPending && payment.Status != models.PaymentOverdue {
		return nil, fmt.Errorf("%s: %w: payment is %s", op, response.ErrConflict, payment.Status)
	}

	// The status flip and the deduction move together in the store, so a
	// failure leaves the payment receivable instead of settled-but-unapplied.
	updated, err := s.store.ReceivePaymentAndDeduct(ctx, paymentID, ledger.ID, payment.HoursIncluded, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.settleSessions(ctx, ledger.ID, payment.HoursIncluded); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.emitPaymentReceived(ctx, updated, payment.HoursIncluded, payment.Amount, payment.Currency)

	return s.GetPayment(ctx, paymentID)
}

func (s *Service) GetPayment(ctx context.Context, id string) (*api.PaymentResponse, error) {
	const op = "service.GetPayment"

	payment, err := s.store.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return paymentToResponse(payment), nil
}

// settleSessions marks unpaid sessions paid oldest-first until the paid hours
// run out. A session only partially covered stays unpaid; sessions are not
// line-itemized against specific payments.
func (s *Service) settleSessions(ctx context.Context, ledgerID string, hours float64) error {
	const op = "service.settleSessions"

	sessions, err := s.store.ListUnpaidSessions(ctx, ledgerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	budget := hours
	var ids []string

	for _, session := range sessions {
		if session.Hours > budget+hoursEpsilon {
			break
		}

		budget -= session.Hours
		ids = append(ids, session.ID)
	}

	if err := s.store.MarkSessionsPaid(ctx, ids); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) emitPaymentReceived(ctx context.Context, ledger *models.LectureLedger, hours, amount float64, currency string) {
	payload := map[string]any{
		"ledger_id":      ledger.ID,
		"hours_included": hours,
		"amount":         amount,
		"currency":       currency,
		"unpaid_hours":   ledger.UnpaidHours,
	}

	s.emit(ctx,
		notify.Event{
			RecipientUserID: ledger.StudentID,
			Kind:            notify.KindPaymentReceived,
			Title:           "Payment received",
			Message:         fmt.Sprintf("Payment for %.1f hours of %s was received", hours, ledger.Subject),
			Payload:         payload,
		},
		notify.Event{
			RecipientUserID: ledger.TutorID,
			Kind:            notify.KindPaymentReceived,
			Title:           "Payment recorded",
			Message:         fmt.Sprintf("Payment for %.1f hours of %s was recorded", hours, ledger.Subject),
			Payload:         payload,
		},
	)
}
