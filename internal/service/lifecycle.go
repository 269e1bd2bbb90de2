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

// Forward-only transition table. Terminal statuses have no outgoing edges,
// so cancellation and completion are final and free the time range for
// future conflict checks.
var transitions = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.AppointmentScheduled: {
		models.AppointmentConfirmed,
		models.AppointmentInProgress,
		models.AppointmentCompleted,
		models.AppointmentCancelled,
		models.AppointmentNoShow,
	},
	models.AppointmentConfirmed: {
		models.AppointmentInProgress,
		models.AppointmentCompleted,
		models.AppointmentCancelled,
		models.AppointmentNoShow,
	},
	models.AppointmentInProgress: {
		models.AppointmentCompleted,
		models.AppointmentCancelled,
		models.AppointmentNoShow,
	},
}

func canTransition(from, to models.AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isParticipant(actor identity.Actor, a *models.Appointment) bool {
	return actor.UserID == a.StudentID || actor.UserID == a.TutorID
}

// Transition moves an appointment to CONFIRMED, IN_PROGRESS, CANCELLED or
// NO_SHOW. Completion goes through Complete because of its ledger side
// effects. Cancellation has no ledger effect.
func (s *Service) Transition(ctx context.Context, actor identity.Actor, id string, to models.AppointmentStatus) (*api.AppointmentResponse, error) {
	const op = "service.Transition"

	if to == models.AppointmentCompleted || to == models.AppointmentScheduled {
		return nil, fmt.Errorf("%s: %w: unsupported target status %q", op, response.ErrValidation, to)
	}

	appointment, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !isParticipant(actor, appointment) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}

	if !canTransition(appointment.Status, to) {
		return nil, fmt.Errorf("%s: %w: cannot move %s to %s", op, response.ErrConflict, appointment.Status, to)
	}

	if err := s.store.UpdateAppointmentStatus(ctx, id, to, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if to == models.AppointmentCancelled {
		payload := map[string]any{
			"appointment_id": appointment.ID,
			"subject":        appointment.Subject,
			"start":          appointment.StartAt,
		}

		s.emit(ctx,
			notify.Event{
				RecipientUserID: appointment.StudentID,
				Kind:            notify.KindBookingCancelled,
				Title:           "Lesson cancelled",
				Message:         fmt.Sprintf("Your %s lesson on %s was cancelled", appointment.Subject, appointment.StartAt.Format(time.RFC3339)),
				Payload:         payload,
			},
			notify.Event{
				RecipientUserID: appointment.TutorID,
				Kind:            notify.KindBookingCancelled,
				Title:           "Lesson cancelled",
				Message:         fmt.Sprintf("The %s lesson on %s was cancelled", appointment.Subject, appointment.StartAt.Format(time.RFC3339)),
				Payload:         payload,
			},
		)
	}

	return s.GetAppointment(ctx, id)
}

// Complete finishes an appointment and flows the taught time into the ledger:
// it computes the actual duration (falling back to the scheduled one), appends
// a lecture session, adds the hours to the (student, tutor, subject) ledger
// and fires a payment reminder when the billing threshold is near.
func (s *Service) Complete(ctx context.Context, actor identity.Actor, id string, req *api.AppointmentCompleteRequest) (*api.AppointmentCompleteResponse, error) {
	const op = "service.Complete"

	appointment, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !isParticipant(actor, appointment) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}

	if appointment.Status == models.AppointmentCompleted {
		// A previous attempt may have flipped the status and then lost the
		// ledger write. If the session exists, the completion is done; if
		// not, fall through and finish the accounting.
		exists, err := s.store.SessionExistsForAppointment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if exists {
			return nil, fmt.Errorf("%s: %w: appointment is already completed", op, response.ErrConflict)
		}
	} else if !canTransition(appointment.Status, models.AppointmentCompleted) {
		return nil, fmt.Errorf("%s: %w: cannot complete appointment in status %s", op, response.ErrConflict, appointment.Status)
	}

	taughtAt := appointment.StartAt
	duration := appointment.EndAt.Sub(appointment.StartAt)

	if req.ActualStart != nil && req.ActualEnd != nil {
		actualStart, err := time.Parse(time.RFC3339, *req.ActualStart)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: invalid actual_start", op, response.ErrValidation)
		}

		actualEnd, err := time.Parse(time.RFC3339, *req.ActualEnd)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: invalid actual_end", op, response.ErrValidation)
		}

		if !actualEnd.After(actualStart) {
			return nil, fmt.Errorf("%s: %w: actual_end must be after actual_start", op, response.ErrValidation)
		}

		taughtAt = actualStart
		duration = actualEnd.Sub(actualStart)
	}

	hours := duration.Hours()

	if err := s.store.UpdateAppointmentStatus(ctx, id, models.AppointmentCompleted, req.Notes); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ledger, err := s.recordSession(ctx, appointment.StudentID, appointment.TutorID, appointment.Subject, hours, taughtAt, &appointment.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reminded, err := s.maybeRemind(ctx, ledger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	completed, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &api.AppointmentCompleteResponse{
		Appointment: *appointmentToResponse(completed),
		Hours:       hours,
		UnpaidHours: ledger.UnpaidHours,
		ReminderDue: reminded,
	}, nil
}
