package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tutordesk/api"
	"tutordesk/internal/identity"
	"tutordesk/internal/models"
	"tutordesk/internal/notify"
	"tutordesk/pkg/response"
	"tutordesk/pkg/sl"
)

// deriveIdempotencyKey collapses retried identical requests onto one key when
// the caller did not supply an Idempotency-Key header.
func deriveIdempotencyKey(req *api.AppointmentRequest) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		req.StudentID, req.TutorID, req.Subject, req.Start, req.End,
	}, "|")))

	return hex.EncodeToString(sum[:])
}

// BookAppointment books exactly once even under concurrent duplicate requests.
// The returned bool is true when the appointment was already created by an
// earlier identical request (idempotent replay).
func (s *Service) BookAppointment(ctx context.Context, actor identity.Actor, req *api.AppointmentRequest, idempotencyKey *string) (*api.AppointmentResponse, bool, error) {
	const op = "service.BookAppointment"

	if req.StudentID == "" || req.TutorID == "" {
		return nil, false, fmt.Errorf("%s: %w: student_id and tutor_id are required", op, response.ErrValidation)
	}
	if req.Subject == "" {
		return nil, false, fmt.Errorf("%s: %w: subject is required", op, response.ErrValidation)
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w: invalid start", op, response.ErrValidation)
	}

	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w: invalid end", op, response.ErrValidation)
	}

	if !end.After(start) {
		return nil, false, fmt.Errorf("%s: %w: end must be after start", op, response.ErrValidation)
	}

	if actor.UserID != req.StudentID && !actor.Owns(req.TutorID) {
		return nil, false, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}

	key := deriveIdempotencyKey(req)
	if idempotencyKey != nil && *idempotencyKey != "" {
		key = *idempotencyKey
	}

	// The claim is the cross-process mutex for booking creation. When the
	// store is unreachable we fail open: availability is worth the small
	// duplicate-booking risk, and the unique index still backstops us.
	failOpen := false

	claimed, err := s.guard.Claim(ctx, key, s.opts.ClaimTTL)
	if err != nil {
		s.log.Warn("Idempotency store unreachable, failing open",
			slog.String("op", op), sl.Err(err))
		claimed = true
		failOpen = true
	}

	if !claimed {
		prior, err := s.store.GetAppointmentByIdempotencyKey(ctx, key)
		if err == nil {
			return appointmentToResponse(prior), true, nil
		}
		if errors.Is(err, response.ErrNotFound) {
			// First attempt still in flight.
			return nil, false, fmt.Errorf("%s: %w", op, response.ErrDuplicateRequest)
		}

		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	release := func() {
		if failOpen {
			return
		}
		if err := s.guard.Release(ctx, key); err != nil {
			s.log.Error("Failed to release idempotency claim",
				slog.String("op", op), sl.Err(err))
		}
	}

	rate, currency, err := s.rates.HourlyRate(ctx, req.TutorID, req.Subject)
	if err != nil {
		release()
		return nil, false, fmt.Errorf("%s: rate lookup: %w", op, err)
	}

	appointment := &models.Appointment{
		StudentID:      req.StudentID,
		TutorID:        req.TutorID,
		Subject:        req.Subject,
		StartAt:        start,
		EndAt:          end,
		Status:         models.AppointmentScheduled,
		Notes:          req.Notes,
		RateAmount:     rate,
		RateCurrency:   currency,
		Cost:           rate * end.Sub(start).Hours(),
		IdempotencyKey: &key,
	}

	id, err := s.store.CreateAppointmentIfFree(ctx, appointment)
	if err != nil {
		if errors.Is(err, response.ErrSlotNotAvailable) {
			release()
			return nil, false, fmt.Errorf("%s: %w", op, response.ErrSlotNotAvailable)
		}
		if errors.Is(err, response.ErrDuplicateRequest) {
			// Lost the unique-key race to an identical request; return its result.
			prior, lookupErr := s.store.GetAppointmentByIdempotencyKey(ctx, key)
			if lookupErr == nil {
				return appointmentToResponse(prior), true, nil
			}

			return nil, false, fmt.Errorf("%s: %w", op, response.ErrDuplicateRequest)
		}

		// Partial failure: free the claim so a legitimate retry is not
		// blocked for the full TTL.
		release()
		return nil, false, fmt.Errorf("%s: create appointment: %w", op, err)
	}

	created, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	payload := map[string]any{
		"appointment_id": created.ID,
		"subject":        created.Subject,
		"start":          created.StartAt,
		"end":            created.EndAt,
	}

	s.emit(ctx,
		notify.Event{
			RecipientUserID: created.StudentID,
			Kind:            notify.KindBookingCreated,
			Title:           "Lesson booked",
			Message:         fmt.Sprintf("Your %s lesson is booked for %s", created.Subject, created.StartAt.Format(time.RFC3339)),
			Payload:         payload,
		},
		notify.Event{
			RecipientUserID: created.TutorID,
			Kind:            notify.KindBookingCreated,
			Title:           "New booking",
			Message:         fmt.Sprintf("A %s lesson was booked for %s", created.Subject, created.StartAt.Format(time.RFC3339)),
			Payload:         payload,
		},
	)

	return appointmentToResponse(created), false, nil
}

func (s *Service) GetAppointment(ctx context.Context, id string) (*api.AppointmentResponse, error) {
	const op = "service.GetAppointment"

	appointment, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return appointmentToResponse(appointment), nil
}

func (s *Service) ListAppointments(ctx context.Context, studentID, tutorID *string, from, to *time.Time, status *string) ([]*api.AppointmentResponse, error) {
	const op = "service.ListAppointments"

	appointments, err := s.store.ListAppointments(ctx, studentID, tutorID, from, to, status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.AppointmentResponse, 0, len(appointments))
	for _, appointment := range appointments {
		result = append(result, appointmentToResponse(appointment))
	}

	return result, nil
}
