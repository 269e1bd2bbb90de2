package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutordesk/api"
	"tutordesk/internal/identity"
	"tutordesk/internal/models"
	"tutordesk/internal/schedule"
	"tutordesk/pkg/response"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

func parseTemplateRequest(op string, req *api.AvailabilityTemplateRequest) (*models.AvailabilityTemplate, error) {
	if req.TutorID == "" {
		return nil, fmt.Errorf("%s: %w: tutor_id is required", op, response.ErrValidation)
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		return nil, fmt.Errorf("%s: %w: weekday must be in 0..6", op, response.ErrValidation)
	}

	startTime, err := time.Parse(clockLayout, req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid start_time", op, response.ErrValidation)
	}

	endTime, err := time.Parse(clockLayout, req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid end_time", op, response.ErrValidation)
	}

	if !endTime.After(startTime) {
		return nil, fmt.Errorf("%s: %w: end_time must be after start_time", op, response.ErrValidation)
	}

	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid start_date", op, response.ErrValidation)
	}

	endDate, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid end_date", op, response.ErrValidation)
	}

	if endDate.Before(startDate) {
		return nil, fmt.Errorf("%s: %w: end_date is before start_date", op, response.ErrValidation)
	}

	return &models.AvailabilityTemplate{
		TutorID:   req.TutorID,
		Weekday:   req.Weekday,
		StartTime: startTime,
		EndTime:   endTime,
		StartDate: startDate,
		EndDate:   endDate,
		Active:    req.Active,
	}, nil
}

func (s *Service) CreateAvailabilityTemplate(ctx context.Context, actor identity.Actor, req *api.AvailabilityTemplateRequest) (*api.AvailabilityTemplateResponse, error) {
	const op = "service.CreateAvailabilityTemplate"

	if !actor.Owns(req.TutorID) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}

	template, err := parseTemplateRequest(op, req)
	if err != nil {
		return nil, err
	}

	id, err := s.store.CreateAvailabilityTemplate(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetAvailabilityTemplate(ctx, id)
}

func (s *Service) GetAvailabilityTemplate(ctx context.Context, id string) (*api.AvailabilityTemplateResponse, error) {
	const op = "service.GetAvailabilityTemplate"

	template, err := s.store.GetAvailabilityTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return templateToResponse(template), nil
}

func (s *Service) ListAvailabilityTemplates(ctx context.Context, tutorID string) ([]*api.AvailabilityTemplateResponse, error) {
	const op = "service.ListAvailabilityTemplates"

	if tutorID == "" {
		return nil, fmt.Errorf("%s: %w: tutor_id is required", op, response.ErrValidation)
	}

	templates, err := s.store.ListAvailabilityTemplates(ctx, tutorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.AvailabilityTemplateResponse, 0, len(templates))
	for _, template := range templates {
		result = append(result, templateToResponse(template))
	}

	return result, nil
}

func (s *Service) UpdateAvailabilityTemplate(ctx context.Context, actor identity.Actor, id string, req *api.AvailabilityTemplateRequest) (*api.AvailabilityTemplateResponse, error) {
	const op = "service.UpdateAvailabilityTemplate"

	current, err := s.store.GetAvailabilityTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !actor.Owns(current.TutorID) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}

	req.TutorID = current.TutorID

	template, err := parseTemplateRequest(op, req)
	if err != nil {
		return nil, err
	}

	template.ID = current.ID

	if err := s.store.UpdateAvailabilityTemplate(ctx, template); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetAvailabilityTemplate(ctx, id)
}

// DeactivateAvailability dispatches on the explicit slot kind instead of
// probing both stores.
func (s *Service) DeactivateAvailability(ctx context.Context, actor identity.Actor, kind models.SlotKind, id string) error {
	const op = "service.DeactivateAvailability"

	switch kind {
	case models.SlotRecurring:
		template, err := s.store.GetAvailabilityTemplate(ctx, id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !actor.Owns(template.TutorID) {
			return fmt.Errorf("%s: %w", op, response.ErrForbidden)
		}

		if err := s.store.SetTemplateActive(ctx, id, false); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	case models.SlotDateBound:
		slot, err := s.store.GetSlot(ctx, id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !actor.Owns(slot.TutorID) {
			return fmt.Errorf("%s: %w", op, response.ErrForbidden)
		}

		if err := s.store.DeactivateSlot(ctx, id); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	default:
		return fmt.Errorf("%s: %w: unknown slot kind %q", op, response.ErrValidation, kind)
	}
}

// CreateSlot adds a one-off date-bound slot outside any recurring pattern.
func (s *Service) CreateSlot(ctx context.Context, actor identity.Actor, req *api.SlotRequest) (*api.SlotResponse, error) {
	const op = "service.CreateSlot"

	if !actor.Owns(req.TutorID) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid date", op, response.ErrValidation)
	}

	startTime, err := time.Parse(clockLayout, req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid start_time", op, response.ErrValidation)
	}

	endTime, err := time.Parse(clockLayout, req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid end_time", op, response.ErrValidation)
	}

	if !endTime.After(startTime) {
		return nil, fmt.Errorf("%s: %w: end_time must be after start_time", op, response.ErrValidation)
	}

	slot := &models.AvailabilitySlot{
		TutorID:   req.TutorID,
		Date:      date,
		StartTime: startTime,
		EndTime:   endTime,
		Available: true,
		Origin:    models.OriginManual,
	}

	id, err := s.store.CreateSlot(ctx, slot)
	if err != nil {
		if errors.Is(err, response.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetSlot(ctx, id)
}

func (s *Service) GetSlot(ctx context.Context, id string) (*api.SlotResponse, error) {
	const op = "service.GetSlot"

	slot, err := s.store.GetSlot(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return slotToResponse(slot), nil
}

func (s *Service) ListSlots(ctx context.Context, tutorID string, from, to *time.Time) ([]*api.SlotResponse, error) {
	const op = "service.ListSlots"

	if tutorID == "" {
		return nil, fmt.Errorf("%s: %w: tutor_id is required", op, response.ErrValidation)
	}

	slots, err := s.store.ListSlots(ctx, tutorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.SlotResponse, 0, len(slots))
	for _, slot := range slots {
		result = append(result, slotToResponse(slot))
	}

	return result, nil
}

// ExpandTemplate turns a recurring weekly pattern into concrete date-bound
// slots over the requested window. Idempotent on re-run: dates that already
// have an available slot at the same start time are skipped, so running the
// same expansion twice creates zero new rows the second time.
func (s *Service) ExpandTemplate(ctx context.Context, actor identity.Actor, req *api.SlotExpandRequest) (*api.SlotExpandResult, error) {
	const op = "service.ExpandTemplate"

	template, err := s.store.GetAvailabilityTemplate(ctx, req.TemplateID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !actor.Owns(template.TutorID) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}
	if !template.Active {
		return nil, fmt.Errorf("%s: %w: template is disabled", op, response.ErrValidation)
	}

	from := template.StartDate
	if req.StartDate != nil {
		from, err = time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: invalid start_date", op, response.ErrValidation)
		}
	}

	weeks := s.opts.DefaultWeeks
	if req.Weeks != nil {
		if *req.Weeks <= 0 {
			return nil, fmt.Errorf("%s: %w: weeks must be positive", op, response.ErrValidation)
		}
		weeks = *req.Weeks
	}

	to := from.AddDate(0, 0, 7*weeks-1)
	if req.EndDate != nil {
		to, err = time.Parse(dateLayout, *req.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: invalid end_date", op, response.ErrValidation)
		}
	}

	// Intersect the requested window with the template's own date bounds.
	if from.Before(template.StartDate) {
		from = template.StartDate
	}
	if to.After(template.EndDate) {
		to = template.EndDate
	}

	occurrences := schedule.Occurrences(time.Weekday(template.Weekday), from, to)

	result := &api.SlotExpandResult{Matched: len(occurrences)}

	if len(occurrences) == 0 {
		return result, fmt.Errorf("%s: %w", op, response.ErrEmptyWindow)
	}

	existing, err := s.store.ListSlots(ctx, template.TutorID, &from, &to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	taken := make(map[string]struct{}, len(existing))
	for _, slot := range existing {
		taken[slotKey(slot.Date, slot.StartTime)] = struct{}{}
	}

	var candidates []*models.AvailabilitySlot

	for _, date := range occurrences {
		if _, ok := taken[slotKey(date, template.StartTime)]; ok {
			result.Skipped++
			continue
		}

		candidates = append(candidates, &models.AvailabilitySlot{
			TutorID:    template.TutorID,
			Date:       date,
			StartTime:  template.StartTime,
			EndTime:    template.EndTime,
			Available:  true,
			Origin:     models.OriginTemplate,
			TemplateID: &template.ID,
		})
	}

	// Every occurrence already populated: report "nothing to create" so the
	// caller can tell this apart from a window that was too short.
	if len(candidates) == 0 {
		return result, nil
	}

	ids, err := s.store.CreateSlots(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result.Created = len(ids)
	result.SlotIDs = ids

	return result, nil
}

// slotKey identifies a slot by the instant it begins: the calendar date
// combined with the start time-of-day.
func slotKey(date, start time.Time) string {
	return schedule.At(date, start).Format(time.RFC3339)
}
