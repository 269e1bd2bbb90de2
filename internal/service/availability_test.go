package service

import (
	"context"
	"testing"

	"tutordesk/api"
	"tutordesk/internal/models"
	"tutordesk/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func templateRequest() *api.AvailabilityTemplateRequest {
	return &api.AvailabilityTemplateRequest{
		TutorID:   "tut-1",
		Weekday:   1, // Monday
		StartTime: "10:00",
		EndTime:   "11:00",
		StartDate: "2026-01-05",
		EndDate:   "2026-03-01",
		Active:    true,
	}
}

func createTemplate(t *testing.T, svc *Service) *api.AvailabilityTemplateResponse {
	t.Helper()

	template, err := svc.CreateAvailabilityTemplate(context.Background(), tutor("tut-1"), templateRequest())
	require.NoError(t, err)

	return template
}

func TestCreateAvailabilityTemplate(t *testing.T) {
	svc, _, _, _ := newTestService()

	template := createTemplate(t, svc)

	assert.NotEmpty(t, template.ID)
	assert.Equal(t, "10:00", template.StartTime)
	assert.Equal(t, 1, template.Weekday)
	assert.True(t, template.Active)
}

func TestCreateAvailabilityTemplate_Guards(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateAvailabilityTemplate(ctx, tutor("tut-2"), templateRequest())
	assert.ErrorIs(t, err, response.ErrForbidden)

	_, err = svc.CreateAvailabilityTemplate(ctx, student("tut-1"), templateRequest())
	assert.ErrorIs(t, err, response.ErrForbidden)

	bad := templateRequest()
	bad.Weekday = 7
	_, err = svc.CreateAvailabilityTemplate(ctx, tutor("tut-1"), bad)
	assert.ErrorIs(t, err, response.ErrValidation)

	bad = templateRequest()
	bad.EndTime = "09:00"
	_, err = svc.CreateAvailabilityTemplate(ctx, tutor("tut-1"), bad)
	assert.ErrorIs(t, err, response.ErrValidation)

	bad = templateRequest()
	bad.EndDate = "2025-12-01"
	_, err = svc.CreateAvailabilityTemplate(ctx, tutor("tut-1"), bad)
	assert.ErrorIs(t, err, response.ErrValidation)
}

func TestUpdateAvailabilityTemplate_KeepsOwner(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	template := createTemplate(t, svc)

	req := templateRequest()
	req.TutorID = "tut-2" // ignored: ownership is immutable
	req.StartTime = "14:00"
	req.EndTime = "15:30"

	updated, err := svc.UpdateAvailabilityTemplate(ctx, tutor("tut-1"), template.ID, req)
	require.NoError(t, err)

	assert.Equal(t, "tut-1", updated.TutorID)
	assert.Equal(t, "14:00", updated.StartTime)
	assert.Equal(t, "15:30", updated.EndTime)
}

func TestExpandTemplate_FourWeeks(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	template := createTemplate(t, svc)

	weeks := 4
	result, err := svc.ExpandTemplate(ctx, tutor("tut-1"), &api.SlotExpandRequest{
		TemplateID: template.ID,
		Weeks:      &weeks,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Matched)
	assert.Equal(t, 4, result.Created)
	assert.Equal(t, 0, result.Skipped)
	assert.Len(t, result.SlotIDs, 4)

	slots, err := svc.ListSlots(ctx, "tut-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, slots, 4)

	for _, slot := range slots {
		assert.Equal(t, "10:00", slot.StartTime)
		assert.Equal(t, string(models.OriginTemplate), slot.Origin)
		require.NotNil(t, slot.TemplateID)
		assert.Equal(t, template.ID, *slot.TemplateID)
	}
}

func TestExpandTemplate_RerunCreatesNothing(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	template := createTemplate(t, svc)

	weeks := 4
	req := &api.SlotExpandRequest{TemplateID: template.ID, Weeks: &weeks}

	_, err := svc.ExpandTemplate(ctx, tutor("tut-1"), req)
	require.NoError(t, err)

	second, err := svc.ExpandTemplate(ctx, tutor("tut-1"), req)
	require.NoError(t, err)

	assert.Equal(t, 4, second.Matched)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 4, second.Skipped)

	slots, err := svc.ListSlots(ctx, "tut-1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, slots, 4)
}

func TestExpandTemplate_SkipsManualSlotAtSameStart(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	template := createTemplate(t, svc)

	_, err := svc.CreateSlot(ctx, tutor("tut-1"), &api.SlotRequest{
		TutorID:   "tut-1",
		Date:      "2026-01-12",
		StartTime: "10:00",
		EndTime:   "11:00",
	})
	require.NoError(t, err)

	weeks := 4
	result, err := svc.ExpandTemplate(ctx, tutor("tut-1"), &api.SlotExpandRequest{
		TemplateID: template.ID,
		Weeks:      &weeks,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Matched)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 1, result.Skipped)
}

func TestExpandTemplate_EmptyWindow(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	template := createTemplate(t, svc)

	// Tuesday through Thursday contains no Monday.
	startDate := "2026-01-06"
	endDate := "2026-01-08"

	_, err := svc.ExpandTemplate(ctx, tutor("tut-1"), &api.SlotExpandRequest{
		TemplateID: template.ID,
		StartDate:  &startDate,
		EndDate:    &endDate,
	})
	assert.ErrorIs(t, err, response.ErrEmptyWindow)
}

func TestExpandTemplate_ClampsToTemplateBounds(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	req := templateRequest()
	req.EndDate = "2026-01-12"

	template, err := svc.CreateAvailabilityTemplate(ctx, tutor("tut-1"), req)
	require.NoError(t, err)

	weeks := 4
	result, err := svc.ExpandTemplate(ctx, tutor("tut-1"), &api.SlotExpandRequest{
		TemplateID: template.ID,
		Weeks:      &weeks,
	})
	require.NoError(t, err)

	// Only the two Mondays inside the template's own date range.
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 2, result.Created)
}

func TestExpandTemplate_Guards(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	template := createTemplate(t, svc)

	_, err := svc.ExpandTemplate(ctx, tutor("tut-2"), &api.SlotExpandRequest{TemplateID: template.ID})
	assert.ErrorIs(t, err, response.ErrForbidden)

	_, err = svc.ExpandTemplate(ctx, tutor("tut-1"), &api.SlotExpandRequest{TemplateID: "missing"})
	assert.ErrorIs(t, err, response.ErrNotFound)

	badWeeks := 0
	_, err = svc.ExpandTemplate(ctx, tutor("tut-1"), &api.SlotExpandRequest{TemplateID: template.ID, Weeks: &badWeeks})
	assert.ErrorIs(t, err, response.ErrValidation)

	require.NoError(t, svc.DeactivateAvailability(ctx, tutor("tut-1"), models.SlotRecurring, template.ID))

	_, err = svc.ExpandTemplate(ctx, tutor("tut-1"), &api.SlotExpandRequest{TemplateID: template.ID})
	assert.ErrorIs(t, err, response.ErrValidation)
}

func TestCreateSlot_DuplicateStartConflicts(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	req := &api.SlotRequest{
		TutorID:   "tut-1",
		Date:      "2026-01-12",
		StartTime: "10:00",
		EndTime:   "11:00",
	}

	_, err := svc.CreateSlot(ctx, tutor("tut-1"), req)
	require.NoError(t, err)

	_, err = svc.CreateSlot(ctx, tutor("tut-1"), req)
	assert.ErrorIs(t, err, response.ErrConflict)
}

func TestDeactivateAvailability_Dispatch(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	template := createTemplate(t, svc)

	slot, err := svc.CreateSlot(ctx, tutor("tut-1"), &api.SlotRequest{
		TutorID:   "tut-1",
		Date:      "2026-01-12",
		StartTime: "10:00",
		EndTime:   "11:00",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateAvailability(ctx, tutor("tut-1"), models.SlotRecurring, template.ID))
	require.NoError(t, svc.DeactivateAvailability(ctx, tutor("tut-1"), models.SlotDateBound, slot.ID))

	storedTemplate, err := store.GetAvailabilityTemplate(ctx, template.ID)
	require.NoError(t, err)
	assert.False(t, storedTemplate.Active)

	storedSlot, err := store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, storedSlot.Available)

	err = svc.DeactivateAvailability(ctx, tutor("tut-1"), models.SlotKind("weekly"), template.ID)
	assert.ErrorIs(t, err, response.ErrValidation)

	err = svc.DeactivateAvailability(ctx, tutor("tut-2"), models.SlotDateBound, slot.ID)
	assert.ErrorIs(t, err, response.ErrForbidden)
}

func TestListAvailability_RequiresTutorID(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.ListAvailabilityTemplates(ctx, "")
	assert.ErrorIs(t, err, response.ErrValidation)

	_, err = svc.ListSlots(ctx, "", nil, nil)
	assert.ErrorIs(t, err, response.ErrValidation)
}
