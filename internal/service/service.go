package service

import (
	"context"
	"log/slog"
	"time"

	"tutordesk/api"
	"tutordesk/internal/lock"
	"tutordesk/internal/models"
	"tutordesk/internal/notify"
	"tutordesk/pkg/sl"
)

type Service struct {
	log      *slog.Logger
	store    Store
	guard    lock.Guard
	notifier notify.Notifier
	rates    RateSource
	opts     Options
}

type Options struct {
	ClaimTTL               time.Duration
	DefaultWeeks           int
	DefaultPaymentInterval float64
}

func (o *Options) withDefaults() {
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = time.Hour
	}
	if o.DefaultWeeks <= 0 {
		o.DefaultWeeks = 4
	}
	if o.DefaultPaymentInterval <= 0 {
		o.DefaultPaymentInterval = 10
	}
}

func NewService(log *slog.Logger, store Store, guard lock.Guard, notifier notify.Notifier, rates RateSource, opts Options) *Service {
	opts.withDefaults()

	return &Service{
		log:      log,
		store:    store,
		guard:    guard,
		notifier: notifier,
		rates:    rates,
		opts:     opts,
	}
}

type Store interface {
	// Availability templates
	CreateAvailabilityTemplate(ctx context.Context, t *models.AvailabilityTemplate) (string, error)
	GetAvailabilityTemplate(ctx context.Context, id string) (*models.AvailabilityTemplate, error)
	ListAvailabilityTemplates(ctx context.Context, tutorID string) ([]*models.AvailabilityTemplate, error)
	UpdateAvailabilityTemplate(ctx context.Context, t *models.AvailabilityTemplate) error
	SetTemplateActive(ctx context.Context, id string, active bool) error

	// Date-bound slots
	CreateSlot(ctx context.Context, slot *models.AvailabilitySlot) (string, error)
	CreateSlots(ctx context.Context, slots []*models.AvailabilitySlot) ([]string, error)
	GetSlot(ctx context.Context, id string) (*models.AvailabilitySlot, error)
	ListSlots(ctx context.Context, tutorID string, from, to *time.Time) ([]*models.AvailabilitySlot, error)
	DeactivateSlot(ctx context.Context, id string) error

	// Appointments
	CreateAppointmentIfFree(ctx context.Context, a *models.Appointment) (string, error)
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	GetAppointmentByIdempotencyKey(ctx context.Context, key string) (*models.Appointment, error)
	ListAppointments(ctx context.Context, studentID, tutorID *string, from, to *time.Time, status *string) ([]*models.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status models.AppointmentStatus, notes *string) error

	// Ledgers
	GetLedgerByID(ctx context.Context, id string) (*models.LectureLedger, error)
	ListLedgers(ctx context.Context, studentID, tutorID, subject *string) ([]*models.LectureLedger, error)
	RecordLedgerSession(ctx context.Context, studentID, tutorID, subject string, hours float64, taughtAt time.Time, appointmentID *string, defaultInterval float64) (*models.LectureLedger, error)
	DeductLedgerHours(ctx context.Context, ledgerID string, hours float64) (*models.LectureLedger, error)
	SetReminderSent(ctx context.Context, ledgerID string, sent bool) error
	SetPaymentInterval(ctx context.Context, ledgerID string, hours float64) error

	// Lecture sessions
	SessionExistsForAppointment(ctx context.Context, appointmentID string) (bool, error)
	ListUnpaidSessions(ctx context.Context, ledgerID string) ([]*models.LectureSession, error)
	MarkSessionsPaid(ctx context.Context, ids []string) error

	// Payments
	CreatePayment(ctx context.Context, p *models.Payment) (string, error)
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	ReceivePaymentAndDeduct(ctx context.Context, paymentID, ledgerID string, hours float64, paidAt time.Time) (*models.LectureLedger, error)
}

// RateSource supplies the hourly rate snapshotted onto an appointment at
// booking time. Rate management itself lives in the profile service.
type RateSource interface {
	HourlyRate(ctx context.Context, tutorID, subject string) (float64, string, error)
}

// StaticRates serves one configured flat rate; the default when no profile
// service is wired.
type StaticRates struct {
	Amount   float64
	Currency string
}

func (r StaticRates) HourlyRate(_ context.Context, _, _ string) (float64, string, error) {
	return r.Amount, r.Currency, nil
}

// emit publishes a notification without blocking the caller. Delivery is
// best-effort: failures are logged and never affect the triggering mutation.
func (s *Service) emit(ctx context.Context, events ...notify.Event) {
	bg := context.WithoutCancel(ctx)

	go func() {
		ctx, cancel := context.WithTimeout(bg, 5*time.Second)
		defer cancel()

		for _, e := range events {
			if err := s.notifier.Notify(ctx, e); err != nil {
				s.log.Error("Failed to emit notification",
					slog.String("kind", e.Kind),
					slog.String("recipient", e.RecipientUserID),
					sl.Err(err),
				)
			}
		}
	}()
}

func appointmentToResponse(a *models.Appointment) *api.AppointmentResponse {
	return &api.AppointmentResponse{
		ID:           a.ID,
		StudentID:    a.StudentID,
		TutorID:      a.TutorID,
		Subject:      a.Subject,
		Start:        a.StartAt,
		End:          a.EndAt,
		Status:       string(a.Status),
		Notes:        a.Notes,
		RateAmount:   a.RateAmount,
		RateCurrency: a.RateCurrency,
		Cost:         a.Cost,
	}
}

func ledgerToResponse(l *models.LectureLedger) *api.LedgerResponse {
	return &api.LedgerResponse{
		ID:              l.ID,
		StudentID:       l.StudentID,
		TutorID:         l.TutorID,
		Subject:         l.Subject,
		TotalHours:      l.TotalHours,
		UnpaidHours:     l.UnpaidHours,
		PaymentInterval: l.PaymentInterval,
		LastSessionDate: l.LastSessionDate,
		ReminderSent:    l.ReminderSent,
	}
}

func paymentToResponse(p *models.Payment) *api.PaymentResponse {
	return &api.PaymentResponse{
		ID:            p.ID,
		LedgerID:      p.LedgerID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		HoursIncluded: p.HoursIncluded,
		Status:        string(p.Status),
		DueDate:       p.DueDate,
		PaidDate:      p.PaidDate,
		Method:        p.Method,
	}
}

func slotToResponse(slot *models.AvailabilitySlot) *api.SlotResponse {
	return &api.SlotResponse{
		ID:         slot.ID,
		TutorID:    slot.TutorID,
		Date:       slot.Date.Format("2006-01-02"),
		StartTime:  slot.StartTime.Format("15:04"),
		EndTime:    slot.EndTime.Format("15:04"),
		Available:  slot.Available,
		Origin:     string(slot.Origin),
		TemplateID: slot.TemplateID,
	}
}

func templateToResponse(t *models.AvailabilityTemplate) *api.AvailabilityTemplateResponse {
	return &api.AvailabilityTemplateResponse{
		ID:        t.ID,
		TutorID:   t.TutorID,
		Weekday:   t.Weekday,
		StartTime: t.StartTime.Format("15:04"),
		EndTime:   t.EndTime.Format("15:04"),
		StartDate: t.StartDate.Format("2006-01-02"),
		EndDate:   t.EndDate.Format("2006-01-02"),
		Active:    t.Active,
	}
}
