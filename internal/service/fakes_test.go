package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"tutordesk/internal/models"
	"tutordesk/internal/notify"
	"tutordesk/internal/schedule"
	"tutordesk/pkg/response"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store honoring the same atomicity contracts as the
// postgres implementation: conflict-checked appointment creation, upserting
// ledger accrual and floor-at-zero deduction.
type fakeStore struct {
	mu sync.Mutex

	templates    map[string]*models.AvailabilityTemplate
	slots        map[string]*models.AvailabilitySlot
	appointments map[string]*models.Appointment
	ledgers      map[string]*models.LectureLedger
	sessions     []*models.LectureSession
	payments     map[string]*models.Payment

	// One-shot failure injection for the transactional writes; the error is
	// returned once with no state mutated, like a rolled-back transaction.
	failRecordSession error
	failReceive       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates:    make(map[string]*models.AvailabilityTemplate),
		slots:        make(map[string]*models.AvailabilitySlot),
		appointments: make(map[string]*models.Appointment),
		ledgers:      make(map[string]*models.LectureLedger),
		payments:     make(map[string]*models.Payment),
	}
}

func (f *fakeStore) CreateAvailabilityTemplate(_ context.Context, t *models.AvailabilityTemplate) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *t
	cp.ID = uuid.NewString()
	f.templates[cp.ID] = &cp

	return cp.ID, nil
}

func (f *fakeStore) GetAvailabilityTemplate(_ context.Context, id string) (*models.AvailabilityTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.templates[id]
	if !ok {
		return nil, response.ErrNotFound
	}

	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListAvailabilityTemplates(_ context.Context, tutorID string) ([]*models.AvailabilityTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.AvailabilityTemplate
	for _, t := range f.templates {
		if t.TutorID == tutorID {
			cp := *t
			result = append(result, &cp)
		}
	}

	return result, nil
}

func (f *fakeStore) UpdateAvailabilityTemplate(_ context.Context, t *models.AvailabilityTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.templates[t.ID]; !ok {
		return response.ErrNotFound
	}

	cp := *t
	f.templates[t.ID] = &cp

	return nil
}

func (f *fakeStore) SetTemplateActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.templates[id]
	if !ok {
		return response.ErrNotFound
	}

	t.Active = active
	return nil
}

func (f *fakeStore) slotTakenLocked(tutorID string, date, start time.Time) bool {
	for _, s := range f.slots {
		if s.TutorID == tutorID && s.Available &&
			s.Date.Equal(date) && s.StartTime.Equal(start) {
			return true
		}
	}
	return false
}

func (f *fakeStore) CreateSlot(_ context.Context, slot *models.AvailabilitySlot) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.slotTakenLocked(slot.TutorID, slot.Date, slot.StartTime) {
		return "", response.ErrConflict
	}

	cp := *slot
	cp.ID = uuid.NewString()
	f.slots[cp.ID] = &cp

	return cp.ID, nil
}

func (f *fakeStore) CreateSlots(_ context.Context, slots []*models.AvailabilitySlot) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, slot := range slots {
		if f.slotTakenLocked(slot.TutorID, slot.Date, slot.StartTime) {
			return nil, response.ErrConflict
		}
	}

	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		cp := *slot
		cp.ID = uuid.NewString()
		f.slots[cp.ID] = &cp
		ids = append(ids, cp.ID)
	}

	return ids, nil
}

func (f *fakeStore) GetSlot(_ context.Context, id string) (*models.AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.slots[id]
	if !ok {
		return nil, response.ErrNotFound
	}

	cp := *s
	return &cp, nil
}

func (f *fakeStore) ListSlots(_ context.Context, tutorID string, from, to *time.Time) ([]*models.AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.AvailabilitySlot
	for _, s := range f.slots {
		if s.TutorID != tutorID {
			continue
		}
		if from != nil && s.Date.Before(*from) {
			continue
		}
		if to != nil && s.Date.After(*to) {
			continue
		}

		cp := *s
		result = append(result, &cp)
	}

	return result, nil
}

func (f *fakeStore) DeactivateSlot(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.slots[id]
	if !ok {
		return response.ErrNotFound
	}

	s.Available = false
	return nil
}

func (f *fakeStore) CreateAppointmentIfFree(_ context.Context, a *models.Appointment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a.IdempotencyKey != nil {
		for _, existing := range f.appointments {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *a.IdempotencyKey {
				return "", response.ErrDuplicateRequest
			}
		}
	}

	candidate := schedule.Interval{Start: a.StartAt, End: a.EndAt}
	for _, existing := range f.appointments {
		if existing.TutorID != a.TutorID || existing.Status.Terminal() {
			continue
		}
		if candidate.Overlaps(schedule.Interval{Start: existing.StartAt, End: existing.EndAt}) {
			return "", response.ErrSlotNotAvailable
		}
	}

	cp := *a
	cp.ID = uuid.NewString()
	cp.CreatedAt = time.Now().UTC()
	f.appointments[cp.ID] = &cp

	return cp.ID, nil
}

func (f *fakeStore) GetAppointment(_ context.Context, id string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.appointments[id]
	if !ok {
		return nil, response.ErrNotFound
	}

	cp := *a
	return &cp, nil
}

func (f *fakeStore) GetAppointmentByIdempotencyKey(_ context.Context, key string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.appointments {
		if a.IdempotencyKey != nil && *a.IdempotencyKey == key {
			cp := *a
			return &cp, nil
		}
	}

	return nil, response.ErrNotFound
}

func (f *fakeStore) ListAppointments(_ context.Context, studentID, tutorID *string, from, to *time.Time, status *string) ([]*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.Appointment
	for _, a := range f.appointments {
		if studentID != nil && a.StudentID != *studentID {
			continue
		}
		if tutorID != nil && a.TutorID != *tutorID {
			continue
		}
		if from != nil && a.StartAt.Before(*from) {
			continue
		}
		if to != nil && a.StartAt.After(*to) {
			continue
		}
		if status != nil && string(a.Status) != *status {
			continue
		}

		cp := *a
		result = append(result, &cp)
	}

	return result, nil
}

func (f *fakeStore) UpdateAppointmentStatus(_ context.Context, id string, status models.AppointmentStatus, notes *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.appointments[id]
	if !ok {
		return response.ErrNotFound
	}

	a.Status = status
	if notes != nil {
		a.Notes = notes
	}

	return nil
}

func (f *fakeStore) GetLedgerByID(_ context.Context, id string) (*models.LectureLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.ledgers[id]
	if !ok {
		return nil, response.ErrNotFound
	}

	cp := *l
	return &cp, nil
}

func (f *fakeStore) ListLedgers(_ context.Context, studentID, tutorID, subject *string) ([]*models.LectureLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.LectureLedger
	for _, l := range f.ledgers {
		if studentID != nil && l.StudentID != *studentID {
			continue
		}
		if tutorID != nil && l.TutorID != *tutorID {
			continue
		}
		if subject != nil && l.Subject != *subject {
			continue
		}

		cp := *l
		result = append(result, &cp)
	}

	return result, nil
}

func (f *fakeStore) RecordLedgerSession(_ context.Context, studentID, tutorID, subject string, hours float64, taughtAt time.Time, appointmentID *string, defaultInterval float64) (*models.LectureLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failRecordSession != nil {
		err := f.failRecordSession
		f.failRecordSession = nil
		return nil, err
	}

	var ledger *models.LectureLedger
	for _, l := range f.ledgers {
		if l.StudentID == studentID && l.TutorID == tutorID && l.Subject == subject {
			ledger = l
			break
		}
	}

	if ledger == nil {
		ledger = &models.LectureLedger{
			ID:              uuid.NewString(),
			StudentID:       studentID,
			TutorID:         tutorID,
			Subject:         subject,
			PaymentInterval: defaultInterval,
		}
		f.ledgers[ledger.ID] = ledger
	}

	ledger.TotalHours += hours
	ledger.UnpaidHours += hours
	ledger.LastSessionDate = &taughtAt

	f.sessions = append(f.sessions, &models.LectureSession{
		ID:            uuid.NewString(),
		LedgerID:      ledger.ID,
		AppointmentID: appointmentID,
		Hours:         hours,
		TaughtAt:      taughtAt,
		CreatedAt:     time.Now().UTC(),
	})

	cp := *ledger
	return &cp, nil
}

func (f *fakeStore) DeductLedgerHours(_ context.Context, ledgerID string, hours float64) (*models.LectureLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.ledgers[ledgerID]
	if !ok {
		return nil, response.ErrNotFound
	}

	l.UnpaidHours -= hours
	if l.UnpaidHours < 0 {
		l.UnpaidHours = 0
	}
	l.ReminderSent = false

	cp := *l
	return &cp, nil
}

func (f *fakeStore) SetReminderSent(_ context.Context, ledgerID string, sent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.ledgers[ledgerID]
	if !ok {
		return response.ErrNotFound
	}

	l.ReminderSent = sent
	return nil
}

func (f *fakeStore) SetPaymentInterval(_ context.Context, ledgerID string, hours float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.ledgers[ledgerID]
	if !ok {
		return response.ErrNotFound
	}

	l.PaymentInterval = hours
	return nil
}

func (f *fakeStore) SessionExistsForAppointment(_ context.Context, appointmentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sessions {
		if s.AppointmentID != nil && *s.AppointmentID == appointmentID {
			return true, nil
		}
	}

	return false, nil
}

func (f *fakeStore) ListUnpaidSessions(_ context.Context, ledgerID string) ([]*models.LectureSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Sessions are appended in creation order, matching the oldest-first
	// ordering the query layer guarantees.
	var result []*models.LectureSession
	for _, s := range f.sessions {
		if s.LedgerID == ledgerID && !s.Paid {
			cp := *s
			result = append(result, &cp)
		}
	}

	return result, nil
}

func (f *fakeStore) MarkSessionsPaid(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		for _, s := range f.sessions {
			if s.ID == id {
				s.Paid = true
			}
		}
	}

	return nil
}

func (f *fakeStore) CreatePayment(_ context.Context, p *models.Payment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.ledgers[p.LedgerID]; !ok {
		return "", response.ErrNotFound
	}

	cp := *p
	cp.ID = uuid.NewString()
	cp.CreatedAt = time.Now().UTC()
	f.payments[cp.ID] = &cp

	return cp.ID, nil
}

func (f *fakeStore) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.payments[id]
	if !ok {
		return nil, response.ErrNotFound
	}

	cp := *p
	return &cp, nil
}

func (f *fakeStore) ReceivePaymentAndDeduct(_ context.Context, paymentID, ledgerID string, hours float64, paidAt time.Time) (*models.LectureLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failReceive != nil {
		err := f.failReceive
		f.failReceive = nil
		return nil, err
	}

	p, ok := f.payments[paymentID]
	if !ok {
		return nil, response.ErrNotFound
	}
	if p.Status != models.PaymentPending && p.Status != models.PaymentOverdue {
		return nil, response.ErrConflict
	}

	l, ok := f.ledgers[ledgerID]
	if !ok {
		return nil, response.ErrNotFound
	}

	p.Status = models.PaymentPaid
	p.PaidDate = &paidAt

	l.UnpaidHours -= hours
	if l.UnpaidHours < 0 {
		l.UnpaidHours = 0
	}
	l.ReminderSent = false

	cp := *l
	return &cp, nil
}

func (f *fakeStore) unpaidSessionCount(ledgerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, s := range f.sessions {
		if s.LedgerID == ledgerID && !s.Paid {
			n++
		}
	}
	return n
}

// fakeGuard is an in-memory idempotency claim store. Setting failErr makes
// every Claim fail, simulating an unreachable redis.
type fakeGuard struct {
	mu      sync.Mutex
	claims  map[string]struct{}
	failErr error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{claims: make(map[string]struct{})}
}

func (g *fakeGuard) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failErr != nil {
		return false, g.failErr
	}
	if _, ok := g.claims[key]; ok {
		return false, nil
	}

	g.claims[key] = struct{}{}
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.claims, key)
	return nil
}

func (g *fakeGuard) held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.claims[key]
	return ok
}

// fakeNotifier records events; notifications are emitted asynchronously, so
// assertions go through assert.Eventually with kindCount.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *fakeNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = append(n.events, e)
	return nil
}

func (n *fakeNotifier) kindCount(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := 0
	for _, e := range n.events {
		if e.Kind == kind {
			count++
		}
	}
	return count
}

func newTestService() (*Service, *fakeStore, *fakeGuard, *fakeNotifier) {
	store := newFakeStore()
	guard := newFakeGuard()
	notifier := &fakeNotifier{}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(log, store, guard, notifier, StaticRates{Amount: 20, Currency: "USD"}, Options{
		ClaimTTL:               time.Hour,
		DefaultWeeks:           4,
		DefaultPaymentInterval: 10,
	})

	return svc, store, guard, notifier
}
