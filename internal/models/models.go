package models

import "time"

// SlotKind discriminates the two availability shapes so callers dispatch on
// the known kind instead of probing both stores.
type SlotKind string

const (
	SlotRecurring SlotKind = "recurring"
	SlotDateBound SlotKind = "date_bound"
)

type SlotOrigin string

const (
	OriginTemplate SlotOrigin = "template"
	OriginManual   SlotOrigin = "manual"
)

// AvailabilityTemplate is a recurring weekly pattern owned by a tutor.
// Weekday follows time.Weekday numbering, 0 = Sunday.
type AvailabilityTemplate struct {
	ID        string    `db:"id"`
	TutorID   string    `db:"tutor_id"`
	Weekday   int       `db:"weekday"`
	StartTime time.Time `db:"start_time"`
	EndTime   time.Time `db:"end_time"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	Active    bool      `db:"active"`
}

// AvailabilitySlot is a concrete date-bound instance. Once a booking has
// referenced it the row is soft-disabled (Available=false), never deleted.
type AvailabilitySlot struct {
	ID         string     `db:"id"`
	TutorID    string     `db:"tutor_id"`
	Date       time.Time  `db:"slot_date"`
	StartTime  time.Time  `db:"start_time"`
	EndTime    time.Time  `db:"end_time"`
	Available  bool       `db:"available"`
	Origin     SlotOrigin `db:"origin"`
	TemplateID *string    `db:"template_id"`
}

type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed  AppointmentStatus = "CONFIRMED"
	AppointmentInProgress AppointmentStatus = "IN_PROGRESS"
	AppointmentCompleted  AppointmentStatus = "COMPLETED"
	AppointmentCancelled  AppointmentStatus = "CANCELLED"
	AppointmentNoShow     AppointmentStatus = "NO_SHOW"
)

// Terminal statuses release the time range from conflict checks.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentCompleted || s == AppointmentCancelled || s == AppointmentNoShow
}

// Appointment carries a denormalized rate snapshot taken at booking time, so
// later rate changes never alter the cost of an already-booked lesson.
type Appointment struct {
	ID             string            `db:"id"`
	StudentID      string            `db:"student_id"`
	TutorID        string            `db:"tutor_id"`
	Subject        string            `db:"subject"`
	StartAt        time.Time         `db:"start_at"`
	EndAt          time.Time         `db:"end_at"`
	Status         AppointmentStatus `db:"status"`
	Notes          *string           `db:"notes"`
	RateAmount     float64           `db:"rate_amount"`
	RateCurrency   string            `db:"rate_currency"`
	Cost           float64           `db:"cost"`
	IdempotencyKey *string           `db:"idempotency_key"`
	CreatedAt      time.Time         `db:"created_at"`
}

// LectureLedger is the running hours balance for one (student, tutor, subject)
// triple. Invariant: 0 <= UnpaidHours <= TotalHours.
type LectureLedger struct {
	ID              string     `db:"id"`
	StudentID       string     `db:"student_id"`
	TutorID         string     `db:"tutor_id"`
	Subject         string     `db:"subject"`
	TotalHours      float64    `db:"total_hours"`
	UnpaidHours     float64    `db:"unpaid_hours"`
	PaymentInterval float64    `db:"payment_interval"`
	LastSessionDate *time.Time `db:"last_session_date"`
	ReminderSent    bool       `db:"reminder_sent"`
}

// LectureSession is one historical record of time actually taught.
// Append-only; AppointmentID is nil for manually backdated hours.
type LectureSession struct {
	ID            string    `db:"id"`
	LedgerID      string    `db:"ledger_id"`
	AppointmentID *string   `db:"appointment_id"`
	Hours         float64   `db:"hours"`
	TaughtAt      time.Time `db:"taught_at"`
	Paid          bool      `db:"paid"`
	CreatedAt     time.Time `db:"created_at"`
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentOverdue   PaymentStatus = "OVERDUE"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

type Payment struct {
	ID            string        `db:"id"`
	LedgerID      string        `db:"ledger_id"`
	Amount        float64       `db:"amount"`
	Currency      string        `db:"currency"`
	HoursIncluded float64       `db:"hours_included"`
	Status        PaymentStatus `db:"status"`
	DueDate       *time.Time    `db:"due_date"`
	PaidDate      *time.Time    `db:"paid_date"`
	Method        *string       `db:"method"`
	CreatedAt     time.Time     `db:"created_at"`
}
