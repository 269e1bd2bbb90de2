package api

import "time"

// Availability templates (recurring weekly patterns).

type AvailabilityTemplateRequest struct {
	TutorID   string `json:"tutor_id"`
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Active    bool   `json:"active"`
}

type AvailabilityTemplateResponse struct {
	ID        string `json:"id"`
	TutorID   string `json:"tutor_id"`
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Active    bool   `json:"active"`
}

// Date-bound slots.

type SlotRequest struct {
	TutorID   string `json:"tutor_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type SlotResponse struct {
	ID         string  `json:"id"`
	TutorID    string  `json:"tutor_id"`
	Date       string  `json:"date"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	Available  bool    `json:"available"`
	Origin     string  `json:"origin"`
	TemplateID *string `json:"template_id,omitempty"`
}

type SlotExpandRequest struct {
	TemplateID string  `json:"template_id"`
	StartDate  *string `json:"start_date,omitempty"`
	EndDate    *string `json:"end_date,omitempty"`
	Weeks      *int    `json:"weeks,omitempty"`
}

// SlotExpandResult distinguishes "already done" (Created 0, Skipped > 0)
// from a window matching no dates (Matched 0).
type SlotExpandResult struct {
	Matched int      `json:"matched"`
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	SlotIDs []string `json:"slot_ids,omitempty"`
}

// Appointments.

type AppointmentRequest struct {
	StudentID string  `json:"student_id"`
	TutorID   string  `json:"tutor_id"`
	Subject   string  `json:"subject"`
	Start     string  `json:"start"`
	End       string  `json:"end"`
	Notes     *string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	TutorID      string    `json:"tutor_id"`
	Subject      string    `json:"subject"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Status       string    `json:"status"`
	Notes        *string   `json:"notes,omitempty"`
	RateAmount   float64   `json:"rate_amount"`
	RateCurrency string    `json:"rate_currency"`
	Cost         float64   `json:"cost"`
}

type AppointmentCompleteRequest struct {
	ActualStart *string `json:"actual_start,omitempty"`
	ActualEnd   *string `json:"actual_end,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

type AppointmentCompleteResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Hours       float64             `json:"hours"`
	UnpaidHours float64             `json:"unpaid_hours"`
	ReminderDue bool                `json:"reminder_due"`
}

// Ledger.

type ManualHoursRequest struct {
	StudentID string  `json:"student_id"`
	TutorID   string  `json:"tutor_id"`
	Subject   string  `json:"subject"`
	Hours     float64 `json:"hours"`
	TaughtAt  *string `json:"taught_at,omitempty"`
}

type LedgerResponse struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"student_id"`
	TutorID         string     `json:"tutor_id"`
	Subject         string     `json:"subject"`
	TotalHours      float64    `json:"total_hours"`
	UnpaidHours     float64    `json:"unpaid_hours"`
	PaymentInterval float64    `json:"payment_interval"`
	LastSessionDate *time.Time `json:"last_session_date,omitempty"`
	ReminderSent    bool       `json:"reminder_sent"`
}

type PaymentIntervalRequest struct {
	PaymentInterval float64 `json:"payment_interval"`
}

// Payments.

type PaymentRequest struct {
	LedgerID      string  `json:"ledger_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	HoursIncluded float64 `json:"hours_included"`
	Status        string  `json:"status,omitempty"`
	DueDate       *string `json:"due_date,omitempty"`
	Method        *string `json:"method,omitempty"`
}

type PaymentResponse struct {
	ID            string     `json:"id"`
	LedgerID      string     `json:"ledger_id"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	HoursIncluded float64    `json:"hours_included"`
	Status        string     `json:"status"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	PaidDate      *time.Time `json:"paid_date,omitempty"`
	Method        *string    `json:"method,omitempty"`
}
