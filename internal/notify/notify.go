package notify

import (
	"context"
	"log/slog"
)

// Event kinds double as routing keys on the topic exchange.
const (
	KindBookingCreated   = "booking.created"
	KindBookingCancelled = "booking.cancelled"
	KindPaymentReminder  = "payment.reminder"
	KindPaymentReceived  = "payment.received"
)

type Event struct {
	RecipientUserID string         `json:"recipient_user_id"`
	Kind            string         `json:"kind"`
	Title           string         `json:"title"`
	Message         string         `json:"message"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// Notifier is the delivery collaborator. Best-effort: callers must treat a
// failed Notify as log-only and never fail the triggering mutation.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// LogNotifier is the local/dev fallback when no broker is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	n.log.Info("Notification",
		slog.String("recipient", e.RecipientUserID),
		slog.String("kind", e.Kind),
		slog.String("title", e.Title),
		slog.String("message", e.Message),
	)
	return nil
}
