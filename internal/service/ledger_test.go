package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tutordesk/api"
	"tutordesk/internal/models"
	"tutordesk/internal/notify"
	"tutordesk/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordHours(t *testing.T, svc *Service, hours float64) *api.LedgerResponse {
	t.Helper()

	ledger, err := svc.RecordManualHours(context.Background(), tutor("tut-1"), &api.ManualHoursRequest{
		StudentID: "stu-1",
		TutorID:   "tut-1",
		Subject:   "math",
		Hours:     hours,
	})
	require.NoError(t, err)

	return ledger
}

func payHours(t *testing.T, svc *Service, ledgerID string, hours float64) *api.PaymentResponse {
	t.Helper()

	payment, err := svc.RecordPayment(context.Background(), tutor("tut-1"), &api.PaymentRequest{
		LedgerID:      ledgerID,
		Amount:        hours * 20,
		Currency:      "USD",
		HoursIncluded: hours,
	})
	require.NoError(t, err)

	return payment
}

func TestRecordManualHours_AccruesOnOneLedger(t *testing.T) {
	svc, _, _, _ := newTestService()

	recordHours(t, svc, 1.5)
	ledger := recordHours(t, svc, 2)

	assert.InDelta(t, 3.5, ledger.TotalHours, 1e-9)
	assert.InDelta(t, 3.5, ledger.UnpaidHours, 1e-9)
	assert.InDelta(t, 10.0, ledger.PaymentInterval, 1e-9)
	assert.NotNil(t, ledger.LastSessionDate)
}

func TestRecordManualHours_Validation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.RecordManualHours(ctx, tutor("tut-1"), &api.ManualHoursRequest{
		StudentID: "stu-1", TutorID: "tut-1", Subject: "math", Hours: 0,
	})
	assert.ErrorIs(t, err, response.ErrValidation)

	_, err = svc.RecordManualHours(ctx, tutor("tut-1"), &api.ManualHoursRequest{
		TutorID: "tut-1", Subject: "math", Hours: 1,
	})
	assert.ErrorIs(t, err, response.ErrValidation)
}

func TestRecordManualHours_StudentForbidden(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.RecordManualHours(context.Background(), student("stu-1"), &api.ManualHoursRequest{
		StudentID: "stu-1", TutorID: "tut-1", Subject: "math", Hours: 1,
	})
	assert.ErrorIs(t, err, response.ErrForbidden)
}

func TestReminder_FiresOnceBeforeThreshold(t *testing.T) {
	svc, _, _, notifier := newTestService()

	// Default interval 10: the reminder fires one hour early, at 9.
	ledger := recordHours(t, svc, 8.5)
	assert.False(t, ledger.ReminderSent)
	assert.Equal(t, 0, notifier.kindCount(notify.KindPaymentReminder))

	ledger = recordHours(t, svc, 0.5)
	assert.True(t, ledger.ReminderSent)

	assert.Eventually(t, func() bool {
		return notifier.kindCount(notify.KindPaymentReminder) == 2
	}, time.Second, 10*time.Millisecond)

	// More hours in the same cycle stay silent.
	ledger = recordHours(t, svc, 3)
	assert.True(t, ledger.ReminderSent)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, notifier.kindCount(notify.KindPaymentReminder))
}

func TestReminder_RearmsAfterPayment(t *testing.T) {
	svc, _, _, notifier := newTestService()

	ledger := recordHours(t, svc, 9)
	require.True(t, ledger.ReminderSent)

	payHours(t, svc, ledger.ID, 9)

	after, err := svc.GetLedger(context.Background(), ledger.ID)
	require.NoError(t, err)
	assert.False(t, after.ReminderSent)
	assert.InDelta(t, 0.0, after.UnpaidHours, 1e-9)

	// Next cycle triggers again.
	ledger = recordHours(t, svc, 9)
	assert.True(t, ledger.ReminderSent)

	assert.Eventually(t, func() bool {
		return notifier.kindCount(notify.KindPaymentReminder) == 4
	}, time.Second, 10*time.Millisecond)
}

func TestReminder_ShortInterval(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	ledger := recordHours(t, svc, 1)

	_, err := svc.SetPaymentInterval(ctx, tutor("tut-1"), ledger.ID, 3)
	require.NoError(t, err)

	// Second hour reaches interval-1 and trips the reminder.
	ledger = recordHours(t, svc, 1)
	assert.True(t, ledger.ReminderSent)
}

func TestSetPaymentInterval_NotRetroactive(t *testing.T) {
	svc, _, _, notifier := newTestService()
	ctx := context.Background()

	ledger := recordHours(t, svc, 5)
	require.False(t, ledger.ReminderSent)

	// Shrinking the interval below accumulated hours does not fire a
	// reminder by itself.
	updated, err := svc.SetPaymentInterval(ctx, tutor("tut-1"), ledger.ID, 3)
	require.NoError(t, err)
	assert.False(t, updated.ReminderSent)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, notifier.kindCount(notify.KindPaymentReminder))
}

func TestSetPaymentInterval_Guards(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	ledger := recordHours(t, svc, 1)

	_, err := svc.SetPaymentInterval(ctx, tutor("tut-1"), ledger.ID, 0)
	assert.ErrorIs(t, err, response.ErrValidation)

	_, err = svc.SetPaymentInterval(ctx, tutor("tut-2"), ledger.ID, 5)
	assert.ErrorIs(t, err, response.ErrForbidden)

	_, err = svc.SetPaymentInterval(ctx, tutor("tut-1"), "missing", 5)
	assert.ErrorIs(t, err, response.ErrNotFound)
}

func TestRecordPayment_UnpaidHoursNeverNegative(t *testing.T) {
	svc, _, _, _ := newTestService()

	ledger := recordHours(t, svc, 2)

	payHours(t, svc, ledger.ID, 5)

	after, err := svc.GetLedger(context.Background(), ledger.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, after.UnpaidHours, 1e-9)
	// Total history is never reduced by payments.
	assert.InDelta(t, 2.0, after.TotalHours, 1e-9)
}

func TestRecordPayment_SettlesSessionsOldestFirst(t *testing.T) {
	svc, store, _, _ := newTestService()

	recordHours(t, svc, 1)
	recordHours(t, svc, 1)
	ledger := recordHours(t, svc, 2)

	// 2.5 paid hours cover the two 1-hour sessions; the 2-hour session is
	// only partially covered and stays unpaid.
	payHours(t, svc, ledger.ID, 2.5)

	assert.Equal(t, 1, store.unpaidSessionCount(ledger.ID))

	after, err := svc.GetLedger(context.Background(), ledger.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, after.UnpaidHours, 1e-9)
}

func TestRecordPayment_EmitsReceivedEvents(t *testing.T) {
	svc, _, _, notifier := newTestService()

	ledger := recordHours(t, svc, 2)
	payHours(t, svc, ledger.ID, 2)

	assert.Eventually(t, func() bool {
		return notifier.kindCount(notify.KindPaymentReceived) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRecordPayment_Validation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	ledger := recordHours(t, svc, 2)

	cases := []struct {
		name string
		req  *api.PaymentRequest
	}{
		{"zero hours", &api.PaymentRequest{LedgerID: ledger.ID, Amount: 10, Currency: "USD"}},
		{"negative amount", &api.PaymentRequest{LedgerID: ledger.ID, Amount: -1, Currency: "USD", HoursIncluded: 1}},
		{"missing currency", &api.PaymentRequest{LedgerID: ledger.ID, Amount: 10, HoursIncluded: 1}},
		{"pending without due date", &api.PaymentRequest{LedgerID: ledger.ID, Amount: 10, Currency: "USD", HoursIncluded: 1, Status: "PENDING"}},
		{"unknown status", &api.PaymentRequest{LedgerID: ledger.ID, Amount: 10, Currency: "USD", HoursIncluded: 1, Status: "REFUNDED"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordPayment(ctx, tutor("tut-1"), tc.req)
			assert.ErrorIs(t, err, response.ErrValidation)
		})
	}

	_, err := svc.RecordPayment(ctx, student("stu-1"), &api.PaymentRequest{
		LedgerID: ledger.ID, Amount: 10, Currency: "USD", HoursIncluded: 1,
	})
	assert.ErrorIs(t, err, response.ErrForbidden)
}

func TestReceivePayment_AppliesScheduledPayment(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	ledger := recordHours(t, svc, 3)

	dueDate := time.Now().UTC().AddDate(0, 0, 7).Format(time.RFC3339)

	scheduled, err := svc.RecordPayment(ctx, tutor("tut-1"), &api.PaymentRequest{
		LedgerID:      ledger.ID,
		Amount:        60,
		Currency:      "USD",
		HoursIncluded: 3,
		Status:        "PENDING",
		DueDate:       &dueDate,
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.PaymentPending), scheduled.Status)

	// Scheduling alone moves no hours.
	before, err := svc.GetLedger(ctx, ledger.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, before.UnpaidHours, 1e-9)

	received, err := svc.ReceivePayment(ctx, tutor("tut-1"), scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.PaymentPaid), received.Status)
	assert.NotNil(t, received.PaidDate)

	after, err := svc.GetLedger(ctx, ledger.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, after.UnpaidHours, 1e-9)

	// Receiving twice must not deduct twice.
	_, err = svc.ReceivePayment(ctx, tutor("tut-1"), scheduled.ID)
	assert.ErrorIs(t, err, response.ErrConflict)
}

func TestReceivePayment_FailureLeavesPaymentReceivable(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	ledger := recordHours(t, svc, 5)

	dueDate := time.Now().UTC().AddDate(0, 0, 7).Format(time.RFC3339)

	scheduled, err := svc.RecordPayment(ctx, tutor("tut-1"), &api.PaymentRequest{
		LedgerID:      ledger.ID,
		Amount:        60,
		Currency:      "USD",
		HoursIncluded: 3,
		Status:        "PENDING",
		DueDate:       &dueDate,
	})
	require.NoError(t, err)

	store.mu.Lock()
	store.failReceive = errors.New("connection reset")
	store.mu.Unlock()

	_, err = svc.ReceivePayment(ctx, tutor("tut-1"), scheduled.ID)
	require.Error(t, err)

	// Nothing moved: the payment is still receivable and the balance is
	// untouched.
	p, err := svc.GetPayment(ctx, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.PaymentPending), p.Status)

	mid, err := svc.GetLedger(ctx, ledger.ID)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, mid.UnpaidHours, 1e-9)

	// The retry applies the payment exactly once.
	received, err := svc.ReceivePayment(ctx, tutor("tut-1"), scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.PaymentPaid), received.Status)

	after, err := svc.GetLedger(ctx, ledger.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, after.UnpaidHours, 1e-9)

	_, err = svc.ReceivePayment(ctx, tutor("tut-1"), scheduled.ID)
	assert.ErrorIs(t, err, response.ErrConflict)
}

func TestReceivePayment_AlreadyPaidConflicts(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	ledger := recordHours(t, svc, 2)
	payment := payHours(t, svc, ledger.ID, 2)

	_, err := svc.ReceivePayment(ctx, tutor("tut-1"), payment.ID)
	assert.ErrorIs(t, err, response.ErrConflict)
}

func TestCompletionChainTriggersReminder(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	// Three 1-hour lessons against a 3-hour interval: the reminder trips on
	// the second completion (2 >= 3-1).
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	first := bookOne(t, svc, base)
	result, err := svc.Complete(ctx, tutor("tut-1"), first.ID, &api.AppointmentCompleteRequest{})
	require.NoError(t, err)
	assert.False(t, result.ReminderDue)

	ledgers, err := svc.ListLedgers(ctx, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, ledgers, 1)

	_, err = svc.SetPaymentInterval(ctx, tutor("tut-1"), ledgers[0].ID, 3)
	require.NoError(t, err)

	second := bookOne(t, svc, base.AddDate(0, 0, 7))
	result, err = svc.Complete(ctx, tutor("tut-1"), second.ID, &api.AppointmentCompleteRequest{})
	require.NoError(t, err)
	assert.True(t, result.ReminderDue)

	third := bookOne(t, svc, base.AddDate(0, 0, 14))
	result, err = svc.Complete(ctx, tutor("tut-1"), third.ID, &api.AppointmentCompleteRequest{})
	require.NoError(t, err)
	assert.False(t, result.ReminderDue)
	assert.InDelta(t, 3.0, result.UnpaidHours, 1e-9)
}
