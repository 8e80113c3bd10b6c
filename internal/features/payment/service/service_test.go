package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outlivion-contest-backend/internal/features/payment/models"
	"outlivion-contest-backend/internal/features/payment/repository"
)

type fakePaymentRepo struct {
	payments map[string]*models.Payment
	refunded []string
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*models.Payment)}
}

// Upsert дозаполняет детали существующего ряда, не трогая статус, —
// как и боевой репозиторий.
func (f *fakePaymentRepo) Upsert(_ context.Context, payment *models.Payment) error {
	if existing, ok := f.payments[payment.ID]; ok {
		existing.UserID = payment.UserID
		existing.Months = payment.Months
		existing.PaidAt = payment.PaidAt
		return nil
	}
	copied := *payment
	f.payments[payment.ID] = &copied
	return nil
}

func (f *fakePaymentRepo) GetByID(_ context.Context, id string) (*models.Payment, error) {
	if p, ok := f.payments[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakePaymentRepo) MarkRefunded(_ context.Context, id string) error {
	f.refunded = append(f.refunded, id)
	if p, ok := f.payments[id]; ok {
		p.Status = models.PaymentStatusRefunded
		return nil
	}
	f.payments[id] = &models.Payment{ID: id, Status: models.PaymentStatusRefunded}
	return nil
}

func (f *fakePaymentRepo) HasCompletedBefore(_ context.Context, _ string, _ time.Time) (bool, error) {
	return false, nil
}

type fakeQualification struct {
	completed []string
	refunded  []string
}

func (f *fakeQualification) OnPaymentCompleted(_ context.Context, _, paymentID string, _ int, _ time.Time) error {
	f.completed = append(f.completed, paymentID)
	return nil
}

func (f *fakeQualification) OnPaymentRefunded(_ context.Context, paymentID string) error {
	f.refunded = append(f.refunded, paymentID)
	return nil
}

func TestProcess_Completed(t *testing.T) {
	repo := newFakePaymentRepo()
	qual := &fakeQualification{}
	svc := NewPaymentEventService(repo, qual)

	event := &models.WebhookEvent{
		Type:      models.EventPaymentCompleted,
		PaymentID: "pay-1",
		UserID:    "user-1",
		Months:    3,
		PaidAt:    time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, svc.Process(context.Background(), event))

	require.Contains(t, repo.payments, "pay-1")
	assert.Equal(t, models.PaymentStatusCompleted, repo.payments["pay-1"].Status)
	assert.Equal(t, []string{"pay-1"}, qual.completed)
}

func TestProcess_Refunded(t *testing.T) {
	repo := newFakePaymentRepo()
	qual := &fakeQualification{}
	svc := NewPaymentEventService(repo, qual)

	event := &models.WebhookEvent{
		Type:      models.EventPaymentRefunded,
		PaymentID: "pay-1",
	}
	require.NoError(t, svc.Process(context.Background(), event))

	assert.Equal(t, []string{"pay-1"}, repo.refunded)
	assert.Equal(t, []string{"pay-1"}, qual.refunded)
}

func TestProcess_RefundedBeforeCompleted(t *testing.T) {
	repo := newFakePaymentRepo()
	qual := &fakeQualification{}
	svc := NewPaymentEventService(repo, qual)

	// Возврат обогнал сигнал о платеже
	require.NoError(t, svc.Process(context.Background(), &models.WebhookEvent{
		Type:      models.EventPaymentRefunded,
		PaymentID: "pay-1",
	}))
	require.NoError(t, svc.Process(context.Background(), &models.WebhookEvent{
		Type:      models.EventPaymentCompleted,
		PaymentID: "pay-1",
		UserID:    "user-1",
		Months:    3,
		PaidAt:    time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC),
	}))

	// Поздний completed дозаполняет детали, но статус остается refunded
	payment, err := repo.GetByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, payment.Status)
	assert.Equal(t, "user-1", payment.UserID)
}

func TestProcess_UnknownType(t *testing.T) {
	svc := NewPaymentEventService(newFakePaymentRepo(), &fakeQualification{})

	err := svc.Process(context.Background(), &models.WebhookEvent{Type: "payment.unknown", PaymentID: "pay-1"})
	require.Error(t, err)
}

func TestProcess_CompletedValidation(t *testing.T) {
	svc := NewPaymentEventService(newFakePaymentRepo(), &fakeQualification{})
	paidAt := time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		event *models.WebhookEvent
	}{
		{"missing user_id", &models.WebhookEvent{Type: models.EventPaymentCompleted, PaymentID: "p", Months: 3, PaidAt: paidAt}},
		{"zero months", &models.WebhookEvent{Type: models.EventPaymentCompleted, PaymentID: "p", UserID: "u", PaidAt: paidAt}},
		{"missing paid_at", &models.WebhookEvent{Type: models.EventPaymentCompleted, PaymentID: "p", UserID: "u", Months: 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, svc.Process(context.Background(), tc.event))
		})
	}
}
