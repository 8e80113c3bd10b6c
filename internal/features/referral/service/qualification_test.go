package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outlivion-contest-backend/internal/features/referral/models"
	usermodels "outlivion-contest-backend/internal/features/user/models"
)

type qualificationEnv struct {
	store         *fakeStore
	payments      *fakePayments
	qualification *qualificationService
}

func newQualificationEnv(t *testing.T) *qualificationEnv {
	t.Helper()

	store := newFakeStore()
	users := newFakeUsers(referrerUser(), inviteeUser())
	payments := &fakePayments{}

	svc := NewQualificationService(
		store, store, store,
		&fakeContests{contest: newTestContest()},
		users,
		payments,
		nil,
	).(*qualificationService)
	svc.now = func() time.Time { return testNow }

	return &qualificationEnv{store: store, payments: payments, qualification: svc}
}

func (e *qualificationEnv) seedBound(t *testing.T, boundAt time.Time) *models.RefEvent {
	t.Helper()

	inviteeID := "invitee-1"
	event := &models.RefEvent{
		ID:             "ev-1",
		ContestID:      "contest-1",
		ReferrerUserID: "referrer-1",
		InviteeTgID:    2002,
		InviteeUserID:  &inviteeID,
		BoundAt:        boundAt,
		Source:         models.SourceBot,
		Status:         models.StatusBound,
	}
	seedEvent(t, e.store, event)
	return event
}

var boundAt = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func TestOnPaymentCompleted_QualifiesAndCredits(t *testing.T) {
	env := newQualificationEnv(t)
	env.seedBound(t, boundAt)

	paidAt := time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, paidAt))

	event, err := env.store.GetByID(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQualified, event.Status)
	require.NotNil(t, event.QualifiedAt)
	assert.Equal(t, paidAt, *event.QualifiedAt)

	sum, err := env.store.SumByUser(context.Background(), "contest-1", "referrer-1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum)
}

func TestOnPaymentCompleted_DeadlineIsInclusive(t *testing.T) {
	env := newQualificationEnv(t)
	env.seedBound(t, boundAt)

	// Платеж ровно в момент истечения окна еще засчитывается
	deadline := boundAt.Add(7 * 24 * time.Hour)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 1, deadline))

	event, err := env.store.GetByID(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQualified, event.Status)
}

func TestOnPaymentCompleted_WindowExpired(t *testing.T) {
	env := newQualificationEnv(t)
	env.seedBound(t, boundAt)

	late := boundAt.Add(7*24*time.Hour + time.Second)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, late))

	event, err := env.store.GetByID(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotQualified, event.Status)
	assert.Equal(t, models.ReasonAttrWindowExpired, event.StatusReason)
	assert.Nil(t, event.QualifiedAt)

	sum, err := env.store.SumByUser(context.Background(), "contest-1", "referrer-1")
	require.NoError(t, err)
	assert.Equal(t, 0, sum)
}

func TestOnPaymentCompleted_WindowExpiredKeepsInviteeLink(t *testing.T) {
	env := newQualificationEnv(t)

	// Привязка без внутреннего ID: приглашенный зарегистрировался позже
	seedEvent(t, env.store, &models.RefEvent{
		ID:             "ev-1",
		ContestID:      "contest-1",
		ReferrerUserID: "referrer-1",
		InviteeTgID:    2002,
		BoundAt:        boundAt,
		Source:         models.SourceBot,
		Status:         models.StatusBound,
	})

	late := boundAt.Add(7*24*time.Hour + time.Second)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, late))

	event, err := env.store.GetByID(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotQualified, event.Status)
	require.NotNil(t, event.InviteeUserID)
	assert.Equal(t, "invitee-1", *event.InviteeUserID)
}

func TestOnPaymentCompleted_RefundedBeforeCompleted(t *testing.T) {
	env := newQualificationEnv(t)
	env.seedBound(t, boundAt)

	// payment.refunded обогнал payment.completed
	require.NoError(t, env.payments.MarkRefunded(context.Background(), "pay-1"))

	paidAt := time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, paidAt))

	event, err := env.store.GetByID(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBound, event.Status)
	assert.Empty(t, env.store.entries)
}

func TestOnPaymentCompleted_DuplicateSignal(t *testing.T) {
	env := newQualificationEnv(t)
	env.seedBound(t, boundAt)

	paidAt := time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, paidAt))
	// Повторная доставка того же вебхука
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, paidAt))

	sum, err := env.store.SumByUser(context.Background(), "contest-1", "referrer-1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum)
	assert.Len(t, env.store.entries, 1)
}

func TestOnPaymentCompleted_OnlyFirstPaymentCredits(t *testing.T) {
	env := newQualificationEnv(t)
	env.seedBound(t, boundAt)

	first := time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, first))

	// Второй платеж приглашенного: событие уже qualified, начисления нет
	second := first.Add(24 * time.Hour)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-2", 6, second))

	sum, err := env.store.SumByUser(context.Background(), "contest-1", "referrer-1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum)
}

func TestOnPaymentCompleted_NoCoveringContest(t *testing.T) {
	env := newQualificationEnv(t)
	env.seedBound(t, boundAt)

	// Платеж за пределами окна конкурса и окна атрибуции
	outside := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, outside))

	event, err := env.store.GetByID(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBound, event.Status)
	assert.Empty(t, env.store.entries)
}

func TestOnPaymentCompleted_NoBinding(t *testing.T) {
	env := newQualificationEnv(t)

	paidAt := time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, paidAt))
	assert.Empty(t, env.store.entries)
}

func TestOnPaymentCompleted_InvalidMonths(t *testing.T) {
	env := newQualificationEnv(t)

	err := env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 0, testNow)
	require.Error(t, err)
}

func TestOnPaymentCompleted_BackfillsInviteeUserID(t *testing.T) {
	env := newQualificationEnv(t)

	// Привязка создана до регистрации приглашенного: известен только tg_id
	seedEvent(t, env.store, &models.RefEvent{
		ID:             "ev-1",
		ContestID:      "contest-1",
		ReferrerUserID: "referrer-1",
		InviteeTgID:    2002,
		BoundAt:        boundAt,
		Source:         models.SourceBot,
		Status:         models.StatusBound,
	})

	paidAt := time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, paidAt))

	event, err := env.store.GetByID(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQualified, event.Status)
	require.NotNil(t, event.InviteeUserID)
	assert.Equal(t, "invitee-1", *event.InviteeUserID)
}

func TestOnPaymentRefunded_ReversesCredit(t *testing.T) {
	env := newQualificationEnv(t)
	env.seedBound(t, boundAt)

	paidAt := time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, paidAt))
	require.NoError(t, env.qualification.OnPaymentRefunded(context.Background(), "pay-1"))

	sum, err := env.store.SumByUser(context.Background(), "contest-1", "referrer-1")
	require.NoError(t, err)
	assert.Equal(t, 0, sum)

	// Статус события возврат не трогает
	event, err := env.store.GetByID(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQualified, event.Status)
}

func TestOnPaymentRefunded_Idempotent(t *testing.T) {
	env := newQualificationEnv(t)
	env.seedBound(t, boundAt)

	paidAt := time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.qualification.OnPaymentCompleted(context.Background(), "invitee-1", "pay-1", 3, paidAt))
	require.NoError(t, env.qualification.OnPaymentRefunded(context.Background(), "pay-1"))
	require.NoError(t, env.qualification.OnPaymentRefunded(context.Background(), "pay-1"))

	sum, err := env.store.SumByUser(context.Background(), "contest-1", "referrer-1")
	require.NoError(t, err)
	assert.Equal(t, 0, sum)
	assert.Len(t, env.store.entries, 2)
}

func TestOnPaymentRefunded_NothingCredited(t *testing.T) {
	env := newQualificationEnv(t)

	require.NoError(t, env.qualification.OnPaymentRefunded(context.Background(), "pay-unknown"))
	assert.Empty(t, env.store.entries)
}

// Сквозной сценарий: привязка, платеж в окне, возврат, поздний платеж
// второго приглашенного.
func TestQualificationScenario(t *testing.T) {
	store := newFakeStore()
	inviteeB := &usermodels.User{ID: "invitee-2", TgID: 3003, Username: "dave"}
	users := newFakeUsers(referrerUser(), inviteeUser(), inviteeB)
	contests := &fakeContests{contest: newTestContest()}

	qual := NewQualificationService(store, store, store, contests, users, &fakePayments{}, nil).(*qualificationService)
	qual.now = func() time.Time { return testNow }

	idA, idB := "invitee-1", "invitee-2"
	seedEvent(t, store, &models.RefEvent{
		ID: "ev-a", ContestID: "contest-1", ReferrerUserID: "referrer-1",
		InviteeTgID: 2002, InviteeUserID: &idA,
		BoundAt: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Source:  models.SourceBot, Status: models.StatusBound,
	})
	seedEvent(t, store, &models.RefEvent{
		ID: "ev-b", ContestID: "contest-1", ReferrerUserID: "referrer-1",
		InviteeTgID: 3003, InviteeUserID: &idB,
		BoundAt: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
		Source:  models.SourceMiniapp, Status: models.StatusBound,
	})

	ctx := context.Background()

	// Первый приглашенный платит в окне: +3 билета
	require.NoError(t, qual.OnPaymentCompleted(ctx, idA, "pay-a", 3, time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)))
	// Второй приглашенный платит после окна атрибуции своей привязки
	require.NoError(t, qual.OnPaymentCompleted(ctx, idB, "pay-b", 6, time.Date(2025, 1, 28, 0, 0, 0, 1, time.UTC)))
	// Платеж первого возвращается
	require.NoError(t, qual.OnPaymentRefunded(ctx, "pay-a"))

	sum, err := store.SumByUser(ctx, "contest-1", "referrer-1")
	require.NoError(t, err)
	assert.Equal(t, 0, sum)

	counts, err := store.CountByReferrer(ctx, "contest-1", "referrer-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusQualified])
	assert.Equal(t, 1, counts[models.StatusNotQualified])
}
