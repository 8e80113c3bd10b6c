package service

import (
	"context"
	"sync"
	"time"

	apperrors "outlivion-contest-backend/internal/common/errors"
	contestmodels "outlivion-contest-backend/internal/features/contest/models"
	paymentmodels "outlivion-contest-backend/internal/features/payment/models"
	paymentrepo "outlivion-contest-backend/internal/features/payment/repository"
	"outlivion-contest-backend/internal/features/referral/models"
	"outlivion-contest-backend/internal/features/referral/repository"
	usermodels "outlivion-contest-backend/internal/features/user/models"
	userservice "outlivion-contest-backend/internal/features/user/service"
)

// fakeStore реализует RefEventRepository, TicketLedgerRepository и
// QualificationTx в памяти, повторяя ограничения уникальности и guard'ы
// статусов боевого postgres-репозитория.
type fakeStore struct {
	mu      sync.Mutex
	events  map[string]*models.RefEvent
	entries []*models.TicketLedgerEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[string]*models.RefEvent)}
}

func (f *fakeStore) Create(_ context.Context, event *models.RefEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if event.Status != models.StatusBlocked {
		for _, e := range f.events {
			if e.ContestID == event.ContestID && e.InviteeTgID == event.InviteeTgID && e.Status != models.StatusBlocked {
				return repository.ErrStaleEvent
			}
		}
	}

	stored := *event
	f.events[event.ID] = &stored
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*models.RefEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *event
	return &copied, nil
}

func (f *fakeStore) GetActiveByInviteeTg(_ context.Context, contestID string, inviteeTgID int64) (*models.RefEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range f.events {
		if e.ContestID == contestID && e.InviteeTgID == inviteeTgID && e.Status != models.StatusBlocked {
			copied := *e
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetBoundByInvitee(_ context.Context, contestID, inviteeUserID string, inviteeTgID int64) (*models.RefEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range f.events {
		if e.ContestID != contestID || e.Status != models.StatusBound {
			continue
		}
		if (e.InviteeUserID != nil && *e.InviteeUserID == inviteeUserID) || (inviteeTgID != 0 && e.InviteeTgID == inviteeTgID) {
			copied := *e
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) ListByReferrer(_ context.Context, contestID, referrerUserID string, limit int) ([]*models.RefEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.RefEvent
	for _, e := range f.events {
		if e.ContestID == contestID && e.ReferrerUserID == referrerUserID {
			copied := *e
			out = append(out, &copied)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) CountByReferrer(_ context.Context, contestID, referrerUserID string) (map[models.RefEventStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := make(map[models.RefEventStatus]int)
	for _, e := range f.events {
		if e.ContestID == contestID && e.ReferrerUserID == referrerUserID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (f *fakeStore) MarkNotQualified(_ context.Context, eventID string, reason models.StatusReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	if event.Status != models.StatusBound {
		return repository.ErrStaleEvent
	}
	event.Status = models.StatusNotQualified
	event.StatusReason = reason
	return nil
}

func (f *fakeStore) SetInviteeUserID(_ context.Context, eventID, inviteeUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	if event.InviteeUserID == nil {
		event.InviteeUserID = &inviteeUserID
	}
	return nil
}

func (f *fakeStore) hasEntry(paymentID string, reason models.LedgerReason) bool {
	for _, e := range f.entries {
		if e.PaymentID == paymentID && e.Reason == reason {
			return true
		}
	}
	return false
}

func (f *fakeStore) Append(_ context.Context, entry *models.TicketLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.append(entry)
}

func (f *fakeStore) append(entry *models.TicketLedgerEntry) error {
	if entry.Reason != models.ReasonManualAdjust && f.hasEntry(entry.PaymentID, entry.Reason) {
		return repository.ErrDuplicatePayment
	}
	copied := *entry
	f.entries = append(f.entries, &copied)
	return nil
}

func (f *fakeStore) ExistsForPayment(_ context.Context, paymentID string, reason models.LedgerReason) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasEntry(paymentID, reason), nil
}

func (f *fakeStore) SumByUser(_ context.Context, contestID, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sum := 0
	for _, e := range f.entries {
		if e.ContestID == contestID && e.UserID == userID {
			sum += e.Delta
		}
	}
	return sum, nil
}

func (f *fakeStore) OutstandingForPayment(_ context.Context, paymentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sum := 0
	for _, e := range f.entries {
		if e.PaymentID == paymentID && (e.Reason == models.ReasonInviteePayment || e.Reason == models.ReasonRefund) {
			sum += e.Delta
		}
	}
	return sum, nil
}

func (f *fakeStore) ListByPayment(_ context.Context, paymentID string) ([]*models.TicketLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.TicketLedgerEntry
	for _, e := range f.entries {
		if e.PaymentID == paymentID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByUser(_ context.Context, contestID, userID string) ([]*models.TicketLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.TicketLedgerEntry
	for _, e := range f.entries {
		if e.ContestID == contestID && e.UserID == userID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeStore) SumByInvitee(_ context.Context, contestID, userID string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sums := make(map[string]int)
	for _, e := range f.entries {
		if e.ContestID == contestID && e.UserID == userID {
			sums[e.InviteeUserID] += e.Delta
		}
	}
	return sums, nil
}

// QualifyAndCredit повторяет транзакционную семантику: при конфликте
// уникальности в ledger переход статуса не применяется.
func (f *fakeStore) QualifyAndCredit(_ context.Context, eventID string, qualifiedAt time.Time, entry *models.TicketLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	if event.Status != models.StatusBound {
		return repository.ErrStaleEvent
	}
	if err := f.append(entry); err != nil {
		return err
	}

	event.Status = models.StatusQualified
	event.StatusReason = models.ReasonNone
	event.QualifiedAt = &qualifiedAt
	if event.InviteeUserID == nil {
		event.InviteeUserID = &entry.InviteeUserID
	}
	return nil
}

// fakeContests отдает единственный конкурс по его ID и окну покрытия.
type fakeContests struct {
	contest *contestmodels.Contest
}

func (f *fakeContests) GetActive(context.Context) (*contestmodels.Contest, error) {
	return f.contest, nil
}

func (f *fakeContests) GetByID(_ context.Context, id string) (*contestmodels.Contest, error) {
	if f.contest == nil || f.contest.ID != id {
		return nil, apperrors.NewContestNotFoundError(id)
	}
	return f.contest, nil
}

func (f *fakeContests) FindCovering(_ context.Context, at time.Time) (*contestmodels.Contest, error) {
	if f.contest == nil || !f.contest.Covers(at) {
		return nil, nil
	}
	return f.contest, nil
}

func (f *fakeContests) Create(_ context.Context, _ *contestmodels.ContestCreate) (*contestmodels.Contest, error) {
	return f.contest, nil
}

func (f *fakeContests) Update(_ context.Context, _ string, _ *contestmodels.ContestCreate) (*contestmodels.Contest, error) {
	return f.contest, nil
}

func (f *fakeContests) Deactivate(context.Context, string) error {
	return nil
}

// fakeUsers хранит пользователей в памяти.
type fakeUsers struct {
	byID map[string]*usermodels.User
}

func newFakeUsers(users ...*usermodels.User) *fakeUsers {
	f := &fakeUsers{byID: make(map[string]*usermodels.User)}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*usermodels.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, userservice.ErrUserNotFound
}

func (f *fakeUsers) GetByTgID(_ context.Context, tgID int64) (*usermodels.User, error) {
	for _, u := range f.byID {
		if u.TgID == tgID {
			return u, nil
		}
	}
	return nil, userservice.ErrUserNotFound
}

func (f *fakeUsers) GetByRefCode(_ context.Context, code string) (*usermodels.User, error) {
	for _, u := range f.byID {
		if u.RefCode == code {
			return u, nil
		}
	}
	return nil, userservice.ErrUserNotFound
}

func (f *fakeUsers) GetOrCreateByTelegram(_ context.Context, tgID int64, _, _, _ string) (*usermodels.User, error) {
	for _, u := range f.byID {
		if u.TgID == tgID {
			return u, nil
		}
	}
	return nil, userservice.ErrUserNotFound
}

// fakePayments повторяет upsert-семантику postgres-репозитория:
// статус refunded не перетирается поздним payment.completed.
type fakePayments struct {
	priorPayers map[string]bool
	payments    map[string]*paymentmodels.Payment
}

func (f *fakePayments) Upsert(_ context.Context, payment *paymentmodels.Payment) error {
	if f.payments == nil {
		f.payments = make(map[string]*paymentmodels.Payment)
	}
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

func (f *fakePayments) GetByID(_ context.Context, id string) (*paymentmodels.Payment, error) {
	if p, ok := f.payments[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, paymentrepo.ErrNotFound
}

func (f *fakePayments) MarkRefunded(_ context.Context, id string) error {
	if f.payments == nil {
		f.payments = make(map[string]*paymentmodels.Payment)
	}
	if p, ok := f.payments[id]; ok {
		p.Status = paymentmodels.PaymentStatusRefunded
		return nil
	}
	f.payments[id] = &paymentmodels.Payment{ID: id, Status: paymentmodels.PaymentStatusRefunded}
	return nil
}

func (f *fakePayments) HasCompletedBefore(_ context.Context, userID string, _ time.Time) (bool, error) {
	return f.priorPayers[userID], nil
}
