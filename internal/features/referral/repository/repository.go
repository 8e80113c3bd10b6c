package repository

import (
	"context"
	"errors"
	"time"

	"outlivion-contest-backend/internal/features/referral/models"
)

var (
	ErrNotFound = errors.New("ref event not found")
	// ErrDuplicatePayment возвращается, когда запись по (payment_id, reason)
	// уже существует: сигнал доставлен повторно, операция — no-op.
	ErrDuplicatePayment = errors.New("ledger entry for payment already exists")
	// ErrStaleEvent возвращается, когда статус события изменился между чтением
	// и транзакцией (конкурентный обработчик успел раньше).
	ErrStaleEvent = errors.New("ref event status changed concurrently")
)

type RefEventRepository interface {
	Create(ctx context.Context, event *models.RefEvent) error
	GetByID(ctx context.Context, id string) (*models.RefEvent, error)
	// GetActiveByInviteeTg возвращает не-blocked событие пары (contest, invitee).
	GetActiveByInviteeTg(ctx context.Context, contestID string, inviteeTgID int64) (*models.RefEvent, error)
	// GetBoundByInvitee ищет bound-событие по внутреннему ID или tg ID приглашенного.
	GetBoundByInvitee(ctx context.Context, contestID, inviteeUserID string, inviteeTgID int64) (*models.RefEvent, error)
	ListByReferrer(ctx context.Context, contestID, referrerUserID string, limit int) ([]*models.RefEvent, error)
	CountByReferrer(ctx context.Context, contestID, referrerUserID string) (map[models.RefEventStatus]int, error)
	// MarkNotQualified фиксирует истечение окна атрибуции. Переход односторонний,
	// выполняется только из bound (guard в SQL).
	MarkNotQualified(ctx context.Context, eventID string, reason models.StatusReason) error
	// SetInviteeUserID дозаполняет внутренний ID приглашенного после регистрации.
	SetInviteeUserID(ctx context.Context, eventID, inviteeUserID string) error
}

type TicketLedgerRepository interface {
	// Append добавляет запись; ErrDuplicatePayment при нарушении
	// уникальности (payment_id, reason).
	Append(ctx context.Context, entry *models.TicketLedgerEntry) error
	ExistsForPayment(ctx context.Context, paymentID string, reason models.LedgerReason) (bool, error)
	// SumByUser — сумма всех дельт пользователя в конкурсе (tickets_total).
	SumByUser(ctx context.Context, contestID, userID string) (int, error)
	// OutstandingForPayment — не перекрытый возвратами остаток по платежу.
	OutstandingForPayment(ctx context.Context, paymentID string) (int, error)
	ListByPayment(ctx context.Context, paymentID string) ([]*models.TicketLedgerEntry, error)
	ListByUser(ctx context.Context, contestID, userID string) ([]*models.TicketLedgerEntry, error)
	// SumByInvitee — дельты реферера, сгруппированные по приглашенным.
	SumByInvitee(ctx context.Context, contestID, userID string) (map[string]int, error)
}

// QualificationTx объединяет переход bound→qualified и запись в ledger
// в одну транзакцию базы данных: частичное применение недопустимо.
type QualificationTx interface {
	QualifyAndCredit(ctx context.Context, eventID string, qualifiedAt time.Time, entry *models.TicketLedgerEntry) error
}
