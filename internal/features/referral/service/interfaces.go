package service

import (
	"context"
	"time"

	"outlivion-contest-backend/internal/features/referral/models"
)

// ReferralService — привязка приглашенных и проекции для чтения.
type ReferralService interface {
	// BindInvitee идемпотентно привязывает приглашенного к рефереру
	// в рамках конкурса. Повторный вызов возвращает существующее событие.
	BindInvitee(ctx context.Context, contestID, referrerUserID string, inviteeTgID int64, source models.RefEventSource) (*models.RefEvent, error)
	GetSummary(ctx context.Context, contestID, userID string) (*models.ContestSummary, error)
	GetFriends(ctx context.Context, contestID, userID string, limit int) ([]*models.ReferralFriend, error)
	GetTickets(ctx context.Context, contestID, userID string) ([]*models.TicketHistoryEntry, error)
}

// QualificationService — обработчики платёжных сигналов.
// Оба идемпотентны по paymentID: повторная доставка — no-op.
type QualificationService interface {
	OnPaymentCompleted(ctx context.Context, inviteeUserID, paymentID string, months int, paidAt time.Time) error
	OnPaymentRefunded(ctx context.Context, paymentID string) error
}
