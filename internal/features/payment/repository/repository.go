package repository

import (
	"context"
	"errors"
	"time"

	"outlivion-contest-backend/internal/features/payment/models"
)

var ErrNotFound = errors.New("payment not found")

type PaymentRepository interface {
	// Upsert записывает платеж; при повторной доставке дозаполняет детали,
	// не переписывая уже зафиксированный статус refunded.
	Upsert(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	// MarkRefunded помечает платеж возвращенным; для неизвестного id
	// оставляет ряд-заглушку, чтобы поздний payment.completed его увидел.
	MarkRefunded(ctx context.Context, id string) error
	// HasCompletedBefore сообщает, были ли у пользователя успешные платежи
	// строго раньше указанного момента (проверка EXISTING_PAYER).
	HasCompletedBefore(ctx context.Context, userID string, before time.Time) (bool, error)
}
