package models

import "time"

// PaymentStatus — статус платежа у провайдера.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment — локальная запись об успешном платеже подписки.
// ID приходит от платёжного провайдера и служит ключом идемпотентности
// для квалификации и возвратов.
type Payment struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Months    int           `json:"months"`
	Status    PaymentStatus `json:"status"`
	PaidAt    time.Time     `json:"paid_at"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// WebhookEventType — тип события от платёжного провайдера.
type WebhookEventType string

const (
	EventPaymentCompleted WebhookEventType = "payment.completed"
	EventPaymentRefunded  WebhookEventType = "payment.refunded"
)

// WebhookEvent — полезная нагрузка вебхука провайдера.
type WebhookEvent struct {
	Type      WebhookEventType `json:"type" binding:"required"`
	PaymentID string           `json:"payment_id" binding:"required"`
	UserID    string           `json:"user_id"`
	Months    int              `json:"months"`
	PaidAt    time.Time        `json:"paid_at"`
}
