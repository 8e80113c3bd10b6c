package service

import (
	"context"
	"fmt"
	"time"

	apperrors "outlivion-contest-backend/internal/common/errors"
	"outlivion-contest-backend/internal/common/logger"
	"outlivion-contest-backend/internal/features/payment/models"
	"outlivion-contest-backend/internal/features/payment/repository"
	referralservice "outlivion-contest-backend/internal/features/referral/service"
)

// PaymentEventService принимает платёжные сигналы из вебхука и из
// Redis Stream и прогоняет их через движок квалификации. Оба входа
// доставляют at-least-once, поэтому обработка идемпотентна по payment_id.
type PaymentEventService interface {
	Process(ctx context.Context, event *models.WebhookEvent) error
}

type paymentEventService struct {
	payments      repository.PaymentRepository
	qualification referralservice.QualificationService
	now           func() time.Time
}

func NewPaymentEventService(payments repository.PaymentRepository, qualification referralservice.QualificationService) PaymentEventService {
	return &paymentEventService{
		payments:      payments,
		qualification: qualification,
		now:           time.Now,
	}
}

func (s *paymentEventService) Process(ctx context.Context, event *models.WebhookEvent) error {
	switch event.Type {
	case models.EventPaymentCompleted:
		return s.processCompleted(ctx, event)
	case models.EventPaymentRefunded:
		return s.processRefunded(ctx, event)
	default:
		return apperrors.NewValidationError("type", fmt.Sprintf("unknown event type: %s", event.Type))
	}
}

func (s *paymentEventService) processCompleted(ctx context.Context, event *models.WebhookEvent) error {
	if event.UserID == "" {
		return apperrors.NewValidationError("user_id", "required for payment.completed")
	}
	if event.Months <= 0 {
		return apperrors.NewValidationError("months", "must be positive")
	}
	if event.PaidAt.IsZero() {
		return apperrors.NewValidationError("paid_at", "required for payment.completed")
	}

	payment := &models.Payment{
		ID:        event.PaymentID,
		UserID:    event.UserID,
		Months:    event.Months,
		Status:    models.PaymentStatusCompleted,
		PaidAt:    event.PaidAt,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}

	if err := s.payments.Upsert(ctx, payment); err != nil {
		return err
	}

	return s.qualification.OnPaymentCompleted(ctx, event.UserID, event.PaymentID, event.Months, event.PaidAt)
}

func (s *paymentEventService) processRefunded(ctx context.Context, event *models.WebhookEvent) error {
	if err := s.payments.MarkRefunded(ctx, event.PaymentID); err != nil {
		return err
	}

	if err := s.qualification.OnPaymentRefunded(ctx, event.PaymentID); err != nil {
		return err
	}

	logger.Debug().Str("payment_id", event.PaymentID).Msg("refund signal processed")
	return nil
}
