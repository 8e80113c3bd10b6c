package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outlivion-contest-backend/internal/common/cache"
	apperrors "outlivion-contest-backend/internal/common/errors"
	"outlivion-contest-backend/internal/common/logger"
	contestservice "outlivion-contest-backend/internal/features/contest/service"
	paymentmodels "outlivion-contest-backend/internal/features/payment/models"
	paymentrepo "outlivion-contest-backend/internal/features/payment/repository"
	"outlivion-contest-backend/internal/features/referral/models"
	"outlivion-contest-backend/internal/features/referral/repository"
	userservice "outlivion-contest-backend/internal/features/user/service"
)

type qualificationService struct {
	events   repository.RefEventRepository
	ledger   repository.TicketLedgerRepository
	tx       repository.QualificationTx
	contests contestservice.ContestService
	users    userservice.UserService
	payments paymentrepo.PaymentRepository
	cache    *cache.CacheService
	locks    *keyedMutex
	now      func() time.Time
}

func NewQualificationService(
	events repository.RefEventRepository,
	ledger repository.TicketLedgerRepository,
	tx repository.QualificationTx,
	contests contestservice.ContestService,
	users userservice.UserService,
	payments paymentrepo.PaymentRepository,
	cacheService *cache.CacheService,
) QualificationService {
	return &qualificationService{
		events:   events,
		ledger:   ledger,
		tx:       tx,
		contests: contests,
		users:    users,
		payments: payments,
		cache:    cacheService,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// OnPaymentCompleted решает судьбу bound-привязки приглашенного.
// Платеж в пределах окна атрибуции (граница включительно) квалифицирует
// событие и начисляет билеты; платеж после окна закрывает событие
// как not_qualified. Повторная доставка того же paymentID — no-op.
func (s *qualificationService) OnPaymentCompleted(ctx context.Context, inviteeUserID, paymentID string, months int, paidAt time.Time) error {
	if months <= 0 {
		return apperrors.NewValidationError("months", "must be positive")
	}

	// Ранний выход при повторной доставке вебхука
	exists, err := s.ledger.ExistsForPayment(ctx, paymentID, models.ReasonInviteePayment)
	if err != nil {
		return fmt.Errorf("failed to check payment idempotency: %w", err)
	}
	if exists {
		logger.Info().Str("payment_id", paymentID).Msg("duplicate payment signal ignored")
		return nil
	}

	// payment.refunded мог прийти раньше payment.completed:
	// возвращенный платеж билетов не дает
	if payment, err := s.payments.GetByID(ctx, paymentID); err == nil {
		if payment.Status == paymentmodels.PaymentStatusRefunded {
			logger.Info().Str("payment_id", paymentID).Msg("refunded payment cannot qualify referral")
			return nil
		}
	} else if !errors.Is(err, paymentrepo.ErrNotFound) {
		return fmt.Errorf("failed to load payment: %w", err)
	}

	contest, err := s.contests.FindCovering(ctx, paidAt)
	if err != nil {
		return err
	}
	if contest == nil {
		// Платеж вне окна любого конкурса — не атрибутируется
		return nil
	}

	// Внешние lookups завершаются до критической секции
	var inviteeTgID int64
	if invitee, err := s.users.GetByID(ctx, inviteeUserID); err == nil {
		inviteeTgID = invitee.TgID
	} else if !errors.Is(err, userservice.ErrUserNotFound) {
		return err
	}

	event, err := s.events.GetBoundByInvitee(ctx, contest.ID, inviteeUserID, inviteeTgID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Платеж не относится ни к одной привязке
			return nil
		}
		return err
	}

	unlock := s.locks.Lock(bindKey(contest.ID, event.InviteeTgID))
	defer unlock()

	// Перечитываем под локом: конкурентный сигнал мог изменить статус
	event, err = s.events.GetByID(ctx, event.ID)
	if err != nil {
		return err
	}
	if event.Status.IsTerminal() {
		return nil
	}

	deadline := contest.AttributionDeadline(event.BoundAt)
	if paidAt.After(deadline) {
		// Окно атрибуции истекло: терминальное решение, более поздние
		// платежи этого приглашенного событие не реанимируют
		if err := event.Transition(models.StatusNotQualified, models.ReasonAttrWindowExpired); err != nil {
			return nil
		}
		if event.InviteeUserID == nil && inviteeUserID != "" {
			// Сохраняем связь с аккаунтом и для несостоявшейся привязки
			if err := s.events.SetInviteeUserID(ctx, event.ID, inviteeUserID); err != nil {
				logger.Warn().Err(err).Str("ref_event_id", event.ID).Msg("failed to backfill invitee user id")
			}
		}
		if err := s.events.MarkNotQualified(ctx, event.ID, models.ReasonAttrWindowExpired); err != nil {
			if errors.Is(err, repository.ErrStaleEvent) {
				return nil
			}
			return err
		}

		s.invalidate(ctx, contest.ID, event.ReferrerUserID)

		logger.Info().
			Str("ref_event_id", event.ID).
			Str("payment_id", paymentID).
			Time("deadline", deadline).
			Time("paid_at", paidAt).
			Msg("attribution window expired")

		return nil
	}

	if err := event.Qualify(paidAt); err != nil {
		if errors.Is(err, models.ErrAlreadyQualified) || errors.Is(err, models.ErrInvalidTransition) {
			return nil
		}
		return err
	}

	entry := &models.TicketLedgerEntry{
		ID:            uuid.New().String(),
		ContestID:     contest.ID,
		UserID:        event.ReferrerUserID,
		InviteeUserID: inviteeUserID,
		PaymentID:     paymentID,
		Delta:         months,
		Reason:        models.ReasonInviteePayment,
		CreatedAt:     s.now(),
	}

	// Переход статуса и запись в ledger применяются одной транзакцией
	if err := s.tx.QualifyAndCredit(ctx, event.ID, paidAt, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicatePayment) || errors.Is(err, repository.ErrStaleEvent) {
			logger.Info().Str("payment_id", paymentID).Msg("qualification already applied")
			return nil
		}
		return fmt.Errorf("failed to qualify referral: %w", err)
	}

	s.invalidate(ctx, contest.ID, event.ReferrerUserID)

	logger.Info().
		Str("ref_event_id", event.ID).
		Str("payment_id", paymentID).
		Str("referrer_user_id", event.ReferrerUserID).
		Int("tickets", months).
		Msg("referral qualified, tickets credited")

	return nil
}

// OnPaymentRefunded компенсирует ранее начисленные билеты отрицательной
// дельтой. Статус события остается qualified: возврат влияет только на счет.
func (s *qualificationService) OnPaymentRefunded(ctx context.Context, paymentID string) error {
	unlock := s.locks.Lock("refund:" + paymentID)
	defer unlock()

	outstanding, err := s.ledger.OutstandingForPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("failed to compute outstanding tickets: %w", err)
	}

	entries, err := s.ledger.ListByPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("failed to load ledger entries: %w", err)
	}

	var credited *models.TicketLedgerEntry
	for _, entry := range entries {
		if entry.Reason == models.ReasonInviteePayment {
			credited = entry
			break
		}
	}

	if credited == nil || outstanding <= 0 {
		// Нечего компенсировать: билетов не было или возврат уже записан
		logger.Info().Str("payment_id", paymentID).Msg("refund signal is a no-op")
		return nil
	}

	reversal := &models.TicketLedgerEntry{
		ID:            uuid.New().String(),
		ContestID:     credited.ContestID,
		UserID:        credited.UserID,
		InviteeUserID: credited.InviteeUserID,
		PaymentID:     paymentID,
		Delta:         -outstanding,
		Reason:        models.ReasonRefund,
		CreatedAt:     s.now(),
	}

	if err := s.ledger.Append(ctx, reversal); err != nil {
		if errors.Is(err, repository.ErrDuplicatePayment) {
			logger.Info().Str("payment_id", paymentID).Msg("refund already recorded")
			return nil
		}
		return fmt.Errorf("failed to append refund entry: %w", err)
	}

	s.invalidate(ctx, credited.ContestID, credited.UserID)

	logger.Info().
		Str("payment_id", paymentID).
		Str("user_id", credited.UserID).
		Int("delta", reversal.Delta).
		Msg("tickets reversed after refund")

	return nil
}

func (s *qualificationService) invalidate(ctx context.Context, contestID, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateReferral(ctx, contestID, userID); err != nil {
		logger.Warn().Err(err).Str("contest_id", contestID).Str("user_id", userID).Msg("failed to invalidate referral cache")
	}
}
