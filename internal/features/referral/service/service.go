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
	paymentrepo "outlivion-contest-backend/internal/features/payment/repository"
	"outlivion-contest-backend/internal/features/referral/models"
	"outlivion-contest-backend/internal/features/referral/repository"
	usermodels "outlivion-contest-backend/internal/features/user/models"
	userservice "outlivion-contest-backend/internal/features/user/service"
)

type referralService struct {
	events      repository.RefEventRepository
	ledger      repository.TicketLedgerRepository
	contests    contestservice.ContestService
	users       userservice.UserService
	payments    paymentrepo.PaymentRepository
	cache       *cache.CacheService
	locks       *keyedMutex
	botUsername string
	summaryTTL  time.Duration
	now         func() time.Time
}

func NewReferralService(
	events repository.RefEventRepository,
	ledger repository.TicketLedgerRepository,
	contests contestservice.ContestService,
	users userservice.UserService,
	payments paymentrepo.PaymentRepository,
	cacheService *cache.CacheService,
	botUsername string,
	summaryTTL time.Duration,
) ReferralService {
	return &referralService{
		events:      events,
		ledger:      ledger,
		contests:    contests,
		users:       users,
		payments:    payments,
		cache:       cacheService,
		locks:       newKeyedMutex(),
		botUsername: botUsername,
		summaryTTL:  summaryTTL,
		now:         time.Now,
	}
}

func bindKey(contestID string, inviteeTgID int64) string {
	return fmt.Sprintf("%s:%d", contestID, inviteeTgID)
}

// RefLink строит реферальную ссылку из кода пользователя.
// Ссылка детерминирована для пользователя и не зависит от конкурса.
func RefLink(botUsername, refCode string) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%s", botUsername, refCode)
}

func (s *referralService) BindInvitee(ctx context.Context, contestID, referrerUserID string, inviteeTgID int64, source models.RefEventSource) (*models.RefEvent, error) {
	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !contest.ActiveAt(s.now()) {
		return nil, apperrors.New(apperrors.ErrCodeContestInactive, "contest is not active")
	}

	referrer, err := s.users.GetByID(ctx, referrerUserID)
	if err != nil {
		if errors.Is(err, userservice.ErrUserNotFound) {
			return nil, apperrors.NewUserNotFoundError(referrerUserID)
		}
		return nil, err
	}

	// Резолвим приглашенного до критической секции; он мог еще не
	// зарегистрироваться — тогда invitee_user_id заполнится позже.
	var invitee *usermodels.User
	if u, err := s.users.GetByTgID(ctx, inviteeTgID); err == nil {
		invitee = u
	} else if !errors.Is(err, userservice.ErrUserNotFound) {
		return nil, err
	}

	unlock := s.locks.Lock(bindKey(contestID, inviteeTgID))
	defer unlock()

	// Первое касание выигрывает: существующее не-blocked событие
	// возвращается как есть, реферер не переписывается.
	existing, err := s.events.GetActiveByInviteeTg(ctx, contestID, inviteeTgID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	boundAt := s.now()
	event := &models.RefEvent{
		ID:             uuid.New().String(),
		ContestID:      contestID,
		ReferrerUserID: referrer.ID,
		InviteeTgID:    inviteeTgID,
		BoundAt:        boundAt,
		Source:         source,
		Status:         models.StatusBound,
	}
	if invitee != nil {
		event.InviteeUserID = &invitee.ID
	}

	switch {
	case invitee != nil && invitee.ID == referrer.ID:
		event.Status = models.StatusBlocked
		event.StatusReason = models.ReasonSelfReferral
	case invitee != nil:
		hasPrior, err := s.payments.HasCompletedBefore(ctx, invitee.ID, boundAt)
		if err != nil {
			return nil, fmt.Errorf("failed to check prior payments: %w", err)
		}
		if hasPrior {
			event.Status = models.StatusBlocked
			event.StatusReason = models.ReasonExistingPayer
		}
	}

	if err := s.events.Create(ctx, event); err != nil {
		if errors.Is(err, repository.ErrStaleEvent) {
			// Конкурентная привязка успела раньше — возвращаем её
			return s.events.GetActiveByInviteeTg(ctx, contestID, inviteeTgID)
		}
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.InvalidateReferral(ctx, contestID, referrer.ID)
	}

	logger.Info().
		Str("contest_id", contestID).
		Str("referrer_user_id", referrer.ID).
		Int64("invitee_tg_id", inviteeTgID).
		Str("status", string(event.Status)).
		Str("status_reason", string(event.StatusReason)).
		Msg("invitee bound")

	return event, nil
}

func (s *referralService) GetSummary(ctx context.Context, contestID, userID string) (*models.ContestSummary, error) {
	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userservice.ErrUserNotFound) {
			return nil, apperrors.NewUserNotFoundError(userID)
		}
		return nil, err
	}

	compute := func() (*models.ContestSummary, error) {
		ticketsTotal, err := s.ledger.SumByUser(ctx, contestID, userID)
		if err != nil {
			return nil, err
		}

		counts, err := s.events.CountByReferrer(ctx, contestID, userID)
		if err != nil {
			return nil, err
		}

		invited := 0
		for _, n := range counts {
			invited += n
		}

		return &models.ContestSummary{
			Contest:        contest,
			RefLink:        RefLink(s.botUsername, user.RefCode),
			TicketsTotal:   ticketsTotal,
			InvitedTotal:   invited,
			QualifiedTotal: counts[models.StatusQualified],
			PendingTotal:   counts[models.StatusBound],
		}, nil
	}

	if s.cache == nil {
		return compute()
	}

	summary := &models.ContestSummary{}
	err = s.cache.GetOrSet(ctx, cache.SummaryKey(contestID, userID), summary, s.summaryTTL, func() (interface{}, error) {
		return compute()
	})
	if err != nil {
		// Кэш не является источником правды: при его отказе читаем напрямую
		logger.Warn().Err(err).Msg("summary cache unavailable, reading from store")
		return compute()
	}

	return summary, nil
}

func (s *referralService) GetFriends(ctx context.Context, contestID, userID string, limit int) ([]*models.ReferralFriend, error) {
	events, err := s.events.ListByReferrer(ctx, contestID, userID, limit)
	if err != nil {
		return nil, err
	}

	ticketSums, err := s.ledger.SumByInvitee(ctx, contestID, userID)
	if err != nil {
		return nil, err
	}

	friends := make([]*models.ReferralFriend, 0, len(events))
	for _, event := range events {
		friend := &models.ReferralFriend{
			ID:      event.ID,
			Status:  event.Status,
			BoundAt: event.BoundAt,
		}

		if event.StatusReason != models.ReasonNone {
			reason := string(event.StatusReason)
			friend.StatusReason = &reason
		}

		if event.InviteeUserID != nil {
			friend.TicketsFromFriendTotal = ticketSums[*event.InviteeUserID]
			if invitee, err := s.users.GetByID(ctx, *event.InviteeUserID); err == nil {
				name := invitee.DisplayName()
				friend.Name = &name
				if invitee.Username != "" {
					username := invitee.Username
					friend.TgUsername = &username
				}
			}
		}

		friends = append(friends, friend)
	}

	return friends, nil
}

func (s *referralService) GetTickets(ctx context.Context, contestID, userID string) ([]*models.TicketHistoryEntry, error) {
	entries, err := s.ledger.ListByUser(ctx, contestID, userID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]*string)
	history := make([]*models.TicketHistoryEntry, 0, len(entries))
	for _, entry := range entries {
		item := &models.TicketHistoryEntry{
			ID:        entry.ID,
			CreatedAt: entry.CreatedAt,
			Delta:     entry.Delta,
			Label:     models.LedgerLabel(entry.Reason),
		}

		if name, ok := names[entry.InviteeUserID]; ok {
			item.InviteeName = name
		} else {
			if invitee, err := s.users.GetByID(ctx, entry.InviteeUserID); err == nil {
				n := invitee.DisplayName()
				item.InviteeName = &n
			}
			names[entry.InviteeUserID] = item.InviteeName
		}

		history = append(history, item)
	}

	return history, nil
}
