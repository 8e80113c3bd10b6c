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
	"outlivion-contest-backend/internal/features/contest/models"
	"outlivion-contest-backend/internal/features/contest/repository"
)

type ContestService interface {
	// GetActive возвращает (nil, nil), когда активного конкурса нет:
	// это штатное пустое состояние, а не ошибка.
	GetActive(ctx context.Context) (*models.Contest, error)
	GetByID(ctx context.Context, id string) (*models.Contest, error)
	FindCovering(ctx context.Context, at time.Time) (*models.Contest, error)
	Create(ctx context.Context, input *models.ContestCreate) (*models.Contest, error)
	// Update переписывает правила конкурса. Конкурс с привязками неизменяем:
	// rules_version не переписывается задним числом.
	Update(ctx context.Context, id string, input *models.ContestCreate) (*models.Contest, error)
	Deactivate(ctx context.Context, id string) error
}

type contestService struct {
	repo  repository.ContestRepository
	cache *cache.CacheService
	now   func() time.Time
}

func NewContestService(repo repository.ContestRepository, cacheService *cache.CacheService) ContestService {
	return &contestService{
		repo:  repo,
		cache: cacheService,
		now:   time.Now,
	}
}

func (s *contestService) GetActive(ctx context.Context) (*models.Contest, error) {
	if s.cache != nil {
		var cached models.Contest
		if err := s.cache.Get(ctx, cache.ActiveContestKey(), &cached); err == nil {
			// Проверяем окно еще раз: кэш мог пережить ends_at
			if cached.ActiveAt(s.now()) {
				return &cached, nil
			}
		}
	}

	contest, err := s.repo.GetActive(ctx, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active contest: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.ActiveContestKey(), contest, time.Minute); err != nil {
			logger.Warn().Err(err).Msg("failed to cache active contest")
		}
	}

	return contest, nil
}

func (s *contestService) GetByID(ctx context.Context, id string) (*models.Contest, error) {
	contest, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewContestNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get contest: %w", err)
	}

	return contest, nil
}

func (s *contestService) FindCovering(ctx context.Context, at time.Time) (*models.Contest, error) {
	contest, err := s.repo.FindCovering(ctx, at)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find covering contest: %w", err)
	}

	return contest, nil
}

func (s *contestService) Create(ctx context.Context, input *models.ContestCreate) (*models.Contest, error) {
	contest := &models.Contest{
		ID:                    uuid.New().String(),
		Title:                 input.Title,
		StartsAt:              input.StartsAt,
		EndsAt:                input.EndsAt,
		AttributionWindowDays: input.AttributionWindowDays,
		RulesVersion:          input.RulesVersion,
		IsActive:              true,
		CreatedAt:             s.now(),
		UpdatedAt:             s.now(),
	}

	if err := contest.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid contest definition")
	}

	if err := s.repo.Create(ctx, contest); err != nil {
		return nil, fmt.Errorf("failed to create contest: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, cache.ActiveContestKey())
	}

	logger.Info().
		Str("contest_id", contest.ID).
		Str("rules_version", contest.RulesVersion).
		Time("starts_at", contest.StartsAt).
		Time("ends_at", contest.EndsAt).
		Msg("contest created")

	return contest, nil
}

func (s *contestService) Update(ctx context.Context, id string, input *models.ContestCreate) (*models.Contest, error) {
	contest, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	hasEvents, err := s.repo.HasRefEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check ref events: %w", err)
	}
	if hasEvents {
		return nil, apperrors.Wrap(models.ErrContestImmutable, apperrors.ErrCodeContestImmutable, "contest already has referral events")
	}

	contest.Title = input.Title
	contest.StartsAt = input.StartsAt
	contest.EndsAt = input.EndsAt
	contest.AttributionWindowDays = input.AttributionWindowDays
	contest.RulesVersion = input.RulesVersion
	contest.UpdatedAt = s.now()

	if err := contest.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid contest definition")
	}

	if err := s.repo.Update(ctx, contest); err != nil {
		return nil, fmt.Errorf("failed to update contest: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, cache.ActiveContestKey())
	}

	logger.Info().
		Str("contest_id", contest.ID).
		Str("rules_version", contest.RulesVersion).
		Msg("contest updated")

	return contest, nil
}

func (s *contestService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewContestNotFoundError(id)
		}
		return fmt.Errorf("failed to deactivate contest: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, cache.ActiveContestKey())
	}

	logger.Info().Str("contest_id", id).Msg("contest deactivated")

	return nil
}
