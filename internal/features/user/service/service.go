package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/google/uuid"

	"outlivion-contest-backend/internal/features/user/models"
	"outlivion-contest-backend/internal/features/user/repository"
)

var ErrUserNotFound = errors.New("user not found")

type UserService interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByTgID(ctx context.Context, tgID int64) (*models.User, error)
	GetByRefCode(ctx context.Context, code string) (*models.User, error)
	GetOrCreateByTelegram(ctx context.Context, tgID int64, username, firstName, lastName string) (*models.User, error)
}

type userService struct {
	repo repository.UserRepository
}

func NewUserService(repo repository.UserRepository) UserService {
	return &userService{
		repo: repo,
	}
}

// RefCodeFor детерминированно выводит реферальный код из внутреннего ID.
// Код попадает в реферальную ссылку вида t.me/<bot>?start=ref_<code>.
func RefCodeFor(userID string) string {
	h := fnv.New64a()
	h.Write([]byte(userID))
	return strconv.FormatUint(h.Sum64(), 36)
}

func (s *userService) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

func (s *userService) GetByTgID(ctx context.Context, tgID int64) (*models.User, error) {
	user, err := s.repo.GetByTgID(ctx, tgID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

func (s *userService) GetByRefCode(ctx context.Context, code string) (*models.User, error) {
	user, err := s.repo.GetByRefCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

func (s *userService) GetOrCreateByTelegram(ctx context.Context, tgID int64, username, firstName, lastName string) (*models.User, error) {
	user, err := s.repo.GetByTgID(ctx, tgID)
	if err == nil {
		if user.Username != username || user.FirstName != firstName || user.LastName != lastName {
			user.Username = username
			user.FirstName = firstName
			user.LastName = lastName
			user.UpdatedAt = time.Now()
			if err := s.repo.Update(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil
	}

	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	id := uuid.New().String()
	newUser := &models.User{
		ID:        id,
		TgID:      tgID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		RefCode:   RefCodeFor(id),
		Status:    "active",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.repo.Create(ctx, newUser); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			// Параллельный первый запрос успел вставить этот tg_id
			return s.repo.GetByTgID(ctx, tgID)
		}
		return nil, err
	}

	return newUser, nil
}
