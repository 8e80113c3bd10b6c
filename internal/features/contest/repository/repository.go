package repository

import (
	"context"
	"errors"
	"time"

	"outlivion-contest-backend/internal/features/contest/models"
)

var ErrNotFound = errors.New("contest not found")

type ContestRepository interface {
	Create(ctx context.Context, contest *models.Contest) error
	GetByID(ctx context.Context, id string) (*models.Contest, error)
	// GetActive возвращает конкурс, активный в момент now, или ErrNotFound.
	GetActive(ctx context.Context, now time.Time) (*models.Contest, error)
	// FindCovering возвращает конкурс, чье окно (с учетом атрибуции) покрывает at.
	FindCovering(ctx context.Context, at time.Time) (*models.Contest, error)
	Update(ctx context.Context, contest *models.Contest) error
	Deactivate(ctx context.Context, id string) error
	// HasRefEvents сообщает, есть ли у конкурса привязки (такой конкурс неизменяем).
	HasRefEvents(ctx context.Context, id string) (bool, error)
}
