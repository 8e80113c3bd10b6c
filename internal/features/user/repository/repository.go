package repository

import (
	"context"
	"errors"

	"outlivion-contest-backend/internal/features/user/models"
)

var (
	ErrNotFound = errors.New("user not found")
	// ErrAlreadyExists — конкурентная вставка выиграла гонку по tg_id.
	ErrAlreadyExists = errors.New("user already exists")
)

type UserRepository interface {
	// Create возвращает ErrAlreadyExists, если tg_id уже занят.
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByTgID(ctx context.Context, tgID int64) (*models.User, error)
	GetByRefCode(ctx context.Context, code string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}
