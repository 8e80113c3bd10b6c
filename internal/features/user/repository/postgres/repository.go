package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"outlivion-contest-backend/internal/features/user/models"
	"outlivion-contest-backend/internal/features/user/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.UserRepository {
	return &postgresRepository{db: db}
}

const userColumns = "id, tg_id, username, first_name, last_name, ref_code, status, created_at, updated_at"

func (r *postgresRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, tg_id, username, first_name, last_name, ref_code, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.TgID, user.Username, user.FirstName, user.LastName,
		user.RefCode, user.Status, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresRepository) GetByTgID(ctx context.Context, tgID int64) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE tg_id = $1"
	return r.scanOne(r.db.QueryRowContext(ctx, query, tgID))
}

func (r *postgresRepository) GetByRefCode(ctx context.Context, code string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE ref_code = $1"
	return r.scanOne(r.db.QueryRowContext(ctx, query, code))
}

func (r *postgresRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET username = $2, first_name = $3, last_name = $4, status = $5, updated_at = $6
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.FirstName, user.LastName, user.Status, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

func (r *postgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.TgID, &user.Username, &user.FirstName, &user.LastName,
		&user.RefCode, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return user, nil
}
