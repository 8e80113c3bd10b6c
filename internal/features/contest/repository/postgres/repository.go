package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"outlivion-contest-backend/internal/features/contest/models"
	"outlivion-contest-backend/internal/features/contest/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.ContestRepository {
	return &postgresRepository{db: db}
}

const contestColumns = "id, title, starts_at, ends_at, attribution_window_days, rules_version, is_active, created_at, updated_at"

func (r *postgresRepository) Create(ctx context.Context, contest *models.Contest) error {
	query := `
		INSERT INTO contests (id, title, starts_at, ends_at, attribution_window_days, rules_version, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		contest.ID, contest.Title, contest.StartsAt, contest.EndsAt,
		contest.AttributionWindowDays, contest.RulesVersion, contest.IsActive,
		contest.CreatedAt, contest.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contest: %w", err)
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*models.Contest, error) {
	query := "SELECT " + contestColumns + " FROM contests WHERE id = $1"
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresRepository) GetActive(ctx context.Context, now time.Time) (*models.Contest, error) {
	query := `
		SELECT ` + contestColumns + `
		FROM contests
		WHERE is_active = TRUE AND starts_at <= $1 AND ends_at >= $1
		ORDER BY starts_at DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, now))
}

func (r *postgresRepository) FindCovering(ctx context.Context, at time.Time) (*models.Contest, error) {
	// Окно покрытия расширено на окно атрибуции: платеж может прийти
	// после ends_at, но все еще относиться к привязке внутри конкурса.
	query := `
		SELECT ` + contestColumns + `
		FROM contests
		WHERE starts_at <= $1
		  AND ends_at + attribution_window_days * INTERVAL '1 day' >= $1
		ORDER BY starts_at DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, at))
}

func (r *postgresRepository) Update(ctx context.Context, contest *models.Contest) error {
	query := `
		UPDATE contests
		SET title = $2, starts_at = $3, ends_at = $4, attribution_window_days = $5,
		    rules_version = $6, updated_at = $7
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		contest.ID, contest.Title, contest.StartsAt, contest.EndsAt,
		contest.AttributionWindowDays, contest.RulesVersion, contest.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update contest: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *postgresRepository) Deactivate(ctx context.Context, id string) error {
	query := "UPDATE contests SET is_active = FALSE, updated_at = NOW() WHERE id = $1"

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate contest: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *postgresRepository) HasRefEvents(ctx context.Context, id string) (bool, error) {
	query := "SELECT EXISTS (SELECT 1 FROM ref_events WHERE contest_id = $1)"

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check ref events: %w", err)
	}

	return exists, nil
}

func (r *postgresRepository) scanOne(row *sql.Row) (*models.Contest, error) {
	contest := &models.Contest{}
	err := row.Scan(&contest.ID, &contest.Title, &contest.StartsAt, &contest.EndsAt,
		&contest.AttributionWindowDays, &contest.RulesVersion, &contest.IsActive,
		&contest.CreatedAt, &contest.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan contest: %w", err)
	}

	return contest, nil
}
