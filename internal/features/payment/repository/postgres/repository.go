package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"outlivion-contest-backend/internal/features/payment/models"
	"outlivion-contest-backend/internal/features/payment/repository"
)

type Repository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ repository.PaymentRepository = (*Repository)(nil)

func (r *Repository) Upsert(ctx context.Context, payment *models.Payment) error {
	// При конфликте дозаполняем детали, но статус не трогаем: если ряд
	// уже помечен refunded опередившим возвратом, completed его не перепишет
	query := `
		INSERT INTO payments (id, user_id, months, status, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			months = EXCLUDED.months,
			paid_at = EXCLUDED.paid_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID, payment.UserID, payment.Months, string(payment.Status),
		payment.PaidAt, payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	query := "SELECT id, user_id, months, status, paid_at, created_at, updated_at FROM payments WHERE id = $1"

	payment := &models.Payment{}
	var userID sql.NullString
	var months sql.NullInt64
	var paidAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(&payment.ID, &userID,
		&months, &payment.Status, &paidAt, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	payment.UserID = userID.String
	payment.Months = int(months.Int64)
	payment.PaidAt = paidAt.Time

	return payment, nil
}

func (r *Repository) MarkRefunded(ctx context.Context, id string) error {
	// Возврат может опередить сигнал о платеже: тогда пишем ряд-заглушку,
	// детали дозаполнит Upsert при доставке payment.completed
	query := `
		INSERT INTO payments (id, status, created_at, updated_at)
		VALUES ($1, 'refunded', NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET status = 'refunded', updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark payment refunded: %w", err)
	}

	return nil
}

func (r *Repository) HasCompletedBefore(ctx context.Context, userID string, before time.Time) (bool, error) {
	query := "SELECT EXISTS (SELECT 1 FROM payments WHERE user_id = $1 AND status = 'completed' AND paid_at < $2)"

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, before).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check prior payments: %w", err)
	}

	return exists, nil
}
