package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"outlivion-contest-backend/internal/features/referral/models"
	"outlivion-contest-backend/internal/features/referral/repository"
)

type Repository struct {
	db *sql.DB
}

// NewPostgresRepository реализует RefEventRepository, TicketLedgerRepository
// и QualificationTx поверх одной базы.
func NewPostgresRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var (
	_ repository.RefEventRepository     = (*Repository)(nil)
	_ repository.TicketLedgerRepository = (*Repository)(nil)
	_ repository.QualificationTx        = (*Repository)(nil)
)

const eventColumns = "id, contest_id, referrer_user_id, invitee_tg_id, invitee_user_id, bound_at, source, status, status_reason, qualified_at"

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

func (r *Repository) Create(ctx context.Context, event *models.RefEvent) error {
	query := `
		INSERT INTO ref_events (id, contest_id, referrer_user_id, invitee_tg_id, invitee_user_id, bound_at, source, status, status_reason, qualified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var reason sql.NullString
	if event.StatusReason != models.ReasonNone {
		reason = sql.NullString{String: string(event.StatusReason), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.ContestID, event.ReferrerUserID, event.InviteeTgID,
		event.InviteeUserID, event.BoundAt, event.Source, event.Status,
		reason, event.QualifiedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Частичный уникальный индекс по (contest_id, invitee_tg_id)
			// для не-blocked событий: первое касание уже записано.
			return repository.ErrStaleEvent
		}
		return fmt.Errorf("failed to create ref event: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*models.RefEvent, error) {
	query := "SELECT " + eventColumns + " FROM ref_events WHERE id = $1"
	return r.scanEvent(r.db.QueryRowContext(ctx, query, id))
}

func (r *Repository) GetActiveByInviteeTg(ctx context.Context, contestID string, inviteeTgID int64) (*models.RefEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ref_events
		WHERE contest_id = $1 AND invitee_tg_id = $2 AND status != 'blocked'
		LIMIT 1
	`

	return r.scanEvent(r.db.QueryRowContext(ctx, query, contestID, inviteeTgID))
}

func (r *Repository) GetBoundByInvitee(ctx context.Context, contestID, inviteeUserID string, inviteeTgID int64) (*models.RefEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ref_events
		WHERE contest_id = $1 AND status = 'bound'
		  AND (invitee_user_id = $2 OR invitee_tg_id = $3)
		LIMIT 1
	`

	return r.scanEvent(r.db.QueryRowContext(ctx, query, contestID, inviteeUserID, inviteeTgID))
}

func (r *Repository) ListByReferrer(ctx context.Context, contestID, referrerUserID string, limit int) ([]*models.RefEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ref_events
		WHERE contest_id = $1 AND referrer_user_id = $2
		ORDER BY bound_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, contestID, referrerUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ref events: %w", err)
	}
	defer rows.Close()

	var events []*models.RefEvent
	for rows.Next() {
		event, err := r.scanEventRows(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

func (r *Repository) CountByReferrer(ctx context.Context, contestID, referrerUserID string) (map[models.RefEventStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM ref_events
		WHERE contest_id = $1 AND referrer_user_id = $2
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, contestID, referrerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to count ref events: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RefEventStatus]int)
	for rows.Next() {
		var status models.RefEventStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

func (r *Repository) MarkNotQualified(ctx context.Context, eventID string, reason models.StatusReason) error {
	// Guard по статусу в SQL: переход возможен только из bound
	query := `
		UPDATE ref_events
		SET status = 'not_qualified', status_reason = $2
		WHERE id = $1 AND status = 'bound'
	`

	res, err := r.db.ExecContext(ctx, query, eventID, string(reason))
	if err != nil {
		return fmt.Errorf("failed to mark ref event not qualified: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return repository.ErrStaleEvent
	}

	return nil
}

func (r *Repository) SetInviteeUserID(ctx context.Context, eventID, inviteeUserID string) error {
	query := "UPDATE ref_events SET invitee_user_id = $2 WHERE id = $1 AND invitee_user_id IS NULL"

	if _, err := r.db.ExecContext(ctx, query, eventID, inviteeUserID); err != nil {
		return fmt.Errorf("failed to set invitee user id: %w", err)
	}

	return nil
}

func (r *Repository) Append(ctx context.Context, entry *models.TicketLedgerEntry) error {
	return appendEntry(ctx, r.db, entry)
}

func (r *Repository) ExistsForPayment(ctx context.Context, paymentID string, reason models.LedgerReason) (bool, error) {
	query := "SELECT EXISTS (SELECT 1 FROM ticket_ledger WHERE payment_id = $1 AND reason = $2)"

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, paymentID, string(reason)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check ledger entry: %w", err)
	}

	return exists, nil
}

func (r *Repository) SumByUser(ctx context.Context, contestID, userID string) (int, error) {
	query := "SELECT COALESCE(SUM(delta), 0) FROM ticket_ledger WHERE contest_id = $1 AND user_id = $2"

	var total int
	if err := r.db.QueryRowContext(ctx, query, contestID, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum ledger deltas: %w", err)
	}

	return total, nil
}

func (r *Repository) OutstandingForPayment(ctx context.Context, paymentID string) (int, error) {
	// REFUND-записи уже с отрицательной дельтой, поэтому остаток — простая сумма
	query := "SELECT COALESCE(SUM(delta), 0) FROM ticket_ledger WHERE payment_id = $1 AND reason IN ('INVITEE_PAYMENT', 'REFUND')"

	var outstanding int
	if err := r.db.QueryRowContext(ctx, query, paymentID).Scan(&outstanding); err != nil {
		return 0, fmt.Errorf("failed to sum outstanding deltas: %w", err)
	}

	return outstanding, nil
}

func (r *Repository) ListByPayment(ctx context.Context, paymentID string) ([]*models.TicketLedgerEntry, error) {
	query := `
		SELECT id, contest_id, user_id, invitee_user_id, payment_id, delta, reason, created_at
		FROM ticket_ledger
		WHERE payment_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries by payment: %w", err)
	}
	defer rows.Close()

	var entries []*models.TicketLedgerEntry
	for rows.Next() {
		entry := &models.TicketLedgerEntry{}
		if err := rows.Scan(&entry.ID, &entry.ContestID, &entry.UserID, &entry.InviteeUserID,
			&entry.PaymentID, &entry.Delta, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (r *Repository) ListByUser(ctx context.Context, contestID, userID string) ([]*models.TicketLedgerEntry, error) {
	query := `
		SELECT id, contest_id, user_id, invitee_user_id, payment_id, delta, reason, created_at
		FROM ticket_ledger
		WHERE contest_id = $1 AND user_id = $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, contestID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.TicketLedgerEntry
	for rows.Next() {
		entry := &models.TicketLedgerEntry{}
		if err := rows.Scan(&entry.ID, &entry.ContestID, &entry.UserID, &entry.InviteeUserID,
			&entry.PaymentID, &entry.Delta, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (r *Repository) SumByInvitee(ctx context.Context, contestID, userID string) (map[string]int, error) {
	query := `
		SELECT invitee_user_id, COALESCE(SUM(delta), 0)
		FROM ticket_ledger
		WHERE contest_id = $1 AND user_id = $2
		GROUP BY invitee_user_id
	`

	rows, err := r.db.QueryContext(ctx, query, contestID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger by invitee: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int)
	for rows.Next() {
		var inviteeID string
		var total int
		if err := rows.Scan(&inviteeID, &total); err != nil {
			return nil, fmt.Errorf("failed to scan invitee sum: %w", err)
		}
		sums[inviteeID] = total
	}

	return sums, rows.Err()
}

// QualifyAndCredit переводит событие bound→qualified и начисляет билеты
// одной транзакцией. Падение между двумя записями невозможно: либо обе, либо ни одной.
func (r *Repository) QualifyAndCredit(ctx context.Context, eventID string, qualifiedAt time.Time, entry *models.TicketLedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE ref_events
		SET status = 'qualified', status_reason = NULL, qualified_at = $2, invitee_user_id = COALESCE(invitee_user_id, $3)
		WHERE id = $1 AND status = 'bound'
	`, eventID, qualifiedAt, entry.InviteeUserID)
	if err != nil {
		return fmt.Errorf("failed to qualify ref event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return repository.ErrStaleEvent
	}

	if err := appendEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit qualification: %w", err)
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func appendEntry(ctx context.Context, db execer, entry *models.TicketLedgerEntry) error {
	query := `
		INSERT INTO ticket_ledger (id, contest_id, user_id, invitee_user_id, payment_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := db.ExecContext(ctx, query,
		entry.ID, entry.ContestID, entry.UserID, entry.InviteeUserID,
		entry.PaymentID, entry.Delta, string(entry.Reason), entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Уникальный индекс (payment_id, reason) для INVITEE_PAYMENT:
			// повторная доставка вебхука
			return repository.ErrDuplicatePayment
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

func (r *Repository) scanEvent(row *sql.Row) (*models.RefEvent, error) {
	event := &models.RefEvent{}
	var reason sql.NullString
	err := row.Scan(&event.ID, &event.ContestID, &event.ReferrerUserID, &event.InviteeTgID,
		&event.InviteeUserID, &event.BoundAt, &event.Source, &event.Status,
		&reason, &event.QualifiedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan ref event: %w", err)
	}

	if reason.Valid {
		event.StatusReason = models.StatusReason(reason.String)
	}

	return event, nil
}

func (r *Repository) scanEventRows(rows *sql.Rows) (*models.RefEvent, error) {
	event := &models.RefEvent{}
	var reason sql.NullString
	err := rows.Scan(&event.ID, &event.ContestID, &event.ReferrerUserID, &event.InviteeTgID,
		&event.InviteeUserID, &event.BoundAt, &event.Source, &event.Status,
		&reason, &event.QualifiedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ref event: %w", err)
	}

	if reason.Valid {
		event.StatusReason = models.StatusReason(reason.String)
	}

	return event, nil
}
