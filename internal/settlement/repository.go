package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/textpesa/textpesa/internal/notify"
)

// Repository persists settlement records. Both write methods take an
// optional notification so the record and its alert commit together.
type Repository interface {
	// Record appends a transaction and, when n is non-nil, enqueues its
	// notification in the same database transaction.
	Record(ctx context.Context, tx Transaction, n *notify.Notification) error
	// RecordIncoming is Record with idempotency on the network signature:
	// a duplicate signature inserts nothing, including the notification.
	// The boolean reports whether the row was actually inserted.
	RecordIncoming(ctx context.Context, tx Transaction, n *notify.Notification) (bool, error)
	ListByWallet(ctx context.Context, walletID string, limit int) ([]Transaction, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed settlement repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const insertTransaction = `INSERT INTO transactions
    (id, wallet_id, direction, asset_id, amount, counterparty, signature, status, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const insertNotification = `INSERT INTO notification_queue
    (id, user_id, category, body, sent, attempts, max_attempts, next_attempt_at, created_at)
    VALUES ($1, $2, $3, $4, false, 0, $5, $6, $7)`

func (r *PostgresRepository) Record(ctx context.Context, t Transaction, n *notify.Notification) error {
	dbtx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer dbtx.Rollback(ctx)

	if _, err := dbtx.Exec(ctx, insertTransaction, transactionArgs(t)...); err != nil {
		return err
	}
	if n != nil {
		if _, err := dbtx.Exec(ctx, insertNotification, notificationArgs(*n)...); err != nil {
			return err
		}
	}
	return dbtx.Commit(ctx)
}

func (r *PostgresRepository) RecordIncoming(ctx context.Context, t Transaction, n *notify.Notification) (bool, error) {
	dbtx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer dbtx.Rollback(ctx)

	cmd, err := dbtx.Exec(ctx, insertTransaction+` ON CONFLICT (signature) DO NOTHING`,
		transactionArgs(t)...)
	if err != nil {
		return false, err
	}
	inserted := cmd.RowsAffected() > 0
	if inserted && n != nil {
		if _, err := dbtx.Exec(ctx, insertNotification, notificationArgs(*n)...); err != nil {
			return false, err
		}
	}
	return inserted, dbtx.Commit(ctx)
}

func (r *PostgresRepository) ListByWallet(ctx context.Context, walletID string, limit int) ([]Transaction, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, wallet_id, direction, asset_id, amount, counterparty, signature, status, created_at
        FROM transactions WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			txID      uuid.UUID
			wID       uuid.UUID
			amount    decimal.Decimal
			sig       *string
			createdAt time.Time
			t         Transaction
		)
		if err := rows.Scan(&txID, &wID, &t.Direction, &t.AssetID, &amount,
			&t.Counterparty, &sig, &t.Status, &createdAt); err != nil {
			return nil, err
		}
		t.ID = txID.String()
		t.WalletID = wID.String()
		t.Amount = amount
		if sig != nil {
			t.Signature = *sig
		}
		t.CreatedAt = createdAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func transactionArgs(t Transaction) []any {
	var sig any
	if t.Signature != "" {
		sig = t.Signature
	}
	return []any{
		uuid.MustParse(t.ID), uuid.MustParse(t.WalletID), t.Direction, t.AssetID,
		t.Amount, t.Counterparty, sig, t.Status, t.CreatedAt.UTC(),
	}
}

func notificationArgs(n notify.Notification) []any {
	return []any{
		uuid.MustParse(n.ID), uuid.MustParse(n.UserID), n.Category, n.Body,
		n.MaxAttempts, n.NextAttempt.UTC(), n.CreatedAt.UTC(),
	}
}
