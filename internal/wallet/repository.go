package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no matching wallet exists.
var ErrNotFound = errors.New("wallet not found")

// Repository persists wallet metadata and encrypted key material.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	ActiveByUser(ctx context.Context, userID string) (Wallet, error)
	ByAddress(ctx context.Context, address string) (Wallet, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(wallet.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, user_id, address, encrypted_key, is_active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		walletID, userID, wallet.Address, wallet.EncryptedKey, wallet.Active, wallet.CreatedAt.UTC())
	return err
}

// ActiveByUser fetches the user's single active wallet.
func (r *PostgresRepository) ActiveByUser(ctx context.Context, userID string) (Wallet, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, user_id, address, encrypted_key, is_active, created_at
        FROM wallets WHERE user_id = $1 AND is_active`, id)
	return scanWallet(row)
}

// ByAddress fetches a wallet by its on-chain address. Used by the inbound
// recorder to decide whether an observed transfer belongs to this system.
func (r *PostgresRepository) ByAddress(ctx context.Context, address string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT id, user_id, address, encrypted_key, is_active, created_at
        FROM wallets WHERE lower(address) = lower($1)`, address)
	return scanWallet(row)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		id        uuid.UUID
		userID    uuid.UUID
		createdAt time.Time
		w         Wallet
	)
	if err := row.Scan(&id, &userID, &w.Address, &w.EncryptedKey, &w.Active, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.UserID = userID.String()
	w.CreatedAt = createdAt.UTC()
	return w, nil
}
