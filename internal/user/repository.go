package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no user exists for the given handle.
var ErrNotFound = errors.New("user not found")

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	SetPIN(ctx context.Context, id string, hash []byte, verified bool) error
	SetPINVerified(ctx context.Context, id string, verified bool) error
	SetTwoFactor(ctx context.Context, id string, enabled bool) error
	SetNotificationPref(ctx context.Context, id, category string, enabled bool) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed user repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, phone, pin_hash, pin_verified, two_factor,
    notify_transactions, notify_security, notify_marketing, created_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		userID, user.Phone, user.PINHash, user.PINVerified, user.TwoFactor,
		user.NotifyTransactions, user.NotifySecurity, user.NotifyMarketing, user.CreatedAt.UTC())
	return err
}

// FindByPhone fetches a user by their phone number handle.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	return scanUser(row)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// SetPIN stores a new PIN hash and verification flag together.
func (r *PostgresRepository) SetPIN(ctx context.Context, id string, hash []byte, verified bool) error {
	return r.update(ctx, id, `UPDATE users SET pin_hash = $1, pin_verified = $2 WHERE id = $3`, hash, verified)
}

// SetPINVerified flips the verification flag.
func (r *PostgresRepository) SetPINVerified(ctx context.Context, id string, verified bool) error {
	return r.update(ctx, id, `UPDATE users SET pin_verified = $1 WHERE id = $2`, verified)
}

// SetTwoFactor toggles the second factor requirement.
func (r *PostgresRepository) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	return r.update(ctx, id, `UPDATE users SET two_factor = $1 WHERE id = $2`, enabled)
}

// SetNotificationPref records a per-category notification opt-in.
func (r *PostgresRepository) SetNotificationPref(ctx context.Context, id, category string, enabled bool) error {
	var column string
	switch category {
	case CategoryTransactions:
		column = "notify_transactions"
	case CategorySecurity:
		column = "notify_security"
	case CategoryMarketing:
		column = "notify_marketing"
	default:
		return fmt.Errorf("unknown notification category %q", category)
	}
	return r.update(ctx, id, `UPDATE users SET `+column+` = $1 WHERE id = $2`, enabled)
}

func (r *PostgresRepository) update(ctx context.Context, id, query string, args ...any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	args = append(args, userID)
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		u         User
	)
	err := row.Scan(&id, &u.Phone, &u.PINHash, &u.PINVerified, &u.TwoFactor,
		&u.NotifyTransactions, &u.NotifySecurity, &u.NotifyMarketing, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.ID = id.String()
	u.CreatedAt = createdAt.UTC()
	return u, nil
}
