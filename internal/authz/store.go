package authz

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCodeNotFound indicates no live verification code matched.
var ErrCodeNotFound = errors.New("verification code not found")

// CodeStore persists verification codes. Replace and ConsumeAndSetPIN are
// atomic: a crash mid-update must not leave a user with both an old and a
// new live code, or a verified flag without the matching PIN.
type CodeStore interface {
	// Replace invalidates all unused codes for (user, purpose) and stores
	// the new one in a single atomic unit.
	Replace(ctx context.Context, code VerificationCode) error
	Active(ctx context.Context, userID, purpose string, now time.Time) (VerificationCode, bool, error)
	MarkUsed(ctx context.Context, id string) error
	// ConsumeAndSetPIN marks the code used and installs the new PIN hash
	// with pin_verified set, in one transaction.
	ConsumeAndSetPIN(ctx context.Context, id, userID string, hash []byte) error
}

// PostgresCodeStore implements CodeStore using PostgreSQL.
type PostgresCodeStore struct {
	db *pgxpool.Pool
}

// NewPostgresCodeStore builds a Postgres-backed code store.
func NewPostgresCodeStore(db *pgxpool.Pool) *PostgresCodeStore {
	return &PostgresCodeStore{db: db}
}

// Replace deletes unused codes for the (user, purpose) pair and inserts the
// replacement inside one transaction.
func (s *PostgresCodeStore) Replace(ctx context.Context, code VerificationCode) error {
	codeID, err := uuid.Parse(code.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(code.UserID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM verification_codes
        WHERE user_id = $1 AND purpose = $2 AND NOT used`, userID, code.Purpose); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO verification_codes (id, user_id, purpose, code, expires_at, used, created_at)
        VALUES ($1, $2, $3, $4, $5, false, $6)`,
		codeID, userID, code.Purpose, code.Code, code.ExpiresAt.UTC(), code.CreatedAt.UTC()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Active returns the single live code for (user, purpose), if any.
func (s *PostgresCodeStore) Active(ctx context.Context, userID, purpose string, now time.Time) (VerificationCode, bool, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return VerificationCode{}, false, nil
	}

	row := s.db.QueryRow(ctx, `SELECT id, user_id, purpose, code, expires_at, used, created_at
        FROM verification_codes
        WHERE user_id = $1 AND purpose = $2 AND NOT used AND expires_at > $3
        ORDER BY created_at DESC LIMIT 1`, id, purpose, now.UTC())

	var (
		codeID    uuid.UUID
		codeUser  uuid.UUID
		expiresAt time.Time
		createdAt time.Time
		c         VerificationCode
	)
	if err := row.Scan(&codeID, &codeUser, &c.Purpose, &c.Code, &expiresAt, &c.Used, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerificationCode{}, false, nil
		}
		return VerificationCode{}, false, err
	}
	c.ID = codeID.String()
	c.UserID = codeUser.String()
	c.ExpiresAt = expiresAt.UTC()
	c.CreatedAt = createdAt.UTC()
	return c, true, nil
}

// MarkUsed consumes a code.
func (s *PostgresCodeStore) MarkUsed(ctx context.Context, id string) error {
	codeID, err := uuid.Parse(id)
	if err != nil {
		return ErrCodeNotFound
	}
	cmd, err := s.db.Exec(ctx, `UPDATE verification_codes SET used = true WHERE id = $1 AND NOT used`, codeID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// ConsumeAndSetPIN atomically consumes the code and installs the new PIN as
// verified.
func (s *PostgresCodeStore) ConsumeAndSetPIN(ctx context.Context, id, userID string, hash []byte) error {
	codeID, err := uuid.Parse(id)
	if err != nil {
		return ErrCodeNotFound
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return ErrCodeNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	cmd, err := tx.Exec(ctx, `UPDATE verification_codes SET used = true WHERE id = $1 AND NOT used`, codeID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCodeNotFound
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET pin_hash = $1, pin_verified = true WHERE id = $2`, hash, uid); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
