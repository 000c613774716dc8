package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the notification outbox.
type Repository interface {
	Insert(ctx context.Context, n Notification) error
	// Claim selects up to limit due, not-yet-sent, not-exhausted rows and
	// leases them until now+lease so concurrent drain invocations never
	// process the same row (skip-locked semantics).
	Claim(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]Notification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	Reschedule(ctx context.Context, id string, attempts int, next time.Time) error
	// DeleteTerminalBefore removes sent and exhausted rows created before
	// the cutoff, returning how many were deleted.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed notification repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores a new queued notification.
func (r *PostgresRepository) Insert(ctx context.Context, n Notification) error {
	id, err := uuid.Parse(n.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(n.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO notification_queue
        (id, user_id, category, body, sent, attempts, max_attempts, next_attempt_at, created_at)
        VALUES ($1, $2, $3, $4, false, 0, $5, $6, $7)`,
		id, userID, n.Category, n.Body, n.MaxAttempts, n.NextAttempt.UTC(), n.CreatedAt.UTC())
	return err
}

// Claim leases a batch of due rows in a single statement. The inner select
// uses FOR UPDATE SKIP LOCKED so overlapping drain workers partition the
// queue instead of double-delivering; pushing next_attempt_at forward keeps
// the rows invisible for the lease duration even after the statement commits.
func (r *PostgresRepository) Claim(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]Notification, error) {
	rows, err := r.db.Query(ctx, `UPDATE notification_queue SET next_attempt_at = $1
        WHERE id IN (
            SELECT id FROM notification_queue
            WHERE NOT sent AND attempts < max_attempts AND next_attempt_at <= $2
            ORDER BY next_attempt_at
            LIMIT $3
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, user_id, category, body, sent, sent_at, attempts, max_attempts, next_attempt_at, created_at`,
		now.UTC().Add(lease), now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []Notification
	for rows.Next() {
		var (
			id          uuid.UUID
			userID      uuid.UUID
			sentAt      *time.Time
			nextAttempt time.Time
			createdAt   time.Time
			n           Notification
		)
		if err := rows.Scan(&id, &userID, &n.Category, &n.Body, &n.Sent, &sentAt,
			&n.Attempts, &n.MaxAttempts, &nextAttempt, &createdAt); err != nil {
			return nil, err
		}
		n.ID = id.String()
		n.UserID = userID.String()
		n.SentAt = sentAt
		n.NextAttempt = nextAttempt.UTC()
		n.CreatedAt = createdAt.UTC()
		claimed = append(claimed, n)
	}
	return claimed, rows.Err()
}

// MarkSent records a successful delivery.
func (r *PostgresRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	notifID, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `UPDATE notification_queue SET sent = true, sent_at = $1 WHERE id = $2`,
		at.UTC(), notifID)
	return err
}

// Reschedule records a failed attempt and its backoff.
func (r *PostgresRepository) Reschedule(ctx context.Context, id string, attempts int, next time.Time) error {
	notifID, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `UPDATE notification_queue SET attempts = $1, next_attempt_at = $2 WHERE id = $3`,
		attempts, next.UTC(), notifID)
	return err
}

// DeleteTerminalBefore ages out sent and exhausted rows.
func (r *PostgresRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM notification_queue
        WHERE created_at < $1 AND (sent OR attempts >= max_attempts)`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
