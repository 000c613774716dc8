package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/textpesa/textpesa/internal/sms"
	"github.com/textpesa/textpesa/internal/user"
)

// claimLease is how long a claimed row stays invisible to other drain
// invocations. It only matters when a worker dies mid-batch; a healthy
// worker rewrites next_attempt_at before the lease expires.
const claimLease = 2 * time.Minute

// Queue enqueues outbound notifications and drains them to the SMS gateway
// with bounded retries.
type Queue struct {
	repo        Repository
	users       user.Repository
	sender      sms.Sender
	logger      *slog.Logger
	maxAttempts int
	retention   time.Duration
	now         func() time.Time
}

// QueueOptions tune retry and retention behaviour.
type QueueOptions struct {
	MaxAttempts int
	Retention   time.Duration
	Now         func() time.Time
}

// NewQueue builds a notification queue.
func NewQueue(repo Repository, users user.Repository, sender sms.Sender, logger *slog.Logger, opts QueueOptions) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		repo:        repo,
		users:       users,
		sender:      sender,
		logger:      logger,
		maxAttempts: opts.MaxAttempts,
		retention:   opts.Retention,
		now:         opts.Now,
	}
}

// Enqueue stores a notification for the given user unless their preferences
// opt out of the category. The opt-out check happens here, at enqueue time;
// later preference flips do not affect rows already queued.
func (q *Queue) Enqueue(ctx context.Context, userID, category, body string) error {
	u, err := q.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	n, ok := Build(u, category, body, q.maxAttempts, q.now())
	if !ok {
		return nil
	}
	return q.repo.Insert(ctx, n)
}

// Drain claims up to maxBatch due notifications and attempts delivery.
// Successful sends are marked sent; failures back off exponentially,
// doubling the wait after each attempt until max_attempts is reached,
// at which point the row is left behind as exhausted. Returns the number
// of notifications delivered.
func (q *Queue) Drain(ctx context.Context, maxBatch int) (int, error) {
	now := q.now()
	batch, err := q.repo.Claim(ctx, maxBatch, now, claimLease)
	if err != nil {
		return 0, err
	}

	var delivered int
	for _, n := range batch {
		u, err := q.users.FindByID(ctx, n.UserID)
		if err != nil {
			q.logger.Error("notification user lookup failed", "notification_id", n.ID, "error", err)
			q.fail(ctx, n)
			continue
		}
		if err := q.sender.Send(ctx, u.Phone, n.Body); err != nil {
			q.logger.Warn("notification delivery failed",
				"notification_id", n.ID, "attempt", n.Attempts+1, "error", err)
			q.fail(ctx, n)
			continue
		}
		if err := q.repo.MarkSent(ctx, n.ID, q.now()); err != nil {
			q.logger.Error("mark sent failed", "notification_id", n.ID, "error", err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (q *Queue) fail(ctx context.Context, n Notification) {
	attempts := n.Attempts + 1
	if attempts >= n.MaxAttempts {
		q.logger.Error("notification exhausted",
			"notification_id", n.ID, "user_id", n.UserID, "category", n.Category, "attempts", attempts)
	}
	next := q.now().Add(backoff(attempts))
	if err := q.repo.Reschedule(ctx, n.ID, attempts, next); err != nil {
		q.logger.Error("reschedule failed", "notification_id", n.ID, "error", err)
	}
}

// backoff returns the wait before the next delivery attempt: 2^attempts
// minutes, so 2m after the first failure, 4m after the second, and so on.
func backoff(attempts int) time.Duration {
	if attempts > 10 {
		attempts = 10
	}
	return time.Duration(1<<uint(attempts)) * time.Minute
}

// Sweep deletes sent and exhausted rows older than the retention window.
func (q *Queue) Sweep(ctx context.Context) (int64, error) {
	return q.repo.DeleteTerminalBefore(ctx, q.now().Add(-q.retention))
}
