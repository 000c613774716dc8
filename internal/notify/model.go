package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/textpesa/textpesa/internal/user"
)

// Notification is one queued user-facing alert. Rows are mutated only by the
// delivery worker and deleted only by the retention sweep once terminal.
type Notification struct {
	ID          string
	UserID      string
	Category    string
	Body        string
	Sent        bool
	SentAt      *time.Time
	Attempts    int
	MaxAttempts int
	NextAttempt time.Time
	CreatedAt   time.Time
}

// Exhausted reports whether the retry budget is spent.
func (n Notification) Exhausted() bool {
	return !n.Sent && n.Attempts >= n.MaxAttempts
}

// Build constructs a notification for the user, honoring the per-category
// opt-out at enqueue time: the boolean is false when the user disabled the
// category and nothing should be stored.
func Build(u user.User, category, body string, maxAttempts int, now time.Time) (Notification, bool) {
	if !u.AllowsCategory(category) {
		return Notification{}, false
	}
	return Notification{
		ID:          uuid.New().String(),
		UserID:      u.ID,
		Category:    category,
		Body:        body,
		MaxAttempts: maxAttempts,
		NextAttempt: now.UTC(),
		CreatedAt:   now.UTC(),
	}, true
}
