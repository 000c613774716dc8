package settlement

import (
	"context"
	"sort"
	"sync"

	"github.com/textpesa/textpesa/internal/notify"
)

// MemoryRepository is an in-memory Repository for tests. Notifications ride
// along into the provided notify repository the way the pg implementation
// commits them together.
type MemoryRepository struct {
	mu            sync.Mutex
	rows          []Transaction
	bySignature   map[string]struct{}
	notifications notify.Repository
}

// NewMemoryRepository builds an empty in-memory settlement repository.
// The notify repository may be nil when no test asserts on notifications.
func NewMemoryRepository(notifications notify.Repository) *MemoryRepository {
	return &MemoryRepository{
		bySignature:   make(map[string]struct{}),
		notifications: notifications,
	}
}

func (r *MemoryRepository) Record(ctx context.Context, t Transaction, n *notify.Notification) error {
	r.mu.Lock()
	r.rows = append(r.rows, t)
	if t.Signature != "" {
		r.bySignature[t.Signature] = struct{}{}
	}
	r.mu.Unlock()

	if n != nil && r.notifications != nil {
		return r.notifications.Insert(ctx, *n)
	}
	return nil
}

func (r *MemoryRepository) RecordIncoming(ctx context.Context, t Transaction, n *notify.Notification) (bool, error) {
	r.mu.Lock()
	if _, dup := r.bySignature[t.Signature]; dup {
		r.mu.Unlock()
		return false, nil
	}
	r.rows = append(r.rows, t)
	r.bySignature[t.Signature] = struct{}{}
	r.mu.Unlock()

	if n != nil && r.notifications != nil {
		if err := r.notifications.Insert(ctx, *n); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *MemoryRepository) ListByWallet(_ context.Context, walletID string, limit int) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Transaction
	for _, t := range r.rows {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored row for test assertions.
func (r *MemoryRepository) All() []Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transaction, len(r.rows))
	copy(out, r.rows)
	return out
}
