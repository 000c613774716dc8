package notify

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]Notification
}

// NewMemoryRepository builds an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]Notification)}
}

func (r *MemoryRepository) Insert(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[n.ID] = n
	return nil
}

func (r *MemoryRepository) Claim(_ context.Context, limit int, now time.Time, lease time.Duration) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []Notification
	for _, n := range r.rows {
		if !n.Sent && n.Attempts < n.MaxAttempts && !n.NextAttempt.After(now) {
			due = append(due, n)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttempt.Before(due[j].NextAttempt) })
	if len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		row := r.rows[due[i].ID]
		row.NextAttempt = now.Add(lease)
		r.rows[due[i].ID] = row
	}
	return due, nil
}

func (r *MemoryRepository) MarkSent(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil
	}
	sentAt := at
	n.Sent = true
	n.SentAt = &sentAt
	r.rows[id] = n
	return nil
}

func (r *MemoryRepository) Reschedule(_ context.Context, id string, attempts int, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil
	}
	n.Attempts = attempts
	n.NextAttempt = next
	r.rows[id] = n
	return nil
}

func (r *MemoryRepository) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, n := range r.rows {
		if n.CreatedAt.Before(cutoff) && (n.Sent || n.Attempts >= n.MaxAttempts) {
			delete(r.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

// Get returns a row by id for test assertions.
func (r *MemoryRepository) Get(id string) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	return n, ok
}

// All returns every stored row for test assertions.
func (r *MemoryRepository) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, 0, len(r.rows))
	for _, n := range r.rows {
		out = append(out, n)
	}
	return out
}
