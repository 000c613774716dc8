package contact

import "time"

// Contact maps a per-user alias to an on-chain address. The alias is stored
// case-normalized so lookups are case-insensitive.
type Contact struct {
	ID        string
	UserID    string
	Alias     string
	Address   string
	CreatedAt time.Time
}
