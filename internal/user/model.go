package user

import "time"

// Notification categories a user can opt in or out of.
const (
	CategoryTransactions = "transactions"
	CategorySecurity     = "security"
	CategoryMarketing    = "marketing"
)

// User represents a wallet owner identified by their phone number.
type User struct {
	ID          string
	Phone       string
	PINHash     []byte
	PINVerified bool
	TwoFactor   bool

	NotifyTransactions bool
	NotifySecurity     bool
	NotifyMarketing    bool

	CreatedAt time.Time
}

// HasPIN reports whether a PIN has ever been set for the user.
func (u User) HasPIN() bool {
	return len(u.PINHash) > 0
}

// AllowsCategory reports whether the user accepts notifications in the given
// category. Unknown categories are allowed so new categories default to on.
func (u User) AllowsCategory(category string) bool {
	switch category {
	case CategoryTransactions:
		return u.NotifyTransactions
	case CategorySecurity:
		return u.NotifySecurity
	case CategoryMarketing:
		return u.NotifyMarketing
	default:
		return true
	}
}
