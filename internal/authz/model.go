package authz

import "time"

// Code purposes. One unused, unexpired code may exist per (user, purpose).
const (
	PurposePinReset = "pin_reset"
	PurposeSend     = "send"
)

// CodeTTL is how long an issued verification code stays valid.
const CodeTTL = 15 * time.Minute

// VerificationCode is a one-time code tied to a user and an operation.
type VerificationCode struct {
	ID        string
	UserID    string
	Purpose   string
	Code      string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Live reports whether the code is still usable at the given instant.
func (c VerificationCode) Live(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}

// Gate is the result of a pure authorization check: either authorized, or a
// user-facing reason directing the user to the remediation command.
type Gate struct {
	OK     bool
	Reason string
}

// Authorized is the gate value for a passed check.
var Authorized = Gate{OK: true}

// Denied builds a failed gate with a guidance message.
func Denied(reason string) Gate {
	return Gate{Reason: reason}
}
