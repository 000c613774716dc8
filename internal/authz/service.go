package authz

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/textpesa/textpesa/internal/user"
)

var (
	// ErrPinExists is returned when SETUP PIN is sent while a PIN is already
	// set. There is no overwrite path; only the reset flow replaces a PIN.
	ErrPinExists = errors.New("a PIN is already set for this account")

	// ErrNoPin is returned when verification is attempted before setup.
	ErrNoPin = errors.New("no PIN has been set up yet")

	// ErrPinMismatch indicates the provided PIN did not match.
	ErrPinMismatch = errors.New("incorrect PIN")

	// ErrPinNotVerified gates operations that require a verified PIN.
	ErrPinNotVerified = errors.New("PIN not verified")

	// ErrCodeMismatch indicates a verification code did not match or expired.
	ErrCodeMismatch = errors.New("invalid or expired verification code")
)

// Service drives the per-user PIN and second-factor state machines.
//
// PIN states: NoPin -> PinSetNotVerified -> PinVerified. Transitions only
// move forward; the reset flow is the single path that replaces a PIN, and
// it lands directly in PinVerified.
type Service struct {
	users user.Repository
	codes CodeStore
	now   func() time.Time
}

// NewService builds the authorization service.
func NewService(users user.Repository, codes CodeStore) *Service {
	return &Service{users: users, codes: codes, now: time.Now}
}

// NewServiceWithClock builds the service with a supplied clock for tests.
func NewServiceWithClock(users user.Repository, codes CodeStore, now func() time.Time) *Service {
	return &Service{users: users, codes: codes, now: now}
}

// SetupPin generates a six-digit PIN for a user with none, stores its hash
// unverified, and returns the plaintext exactly once.
func (s *Service) SetupPin(ctx context.Context, u user.User) (string, error) {
	if u.HasPIN() {
		return "", ErrPinExists
	}

	pin, err := randomDigits(6)
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	if err := s.users.SetPIN(ctx, u.ID, hash, false); err != nil {
		return "", err
	}
	return pin, nil
}

// VerifyPin transitions PinSetNotVerified -> PinVerified on an exact match.
// Re-verifying while already verified is a no-op success. The comparison is
// constant-time regardless of input length.
func (s *Service) VerifyPin(ctx context.Context, u user.User, pin string) error {
	if !u.HasPIN() {
		return ErrNoPin
	}

	if err := bcrypt.CompareHashAndPassword(u.PINHash, []byte(pin)); err != nil {
		return ErrPinMismatch
	}

	if u.PINVerified {
		return nil
	}
	return s.users.SetPINVerified(ctx, u.ID, true)
}

// RequirePin is a pure read check: it never mutates state.
func RequirePin(u user.User) Gate {
	if !u.HasPIN() {
		return Denied("You need a PIN first. Send SETUP PIN to get one.")
	}
	if !u.PINVerified {
		return Denied("Your PIN is not verified. Send VERIFY PIN <code> to verify it.")
	}
	return Authorized
}

// EnableTwoFactor turns the second factor on. It is gated on a verified PIN.
func (s *Service) EnableTwoFactor(ctx context.Context, u user.User) error {
	if gate := RequirePin(u); !gate.OK {
		return ErrPinNotVerified
	}
	if u.TwoFactor {
		return nil
	}
	return s.users.SetTwoFactor(ctx, u.ID, true)
}

// DisableTwoFactor turns the second factor off, also PIN-gated.
func (s *Service) DisableTwoFactor(ctx context.Context, u user.User) error {
	if gate := RequirePin(u); !gate.OK {
		return ErrPinNotVerified
	}
	if !u.TwoFactor {
		return nil
	}
	return s.users.SetTwoFactor(ctx, u.ID, false)
}

// IssueCode creates a one-time code for (user, purpose), invalidating any
// prior unused codes for that pair in the same atomic unit.
func (s *Service) IssueCode(ctx context.Context, userID, purpose string) (VerificationCode, error) {
	value, err := randomDigits(6)
	if err != nil {
		return VerificationCode{}, err
	}

	now := s.now().UTC()
	code := VerificationCode{
		ID:        uuid.New().String(),
		UserID:    userID,
		Purpose:   purpose,
		Code:      value,
		ExpiresAt: now.Add(CodeTTL),
		CreatedAt: now,
	}

	if err := s.codes.Replace(ctx, code); err != nil {
		return VerificationCode{}, err
	}
	return code, nil
}

// IssueChallenge stores a caller-supplied token as the live code for
// (user, purpose), replacing prior unused ones. Used when the token must
// bind the code to the parameters of a pending operation.
func (s *Service) IssueChallenge(ctx context.Context, userID, purpose, token string) (VerificationCode, error) {
	now := s.now().UTC()
	code := VerificationCode{
		ID:        uuid.New().String(),
		UserID:    userID,
		Purpose:   purpose,
		Code:      token,
		ExpiresAt: now.Add(CodeTTL),
		CreatedAt: now,
	}
	if err := s.codes.Replace(ctx, code); err != nil {
		return VerificationCode{}, err
	}
	return code, nil
}

// ActiveCode returns the live code for (user, purpose), if one exists.
func (s *Service) ActiveCode(ctx context.Context, userID, purpose string) (VerificationCode, bool, error) {
	return s.codes.Active(ctx, userID, purpose, s.now())
}

// RequireCode is a pure read gate: it checks the provided code against the
// live one without consuming it. Comparison is constant-time.
func (s *Service) RequireCode(ctx context.Context, u user.User, purpose, provided string) (Gate, VerificationCode, error) {
	code, found, err := s.codes.Active(ctx, u.ID, purpose, s.now())
	if err != nil {
		return Gate{}, VerificationCode{}, err
	}
	if !found || !codesEqual(code.Code, provided) {
		return Denied("Invalid or expired verification code."), VerificationCode{}, nil
	}
	return Authorized, code, nil
}

// ConsumeCode marks a code used.
func (s *Service) ConsumeCode(ctx context.Context, id string) error {
	return s.codes.MarkUsed(ctx, id)
}

// IssuePinReset starts the reset flow by issuing a reset code, invalidating
// all prior unused reset codes for the user.
func (s *Service) IssuePinReset(ctx context.Context, u user.User) (VerificationCode, error) {
	return s.IssueCode(ctx, u.ID, PurposePinReset)
}

// CompletePinReset checks the reset code, then installs a freshly generated
// PIN as verified and consumes the code in one atomic unit. The new PIN is
// returned exactly once.
func (s *Service) CompletePinReset(ctx context.Context, u user.User, provided string) (string, error) {
	code, found, err := s.codes.Active(ctx, u.ID, PurposePinReset, s.now())
	if err != nil {
		return "", err
	}
	if !found || !codesEqual(code.Code, provided) {
		return "", ErrCodeMismatch
	}

	pin, err := randomDigits(6)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	if err := s.codes.ConsumeAndSetPIN(ctx, code.ID, u.ID, hash); err != nil {
		return "", err
	}
	return pin, nil
}

// codesEqual compares two short codes in constant time.
func codesEqual(stored, provided string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) == 1
}

// randomDigits returns n cryptographically random decimal digits.
func randomDigits(n int) (string, error) {
	bound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
