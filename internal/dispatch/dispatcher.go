// Package dispatch turns inbound text messages into service calls and
// user-facing replies. It owns the authorization gates and the error
// taxonomy: bad input and denied gates become reply text, infrastructure
// failures are logged and answered with a generic retry message, and no
// panic crosses the boundary.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/textpesa/textpesa/internal/asset"
	"github.com/textpesa/textpesa/internal/authz"
	"github.com/textpesa/textpesa/internal/command"
	"github.com/textpesa/textpesa/internal/contact"
	"github.com/textpesa/textpesa/internal/notify"
	"github.com/textpesa/textpesa/internal/settlement"
	"github.com/textpesa/textpesa/internal/user"
	"github.com/textpesa/textpesa/internal/wallet"
)

const (
	replyTryAgain = "Something went wrong. Please try again shortly."
	replyWelcome  = "Welcome to TextPesa! Send CREATE to open your wallet, or HELP for all commands."
)

// Dispatcher routes parsed intents to the owning services.
type Dispatcher struct {
	users    user.Repository
	wallets  *wallet.Service
	contacts *contact.Service
	assets   *asset.Registry
	authz    *authz.Service
	settle   *settlement.Service
	queue    *notify.Queue
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a dispatcher.
func New(users user.Repository, wallets *wallet.Service, contacts *contact.Service,
	assets *asset.Registry, authzSvc *authz.Service, settle *settlement.Service,
	queue *notify.Queue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		users:    users,
		wallets:  wallets,
		contacts: contacts,
		assets:   assets,
		authz:    authzSvc,
		settle:   settle,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle processes one inbound message and returns the reply text. It always
// returns something sendable; failures inside never escape as panics or
// internal error strings.
func (d *Dispatcher) Handle(ctx context.Context, from, body string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic", "from", from, "panic", r, "stack", string(debug.Stack()))
			reply = replyTryAgain
		}
	}()

	intent := command.Parse(body)

	u, err := d.users.FindByPhone(ctx, from)
	if errors.Is(err, user.ErrNotFound) {
		return d.handleNewSender(ctx, from, intent)
	}
	if err != nil {
		return d.failure(from, "find user", err)
	}

	switch intent.Kind {
	case command.KindCreateWallet:
		return d.createWallet(ctx, from, u)
	case command.KindCheckBalance:
		return d.balance(ctx, from, u)
	case command.KindSendTokens:
		return d.send(ctx, from, u, intent)
	case command.KindShowHistory:
		return d.history(ctx, from, u)
	case command.KindListAssets:
		return d.listAssets(ctx, from)
	case command.KindSetupPin:
		return d.setupPin(ctx, from, u)
	case command.KindVerifyPin:
		return d.verifyPin(ctx, from, u, intent.Code)
	case command.KindAddContact:
		return d.addContact(ctx, from, u, intent.Alias, intent.Address)
	case command.KindListContacts:
		return d.listContacts(ctx, from, u)
	case command.KindEnableSecondFactor:
		return d.setTwoFactor(ctx, from, u, true)
	case command.KindDisableSecondFactor:
		return d.setTwoFactor(ctx, from, u, false)
	case command.KindSetNotificationPref:
		return d.setNotificationPref(ctx, from, u, intent.Category, intent.Enable)
	default:
		return command.HelpText
	}
}

// handleNewSender registers the sender on their first CREATE; anything else
// from an unknown number gets onboarding guidance.
func (d *Dispatcher) handleNewSender(ctx context.Context, from string, intent command.Intent) string {
	if intent.Kind != command.KindCreateWallet {
		return replyWelcome
	}

	u := user.User{
		ID:                 uuid.New().String(),
		Phone:              from,
		NotifyTransactions: true,
		NotifySecurity:     true,
		CreatedAt:          d.now().UTC(),
	}
	if err := d.users.Create(ctx, u); err != nil {
		return d.failure(from, "create user", err)
	}
	return d.createWallet(ctx, from, u)
}

func (d *Dispatcher) createWallet(ctx context.Context, from string, u user.User) string {
	w, err := d.wallets.Create(ctx, u.ID)
	if errors.Is(err, wallet.ErrAlreadyExists) {
		existing, err := d.wallets.ActiveByUser(ctx, u.ID)
		if err != nil {
			return d.failure(from, "load wallet", err)
		}
		return fmt.Sprintf("You already have a wallet: %s", existing.Address)
	}
	if err != nil {
		return d.failure(from, "create wallet", err)
	}
	return fmt.Sprintf("Wallet created. Your address: %s\nSend SETUP PIN to secure it.", w.Address)
}

func (d *Dispatcher) balance(ctx context.Context, from string, u user.User) string {
	if gate := authz.RequirePin(u); !gate.OK {
		return gate.Reason
	}

	w, err := d.wallets.ActiveByUser(ctx, u.ID)
	if errors.Is(err, wallet.ErrNotFound) {
		return "You have no wallet yet. Send CREATE first."
	}
	if err != nil {
		return d.failure(from, "load wallet", err)
	}

	assets, err := d.assets.All(ctx)
	if err != nil {
		return d.failure(from, "list assets", err)
	}

	var b strings.Builder
	b.WriteString("Balances:")
	for _, a := range append([]asset.SupportedAsset{asset.Native(d.assets.NativeSymbol())}, assets...) {
		bal, err := d.assets.Balance(ctx, w.Address, a)
		if err != nil {
			return d.failure(from, "fetch balance", err)
		}
		fmt.Fprintf(&b, "\n%s: %s", a.Symbol, bal.String())
	}
	return b.String()
}

func (d *Dispatcher) send(ctx context.Context, from string, u user.User, intent command.Intent) string {
	if gate := authz.RequirePin(u); !gate.OK {
		return gate.Reason
	}

	if u.TwoFactor {
		proceed, reply := d.confirmSecondFactor(ctx, from, u, intent)
		if !proceed {
			return reply
		}
	}

	out, err := d.settle.Send(ctx, u, intent.Amount, intent.Asset, intent.Recipient)
	if err != nil {
		return d.failure(from, "send", err)
	}
	return out.Message
}

// confirmSecondFactor implements the two-message confirmation for 2FA
// sends: the first SEND stores a token derived from its parameters and asks
// the user to repeat the command; an identical SEND within the code window
// consumes the token and proceeds. A SEND with different parameters issues
// a fresh challenge instead of consuming the old one.
func (d *Dispatcher) confirmSecondFactor(ctx context.Context, from string, u user.User, intent command.Intent) (bool, string) {
	token := sendToken(u.ID, intent)

	gate, code, err := d.authz.RequireCode(ctx, u, authz.PurposeSend, token)
	if err != nil {
		return false, d.failure(from, "check send confirmation", err)
	}
	if gate.OK {
		if err := d.authz.ConsumeCode(ctx, code.ID); err != nil {
			return false, d.failure(from, "consume send confirmation", err)
		}
		return true, ""
	}

	if _, err := d.authz.IssueChallenge(ctx, u.ID, authz.PurposeSend, token); err != nil {
		return false, d.failure(from, "issue send confirmation", err)
	}
	d.notifySecurity(ctx, u, fmt.Sprintf("A transfer of %s %s was requested from your wallet.",
		intent.Amount.String(), strings.ToUpper(intent.Asset)))
	return false, fmt.Sprintf("2FA check: to confirm sending %s %s to %s, repeat the exact SEND command within 15 minutes.",
		intent.Amount.String(), strings.ToUpper(intent.Asset), intent.Recipient)
}

// sendToken fingerprints a SEND so a confirmation can only release the
// transfer it was issued for.
func sendToken(userID string, intent command.Intent) string {
	h := sha256.Sum256([]byte(userID + "|" + intent.Amount.String() + "|" +
		strings.ToUpper(intent.Asset) + "|" + contact.Normalize(intent.Recipient)))
	return hex.EncodeToString(h[:])
}

func (d *Dispatcher) history(ctx context.Context, from string, u user.User) string {
	if gate := authz.RequirePin(u); !gate.OK {
		return gate.Reason
	}
	reply, err := d.settle.History(ctx, u, 5)
	if err != nil {
		return d.failure(from, "history", err)
	}
	return reply
}

func (d *Dispatcher) listAssets(ctx context.Context, from string) string {
	assets, err := d.assets.All(ctx)
	if err != nil {
		return d.failure(from, "list assets", err)
	}
	symbols := []string{d.assets.NativeSymbol()}
	for _, a := range assets {
		symbols = append(symbols, a.Symbol)
	}
	return "Supported assets: " + strings.Join(symbols, ", ")
}

func (d *Dispatcher) setupPin(ctx context.Context, from string, u user.User) string {
	pin, err := d.authz.SetupPin(ctx, u)
	if errors.Is(err, authz.ErrPinExists) {
		return "A PIN is already set for this account."
	}
	if err != nil {
		return d.failure(from, "setup pin", err)
	}
	return fmt.Sprintf("Your PIN is %s. Activate it with: VERIFY PIN %s", pin, pin)
}

func (d *Dispatcher) verifyPin(ctx context.Context, from string, u user.User, code string) string {
	err := d.authz.VerifyPin(ctx, u, code)
	switch {
	case errors.Is(err, authz.ErrNoPin):
		return "You need a PIN first. Send SETUP PIN to get one."
	case errors.Is(err, authz.ErrPinMismatch):
		return "Incorrect PIN."
	case err != nil:
		return d.failure(from, "verify pin", err)
	}
	d.notifySecurity(ctx, u, "Your PIN was verified.")
	return "PIN verified. You can now use BALANCE, SEND and HISTORY."
}

func (d *Dispatcher) addContact(ctx context.Context, from string, u user.User, alias, address string) string {
	if gate := authz.RequirePin(u); !gate.OK {
		return gate.Reason
	}

	c, err := d.contacts.Upsert(ctx, u.ID, alias, address)
	if errors.Is(err, contact.ErrInvalidAddress) {
		return "That address doesn't look valid."
	}
	if err != nil {
		return d.failure(from, "save contact", err)
	}
	return fmt.Sprintf("Saved %s. Send with: SEND <amount> <asset> TO %s", c.Alias, c.Alias)
}

func (d *Dispatcher) listContacts(ctx context.Context, from string, u user.User) string {
	if gate := authz.RequirePin(u); !gate.OK {
		return gate.Reason
	}

	contacts, err := d.contacts.List(ctx, u.ID)
	if err != nil {
		return d.failure(from, "list contacts", err)
	}
	if len(contacts) == 0 {
		return "No contacts saved. Add one with ADD CONTACT <alias> <address>."
	}

	var b strings.Builder
	b.WriteString("Contacts:")
	for _, c := range contacts {
		fmt.Fprintf(&b, "\n%s: %s", c.Alias, c.Address)
	}
	return b.String()
}

func (d *Dispatcher) setTwoFactor(ctx context.Context, from string, u user.User, enable bool) string {
	var err error
	if enable {
		err = d.authz.EnableTwoFactor(ctx, u)
	} else {
		err = d.authz.DisableTwoFactor(ctx, u)
	}
	if errors.Is(err, authz.ErrPinNotVerified) {
		return authz.RequirePin(u).Reason
	}
	if err != nil {
		return d.failure(from, "set 2fa", err)
	}

	if enable {
		d.notifySecurity(ctx, u, "Two-factor confirmation was enabled for transfers.")
		return "2FA enabled. Transfers now need a second confirmation."
	}
	d.notifySecurity(ctx, u, "Two-factor confirmation was disabled for transfers.")
	return "2FA disabled."
}

func (d *Dispatcher) setNotificationPref(ctx context.Context, from string, u user.User, category string, enable bool) string {
	categories := []string{category}
	if category == "all" {
		categories = []string{user.CategoryTransactions, user.CategorySecurity, user.CategoryMarketing}
	}
	for _, c := range categories {
		if err := d.users.SetNotificationPref(ctx, u.ID, c, enable); err != nil {
			return d.failure(from, "set notification pref", err)
		}
	}

	state := "off"
	if enable {
		state = "on"
	}
	return fmt.Sprintf("Notifications %s: %s.", state, category)
}

// notifySecurity enqueues a security alert; queue failures are logged and
// never surfaced, the command outcome matters more than its alert.
func (d *Dispatcher) notifySecurity(ctx context.Context, u user.User, body string) {
	if err := d.queue.Enqueue(ctx, u.ID, user.CategorySecurity, body); err != nil {
		d.logger.Error("enqueue security notification failed", "user_id", u.ID, "error", err)
	}
}

func (d *Dispatcher) failure(from, op string, err error) string {
	d.logger.Error("dispatch failed", "op", op, "from", from, "error", err)
	return replyTryAgain
}
