package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/textpesa/textpesa/internal/asset"
	"github.com/textpesa/textpesa/internal/chain"
	"github.com/textpesa/textpesa/internal/contact"
	"github.com/textpesa/textpesa/internal/notify"
	"github.com/textpesa/textpesa/internal/user"
	"github.com/textpesa/textpesa/internal/vault"
	"github.com/textpesa/textpesa/internal/wallet"
)

// Outcome is the user-visible result of a settlement operation. Message is
// always safe to send back over SMS.
type Outcome struct {
	OK        bool
	Message   string
	Signature string
}

func refuse(format string, args ...any) Outcome {
	return Outcome{Message: fmt.Sprintf(format, args...)}
}

// Service executes outbound transfers and records inbound ones.
type Service struct {
	repo        Repository
	users       user.Repository
	wallets     *wallet.Service
	contacts    *contact.Service
	assets      *asset.Registry
	chain       chain.Client
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time

	// sends per wallet are serialized from the balance check through the
	// record so two concurrent commands cannot both pass the check.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Options tune the service.
type Options struct {
	// NotifyMaxAttempts is copied onto every enqueued notification.
	NotifyMaxAttempts int
	Now               func() time.Time
}

// NewService builds the settlement engine.
func NewService(repo Repository, users user.Repository, wallets *wallet.Service,
	contacts *contact.Service, assets *asset.Registry, chainClient chain.Client,
	logger *slog.Logger, opts Options) *Service {
	if opts.NotifyMaxAttempts <= 0 {
		opts.NotifyMaxAttempts = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:        repo,
		users:       users,
		wallets:     wallets,
		contacts:    contacts,
		assets:      assets,
		chain:       chainClient,
		logger:      logger,
		maxAttempts: opts.NotifyMaxAttempts,
		now:         opts.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (s *Service) walletLock(walletID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[walletID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[walletID] = mu
	}
	return mu
}

// Send moves amount of the named asset from the user's wallet to the
// recipient, which is either a saved contact alias or a raw address.
// Checks run in a fixed order so the reply always names the first problem:
// amount, then asset, then recipient, then wallet, then balance.
func (s *Service) Send(ctx context.Context, u user.User, amount decimal.Decimal, assetText, recipient string) (Outcome, error) {
	if amount.Sign() <= 0 {
		return refuse("Amount must be greater than zero."), nil
	}

	a, err := s.assets.Resolve(ctx, assetText)
	if errors.Is(err, asset.ErrNotFound) {
		return refuse("Unsupported asset: %s.", strings.ToUpper(assetText)), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	units, ok := toBaseUnits(amount, a.Decimals)
	if !ok {
		return refuse("Amount has too many decimal places for %s.", a.Symbol), nil
	}

	address, found, err := s.contacts.Resolve(ctx, u.ID, recipient)
	if err != nil {
		return Outcome{}, err
	}
	label := contact.Normalize(recipient)
	if !found {
		if !common.IsHexAddress(recipient) {
			return refuse("Unknown recipient %s. Save it first with ADD %s <address>.", label, label), nil
		}
		address = common.HexToAddress(recipient).Hex()
		label = shortRef(address)
	}

	w, err := s.wallets.ActiveByUser(ctx, u.ID)
	if errors.Is(err, wallet.ErrNotFound) {
		return refuse("You have no wallet yet. Send CREATE first."), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	mu := s.walletLock(w.ID)
	mu.Lock()
	defer mu.Unlock()

	balance, err := s.assets.Balance(ctx, w.Address, a)
	if err != nil {
		return Outcome{}, err
	}
	if balance.LessThan(amount) {
		return refuse("Insufficient balance. You have %s %s.", balance.String(), a.Symbol), nil
	}

	sig, err := s.submit(ctx, w, a, address, units)
	switch {
	case errors.Is(err, chain.ErrOutcomeUnknown):
		// Never recorded as COMPLETED: the network may still settle it.
		s.record(ctx, u, w, a, amount, address, "", StatusPending, nil)
		return refuse("Transfer submitted but not yet confirmed. Check HISTORY later."), nil
	case errors.Is(err, chain.ErrReverted):
		s.record(ctx, u, w, a, amount, address, "", StatusFailed, nil)
		return refuse("Transfer of %s %s failed on the network.", amount.String(), a.Symbol), nil
	case err != nil:
		return Outcome{}, err
	}

	body := fmt.Sprintf("Sent %s %s to %s. Ref %s.", amount.String(), a.Symbol, label, shortRef(sig))
	n, enqueue := notify.Build(u, user.CategoryTransactions, body, s.maxAttempts, s.now())
	var np *notify.Notification
	if enqueue {
		np = &n
	}
	if err := s.record(ctx, u, w, a, amount, address, sig, StatusCompleted, np); err != nil {
		// The transfer settled; surface it to the user even if the record
		// write failed.
		s.logger.Error("record send failed", "wallet_id", w.ID, "signature", sig, "error", err)
	}
	return Outcome{OK: true, Message: body, Signature: sig}, nil
}

func (s *Service) submit(ctx context.Context, w wallet.Wallet, a asset.SupportedAsset, to string, units *big.Int) (string, error) {
	priv, err := s.wallets.SigningKey(w)
	if err != nil {
		return "", err
	}
	defer vault.Zero(priv)

	if a.IsNative() {
		return s.chain.Transfer(ctx, priv, to, units)
	}
	return s.chain.TokenTransfer(ctx, priv, a.ID, to, units)
}

func (s *Service) record(ctx context.Context, u user.User, w wallet.Wallet, a asset.SupportedAsset,
	amount decimal.Decimal, counterparty, sig, status string, n *notify.Notification) error {
	return s.repo.Record(ctx, Transaction{
		ID:           uuid.New().String(),
		WalletID:     w.ID,
		Direction:    DirectionSend,
		AssetID:      a.ID,
		Amount:       amount,
		Counterparty: counterparty,
		Signature:    sig,
		Status:       status,
		CreatedAt:    s.now(),
	}, n)
}

// RecordIncoming stores an on-chain transfer observed for one of our
// wallets. The recipient address not belonging to us is the common case
// while scanning blocks and returns (false, nil). Replays of an already
// recorded signature are absorbed without a second notification and still
// report true.
func (s *Service) RecordIncoming(ctx context.Context, recipient, sender string, amount *big.Int, contractAddr, sig string) (bool, error) {
	w, err := s.wallets.ByAddress(ctx, recipient)
	if errors.Is(err, wallet.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var a asset.SupportedAsset
	if contractAddr == "" {
		a = asset.Native(s.assets.NativeSymbol())
	} else {
		a, err = s.assets.ByID(ctx, contractAddr)
		if errors.Is(err, asset.ErrNotFound) {
			// Unsupported token deposits are ignored.
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}

	u, err := s.users.FindByID(ctx, w.UserID)
	if err != nil {
		return false, err
	}

	value := decimal.NewFromBigInt(amount, -a.Decimals)
	body := fmt.Sprintf("Received %s %s from %s.", value.String(), a.Symbol, shortRef(sender))
	n, enqueue := notify.Build(u, user.CategoryTransactions, body, s.maxAttempts, s.now())
	var np *notify.Notification
	if enqueue {
		np = &n
	}

	if _, err := s.repo.RecordIncoming(ctx, Transaction{
		ID:           uuid.New().String(),
		WalletID:     w.ID,
		Direction:    DirectionReceive,
		AssetID:      a.ID,
		Amount:       value,
		Counterparty: sender,
		Signature:    sig,
		Status:       StatusCompleted,
		CreatedAt:    s.now(),
	}, np); err != nil {
		return false, err
	}
	return true, nil
}

// History formats the user's most recent transactions as one SMS-sized
// reply.
func (s *Service) History(ctx context.Context, u user.User, limit int) (string, error) {
	w, err := s.wallets.ActiveByUser(ctx, u.ID)
	if errors.Is(err, wallet.ErrNotFound) {
		return "You have no wallet yet. Send CREATE first.", nil
	}
	if err != nil {
		return "", err
	}

	rows, err := s.repo.ListByWallet(ctx, w.ID, limit)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "No transactions yet.", nil
	}

	var b strings.Builder
	for i, t := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		verb := "Received"
		if t.Direction == DirectionSend {
			verb = "Sent"
		}
		fmt.Fprintf(&b, "%d. %s %s %s %s %s (%s)",
			i+1, verb, t.Amount.String(), s.assetLabel(ctx, t.AssetID),
			directionWord(t.Direction), shortRef(t.Counterparty), t.Status)
	}
	return b.String(), nil
}

func (s *Service) assetLabel(ctx context.Context, assetID string) string {
	if assetID == asset.NativeID {
		return s.assets.NativeSymbol()
	}
	a, err := s.assets.ByID(ctx, assetID)
	if err != nil {
		// Contract addresses are useless in an SMS line.
		return "TOKEN"
	}
	return a.Symbol
}

func directionWord(direction string) string {
	if direction == DirectionSend {
		return "to"
	}
	return "from"
}

// toBaseUnits converts a decimal amount to the asset's smallest unit,
// rejecting amounts with more precision than the asset carries.
func toBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, bool) {
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, false
	}
	return shifted.BigInt(), true
}

func shortRef(ref string) string {
	if len(ref) <= 12 {
		return ref
	}
	return ref[:10] + ".."
}
