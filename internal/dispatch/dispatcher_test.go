package dispatch

import (
	"context"
	"math/big"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/textpesa/textpesa/internal/asset"
	"github.com/textpesa/textpesa/internal/authz"
	"github.com/textpesa/textpesa/internal/cache"
	"github.com/textpesa/textpesa/internal/chain"
	"github.com/textpesa/textpesa/internal/command"
	"github.com/textpesa/textpesa/internal/contact"
	"github.com/textpesa/textpesa/internal/logging"
	"github.com/textpesa/textpesa/internal/notify"
	"github.com/textpesa/textpesa/internal/settlement"
	"github.com/textpesa/textpesa/internal/sms"
	"github.com/textpesa/textpesa/internal/user"
	"github.com/textpesa/textpesa/internal/vault"
	"github.com/textpesa/textpesa/internal/wallet"
)

const (
	phone    = "+254700000001"
	destAddr = "0x2222222222222222222222222222222222222222"
)

var pinPattern = regexp.MustCompile(`\b(\d{6})\b`)

type fixture struct {
	users      user.Repository
	wallets    *wallet.Service
	chain      *chain.MemoryClient
	notes      *notify.MemoryRepository
	txs        *settlement.MemoryRepository
	dispatcher *Dispatcher
	now        time.Time
}

type dropSender struct{}

func (dropSender) Send(context.Context, string, string) error { return nil }

var _ sms.Sender = dropSender{}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	v, err := vault.New(make([]byte, 32))
	if err != nil {
		t.Fatalf("vault: %v", err)
	}

	f := &fixture{
		users: user.NewMemoryRepository(),
		chain: chain.NewMemoryClient(),
		notes: notify.NewMemoryRepository(),
		now:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.wallets = wallet.NewService(wallet.NewMemoryRepository(), v)
	f.txs = settlement.NewMemoryRepository(f.notes)

	contacts := contact.NewService(contact.NewMemoryRepository())
	registry := asset.NewRegistry(asset.NewMemoryRepository(), cache.NewMemory(), f.chain, nil,
		asset.Options{NativeSymbol: "ETH"})
	authzSvc := authz.NewServiceWithClock(f.users, authz.NewMemoryCodeStore(f.users),
		func() time.Time { return f.now })
	settle := settlement.NewService(f.txs, f.users, f.wallets, contacts, registry, f.chain,
		logging.Discard(), settlement.Options{Now: func() time.Time { return f.now }})
	queue := notify.NewQueue(f.notes, f.users, dropSender{}, logging.Discard(),
		notify.QueueOptions{Now: func() time.Time { return f.now }})

	f.dispatcher = New(f.users, f.wallets, contacts, registry, authzSvc, settle, queue, logging.Discard())
	return f
}

func (f *fixture) handle(msg string) string {
	return f.dispatcher.Handle(context.Background(), phone, msg)
}

// onboard walks a fresh number through CREATE, SETUP PIN and VERIFY PIN,
// returning the wallet.
func (f *fixture) onboard(t *testing.T) wallet.Wallet {
	t.Helper()

	if reply := f.handle("CREATE"); !strings.Contains(reply, "Wallet created") {
		t.Fatalf("create reply %q", reply)
	}
	reply := f.handle("SETUP PIN")
	m := pinPattern.FindStringSubmatch(reply)
	if m == nil {
		t.Fatalf("no PIN in reply %q", reply)
	}
	if reply := f.handle("VERIFY PIN " + m[1]); !strings.Contains(reply, "PIN verified") {
		t.Fatalf("verify reply %q", reply)
	}

	u, err := f.users.FindByPhone(context.Background(), phone)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	w, err := f.wallets.ActiveByUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("find wallet: %v", err)
	}
	return w
}

func TestUnknownSenderGetsOnboardingGuidance(t *testing.T) {
	f := newFixture(t)

	reply := f.handle("BALANCE")
	if !strings.Contains(reply, "CREATE") {
		t.Fatalf("expected onboarding guidance, got %q", reply)
	}
	if _, err := f.users.FindByPhone(context.Background(), phone); err == nil {
		t.Fatal("expected no user registered before CREATE")
	}
}

func TestOnboardingGatesUntilVerified(t *testing.T) {
	f := newFixture(t)

	if reply := f.handle("CREATE"); !strings.Contains(reply, "Your address: 0x") {
		t.Fatalf("create reply %q", reply)
	}
	if reply := f.handle("BALANCE"); !strings.Contains(reply, "SETUP PIN") {
		t.Fatalf("expected PIN guidance, got %q", reply)
	}

	reply := f.handle("SETUP PIN")
	m := pinPattern.FindStringSubmatch(reply)
	if m == nil {
		t.Fatalf("no PIN in reply %q", reply)
	}
	if reply := f.handle("BALANCE"); !strings.Contains(reply, "VERIFY PIN") {
		t.Fatalf("expected verify guidance, got %q", reply)
	}

	if reply := f.handle("VERIFY PIN 000000"); m[1] != "000000" && reply != "Incorrect PIN." {
		t.Fatalf("expected rejection, got %q", reply)
	}
	f.handle("VERIFY PIN " + m[1])

	if reply := f.handle("BALANCE"); !strings.Contains(reply, "ETH: 0") {
		t.Fatalf("expected balance reply, got %q", reply)
	}
}

func TestCreateIsIdempotentPerUser(t *testing.T) {
	f := newFixture(t)
	w := f.onboard(t)

	reply := f.handle("CREATE")
	if !strings.Contains(reply, "already have a wallet") || !strings.Contains(reply, w.Address) {
		t.Fatalf("expected existing address, got %q", reply)
	}
}

func TestSendEndToEnd(t *testing.T) {
	f := newFixture(t)
	w := f.onboard(t)
	f.chain.SetBalance(w.Address, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	reply := f.handle("SEND 0.5 ETH TO " + destAddr)
	if !strings.Contains(reply, "Sent 0.5 ETH") {
		t.Fatalf("expected send confirmation, got %q", reply)
	}
	if len(f.chain.Sent()) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(f.chain.Sent()))
	}

	if reply := f.handle("HISTORY"); !strings.Contains(reply, "Sent 0.5 ETH") {
		t.Fatalf("expected history entry, got %q", reply)
	}
}

func TestSendToUnknownAliasRecordsNothing(t *testing.T) {
	f := newFixture(t)
	w := f.onboard(t)
	f.chain.SetBalance(w.Address, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	reply := f.handle("SEND 0.5 ETH TO nobody")
	if !strings.Contains(reply, "Unknown recipient") {
		t.Fatalf("expected unknown recipient, got %q", reply)
	}
	if len(f.chain.Sent()) != 0 {
		t.Fatal("expected no submission")
	}
	if len(f.txs.All()) != 0 {
		t.Fatal("expected no record")
	}
}

func TestSecondFactorRequiresRepeatedCommand(t *testing.T) {
	f := newFixture(t)
	w := f.onboard(t)
	f.chain.SetBalance(w.Address, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	if reply := f.handle("ENABLE 2FA"); !strings.Contains(reply, "2FA enabled") {
		t.Fatalf("enable reply %q", reply)
	}

	cmd := "SEND 0.5 ETH TO " + destAddr
	if reply := f.handle(cmd); !strings.Contains(reply, "repeat the exact SEND command") {
		t.Fatalf("expected confirmation challenge, got %q", reply)
	}
	if len(f.chain.Sent()) != 0 {
		t.Fatal("first SEND must not submit")
	}

	if reply := f.handle(cmd); !strings.Contains(reply, "Sent 0.5 ETH") {
		t.Fatalf("expected settled transfer, got %q", reply)
	}
	if len(f.chain.Sent()) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(f.chain.Sent()))
	}

	// The confirmation was consumed: a third identical SEND challenges anew.
	if reply := f.handle(cmd); !strings.Contains(reply, "repeat the exact SEND command") {
		t.Fatalf("expected fresh challenge, got %q", reply)
	}
}

func TestSecondFactorBindsParameters(t *testing.T) {
	f := newFixture(t)
	w := f.onboard(t)
	f.chain.SetBalance(w.Address, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	f.handle("ENABLE 2FA")

	f.handle("SEND 0.5 ETH TO " + destAddr)
	// Different amount: challenged again instead of released.
	if reply := f.handle("SEND 0.9 ETH TO " + destAddr); !strings.Contains(reply, "repeat the exact SEND command") {
		t.Fatalf("expected new challenge, got %q", reply)
	}
	if len(f.chain.Sent()) != 0 {
		t.Fatal("expected no submission")
	}
}

func TestSecondFactorChallengeExpires(t *testing.T) {
	f := newFixture(t)
	w := f.onboard(t)
	f.chain.SetBalance(w.Address, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	f.handle("ENABLE 2FA")

	cmd := "SEND 0.5 ETH TO " + destAddr
	f.handle(cmd)
	f.now = f.now.Add(authz.CodeTTL + time.Minute)

	if reply := f.handle(cmd); !strings.Contains(reply, "repeat the exact SEND command") {
		t.Fatalf("expected expired challenge reissued, got %q", reply)
	}
	if len(f.chain.Sent()) != 0 {
		t.Fatal("expected no submission after expiry")
	}
}

func TestContactsFlow(t *testing.T) {
	f := newFixture(t)
	w := f.onboard(t)
	f.chain.SetBalance(w.Address, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	if reply := f.handle("ADD CONTACT mama " + destAddr); !strings.Contains(reply, "Saved MAMA") {
		t.Fatalf("add reply %q", reply)
	}
	if reply := f.handle("CONTACTS"); !strings.Contains(reply, "MAMA") {
		t.Fatalf("list reply %q", reply)
	}
	if reply := f.handle("ADD CONTACT papa nonsense"); !strings.Contains(reply, "doesn't look valid") {
		t.Fatalf("expected invalid address reply, got %q", reply)
	}
	if reply := f.handle("SEND 0.25 ETH TO mama"); !strings.Contains(reply, "MAMA") {
		t.Fatalf("expected send to contact, got %q", reply)
	}
}

func TestContactsArePinGated(t *testing.T) {
	f := newFixture(t)
	f.handle("CREATE")

	if reply := f.handle("ADD CONTACT mama " + destAddr); !strings.Contains(reply, "PIN") {
		t.Fatalf("expected PIN gate, got %q", reply)
	}
}

func TestNotificationPreferences(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)

	if reply := f.handle("NOTIFICATIONS OFF all"); !strings.Contains(reply, "off") {
		t.Fatalf("pref reply %q", reply)
	}
	u, err := f.users.FindByPhone(context.Background(), phone)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if u.NotifyTransactions || u.NotifySecurity || u.NotifyMarketing {
		t.Fatalf("expected all categories off, got %+v", u)
	}

	f.handle("NOTIFICATIONS ON security")
	u, _ = f.users.FindByPhone(context.Background(), phone)
	if !u.NotifySecurity || u.NotifyTransactions {
		t.Fatalf("expected only security on, got %+v", u)
	}
}

func TestUnrecognizedRepliesWithHelp(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)

	for _, msg := range []string{"FROBNICATE", "SEND 1 ETH", "", "SEND abc ETH TO x"} {
		if reply := f.handle(msg); reply != command.HelpText {
			t.Fatalf("expected help for %q, got %q", msg, reply)
		}
	}
}
