package settlement

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/textpesa/textpesa/internal/asset"
	"github.com/textpesa/textpesa/internal/cache"
	"github.com/textpesa/textpesa/internal/chain"
	"github.com/textpesa/textpesa/internal/contact"
	"github.com/textpesa/textpesa/internal/logging"
	"github.com/textpesa/textpesa/internal/notify"
	"github.com/textpesa/textpesa/internal/user"
	"github.com/textpesa/textpesa/internal/vault"
	"github.com/textpesa/textpesa/internal/wallet"
)

const usdcContract = "0x1111111111111111111111111111111111111111"

var oneEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type fixture struct {
	users    user.Repository
	wallets  *wallet.Service
	contacts *contact.Service
	chain    *chain.MemoryClient
	notes    *notify.MemoryRepository
	repo     *MemoryRepository
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	v, err := vault.New(make([]byte, 32))
	if err != nil {
		t.Fatalf("vault: %v", err)
	}

	f := &fixture{
		users:    user.NewMemoryRepository(),
		wallets:  wallet.NewService(wallet.NewMemoryRepository(), v),
		contacts: contact.NewService(contact.NewMemoryRepository()),
		chain:    chain.NewMemoryClient(),
		notes:    notify.NewMemoryRepository(),
	}
	f.repo = NewMemoryRepository(f.notes)

	registry := asset.NewRegistry(
		asset.NewMemoryRepository(asset.SupportedAsset{
			ID: usdcContract, Symbol: "USDC", Name: "USD Coin", Decimals: 6, Active: true,
		}),
		cache.NewMemory(), f.chain, nil,
		asset.Options{NativeSymbol: "ETH"},
	)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc = NewService(f.repo, f.users, f.wallets, f.contacts, registry, f.chain,
		logging.Discard(), Options{NotifyMaxAttempts: 3, Now: func() time.Time { return now }})
	return f
}

func (f *fixture) seedUser(t *testing.T, notifyTx bool) (user.User, wallet.Wallet) {
	t.Helper()
	u := user.User{
		ID:                 uuid.New().String(),
		Phone:              "+254700000001",
		NotifyTransactions: notifyTx,
		NotifySecurity:     true,
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	w, err := f.wallets.Create(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return u, w
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestSendNativeToContact(t *testing.T) {
	f := newFixture(t)
	u, w := f.seedUser(t, true)
	f.chain.SetBalance(w.Address, new(big.Int).Mul(oneEth, big.NewInt(2)))

	dest := "0x2222222222222222222222222222222222222222"
	if _, err := f.contacts.Upsert(context.Background(), u.ID, "mama", dest); err != nil {
		t.Fatalf("upsert contact: %v", err)
	}

	out, err := f.svc.Send(context.Background(), u, dec(t, "0.5"), "ETH", "mama")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected success, got %q", out.Message)
	}
	if !strings.Contains(out.Message, "MAMA") {
		t.Fatalf("expected reply to name the contact, got %q", out.Message)
	}

	sent := f.chain.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(sent))
	}
	if want := new(big.Int).Div(oneEth, big.NewInt(2)); sent[0].Amount.Cmp(want) != 0 {
		t.Fatalf("expected %s base units, got %s", want, sent[0].Amount)
	}

	rows := f.repo.All()
	if len(rows) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rows))
	}
	r := rows[0]
	if r.Status != StatusCompleted || r.Direction != DirectionSend || r.Signature == "" {
		t.Fatalf("unexpected record %+v", r)
	}
	if len(f.notes.All()) != 1 {
		t.Fatalf("expected 1 queued notification, got %d", len(f.notes.All()))
	}
}

func TestSendTokenUsesContract(t *testing.T) {
	f := newFixture(t)
	u, w := f.seedUser(t, true)
	f.chain.SetTokenBalance(usdcContract, w.Address, big.NewInt(10_000_000)) // 10 USDC

	dest := "0x3333333333333333333333333333333333333333"
	out, err := f.svc.Send(context.Background(), u, dec(t, "2.5"), "usdc", dest)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected success, got %q", out.Message)
	}

	sent := f.chain.Sent()
	if len(sent) != 1 || !strings.EqualFold(sent[0].Contract, usdcContract) {
		t.Fatalf("expected token submission, got %+v", sent)
	}
	if sent[0].Amount.Cmp(big.NewInt(2_500_000)) != 0 {
		t.Fatalf("expected 2500000 base units, got %s", sent[0].Amount)
	}
}

func TestSendRefusals(t *testing.T) {
	f := newFixture(t)
	u, w := f.seedUser(t, true)
	f.chain.SetBalance(w.Address, oneEth)

	cases := []struct {
		name      string
		amount    string
		asset     string
		recipient string
		wantIn    string
	}{
		{"zero amount", "0", "ETH", "0x2222222222222222222222222222222222222222", "greater than zero"},
		{"negative amount", "-1", "ETH", "0x2222222222222222222222222222222222222222", "greater than zero"},
		{"unsupported asset", "1", "DOGE", "0x2222222222222222222222222222222222222222", "Unsupported asset"},
		{"excess precision", "0.0000001", "USDC", "0x2222222222222222222222222222222222222222", "decimal places"},
		{"unknown recipient", "0.1", "ETH", "nobody", "Unknown recipient"},
		{"insufficient balance", "5", "ETH", "0x2222222222222222222222222222222222222222", "Insufficient balance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := f.svc.Send(context.Background(), u, dec(t, tc.amount), tc.asset, tc.recipient)
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			if out.OK {
				t.Fatal("expected refusal")
			}
			if !strings.Contains(out.Message, tc.wantIn) {
				t.Fatalf("expected message containing %q, got %q", tc.wantIn, out.Message)
			}
		})
	}

	if len(f.chain.Sent()) != 0 {
		t.Fatal("expected no submissions")
	}
	if len(f.repo.All()) != 0 {
		t.Fatal("expected no records")
	}
}

func TestSendWithoutWallet(t *testing.T) {
	f := newFixture(t)
	u := user.User{ID: uuid.New().String(), Phone: "+254700000002"}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	out, err := f.svc.Send(context.Background(), u, dec(t, "1"), "ETH", "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.OK || !strings.Contains(out.Message, "CREATE") {
		t.Fatalf("expected wallet guidance, got %q", out.Message)
	}
}

func TestSendUnknownOutcomeNeverCompletes(t *testing.T) {
	f := newFixture(t)
	u, w := f.seedUser(t, true)
	f.chain.SetBalance(w.Address, oneEth)
	f.chain.FailSubmissions(chain.ErrOutcomeUnknown)

	out, err := f.svc.Send(context.Background(), u, dec(t, "0.5"), "ETH", "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.OK {
		t.Fatal("unknown outcome must not report success")
	}

	rows := f.repo.All()
	if len(rows) != 1 || rows[0].Status != StatusPending {
		t.Fatalf("expected one PENDING record, got %+v", rows)
	}
	if rows[0].Signature != "" {
		t.Fatalf("expected no signature, got %q", rows[0].Signature)
	}
	if len(f.notes.All()) != 0 {
		t.Fatal("expected no notification for unconfirmed transfer")
	}
}

func TestSendRevertedRecordsFailed(t *testing.T) {
	f := newFixture(t)
	u, w := f.seedUser(t, true)
	f.chain.SetBalance(w.Address, oneEth)
	f.chain.FailSubmissions(chain.ErrReverted)

	out, err := f.svc.Send(context.Background(), u, dec(t, "0.5"), "ETH", "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.OK || !strings.Contains(out.Message, "failed") {
		t.Fatalf("expected failure message, got %q", out.Message)
	}

	rows := f.repo.All()
	if len(rows) != 1 || rows[0].Status != StatusFailed {
		t.Fatalf("expected one FAILED record, got %+v", rows)
	}
}

func TestRecordIncomingIdempotent(t *testing.T) {
	f := newFixture(t)
	_, w := f.seedUser(t, true)

	sender := "0x4444444444444444444444444444444444444444"
	for i := 0; i < 2; i++ {
		ours, err := f.svc.RecordIncoming(context.Background(), w.Address, sender, oneEth, "", "0xdeposit01")
		if err != nil {
			t.Fatalf("record incoming: %v", err)
		}
		if !ours {
			t.Fatal("expected transfer to be recognized as ours")
		}
	}

	rows := f.repo.All()
	if len(rows) != 1 {
		t.Fatalf("expected 1 record after replay, got %d", len(rows))
	}
	if rows[0].Direction != DirectionReceive || !rows[0].Amount.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unexpected record %+v", rows[0])
	}
	if len(f.notes.All()) != 1 {
		t.Fatalf("expected exactly 1 notification after replay, got %d", len(f.notes.All()))
	}
}

func TestRecordIncomingForeignAddress(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, true)

	ours, err := f.svc.RecordIncoming(context.Background(),
		"0x9999999999999999999999999999999999999999",
		"0x4444444444444444444444444444444444444444", oneEth, "", "0xdeposit02")
	if err != nil {
		t.Fatalf("record incoming: %v", err)
	}
	if ours {
		t.Fatal("foreign recipient must not be ours")
	}
	if len(f.repo.All()) != 0 {
		t.Fatal("expected no record")
	}
}

func TestRecordIncomingHonorsOptOut(t *testing.T) {
	f := newFixture(t)
	_, w := f.seedUser(t, false)

	ours, err := f.svc.RecordIncoming(context.Background(), w.Address,
		"0x4444444444444444444444444444444444444444", oneEth, "", "0xdeposit03")
	if err != nil {
		t.Fatalf("record incoming: %v", err)
	}
	if !ours {
		t.Fatal("expected transfer to be ours")
	}
	if len(f.repo.All()) != 1 {
		t.Fatal("expected transaction recorded despite opt-out")
	}
	if len(f.notes.All()) != 0 {
		t.Fatal("expected no notification for opted-out user")
	}
}

func TestHistoryFormatting(t *testing.T) {
	f := newFixture(t)
	u, w := f.seedUser(t, true)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seed := []Transaction{
		{ID: uuid.New().String(), WalletID: w.ID, Direction: DirectionReceive, AssetID: asset.NativeID,
			Amount: decimal.NewFromInt(2), Counterparty: "0x4444444444444444444444444444444444444444",
			Signature: "0xaaa1", Status: StatusCompleted, CreatedAt: base},
		{ID: uuid.New().String(), WalletID: w.ID, Direction: DirectionSend,
			AssetID: "0x5555555555555555555555555555555555555555",
			Amount:  decimal.NewFromInt(7), Counterparty: "0x6666666666666666666666666666666666666666",
			Signature: "0xaaa2", Status: StatusCompleted, CreatedAt: base.Add(time.Minute)},
	}
	for _, tx := range seed {
		if err := f.repo.Record(context.Background(), tx, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := f.svc.History(context.Background(), u, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", got)
	}
	// Newest first; unknown contract shows a neutral label instead of the
	// raw address.
	if !strings.Contains(lines[0], "Sent 7 TOKEN") {
		t.Fatalf("expected token label in %q", lines[0])
	}
	if !strings.Contains(lines[1], "Received 2 ETH") {
		t.Fatalf("expected native line, got %q", lines[1])
	}
}

func TestHistoryEmpty(t *testing.T) {
	f := newFixture(t)
	u, _ := f.seedUser(t, true)

	got, err := f.svc.History(context.Background(), u, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if got != "No transactions yet." {
		t.Fatalf("unexpected reply %q", got)
	}
}
