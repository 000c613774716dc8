package command

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseKeywordCaseAndWhitespace(t *testing.T) {
	cases := map[string]Kind{
		"CREATE":          KindCreateWallet,
		"create":          KindCreateWallet,
		"  Balance  ":     KindCheckBalance,
		"history":         KindShowHistory,
		"TOKENS":          KindListAssets,
		"setup pin":       KindSetupPin,
		"Setup PIN":       KindSetupPin,
		"enable 2fa":      KindEnableSecondFactor,
		"DISABLE 2FA":     KindDisableSecondFactor,
		"contacts":        KindListContacts,
		"VERIFY PIN 1234": KindVerifyPin,
	}

	for raw, want := range cases {
		if got := Parse(raw).Kind; got != want {
			t.Fatalf("Parse(%q) kind = %v, want %v", raw, got, want)
		}
	}
}

func TestParseSend(t *testing.T) {
	intent := Parse("send 0.5 ETH to MAMA")
	if intent.Kind != KindSendTokens {
		t.Fatalf("expected send intent, got %v", intent.Kind)
	}
	if !intent.Amount.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected amount %s", intent.Amount)
	}
	if intent.Asset != "ETH" {
		t.Fatalf("unexpected asset %s", intent.Asset)
	}
	// Operand casing must survive parsing.
	if intent.Recipient != "MAMA" {
		t.Fatalf("unexpected recipient %s", intent.Recipient)
	}
}

func TestParseSendPreservesRecipientCase(t *testing.T) {
	intent := Parse("SEND 1 usdc TO 0xAbCd000000000000000000000000000000000001")
	if intent.Kind != KindSendTokens {
		t.Fatalf("expected send intent, got %v", intent.Kind)
	}
	if intent.Recipient != "0xAbCd000000000000000000000000000000000001" {
		t.Fatalf("recipient case was altered: %s", intent.Recipient)
	}
}

func TestParseMalformedInput(t *testing.T) {
	malformed := []string{
		"",
		"   ",
		"WIRE 5 ETH TO bob",
		"SEND abc ETH TO bob",
		"SEND 5 ETH bob",
		"SEND 5 ETH TO",
		"VERIFY PIN abcdef",
		"NOTIFICATIONS MAYBE transactions",
		"NOTIFICATIONS ON everything",
		"BALANCE now",
	}

	for _, raw := range malformed {
		if got := Parse(raw).Kind; got != KindUnrecognized {
			t.Fatalf("Parse(%q) = %v, want unrecognized", raw, got)
		}
	}
}

func TestParseAddContact(t *testing.T) {
	intent := Parse("add contact Mama 0x1111111111111111111111111111111111111111")
	if intent.Kind != KindAddContact {
		t.Fatalf("expected add-contact intent, got %v", intent.Kind)
	}
	if intent.Alias != "Mama" {
		t.Fatalf("alias casing altered: %s", intent.Alias)
	}
	if intent.Address != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("unexpected address %s", intent.Address)
	}
}

func TestParseNotificationPref(t *testing.T) {
	intent := Parse("notifications off Marketing")
	if intent.Kind != KindSetNotificationPref {
		t.Fatalf("expected notification-pref intent, got %v", intent.Kind)
	}
	if intent.Enable {
		t.Fatalf("expected opt-out")
	}
	if intent.Category != "marketing" {
		t.Fatalf("unexpected category %s", intent.Category)
	}
}
