package command

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Parse interprets a raw inbound message as an Intent. Keyword matching is
// whitespace-normalized and case-insensitive; operand tokens (aliases,
// addresses, recipients) keep their original casing. Parse never fails: any
// input it cannot place resolves to KindUnrecognized.
func Parse(raw string) Intent {
	words := strings.Fields(raw)
	if len(words) == 0 {
		return Intent{Kind: KindUnrecognized}
	}

	keyword := strings.ToUpper(words[0])

	switch keyword {
	case "CREATE":
		if len(words) == 1 {
			return Intent{Kind: KindCreateWallet}
		}
	case "BALANCE":
		if len(words) == 1 {
			return Intent{Kind: KindCheckBalance}
		}
	case "SEND":
		return parseSend(words)
	case "HISTORY":
		if len(words) == 1 {
			return Intent{Kind: KindShowHistory}
		}
	case "TOKENS":
		if len(words) == 1 {
			return Intent{Kind: KindListAssets}
		}
	case "SETUP":
		if len(words) == 2 && strings.EqualFold(words[1], "PIN") {
			return Intent{Kind: KindSetupPin}
		}
	case "VERIFY":
		if len(words) == 3 && strings.EqualFold(words[1], "PIN") && isDigits(words[2]) {
			return Intent{Kind: KindVerifyPin, Code: words[2]}
		}
	case "ENABLE":
		if len(words) == 2 && strings.EqualFold(words[1], "2FA") {
			return Intent{Kind: KindEnableSecondFactor}
		}
	case "DISABLE":
		if len(words) == 2 && strings.EqualFold(words[1], "2FA") {
			return Intent{Kind: KindDisableSecondFactor}
		}
	case "ADD":
		if len(words) == 4 && strings.EqualFold(words[1], "CONTACT") {
			return Intent{Kind: KindAddContact, Alias: words[2], Address: words[3]}
		}
	case "CONTACTS":
		if len(words) == 1 {
			return Intent{Kind: KindListContacts}
		}
	case "NOTIFICATIONS":
		return parseNotifications(words)
	}

	return Intent{Kind: KindUnrecognized}
}

// parseSend handles: SEND <amount> <asset> TO <recipient>.
func parseSend(words []string) Intent {
	if len(words) != 5 || !strings.EqualFold(words[3], "TO") {
		return Intent{Kind: KindUnrecognized}
	}

	amount, err := decimal.NewFromString(words[1])
	if err != nil {
		return Intent{Kind: KindUnrecognized}
	}

	return Intent{
		Kind:      KindSendTokens,
		Amount:    amount,
		Asset:     words[2],
		Recipient: words[4],
	}
}

// parseNotifications handles: NOTIFICATIONS ON|OFF <category>.
func parseNotifications(words []string) Intent {
	if len(words) != 3 {
		return Intent{Kind: KindUnrecognized}
	}

	var enable bool
	switch strings.ToUpper(words[1]) {
	case "ON":
		enable = true
	case "OFF":
		enable = false
	default:
		return Intent{Kind: KindUnrecognized}
	}

	category := strings.ToLower(words[2])
	switch category {
	case "transactions", "security", "marketing", "all":
		return Intent{Kind: KindSetNotificationPref, Category: category, Enable: enable}
	}

	return Intent{Kind: KindUnrecognized}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
