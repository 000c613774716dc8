package command

import "github.com/shopspring/decimal"

// Kind enumerates the closed set of intents a raw message can resolve to.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindCreateWallet
	KindCheckBalance
	KindSendTokens
	KindShowHistory
	KindListAssets
	KindSetupPin
	KindVerifyPin
	KindAddContact
	KindListContacts
	KindEnableSecondFactor
	KindDisableSecondFactor
	KindSetNotificationPref
)

// Intent is the typed result of interpreting a raw command string. Fields
// beyond Kind are populated only for the kinds that carry operands.
type Intent struct {
	Kind Kind

	// SEND operands. Recipient keeps the sender's original casing; it may be
	// a contact alias or a literal address, resolved downstream.
	Amount    decimal.Decimal
	Asset     string
	Recipient string

	// VERIFY PIN operand.
	Code string

	// ADD CONTACT operands.
	Alias   string
	Address string

	// NOTIFICATIONS operands. Category is lower-cased.
	Category string
	Enable   bool
}

// HelpText lists every supported command. It is both the reply to
// unrecognized input and the response a brand-new user sees.
const HelpText = `Commands:
CREATE - create your wallet
BALANCE - show balances
SEND <amount> <asset> TO <alias or address>
HISTORY - recent transactions
TOKENS - supported assets
SETUP PIN - get a PIN
VERIFY PIN <code>
ENABLE 2FA / DISABLE 2FA
ADD CONTACT <alias> <address>
CONTACTS - list saved contacts
NOTIFICATIONS ON|OFF <transactions|security|marketing|all>`
