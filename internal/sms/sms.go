// Package sms is the boundary to the messaging gateway that actually
// delivers texts. Delivery scheduling and retry live in the notify package;
// this package only performs one outbound send.
package sms

import "context"

// Sender delivers one text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}
