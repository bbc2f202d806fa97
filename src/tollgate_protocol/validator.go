// Package tollgate_protocol defines the event kinds and tag conventions of
// the TollGate session protocol and validates events on both directions.
package tollgate_protocol

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// PurchaseKind is the Nostr event kind of purchase events sent to a gateway.
const PurchaseKind = 21000

// ConfirmationKinds are the kinds gateways answer purchases with. Different
// gateway versions use different kinds; clients subscribe to all of them.
var ConfirmationKinds = []int{2200, 22000, 66666}

// IsConfirmationKind reports whether kind is a session confirmation kind.
func IsConfirmationKind(kind int) bool {
	for _, k := range ConfirmationKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// TagValue returns the first value of the named tag, or "" when absent.
func TagValue(event *nostr.Event, name string) string {
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// ValidatePurchase checks that an event is a well-formed, correctly signed
// purchase: right kind, gateway pubkey in `p`, client MAC in `mac`, and a
// payment token as content.
func ValidatePurchase(event *nostr.Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if event.Kind != PurchaseKind {
		return fmt.Errorf("invalid event kind: %d, expected %d", event.Kind, PurchaseKind)
	}
	if TagValue(event, "p") == "" {
		return fmt.Errorf("purchase is missing the p tag")
	}
	if TagValue(event, "mac") == "" {
		return fmt.Errorf("purchase is missing the mac tag")
	}
	if event.Content == "" {
		return fmt.Errorf("purchase carries no payment token")
	}

	ok, err := event.CheckSignature()
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// Confirmation is the session grant parsed out of a confirmation event.
type Confirmation struct {
	Mac        string
	SessionEnd time.Time
}

// ParseConfirmation extracts the session grant from a confirmation event.
// Events of the wrong kind, or missing the `mac` or `session-end` tag, are
// not confirmations; callers ignore them rather than treat them as errors.
func ParseConfirmation(event *nostr.Event) (*Confirmation, error) {
	if event == nil {
		return nil, fmt.Errorf("event is nil")
	}
	if !IsConfirmationKind(event.Kind) {
		return nil, fmt.Errorf("kind %d is not a confirmation kind", event.Kind)
	}

	mac := TagValue(event, "mac")
	if mac == "" {
		return nil, fmt.Errorf("confirmation is missing the mac tag")
	}
	sessionEnd := TagValue(event, "session-end")
	if sessionEnd == "" {
		return nil, fmt.Errorf("confirmation is missing the session-end tag")
	}
	endUnix, err := strconv.ParseInt(sessionEnd, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("unparseable session-end %q: %w", sessionEnd, err)
	}

	return &Confirmation{Mac: mac, SessionEnd: time.Unix(endUnix, 0)}, nil
}
