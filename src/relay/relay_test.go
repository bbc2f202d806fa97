package relay

import (
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

func TestSessionRelay(t *testing.T) {
	sr := NewSessionRelay()

	if sr.GetEventCount() != 0 {
		t.Errorf("Expected empty relay, got %d events", sr.GetEventCount())
	}

	// Create test events for each session protocol kind
	testEvents := []*nostr.Event{
		// Purchase event (kind 21000)
		{
			ID:        "test_purchase_id",
			PubKey:    "test_pubkey_customer",
			CreatedAt: nostr.Timestamp(time.Now().Unix()),
			Kind:      21000,
			Tags: nostr.Tags{
				{"p", "test_pubkey_tollgate"},
				{"mac", "00:1a:2b:3c:4d:5e"},
			},
			Content: "cashuB...",
			Sig:     "test_signature",
		},
		// Session confirmation event (kind 2200)
		{
			ID:        "test_confirmation_2200",
			PubKey:    "test_pubkey_tollgate",
			CreatedAt: nostr.Timestamp(time.Now().Unix()),
			Kind:      2200,
			Tags: nostr.Tags{
				{"p", "test_pubkey_customer"},
				{"mac", "00:1a:2b:3c:4d:5e"},
				{"session-end", "1756000000"},
			},
			Content: "",
			Sig:     "test_signature",
		},
		// Session confirmation event (kind 22000)
		{
			ID:        "test_confirmation_22000",
			PubKey:    "test_pubkey_tollgate",
			CreatedAt: nostr.Timestamp(time.Now().Unix()),
			Kind:      22000,
			Tags: nostr.Tags{
				{"p", "test_pubkey_customer"},
				{"mac", "00:1a:2b:3c:4d:5e"},
				{"session-end", "1756000000"},
			},
			Content: "",
			Sig:     "test_signature",
		},
		// Legacy session confirmation event (kind 66666)
		{
			ID:        "test_confirmation_66666",
			PubKey:    "test_pubkey_tollgate",
			CreatedAt: nostr.Timestamp(time.Now().Unix()),
			Kind:      66666,
			Tags: nostr.Tags{
				{"p", "test_pubkey_customer"},
				{"mac", "00:1a:2b:3c:4d:5e"},
				{"session-end", "1756000000"},
			},
			Content: "",
			Sig:     "test_signature",
		},
	}

	// PublishEvent validates signatures, so fabricated events must fail
	for _, event := range testEvents {
		err := sr.PublishEvent(event)
		if err == nil {
			t.Errorf("Expected signature validation error, but got nil for event %s", event.ID)
		}
	}

	invalidEvent := &nostr.Event{
		ID:        "test_invalid_id",
		PubKey:    "test_pubkey",
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      1,
		Tags:      nostr.Tags{},
		Content:   "This should be rejected",
		Sig:       "test_signature",
	}

	reject, msg := sr.validateSessionKind(nil, invalidEvent)
	if !reject {
		t.Errorf("Expected invalid event to be rejected")
	}
	if msg == "" {
		t.Errorf("Expected rejection message for invalid kind")
	}

	reject, msg = sr.validateSessionKind(nil, testEvents[0])
	if reject {
		t.Errorf("Expected valid session event to be accepted, got: %s", msg)
	}

	sr.Clear()
	if sr.GetEventCount() != 0 {
		t.Errorf("Expected relay to be empty after clear, got %d events", sr.GetEventCount())
	}
}

func TestSessionKinds(t *testing.T) {
	expectedKinds := []int{21000, 2200, 22000, 66666}

	for _, kind := range expectedKinds {
		if !SessionKinds[kind] {
			t.Errorf("Expected session kind %d to be defined", kind)
		}
	}

	invalidKinds := []int{1, 2, 3, 4, 5, 1000, 1022, 10021, 20000, 21023}

	for _, kind := range invalidKinds {
		if SessionKinds[kind] {
			t.Errorf("Expected kind %d to not be a session kind", kind)
		}
	}
}

func TestQueryFiltering(t *testing.T) {
	sr := NewSessionRelay()

	event1 := &nostr.Event{
		ID:        "event1",
		PubKey:    "pubkey1",
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      21000,
		Tags:      nostr.Tags{},
		Content:   "",
		Sig:       "sig1",
	}

	event2 := &nostr.Event{
		ID:        "event2",
		PubKey:    "pubkey2",
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      22000,
		Tags:      nostr.Tags{},
		Content:   "",
		Sig:       "sig2",
	}

	// Store events directly (bypassing signature validation for test)
	sr.storeEvent(nil, event1)
	sr.storeEvent(nil, event2)

	filter := nostr.Filter{
		Authors: []string{"pubkey1"},
	}

	events, err := sr.QueryEvents(filter)
	if err != nil {
		t.Errorf("Error querying events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 event, got %d", len(events))
	}
	if events[0].ID != "event1" {
		t.Errorf("Expected event1, got %s", events[0].ID)
	}

	filter = nostr.Filter{
		Kinds: []int{22000},
	}

	events, err = sr.QueryEvents(filter)
	if err != nil {
		t.Errorf("Error querying events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 event, got %d", len(events))
	}
	if events[0].ID != "event2" {
		t.Errorf("Expected event2, got %s", events[0].ID)
	}

	all := sr.GetAllEvents()
	if len(all) != 2 {
		t.Errorf("Expected 2 stored events, got %d", len(all))
	}
	seen := make(map[string]bool)
	for _, event := range all {
		seen[event.ID] = true
	}
	if !seen["event1"] || !seen["event2"] {
		t.Errorf("Expected both stored events, got %v", seen)
	}
}
