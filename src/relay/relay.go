// Package relay provides an in-memory Khatru-based relay speaking the
// TollGate session protocol. It is embedded by tooling and integration tests
// that need to stand in for the relay a gateway hosts.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fiatjaf/khatru"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"

	"github.com/OpenTollGate/tollgate-session-engine-go/src/tollgate_protocol"
)

var logger = logrus.WithField("module", "relay")

// SessionKinds defines the event kinds accepted by this relay: purchases and
// every confirmation kind the protocol knows.
var SessionKinds = sessionKinds()

func sessionKinds() map[int]bool {
	kinds := map[int]bool{tollgate_protocol.PurchaseKind: true}
	for _, kind := range tollgate_protocol.ConfirmationKinds {
		kinds[kind] = true
	}
	return kinds
}

// SessionRelay represents an in-memory Khatru-based relay for TollGate
// session events.
type SessionRelay struct {
	relay *khatru.Relay
	store map[string]*nostr.Event
	mutex sync.RWMutex
}

// NewSessionRelay creates a new session relay instance.
func NewSessionRelay() *SessionRelay {
	sr := &SessionRelay{
		relay: khatru.NewRelay(),
		store: make(map[string]*nostr.Event),
	}

	sr.setupRelay()
	return sr
}

// setupRelay configures the Khatru relay with session protocol policies.
func (sr *SessionRelay) setupRelay() {
	sr.relay.Info.Name = "TollGate Session Relay"
	sr.relay.Info.Description = "In-memory relay for TollGate session events"
	sr.relay.Info.Version = "v0.0.1"

	sr.relay.StoreEvent = append(sr.relay.StoreEvent, sr.storeEvent)
	sr.relay.QueryEvents = append(sr.relay.QueryEvents, sr.queryEvents)
	sr.relay.DeleteEvent = append(sr.relay.DeleteEvent, sr.deleteEvent)
	sr.relay.RejectEvent = append(sr.relay.RejectEvent, sr.validateSessionKind)

	logger.Debug("Session relay configured")
}

// storeEvent stores an event in the in-memory store.
func (sr *SessionRelay) storeEvent(ctx context.Context, event *nostr.Event) error {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()

	sr.store[event.ID] = event
	logger.WithFields(logrus.Fields{
		"event_id": event.ID,
		"kind":     event.Kind,
	}).Debug("Stored event")
	return nil
}

// queryEvents queries events from the in-memory store.
func (sr *SessionRelay) queryEvents(ctx context.Context, filter nostr.Filter) (chan *nostr.Event, error) {
	sr.mutex.RLock()
	events := make([]*nostr.Event, 0)
	for _, event := range sr.store {
		if filter.Matches(event) {
			events = append(events, event)
		}
	}
	sr.mutex.RUnlock()

	ch := make(chan *nostr.Event)
	go func() {
		defer close(ch)
		for _, event := range events {
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// deleteEvent removes an event from the in-memory store.
func (sr *SessionRelay) deleteEvent(ctx context.Context, event *nostr.Event) error {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()

	delete(sr.store, event.ID)
	return nil
}

// validateSessionKind accepts only session protocol events.
func (sr *SessionRelay) validateSessionKind(ctx context.Context, event *nostr.Event) (reject bool, msg string) {
	if !SessionKinds[event.Kind] {
		return true, fmt.Sprintf("event kind %d not supported by the session protocol", event.Kind)
	}
	return false, ""
}

// GetRelay returns the underlying Khatru relay instance. The relay implements
// http.Handler, so it can be mounted on any server.
func (sr *SessionRelay) GetRelay() *khatru.Relay {
	return sr.relay
}

// Start starts the relay on the specified address.
func (sr *SessionRelay) Start(addr string) error {
	logger.WithField("addr", addr).Info("Starting session relay")
	return http.ListenAndServe(addr, sr.relay)
}

// PublishEvent publishes an event to the relay after validating its signature.
func (sr *SessionRelay) PublishEvent(event *nostr.Event) error {
	ok, err := event.CheckSignature()
	if err != nil || !ok {
		return fmt.Errorf("invalid event signature: %v", err)
	}

	return sr.storeEvent(context.Background(), event)
}

// QueryEvents queries events from the relay.
func (sr *SessionRelay) QueryEvents(filter nostr.Filter) ([]*nostr.Event, error) {
	ch, err := sr.queryEvents(context.Background(), filter)
	if err != nil {
		return nil, err
	}

	var events []*nostr.Event
	for event := range ch {
		events = append(events, event)
	}
	return events, nil
}

// GetEventCount returns the number of events stored in the relay.
func (sr *SessionRelay) GetEventCount() int {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()
	return len(sr.store)
}

// Clear removes all events from the relay.
func (sr *SessionRelay) Clear() {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()
	sr.store = make(map[string]*nostr.Event)
}

// GetAllEvents returns all events stored in the relay.
func (sr *SessionRelay) GetAllEvents() []*nostr.Event {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()

	events := make([]*nostr.Event, 0, len(sr.store))
	for _, event := range sr.store {
		events = append(events, event)
	}
	return events
}
