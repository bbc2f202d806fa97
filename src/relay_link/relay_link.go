// Package relay_link opens and supervises the client connection to the Nostr
// relay a TollGate hosts next to its captive portal. Reachability follows the
// underlying websocket: true while the connection is open, false immediately
// on close or transport error. The link never reconnects on its own; the
// orchestrator decides when a reconnect is worth attempting.
package relay_link

import (
	"context"
	"fmt"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "relay_link")

// RelayLink supervises one relay connection. Different gateway versions host
// the relay on different ports, so a list is tried in order.
type RelayLink struct {
	mu         sync.Mutex
	ports      []int
	relay      *nostr.Relay
	reachable  bool
	connecting bool
	updates    chan bool
}

// New creates a relay link that will try the given ports in order.
func New(ports []int) *RelayLink {
	return &RelayLink{
		ports:   ports,
		updates: make(chan bool, 8),
	}
}

// Connect dials ws://{gatewayIP}:{port} for each configured port until one
// answers. Connecting while already connected is a no-op; a second concurrent
// call while a dial is in flight returns immediately.
func (l *RelayLink) Connect(ctx context.Context, gatewayIP string) error {
	l.mu.Lock()
	if l.reachable && l.relay != nil {
		l.mu.Unlock()
		return nil
	}
	if l.connecting {
		l.mu.Unlock()
		return fmt.Errorf("connect already in progress")
	}
	l.connecting = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.connecting = false
		l.mu.Unlock()
	}()

	var lastErr error
	for _, port := range l.ports {
		url := fmt.Sprintf("ws://%s:%d", gatewayIP, port)
		relay, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"url":   url,
				"error": err,
			}).Debug("Relay dial failed")
			lastErr = err
			continue
		}

		l.mu.Lock()
		l.relay = relay
		l.mu.Unlock()
		l.setReachable(true)
		logger.WithField("url", url).Info("Relay connected")

		// Flip reachability the moment the connection dies.
		go func(r *nostr.Relay) {
			<-r.Context().Done()
			l.mu.Lock()
			current := l.relay == r
			if current {
				l.relay = nil
			}
			l.mu.Unlock()
			if current {
				logger.Info("Relay connection closed")
				l.setReachable(false)
			}
		}(relay)
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no relay ports configured")
	}
	return fmt.Errorf("failed to connect to relay at %s: %w", gatewayIP, lastErr)
}

// Disconnect tears the connection down. Safe to call when not connected.
func (l *RelayLink) Disconnect() {
	l.mu.Lock()
	relay := l.relay
	l.relay = nil
	l.mu.Unlock()

	if relay != nil {
		relay.Close()
		l.setReachable(false)
	}
}

// Reachable reports whether the relay connection is currently open.
func (l *RelayLink) Reachable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reachable
}

// Updates delivers reachability transitions to a single consumer.
func (l *RelayLink) Updates() <-chan bool {
	return l.updates
}

func (l *RelayLink) setReachable(reachable bool) {
	l.mu.Lock()
	changed := l.reachable != reachable
	l.reachable = reachable
	l.mu.Unlock()

	if !changed {
		return
	}
	select {
	case l.updates <- reachable:
	default:
		logger.Warn("Reachability channel full, dropping update")
	}
}

// Publish sends a pre-signed event to the relay.
func (l *RelayLink) Publish(ctx context.Context, event nostr.Event) error {
	l.mu.Lock()
	relay := l.relay
	l.mu.Unlock()

	if relay == nil {
		return fmt.Errorf("relay is not connected")
	}
	if err := relay.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe opens a subscription for the given filters and returns the lazy
// event stream together with a cancel function. The stream stays open until
// cancelled or the connection drops.
func (l *RelayLink) Subscribe(ctx context.Context, filters nostr.Filters) (<-chan *nostr.Event, func(), error) {
	l.mu.Lock()
	relay := l.relay
	l.mu.Unlock()

	if relay == nil {
		return nil, nil, fmt.Errorf("relay is not connected")
	}
	sub, err := relay.Subscribe(ctx, filters)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return sub.Events, sub.Unsub, nil
}
