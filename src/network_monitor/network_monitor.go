// Package network_monitor composes link state, gateway IP and client MAC
// resolution into a single continuously-updated readiness signal.
package network_monitor

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "network_monitor")

// Snapshot is one consistent view of the monitor's sub-signals. Ready is
// true iff the link is up and both gateway IP and client MAC are known.
type Snapshot struct {
	LinkUp    bool
	GatewayIP string
	ClientMac string
	Ready     bool
}

// GatewayResolver resolves the default gateway's IP address.
type GatewayResolver interface {
	ResolveGatewayIP(ctx context.Context) (string, error)
}

// MacResolver resolves the client MAC address as seen from the gateway.
type MacResolver interface {
	ResolveClientMac(ctx context.Context, gatewayIP string) (string, error)
}

// NetworkMonitor tracks the three readiness sub-signals behind one mutex so
// observers never see a transiently-inconsistent readiness value. It does not
// retry failed resolutions on its own; callers drive retries by invoking
// PerformCheck again.
type NetworkMonitor struct {
	mu        sync.Mutex
	linkUp    bool
	gatewayIP string
	clientMac string

	subscribers map[int]chan Snapshot
	nextSubID   int

	gateway GatewayResolver
	mac     MacResolver
}

// New creates a network monitor using the given resolvers.
func New(gateway GatewayResolver, mac MacResolver) *NetworkMonitor {
	return &NetworkMonitor{
		subscribers: make(map[int]chan Snapshot),
		gateway:     gateway,
		mac:         mac,
	}
}

// Snapshot returns the current state.
func (m *NetworkMonitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Ready reports whether all three sub-signals are known.
func (m *NetworkMonitor) Ready() bool {
	return m.Snapshot().Ready
}

func (m *NetworkMonitor) snapshotLocked() Snapshot {
	return Snapshot{
		LinkUp:    m.linkUp,
		GatewayIP: m.gatewayIP,
		ClientMac: m.clientMac,
		Ready:     m.linkUp && m.gatewayIP != "" && m.clientMac != "",
	}
}

// Subscribe registers an observer. The returned cancel function must be
// called to release the subscription.
func (m *NetworkMonitor) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Snapshot, 16)
	m.subscribers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// mutate applies fn under the lock, recomputes readiness and notifies
// subscribers only when the snapshot actually changed.
func (m *NetworkMonitor) mutate(fn func()) {
	m.mu.Lock()
	before := m.snapshotLocked()
	fn()
	after := m.snapshotLocked()
	subs := make([]chan Snapshot, 0, len(m.subscribers))
	if after != before {
		for _, ch := range m.subscribers {
			subs = append(subs, ch)
		}
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- after:
		default:
			logger.Warn("Subscriber channel full, dropping readiness update")
		}
	}
}

// SetLinkState records the link-layer association state. Losing the link
// means the association changed, so all sub-signals are cleared.
func (m *NetworkMonitor) SetLinkState(up bool) {
	m.mutate(func() {
		if up {
			m.linkUp = true
			return
		}
		m.linkUp = false
		m.gatewayIP = ""
		m.clientMac = ""
	})
}

// Reset clears all sub-signals back to unknown.
func (m *NetworkMonitor) Reset() {
	m.mutate(func() {
		m.linkUp = false
		m.gatewayIP = ""
		m.clientMac = ""
	})
}

// PerformCheck resolves the gateway IP and, with it, the client MAC address
// seen from the gateway's perspective. A failed resolution leaves the
// corresponding sub-signal unknown; readiness stays false until a later
// check succeeds.
func (m *NetworkMonitor) PerformCheck(ctx context.Context) error {
	gatewayIP, err := m.gateway.ResolveGatewayIP(ctx)
	if err != nil {
		logger.WithError(err).Debug("Gateway IP resolution failed")
		return err
	}

	m.mutate(func() {
		if m.gatewayIP != "" && m.gatewayIP != gatewayIP {
			// Different gateway means a different association; the
			// previously resolved MAC no longer applies.
			m.clientMac = ""
		}
		m.gatewayIP = gatewayIP
	})

	clientMac, err := m.mac.ResolveClientMac(ctx, gatewayIP)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"gateway": gatewayIP,
			"error":   err,
		}).Debug("Client MAC resolution failed")
		return err
	}

	m.mutate(func() {
		m.clientMac = clientMac
	})
	return nil
}
