package network_monitor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGatewayResolver struct {
	ip  string
	err error
}

func (f *fakeGatewayResolver) ResolveGatewayIP(ctx context.Context) (string, error) {
	return f.ip, f.err
}

type fakeMacResolver struct {
	mac   string
	err   error
	calls int
}

func (f *fakeMacResolver) ResolveClientMac(ctx context.Context, gatewayIP string) (string, error) {
	f.calls++
	return f.mac, f.err
}

func TestReadinessCombinations(t *testing.T) {
	for i := 0; i < 8; i++ {
		linkUp := i&1 != 0
		gwOk := i&2 != 0
		macOk := i&4 != 0

		t.Run(fmt.Sprintf("link=%v_gw=%v_mac=%v", linkUp, gwOk, macOk), func(t *testing.T) {
			gw := &fakeGatewayResolver{ip: "192.168.1.1"}
			if !gwOk {
				gw.err = fmt.Errorf("no default route")
			}
			mac := &fakeMacResolver{mac: "aa:bb:cc:dd:ee:ff"}
			if !macOk {
				mac.err = fmt.Errorf("gateway unreachable")
			}

			m := New(gw, mac)
			m.SetLinkState(linkUp)
			m.PerformCheck(context.Background())

			snap := m.Snapshot()
			gwKnown := gwOk
			macKnown := gwOk && macOk
			assert.Equal(t, gwKnown, snap.GatewayIP != "")
			assert.Equal(t, macKnown, snap.ClientMac != "")
			assert.Equal(t, linkUp && gwKnown && macKnown, snap.Ready)
		})
	}
}

func TestPerformCheckFailureLeavesSignalsUnknown(t *testing.T) {
	gw := &fakeGatewayResolver{err: fmt.Errorf("timeout")}
	m := New(gw, &fakeMacResolver{})
	m.SetLinkState(true)

	err := m.PerformCheck(context.Background())
	assert.Error(t, err)
	assert.False(t, m.Ready())
	assert.Empty(t, m.Snapshot().GatewayIP)
}

func TestPerformCheckDoesNotRetry(t *testing.T) {
	mac := &fakeMacResolver{err: fmt.Errorf("no response")}
	m := New(&fakeGatewayResolver{ip: "10.0.0.1"}, mac)
	m.SetLinkState(true)

	m.PerformCheck(context.Background())
	assert.Equal(t, 1, mac.calls, "a failed resolution must not be retried internally")
	assert.False(t, m.Ready())

	// The consumer drives retries by checking again.
	mac.err = nil
	mac.mac = "aa:bb:cc:dd:ee:ff"
	require.NoError(t, m.PerformCheck(context.Background()))
	assert.True(t, m.Ready())
}

func TestLinkLossClearsAllSignals(t *testing.T) {
	m := New(&fakeGatewayResolver{ip: "10.0.0.1"}, &fakeMacResolver{mac: "aa:bb:cc:dd:ee:ff"})
	m.SetLinkState(true)
	require.NoError(t, m.PerformCheck(context.Background()))
	require.True(t, m.Ready())

	m.SetLinkState(false)
	snap := m.Snapshot()
	assert.False(t, snap.Ready)
	assert.Empty(t, snap.GatewayIP)
	assert.Empty(t, snap.ClientMac)
}

func TestReset(t *testing.T) {
	m := New(&fakeGatewayResolver{ip: "10.0.0.1"}, &fakeMacResolver{mac: "aa:bb:cc:dd:ee:ff"})
	m.SetLinkState(true)
	require.NoError(t, m.PerformCheck(context.Background()))

	m.Reset()
	assert.False(t, m.Ready())
}

func TestSubscribeNotifiesOnlyOnChange(t *testing.T) {
	m := New(&fakeGatewayResolver{ip: "10.0.0.1"}, &fakeMacResolver{mac: "aa:bb:cc:dd:ee:ff"})
	ch, cancel := m.Subscribe()
	defer cancel()

	m.SetLinkState(true)
	require.NoError(t, m.PerformCheck(context.Background()))

	var updates []Snapshot
	for len(ch) > 0 {
		updates = append(updates, <-ch)
	}
	require.NotEmpty(t, updates)
	assert.True(t, updates[len(updates)-1].Ready)
	got := len(updates)

	// A re-check resolving identical values must not re-emit: readiness is
	// monotonic within one association.
	require.NoError(t, m.PerformCheck(context.Background()))
	assert.Equal(t, got, got+len(ch))
}

func TestGatewayChangeInvalidatesMac(t *testing.T) {
	gw := &fakeGatewayResolver{ip: "10.0.0.1"}
	mac := &fakeMacResolver{mac: "aa:bb:cc:dd:ee:ff"}
	m := New(gw, mac)
	m.SetLinkState(true)
	require.NoError(t, m.PerformCheck(context.Background()))
	require.True(t, m.Ready())

	// The gateway changed and MAC resolution against it fails: the stale
	// MAC from the previous association must not keep readiness true.
	gw.ip = "192.168.77.1"
	mac.err = fmt.Errorf("unreachable")
	m.PerformCheck(context.Background())

	snap := m.Snapshot()
	assert.Equal(t, "192.168.77.1", snap.GatewayIP)
	assert.Empty(t, snap.ClientMac)
	assert.False(t, snap.Ready)
}
