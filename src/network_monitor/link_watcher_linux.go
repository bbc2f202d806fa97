//go:build linux
// +build linux

package network_monitor

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

// LinkWatcher feeds the monitor's link-connected sub-signal from netlink
// link updates for one interface.
type LinkWatcher struct {
	monitor   *NetworkMonitor
	ifaceName string
	stopChan  chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

// NewLinkWatcher creates a watcher for the given interface.
func NewLinkWatcher(monitor *NetworkMonitor, ifaceName string) *LinkWatcher {
	return &LinkWatcher{
		monitor:   monitor,
		ifaceName: ifaceName,
		stopChan:  make(chan struct{}),
	}
}

// Start subscribes to link updates and seeds the current link state.
func (w *LinkWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("link watcher is already running")
	}

	// Seed the initial state so the monitor does not wait for the first
	// kernel event.
	if link, err := netlink.LinkByName(w.ifaceName); err == nil {
		w.monitor.SetLinkState(link.Attrs().Flags&net.FlagUp != 0)
	}

	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return fmt.Errorf("failed to subscribe to link updates: %w", err)
	}

	w.running = true
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.stopChan:
				close(done)
				return
			case update := <-updates:
				w.handleLinkUpdate(update)
			}
		}
	}()

	logger.WithField("interface", w.ifaceName).Info("Link watcher started")
	return nil
}

// Stop terminates the watcher.
func (w *LinkWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopChan)
	w.running = false
	w.wg.Wait()
}

func (w *LinkWatcher) handleLinkUpdate(update netlink.LinkUpdate) {
	link := update.Link
	if link == nil || link.Attrs() == nil {
		return
	}
	if link.Attrs().Name != w.ifaceName {
		return
	}

	up := link.Attrs().Flags&net.FlagUp != 0
	logger.WithFields(logrus.Fields{
		"interface": w.ifaceName,
		"up":        up,
	}).Debug("Link state changed")
	w.monitor.SetLinkState(up)
}
