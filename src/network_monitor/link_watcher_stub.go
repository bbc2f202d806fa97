//go:build !linux
// +build !linux

package network_monitor

// LinkWatcher is a no-op on platforms without netlink support; the link
// sub-signal must be fed through SetLinkState by some other means.
type LinkWatcher struct {
	monitor   *NetworkMonitor
	ifaceName string
}

// NewLinkWatcher creates a stub watcher on non-Linux systems.
func NewLinkWatcher(monitor *NetworkMonitor, ifaceName string) *LinkWatcher {
	logger.Warn("Using stub link watcher - netlink only available on Linux")
	return &LinkWatcher{monitor: monitor, ifaceName: ifaceName}
}

// Start is a no-op.
func (w *LinkWatcher) Start() error { return nil }

// Stop is a no-op.
func (w *LinkWatcher) Stop() {}
