//go:build !linux
// +build !linux

package network_monitor

import (
	"context"
	"fmt"
)

// stubGatewayResolver is used on platforms without netlink support.
type stubGatewayResolver struct{}

// NewGatewayResolver returns a stub resolver on non-Linux systems.
func NewGatewayResolver() GatewayResolver {
	logger.Warn("Using stub gateway resolver - netlink only available on Linux")
	return &stubGatewayResolver{}
}

func (r *stubGatewayResolver) ResolveGatewayIP(ctx context.Context) (string, error) {
	return "", fmt.Errorf("gateway resolution not supported on this platform")
}
