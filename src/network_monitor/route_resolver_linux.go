//go:build linux
// +build linux

package network_monitor

import (
	"context"
	"fmt"

	"github.com/vishvananda/netlink"
)

// routeGatewayResolver resolves the default gateway from the kernel routing
// table via netlink.
type routeGatewayResolver struct{}

// NewGatewayResolver returns the platform gateway resolver.
func NewGatewayResolver() GatewayResolver {
	return &routeGatewayResolver{}
}

func (r *routeGatewayResolver) ResolveGatewayIP(ctx context.Context) (string, error) {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "", fmt.Errorf("failed to list routes: %w", err)
	}

	for _, route := range routes {
		if route.Dst == nil && route.Gw != nil {
			return route.Gw.String(), nil
		}
	}
	return "", fmt.Errorf("no default route found")
}
