package network_monitor

import (
	"context"

	"github.com/OpenTollGate/tollgate-session-engine-go/src/gateway_client"
)

// gatewayMacResolver asks the gateway's whoami endpoint which MAC address it
// sees for this client. The gateway's view is authoritative; the local
// interface MAC may be randomized or bridged.
type gatewayMacResolver struct {
	client *gateway_client.Client
}

// NewMacResolver creates a MAC resolver backed by the gateway service port.
func NewMacResolver(client *gateway_client.Client) MacResolver {
	return &gatewayMacResolver{client: client}
}

func (r *gatewayMacResolver) ResolveClientMac(ctx context.Context, gatewayIP string) (string, error) {
	return r.client.WhoAmI(ctx, gatewayIP)
}
