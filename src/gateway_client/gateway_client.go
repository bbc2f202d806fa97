// Package gateway_client talks to the TollGate service endpoints a gateway
// exposes next to its captive portal: GET / reports the client MAC as seen by
// the gateway, GET /pubkey returns the gateway's service pubkey.
package gateway_client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/OpenTollGate/tollgate-session-engine-go/src/utils"
)

var logger = logrus.WithField("module", "gateway_client")

// WhoAmIResponse is the JSON body of GET http://{gateway}:{port}/.
type WhoAmIResponse struct {
	Success      bool   `json:"Success"`
	Mac          string `json:"Mac,omitempty"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

// Client performs short-timeout probes against a gateway's service port.
// A circuit breaker keeps an unresponsive gateway from being hammered on
// every readiness re-check.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	port    int
}

// New creates a gateway client for the given service port. The timeout
// applies per request; probes are expected to answer within a few hundred
// milliseconds on the local link.
func New(port int, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "TollGate-SessionEngine/1.0").
		SetRedirectPolicy(resty.NoRedirectPolicy())

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gateway-probe",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("Gateway probe breaker state changed")
		},
	})

	return &Client{http: httpClient, breaker: breaker, port: port}
}

// WhoAmI asks the gateway which MAC address it sees for this client.
func (c *Client) WhoAmI(ctx context.Context, gatewayIP string) (string, error) {
	if gatewayIP == "" {
		return "", fmt.Errorf("gateway IP is empty")
	}

	url := fmt.Sprintf("http://%s:%d/", gatewayIP, c.port)
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var body WhoAmIResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&body).
			Get(url)
		if err != nil {
			return nil, fmt.Errorf("whoami request failed: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("whoami returned status %d", resp.StatusCode())
		}
		return &body, nil
	})
	if err != nil {
		return "", err
	}

	body := result.(*WhoAmIResponse)
	if !body.Success {
		return "", fmt.Errorf("gateway could not resolve client MAC: %s", body.ErrorMessage)
	}
	mac := strings.ToLower(strings.TrimSpace(body.Mac))
	if !utils.ValidateMACAddress(mac) {
		return "", fmt.Errorf("gateway returned invalid MAC address %q", body.Mac)
	}
	return mac, nil
}

// ServicePubkey fetches the gateway's service pubkey. A successful response
// doubles as confirmation that the gateway is TollGate-enabled.
func (c *Client) ServicePubkey(ctx context.Context, gatewayIP string) (string, error) {
	if gatewayIP == "" {
		return "", fmt.Errorf("gateway IP is empty")
	}

	url := fmt.Sprintf("http://%s:%d/pubkey", gatewayIP, c.port)
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.R().SetContext(ctx).Get(url)
		if err != nil {
			return nil, fmt.Errorf("pubkey probe failed: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("pubkey probe returned status %d", resp.StatusCode())
		}
		pubkey := strings.TrimSpace(string(resp.Body()))
		if pubkey == "" {
			return nil, fmt.Errorf("gateway returned empty pubkey")
		}
		return pubkey, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// DismissCaptivePortal issues a plain HTTP request to the gateway's portal so
// the OS/browser layer stops treating the connection as restricted. Failures
// are logged, never fatal.
func (c *Client) DismissCaptivePortal(ctx context.Context, gatewayIP string) error {
	if gatewayIP == "" {
		return fmt.Errorf("gateway IP is empty")
	}

	url := fmt.Sprintf("http://%s:80/", gatewayIP)
	portalClient := resty.New().SetTimeout(10 * time.Second)

	resp, err := portalClient.R().
		SetContext(ctx).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; TollGate-Client/1.0)").
		Get(url)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"gateway": gatewayIP,
			"error":   err,
		}).Warn("Captive portal request failed (non-critical)")
		return nil
	}

	logger.WithFields(logrus.Fields{
		"gateway":     gatewayIP,
		"status_code": resp.StatusCode(),
	}).Info("Captive portal dismissed")
	return nil
}
