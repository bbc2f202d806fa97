package gateway_client

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientFor points a Client at an httptest server.
func clientFor(t *testing.T, server *httptest.Server) (*Client, string) {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return New(port, 2*time.Second), host
}

func TestWhoAmI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Success": true, "Mac": "AA:BB:CC:DD:EE:FF"}`))
	}))
	defer server.Close()

	client, host := clientFor(t, server)
	mac, err := client.WhoAmI(context.Background(), host)
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", mac)
}

func TestWhoAmIFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Success": false, "ErrorMessage": "no lease found"}`))
	}))
	defer server.Close()

	client, host := clientFor(t, server)
	_, err := client.WhoAmI(context.Background(), host)
	assert.Error(t, err)
}

func TestServicePubkey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pubkey" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("abcdef0123456789\n"))
	}))
	defer server.Close()

	client, host := clientFor(t, server)
	pubkey, err := client.ServicePubkey(context.Background(), host)
	require.NoError(t, err)
	assert.Equal(t, "abcdef0123456789", pubkey)
}

func TestServicePubkeyEmptyGateway(t *testing.T) {
	client := New(2122, time.Second)
	_, err := client.ServicePubkey(context.Background(), "")
	assert.Error(t, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, host := clientFor(t, server)
	for i := 0; i < 5; i++ {
		_, err := client.ServicePubkey(context.Background(), host)
		assert.Error(t, err)
	}

	// Breaker is open now; the request must fail without reaching the server.
	server.Close()
	_, err := client.ServicePubkey(context.Background(), host)
	assert.Error(t, err)
}
