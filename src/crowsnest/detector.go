// Package crowsnest decides whether the currently associated network is a
// TollGate and extracts its advertisement. Two strategies are supported:
// decoding the vendor information element broadcast in the gateway's beacon
// (preferred, works before any IP traffic), and probing the gateway's pubkey
// endpoint over HTTP once the gateway IP is known (fallback).
package crowsnest

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTollGate/tollgate-session-engine-go/src/gateway_client"
)

// vendorElementID is the fixed identifier at the start of a TollGate vendor
// information element: the six ASCII digits "121212".
const vendorElementID = "121212"

// ssidPrefixes are the naming conventions a TollGate SSID must match before
// the vendor element is inspected. A cheap pre-filter, not a security boundary.
var ssidPrefixes = []string{"tollgate", "openwrt"}

// VendorAdvertisement is the decoded wire form of a TollGate vendor element:
// hex-encoded ASCII, pipe-delimited, after an 8-hex-character vendor prefix.
type VendorAdvertisement struct {
	Version           string
	Pubkey            string
	AllocationType    string
	AllocationPer1024 uint64
	Unit              string
	GatewayIP         string
}

// HasTollgateSSID reports whether the SSID matches the TollGate naming
// convention ("tollgate" or, for test gateways, "openwrt"; case-insensitive).
func HasTollgateSSID(ssid string) bool {
	lower := strings.ToLower(ssid)
	for _, prefix := range ssidPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// IsTollgateNetwork reports whether a scanned network advertises TollGate
// capability. Networks whose SSID does not match the naming convention are
// rejected without inspecting information elements.
func IsTollgateNetwork(ni NetworkInfo) bool {
	if !HasTollgateSSID(ni.SSID) {
		return false
	}
	for _, ie := range ni.VendorElements {
		if hasVendorElementID(ie) {
			return true
		}
	}
	return false
}

func hasVendorElementID(ie []byte) bool {
	return len(ie) >= len(vendorElementID) && string(ie[:len(vendorElementID)]) == vendorElementID
}

// DecodeVendorElement decodes a single TollGate vendor element payload.
// Malformed or truncated elements are reported as errors so callers can fail
// soft; legacy gateways broadcast partial elements in the wild.
func DecodeVendorElement(ie []byte) (*VendorAdvertisement, error) {
	if !hasVendorElementID(ie) {
		return nil, fmt.Errorf("vendor element does not carry the TollGate identifier")
	}

	decoded, err := hex.DecodeString(string(ie[len(vendorElementID):]))
	if err != nil {
		return nil, fmt.Errorf("failed to hex-decode vendor element payload: %w", err)
	}

	payload := string(decoded)
	if len(payload) < 8 {
		return nil, fmt.Errorf("vendor element payload too short: %d chars", len(payload))
	}
	// Drop the fixed 8-hex-character vendor identifier prefix.
	payload = strings.TrimPrefix(payload[8:], "|")

	fields := strings.Split(payload, "|")
	if len(fields) < 6 {
		return nil, fmt.Errorf("vendor element has %d fields, expected at least 6", len(fields))
	}

	rate, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse allocation rate %q: %w", fields[3], err)
	}

	return &VendorAdvertisement{
		Version:           fields[0],
		Pubkey:            fields[1],
		AllocationType:    fields[2],
		AllocationPer1024: rate,
		Unit:              fields[4],
		GatewayIP:         fields[5],
	}, nil
}

// Advertisement converts the wire form into the engine's advertisement model.
// The rate field expresses allocation granted per 1024 price units, so the
// pricing option carries a fixed 1024 price per step of AllocationPer1024.
func (va *VendorAdvertisement) Advertisement() *Advertisement {
	return &Advertisement{
		Version:  va.Version,
		Metric:   va.AllocationType,
		StepSize: va.AllocationPer1024,
		Options: []PricingOption{{
			Asset:        "cashu",
			PricePerStep: 1024,
			PriceUnit:    va.Unit,
			MinSteps:     1,
		}},
		SupportedTIPs: []string{"01", "02", "03"},
		Pubkey:        va.Pubkey,
		GatewayIP:     va.GatewayIP,
	}
}

// ToAdvertisement extracts the advertisement from the first decodable
// TollGate vendor element of a scanned network.
func ToAdvertisement(ni NetworkInfo) (*Advertisement, error) {
	if !HasTollgateSSID(ni.SSID) {
		return nil, fmt.Errorf("SSID %q does not match the TollGate naming convention", ni.SSID)
	}

	var lastErr error
	for _, ie := range ni.VendorElements {
		if !hasVendorElementID(ie) {
			continue
		}
		va, err := DecodeVendorElement(ie)
		if err != nil {
			lastErr = err
			continue
		}
		return va.Advertisement(), nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no TollGate vendor element found")
}

// Detector combines both detection strategies.
type Detector struct {
	gateway *gateway_client.Client
	tracker *detectionTracker
}

// NewDetector creates a detector. The gateway client is used for the
// HTTP probe fallback; it may be nil to disable probing.
func NewDetector(gateway *gateway_client.Client) *Detector {
	return &Detector{
		gateway: gateway,
		tracker: newDetectionTracker(),
	}
}

// Detect returns the advertisement for the given network, or false when the
// network is not TollGate-enabled. The vendor element strategy is preferred;
// the HTTP probe runs only when a gateway IP is known and the vendor element
// yielded nothing. Detection never retries on its own; callers re-invoke it
// when the scan changes.
func (d *Detector) Detect(ctx context.Context, ni NetworkInfo, gatewayIP string) (*Advertisement, bool) {
	if adv, err := ToAdvertisement(ni); err == nil {
		logger.WithField("ssid", ni.SSID).Debug("Detected TollGate via vendor element")
		return adv, true
	} else if HasTollgateSSID(ni.SSID) {
		logger.WithField("ssid", ni.SSID).WithError(err).Debug("Vendor element not usable")
	}

	if d.gateway == nil || gatewayIP == "" {
		return nil, false
	}
	if !d.tracker.shouldAttempt(gatewayIP) {
		return nil, false
	}

	d.tracker.record(gatewayIP, DetectionResultPending)
	pubkey, err := d.gateway.ServicePubkey(ctx, gatewayIP)
	if err != nil {
		logger.WithField("gateway", gatewayIP).WithError(err).Debug("Pubkey probe failed")
		d.tracker.record(gatewayIP, DetectionResultNotTollGate)
		return nil, false
	}

	d.tracker.record(gatewayIP, DetectionResultSuccess)
	logger.WithField("gateway", gatewayIP).Info("Detected TollGate via pubkey probe")
	return &Advertisement{Pubkey: pubkey, GatewayIP: gatewayIP}, true
}

// Reset clears the detection dedup state; called when the network
// association changes and previous results no longer apply.
func (d *Detector) Reset() {
	d.tracker.cleanup()
}
