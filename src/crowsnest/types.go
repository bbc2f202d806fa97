package crowsnest

import "time"

// NetworkInfo represents one scanned Wi-Fi network, including the raw vendor
// information elements from its beacon.
type NetworkInfo struct {
	SSID      string
	BSSID     string
	Signal    int
	Frequency int
	// VendorElements holds the payload bytes of each vendor-specific
	// information element, in beacon order.
	VendorElements [][]byte
}

// PricingOption is one way to pay for access on a gateway. An advertisement
// may carry several options for different payment assets; picking one is the
// consumer's concern.
type PricingOption struct {
	Asset        string
	PricePerStep uint64
	PriceUnit    string
	MintURL      string
	MinSteps     uint64
}

// Advertisement is the gateway's published pricing and metadata. It exists
// only for networks confirmed to be TollGate-enabled.
type Advertisement struct {
	Version       string
	Metric        string // "time" or "data-volume"
	StepSize      uint64
	Options       []PricingOption
	SupportedTIPs []string
	Pubkey        string
	GatewayIP     string
}

// DetectionResult records the outcome of a detection attempt for dedup.
type DetectionResult int

const (
	DetectionResultPending DetectionResult = iota
	DetectionResultSuccess
	DetectionResultNotTollGate
	DetectionResultError
)

// detectionAttempt tracks when a gateway was last probed and with what result.
type detectionAttempt struct {
	GatewayIP   string
	AttemptTime time.Time
	Result      DetectionResult
}
