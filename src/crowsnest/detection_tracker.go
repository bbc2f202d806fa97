package crowsnest

import (
	"sync"
	"time"
)

const (
	// pendingRetryAfter allows a stuck pending probe to be retried.
	pendingRetryAfter = 5 * time.Second
	// negativeRetryAfter is how long a non-TollGate verdict is remembered.
	negativeRetryAfter = 5 * time.Minute
)

// detectionTracker deduplicates probe attempts per gateway so the run loop
// does not re-probe a known-negative gateway on every tick.
type detectionTracker struct {
	lastAttempts map[string]detectionAttempt
	mu           sync.RWMutex
}

func newDetectionTracker() *detectionTracker {
	return &detectionTracker{
		lastAttempts: make(map[string]detectionAttempt),
	}
}

// shouldAttempt checks whether a probe should run for the gateway based on
// the previous result.
func (dt *detectionTracker) shouldAttempt(gatewayIP string) bool {
	dt.mu.RLock()
	defer dt.mu.RUnlock()

	last, exists := dt.lastAttempts[gatewayIP]
	if !exists {
		return true
	}

	switch last.Result {
	case DetectionResultSuccess:
		// Already confirmed; the advertisement is cached upstream.
		return true
	case DetectionResultPending:
		return time.Since(last.AttemptTime) > pendingRetryAfter
	default:
		return time.Since(last.AttemptTime) > negativeRetryAfter
	}
}

// record stores the result of a probe attempt.
func (dt *detectionTracker) record(gatewayIP string, result DetectionResult) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	dt.lastAttempts[gatewayIP] = detectionAttempt{
		GatewayIP:   gatewayIP,
		AttemptTime: time.Now(),
		Result:      result,
	}
}

// cleanup clears all recorded attempts.
func (dt *detectionTracker) cleanup() {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	dt.lastAttempts = make(map[string]detectionAttempt)
}
