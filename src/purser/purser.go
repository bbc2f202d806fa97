// Package purser drives the paid-session lifecycle against a TollGate. It
// owns the session state machine: it watches network readiness, gateway
// advertisements and relay reachability, and on a rising edge of all three it
// buys access by publishing a purchase event and waiting for the gateway's
// session confirmation.
package purser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"

	"github.com/OpenTollGate/tollgate-session-engine-go/src/crowsnest"
	"github.com/OpenTollGate/tollgate-session-engine-go/src/tollgate_protocol"
)

var logger = logrus.WithField("module", "purser")

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePurchasing
	StateAwaitingConfirmation
	StateActive
	StateExpired
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePurchasing:
		return "purchasing"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Relay is the purser's view of the relay connection. Connect and Disconnect
// are driven by the purser: the connection is reused across purchase attempts
// on the same network but torn down on readiness loss.
type Relay interface {
	Connect(ctx context.Context, gatewayIP string) error
	Disconnect()
	Reachable() bool
	Updates() <-chan bool
	Publish(ctx context.Context, event nostr.Event) error
	Subscribe(ctx context.Context, filters nostr.Filters) (<-chan *nostr.Event, func(), error)
}

// TokenSource mints a payment token from the wallet. The token is a bearer
// instrument; acquisition is the irreversible part of a purchase attempt.
type TokenSource interface {
	AcquireToken(ctx context.Context, amount uint64, mintURL string) (string, error)
}

// PortalDismisser tells the OS layer that network access is now unrestricted.
type PortalDismisser interface {
	DismissCaptivePortal(ctx context.Context, gatewayIP string) error
}

// Signals is one consistent snapshot of the purser's inputs, delivered by the
// run loop whenever the network monitor or the detector produce news.
type Signals struct {
	Ready         bool
	GatewayIP     string
	ClientMac     string
	Advertisement *crowsnest.Advertisement
}

// Session describes the currently active (or last) paid session.
type Session struct {
	Mac        string
	Expiry     time.Time
	SessionKey string // public key of the key that signed the purchase
}

// Options tune the purser's timing and fallback pricing.
type Options struct {
	// ConfirmationTimeout bounds the wait for a session confirmation after a
	// purchase was published.
	ConfirmationTimeout time.Duration
	// ConfirmationSkew widens the subscription's lower time bound so a
	// confirmation published just before the subscription opened is not missed.
	ConfirmationSkew time.Duration
	// DismissDelay is how long after activation the captive portal dismissal
	// fires. Cancelled if the session is reset before it elapses.
	DismissDelay time.Duration
	// ConnectTimeout bounds one relay dial.
	ConnectTimeout time.Duration
	// DefaultAmount and DefaultMintURL are used when the advertisement carries
	// no usable pricing option (relay-probe detections).
	DefaultAmount  uint64
	DefaultMintURL string
	// Renew re-arms the trigger on expiry so an uninterrupted network keeps
	// the session alive with back-to-back purchases.
	Renew bool
}

// attempt is one purchase attempt. Every attempt has its own key and its own
// cancellation scope; a superseded attempt's confirmations are dropped by id.
type attempt struct {
	id        string
	secretKey string
	publicKey string
	mac       string
	gatewayIP string
	ad        *crowsnest.Advertisement
	ctx       context.Context
	cancel    context.CancelFunc
	subCtx    context.Context
	cancelSub context.CancelFunc
}

type confirmation struct {
	attemptID string
	event     *nostr.Event
}

type attemptResult struct {
	attemptID string
	err       error
}

// Purser is the session orchestrator. All state transitions happen on one
// event-loop goroutine; blocking work (token minting, relay I/O) runs on
// per-attempt goroutines that report back through channels.
type Purser struct {
	relay  Relay
	tokens TokenSource
	portal PortalDismisser
	opts   Options

	signalsCh     chan Signals
	exhaustedCh   chan struct{}
	confirmations chan confirmation
	results       chan attemptResult
	connectDone   chan error

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	startMu  sync.Mutex

	mu      sync.RWMutex
	state   State
	session *Session

	// loop-owned, never touched outside run()
	latest     Signals
	attempt    *attempt
	prevAll    bool
	connecting bool
	confirmC   <-chan time.Time
	expiryC    <-chan time.Time
}

// New creates a purser. Zero-valued options get sensible defaults.
func New(relay Relay, tokens TokenSource, portal PortalDismisser, opts Options) *Purser {
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = 45 * time.Second
	}
	if opts.ConfirmationSkew <= 0 {
		opts.ConfirmationSkew = 5 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &Purser{
		relay:         relay,
		tokens:        tokens,
		portal:        portal,
		opts:          opts,
		signalsCh:     make(chan Signals, 16),
		exhaustedCh:   make(chan struct{}, 1),
		confirmations: make(chan confirmation, 16),
		results:       make(chan attemptResult, 4),
		connectDone:   make(chan error, 1),
		stopChan:      make(chan struct{}),
		state:         StateIdle,
	}
}

// Start launches the event loop.
func (p *Purser) Start() error {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.running {
		return fmt.Errorf("purser is already running")
	}
	p.running = true
	p.wg.Add(1)
	go p.run()
	logger.Info("Purser started")
	return nil
}

// Stop terminates the event loop and cancels any in-flight attempt.
func (p *Purser) Stop() {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	p.running = false
}

// State returns the current lifecycle state.
func (p *Purser) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Session returns a copy of the current session, or nil when none is active.
func (p *Purser) Session() *Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return nil
	}
	s := *p.session
	return &s
}

// UpdateSignals feeds the purser a fresh snapshot of its preconditions.
func (p *Purser) UpdateSignals(s Signals) {
	select {
	case p.signalsCh <- s:
	case <-p.stopChan:
	}
}

// ReportExhausted signals that the purchased allotment is used up before the
// recorded expiry. Ignored outside an active session.
func (p *Purser) ReportExhausted() {
	select {
	case p.exhaustedCh <- struct{}{}:
	default:
	}
}

func (p *Purser) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			p.cancelAttempt()
			p.relay.Disconnect()
			return
		case s := <-p.signalsCh:
			p.latest = s
			if !s.Ready {
				p.resetToIdle(true)
			}
			p.maybeConnect()
			p.evaluate()
		case up := <-p.relay.Updates():
			if !up {
				// The gateway side closed the connection; the session cannot
				// be confirmed or renewed over a dead relay.
				p.resetToIdle(false)
			}
			p.evaluate()
		case err := <-p.connectDone:
			p.connecting = false
			if err != nil {
				logger.WithField("error", err).Debug("Relay connect failed")
			}
			p.evaluate()
		case r := <-p.results:
			p.handleResult(r)
		case c := <-p.confirmations:
			p.handleConfirmation(c)
		case <-p.confirmC:
			p.handleConfirmationTimeout()
		case <-p.expiryC:
			p.expire()
		case <-p.exhaustedCh:
			if p.State() == StateActive {
				logger.Info("Allotment exhausted before recorded expiry")
				p.expire()
			}
		}
	}
}

// maybeConnect dials the relay when readiness holds and no connection exists.
// Only driven by fresh signal snapshots, so a refusing gateway is retried at
// the run loop's check cadence rather than in a tight loop.
func (p *Purser) maybeConnect() {
	if !p.latest.Ready || p.relay.Reachable() || p.connecting || p.latest.GatewayIP == "" {
		return
	}
	p.connecting = true
	go func(gatewayIP string) {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.ConnectTimeout)
		defer cancel()
		err := p.relay.Connect(ctx, gatewayIP)
		select {
		case p.connectDone <- err:
		case <-p.stopChan:
		}
	}(p.latest.GatewayIP)
}

// evaluate recomputes the trigger conjunction and fires a purchase attempt on
// its rising edge. Called after every input change.
func (p *Purser) evaluate() {
	all := p.latest.Ready && p.latest.Advertisement != nil && p.relay.Reachable()
	rising := all && !p.prevAll
	p.prevAll = all

	if !rising {
		return
	}

	switch p.State() {
	case StateExpired, StateError:
		// Terminal for the previous attempt only; a fresh edge recycles.
		p.setState(StateIdle)
	}
	p.startAttempt()
}

// startAttempt begins a purchase with a fresh session key. A prior in-flight
// attempt is superseded, never queued behind; a still-active session is
// discarded with it so observers never see the old session under a new
// attempt.
func (p *Purser) startAttempt() {
	p.cancelAttempt()
	p.expiryC = nil
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()

	secretKey := nostr.GeneratePrivateKey()
	publicKey, err := nostr.GetPublicKey(secretKey)
	if err != nil {
		logger.WithField("error", err).Error("Failed to derive session pubkey")
		p.setState(StateError)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	subCtx, cancelSub := context.WithCancel(ctx)
	a := &attempt{
		id:        uuid.NewString(),
		secretKey: secretKey,
		publicKey: publicKey,
		mac:       p.latest.ClientMac,
		gatewayIP: p.latest.GatewayIP,
		ad:        p.latest.Advertisement,
		ctx:       ctx,
		cancel:    cancel,
		subCtx:    subCtx,
		cancelSub: cancelSub,
	}
	p.attempt = a
	p.setState(StatePurchasing)
	logger.WithFields(logrus.Fields{
		"attempt":     a.id,
		"gateway_ip":  a.gatewayIP,
		"session_key": a.publicKey,
	}).Info("Starting purchase attempt")

	p.wg.Add(1)
	go p.runPurchase(a)
}

// runPurchase performs the blocking half of an attempt: mint a token, open the
// confirmation subscription, publish the purchase event. Runs off-loop.
func (p *Purser) runPurchase(a *attempt) {
	defer p.wg.Done()

	amount, mintURL := p.pricing(a.ad)
	token, err := p.tokens.AcquireToken(a.ctx, amount, mintURL)
	if err != nil {
		p.report(a, fmt.Errorf("failed to acquire payment token: %w", err))
		return
	}

	// Subscribe before publishing so a fast confirmation is not missed.
	since := nostr.Timestamp(time.Now().Add(-p.opts.ConfirmationSkew).Unix())
	events, unsub, err := p.relay.Subscribe(a.subCtx, nostr.Filters{{
		Kinds: tollgate_protocol.ConfirmationKinds,
		Since: &since,
	}})
	if err != nil {
		p.report(a, fmt.Errorf("failed to subscribe for confirmations: %w", err))
		return
	}

	event := nostr.Event{
		Kind:      tollgate_protocol.PurchaseKind,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{"p", a.ad.Pubkey},
			{"mac", a.mac},
		},
		Content: token,
	}
	if err := event.Sign(a.secretKey); err != nil {
		unsub()
		p.report(a, fmt.Errorf("failed to sign purchase event: %w", err))
		return
	}
	if err := p.relay.Publish(a.ctx, event); err != nil {
		unsub()
		p.report(a, fmt.Errorf("failed to publish purchase event: %w", err))
		return
	}
	p.report(a, nil)

	defer unsub()
	for {
		select {
		case <-a.subCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev == nil {
				continue
			}
			select {
			case p.confirmations <- confirmation{attemptID: a.id, event: ev}:
			case <-a.subCtx.Done():
				return
			}
		}
	}
}

// pricing picks amount and mint from the advertisement, falling back to the
// configured defaults when the detection carried no pricing (relay probe).
func (p *Purser) pricing(ad *crowsnest.Advertisement) (uint64, string) {
	amount := p.opts.DefaultAmount
	mintURL := p.opts.DefaultMintURL
	if ad != nil && len(ad.Options) > 0 {
		option := ad.Options[0]
		steps := option.MinSteps
		if steps == 0 {
			steps = 1
		}
		if option.PricePerStep > 0 {
			amount = option.PricePerStep * steps
		}
		if option.MintURL != "" {
			mintURL = option.MintURL
		}
	}
	return amount, mintURL
}

func (p *Purser) report(a *attempt, err error) {
	select {
	case p.results <- attemptResult{attemptID: a.id, err: err}:
	case <-p.stopChan:
	}
}

func (p *Purser) handleResult(r attemptResult) {
	if p.attempt == nil || r.attemptID != p.attempt.id {
		return
	}
	if r.err != nil {
		logger.WithFields(logrus.Fields{
			"attempt": r.attemptID,
			"error":   r.err,
		}).Warn("Purchase attempt failed")
		p.cancelAttempt()
		p.setState(StateError)
		return
	}

	p.setState(StateAwaitingConfirmation)
	p.confirmC = time.After(p.opts.ConfirmationTimeout)
}

func (p *Purser) handleConfirmation(c confirmation) {
	if p.attempt == nil || c.attemptID != p.attempt.id {
		return
	}
	if p.State() != StateAwaitingConfirmation {
		return
	}

	grant, err := tollgate_protocol.ParseConfirmation(c.event)
	if err != nil {
		// Not a confirmation for anyone; ignored, not an error.
		logger.WithField("attempt", c.attemptID).WithError(err).Debug("Ignoring event")
		return
	}
	if !strings.EqualFold(grant.Mac, p.attempt.mac) {
		// Another purchaser on the same relay.
		return
	}
	expiry := grant.SessionEnd

	a := p.attempt
	a.cancelSub()
	p.confirmC = nil
	p.expiryC = time.After(time.Until(expiry))

	p.mu.Lock()
	p.session = &Session{Mac: a.mac, Expiry: expiry, SessionKey: a.publicKey}
	p.state = StateActive
	p.mu.Unlock()
	logger.WithFields(logrus.Fields{
		"attempt": a.id,
		"expiry":  expiry,
	}).Info("Session active")

	p.scheduleDismissal(a)
}

// scheduleDismissal notifies the OS layer after a short delay, through the
// attempt's cancellation scope so a reset before the delay elapses cancels it.
func (p *Purser) scheduleDismissal(a *attempt) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(p.opts.DismissDelay):
		}
		ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
		defer cancel()
		if err := p.portal.DismissCaptivePortal(ctx, a.gatewayIP); err != nil {
			logger.WithField("error", err).Debug("Captive portal dismissal failed")
		}
	}()
}

func (p *Purser) handleConfirmationTimeout() {
	if p.State() != StateAwaitingConfirmation {
		return
	}
	logger.WithField("attempt", p.attempt.id).Warn("No session confirmation before timeout")
	p.cancelAttempt()
	p.confirmC = nil
	p.setState(StateError)
}

func (p *Purser) expire() {
	if p.State() != StateActive {
		return
	}
	logger.Info("Session expired")
	p.cancelAttempt()
	p.expiryC = nil
	p.mu.Lock()
	p.session = nil
	p.state = StateExpired
	p.mu.Unlock()

	if p.opts.Renew {
		// Re-arm so the next evaluation buys again without a network flap.
		p.prevAll = false
		p.evaluate()
	}
}

// resetToIdle discards the attempt, session key and confirmation state. The
// relay is torn down on readiness loss because the gateway identity may have
// changed; on relay loss the connection is already gone.
func (p *Purser) resetToIdle(disconnectRelay bool) {
	if p.State() == StateIdle && p.attempt == nil && p.Session() == nil {
		if disconnectRelay {
			p.relay.Disconnect()
		}
		return
	}

	p.cancelAttempt()
	p.confirmC = nil
	p.expiryC = nil
	p.mu.Lock()
	p.session = nil
	p.state = StateIdle
	p.mu.Unlock()
	if disconnectRelay {
		p.relay.Disconnect()
	}
	logger.Info("Session state reset to idle")
}

func (p *Purser) cancelAttempt() {
	if p.attempt != nil {
		p.attempt.cancel()
		p.attempt = nil
	}
}

func (p *Purser) setState(s State) {
	p.mu.Lock()
	changed := p.state != s
	old := p.state
	p.state = s
	p.mu.Unlock()
	if changed {
		logger.WithFields(logrus.Fields{
			"from": old.String(),
			"to":   s.String(),
		}).Debug("State transition")
	}
}
