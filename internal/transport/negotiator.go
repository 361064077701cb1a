package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Negotiator opens a channel to one of several candidate endpoints, in
// order, restricted to the polling transport mode. It owns the physical
// channel handle; nothing else opens or closes it.
//
// The negotiator never retries on its own: every failure is surfaced as a
// *TransportError and the retry policy lives in the sync engine.
type Negotiator struct {
	endpoints []string
	timeout   timeoutConfig
	client    *http.Client
	logger    *zap.Logger

	onFrame func(Frame)
	onClose func(error)

	mu       sync.Mutex
	ch       *pollChannel
	attempts []*TransportError
}

type timeoutConfig struct {
	connect  time.Duration
	ultraMul int
}

// Options configures a Negotiator.
type Options struct {
	// Endpoints are candidate URIs in fallback order: secure primary,
	// secure alternate, insecure last resort.
	Endpoints []string
	// ConnectTimeout bounds a single candidate attempt.
	ConnectTimeout time.Duration
	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// NewNegotiator creates a negotiator. onFrame receives every inbound frame
// in arrival order; onClose fires once if a live channel dies on its own.
func NewNegotiator(opts Options, logger *zap.Logger, onFrame func(Frame), onClose func(error)) *Negotiator {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Negotiator{
		endpoints: opts.Endpoints,
		timeout:   timeoutConfig{connect: opts.ConnectTimeout, ultraMul: 2},
		client:    client,
		logger:    logger,
		onFrame:   onFrame,
		onClose:   onClose,
	}
}

// Connect attempts each candidate endpoint in order, then one final
// ultra-safe attempt against the primary (longer timeout), before giving
// up. Returns nil once a verified polling channel is live.
func (n *Negotiator) Connect(ctx context.Context, credential string) error {
	n.mu.Lock()
	if n.ch != nil {
		n.mu.Unlock()
		return nil
	}
	n.attempts = nil
	n.mu.Unlock()

	if len(n.endpoints) == 0 {
		return &TransportError{Reason: "no candidate endpoints configured"}
	}

	for _, endpoint := range n.endpoints {
		if err := n.tryEndpoint(ctx, endpoint, credential, n.timeout.connect); err != nil {
			n.recordFailure(endpoint, err)
			continue
		}
		return nil
	}

	// Ultra-safe last resort: primary candidate, double timeout, upgrades
	// disabled at every layer (dial always disables them).
	primary := n.endpoints[0]
	ultraTimeout := n.timeout.connect * time.Duration(n.timeout.ultraMul)
	n.logger.Warn("all candidates failed, ultra-safe attempt",
		zap.String("endpoint", primary))
	if err := n.tryEndpoint(ctx, primary, credential, ultraTimeout); err != nil {
		n.recordFailure(primary, err)
		return n.lastError()
	}
	return nil
}

func (n *Negotiator) tryEndpoint(ctx context.Context, endpoint, credential string, timeout time.Duration) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n.logger.Info("connecting", zap.String("endpoint", endpoint))

	ch, err := dial(attemptCtx, endpoint, credential, n.client, n.logger, n.onFrame, n.handleClose)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.ch = ch
	n.mu.Unlock()
	n.logger.Info("channel established", zap.String("endpoint", endpoint))
	return nil
}

func (n *Negotiator) handleClose(err error) {
	n.mu.Lock()
	n.ch = nil
	n.mu.Unlock()
	if n.onClose != nil {
		n.onClose(err)
	}
}

func (n *Negotiator) recordFailure(endpoint string, err error) {
	terr := asTransportError(endpoint, err)
	n.logger.Warn("candidate failed",
		zap.String("endpoint", endpoint),
		zap.Error(err))
	n.mu.Lock()
	n.attempts = append(n.attempts, terr)
	n.mu.Unlock()
}

func (n *Negotiator) lastError() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.attempts) == 0 {
		return &TransportError{Reason: "connect failed"}
	}
	return n.attempts[len(n.attempts)-1]
}

// AttemptErrors returns the per-candidate failures of the most recent
// Connect call.
func (n *Negotiator) AttemptErrors() []*TransportError {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*TransportError, len(n.attempts))
	copy(out, n.attempts)
	return out
}

// Connected reports whether a live channel is held.
func (n *Negotiator) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch != nil
}

// Send marshals payload and queues an event frame. It is a no-op returning
// false when not connected; it never blocks and never panics.
func (n *Negotiator) Send(event string, payload any) bool {
	n.mu.Lock()
	ch := n.ch
	n.mu.Unlock()
	if ch == nil {
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("unencodable payload", zap.String("event", event), zap.Error(err))
		return false
	}
	return ch.send(Frame{Event: event, Data: data})
}

// Disconnect tears down the channel if one is live. Safe to call at any
// time, including when already disconnected. The onClose callback does not
// fire for a deliberate disconnect.
func (n *Negotiator) Disconnect() {
	n.mu.Lock()
	ch := n.ch
	n.ch = nil
	n.mu.Unlock()
	if ch != nil {
		ch.close()
	}
}

// asTransportError normalizes a dial failure. A CapabilityViolation keeps
// its identity in the chain but is retried like any transport failure.
func asTransportError(endpoint string, err error) *TransportError {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr
	}
	var cv *CapabilityViolation
	if errors.As(err, &cv) {
		return &TransportError{Endpoint: endpoint, Reason: "capability violation", Err: cv}
	}
	return &TransportError{Endpoint: endpoint, Reason: "connect failed", Err: err}
}
