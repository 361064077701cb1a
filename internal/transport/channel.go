package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// modePolling is the only transport mode the channel will operate in.
// Long-polling is store-and-forward: no persistent socket whose silent death
// can take the host process with it.
const modePolling = "polling"

type handshakeRequest struct {
	Token     string `json:"token"`
	Transport string `json:"transport"`
	// AllowUpgrades asks the server not to advertise upgradable transports.
	AllowUpgrades bool `json:"allowUpgrades"`
}

type handshakeResponse struct {
	SID       string   `json:"sid"`
	Transport string   `json:"transport"`
	Upgrades  []string `json:"upgrades"`
}

// pollChannel is a long-polling channel bound to a single endpoint and
// session id. It delivers inbound frames in arrival order from a single
// receive goroutine.
type pollChannel struct {
	endpoint string
	sid      string
	client   *http.Client
	logger   *zap.Logger

	onFrame func(Frame)
	onClose func(error)

	sendq  chan Frame
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// dial performs the handshake against one endpoint and, on success, starts
// the receive and send loops. The returned channel is live.
func dial(ctx context.Context, endpoint, token string, client *http.Client, logger *zap.Logger, onFrame func(Frame), onClose func(error)) (*pollChannel, error) {
	body, err := json.Marshal(handshakeRequest{
		Token:         token,
		Transport:     modePolling,
		AllowUpgrades: false,
	})
	if err != nil {
		return nil, fmt.Errorf("encode handshake: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/chat/handshake", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("handshake request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("handshake: unexpected status %d", resp.StatusCode)
	}

	var hs handshakeResponse
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return nil, fmt.Errorf("decode handshake: %w", err)
	}
	if hs.SID == "" {
		return nil, fmt.Errorf("handshake: empty session id")
	}

	// Defense in depth: even with upgrades disabled in the request, refuse a
	// channel whose negotiated mode is not polling or that still advertises
	// upgrade paths.
	if hs.Transport != modePolling || len(hs.Upgrades) > 0 {
		mode := hs.Transport
		if len(hs.Upgrades) > 0 {
			mode = fmt.Sprintf("%s+upgrades:%v", hs.Transport, hs.Upgrades)
		}
		return nil, &CapabilityViolation{Endpoint: endpoint, Mode: mode}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	ch := &pollChannel{
		endpoint: endpoint,
		sid:      hs.SID,
		client:   client,
		logger:   logger,
		onFrame:  onFrame,
		onClose:  onClose,
		sendq:    make(chan Frame, 64),
		cancel:   cancel,
	}

	go ch.recvLoop(loopCtx)
	go ch.sendLoop(loopCtx)

	return ch, nil
}

// send queues a frame for delivery. Returns false if the channel is closed
// or the queue is full; it never blocks.
func (c *pollChannel) send(f Frame) bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}
	select {
	case c.sendq <- f:
		return true
	default:
		c.logger.Warn("send queue full, dropping frame", zap.String("event", f.Event))
		return false
	}
}

// close tears the channel down. Idempotent; the onClose callback fires at
// most once and never for a deliberate close.
func (c *pollChannel) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

// fail marks the channel dead and reports the cause upstream.
func (c *pollChannel) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	if c.onClose != nil {
		c.onClose(err)
	}
}

func (c *pollChannel) recvLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		frames, err := c.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.fail(&TransportError{Endpoint: c.endpoint, Reason: "poll failed", Err: err})
			return
		}

		for _, f := range frames {
			c.onFrame(f)
		}
	}
}

func (c *pollChannel) poll(ctx context.Context) ([]Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/chat/poll?sid="+c.sid, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
	}

	var frames []Frame
	if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
		return nil, fmt.Errorf("decode poll body: %w", err)
	}
	return frames, nil
}

func (c *pollChannel) sendLoop(ctx context.Context) {
	for {
		select {
		case f := <-c.sendq:
			if err := c.push(ctx, f); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("push failed",
					zap.String("event", f.Event),
					zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *pollChannel) push(ctx context.Context, f Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/push?sid="+c.sid, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("push: unexpected status %d", resp.StatusCode)
	}
	return nil
}
