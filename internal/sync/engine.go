// Package sync hosts the chat synchronization engine. The engine is the
// single writer of all stores: inbound channel events and outbound user
// intents both funnel through it, and it owns the reconnect policy.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/ecomstore/chatsync/internal/bus"
	"github.com/ecomstore/chatsync/internal/cache"
	"github.com/ecomstore/chatsync/internal/config"
	"github.com/ecomstore/chatsync/internal/dispatch"
	"github.com/ecomstore/chatsync/internal/metrics"
	"github.com/ecomstore/chatsync/internal/rest"
	"github.com/ecomstore/chatsync/internal/state"
	"github.com/ecomstore/chatsync/internal/store"
	"github.com/ecomstore/chatsync/internal/transport"
	"go.uber.org/zap"
)

var allStates = []string{
	string(state.Disconnected),
	string(state.Connecting),
	string(state.Connected),
	string(state.Failed),
}

// Engine composes the transport negotiator, event dispatcher and stores
// into one long-lived service object. Create one per application session
// and tear it down on logout; there is no package-level instance.
type Engine struct {
	cfg        *config.Config
	machine    *state.Machine
	negotiator *transport.Negotiator
	dispatcher *dispatch.Dispatcher
	convs      *store.ConversationStore
	msgs       *store.MessageStore
	typing     *store.TypingTracker
	presence   *store.PresenceTracker
	rest       *rest.Client
	db         *cache.DB // optional write-through cache, may be nil
	bus        *bus.Bus
	logger     *zap.Logger

	localUserID string

	mu             sync.Mutex
	credential     string
	attempts       int
	reconnectTimer *time.Timer
	activeConv     string
	terminal       bool
}

// New creates an engine. db may be nil to run without the local cache.
func New(cfg *config.Config, topts transport.Options, localUserID string, rc *rest.Client, db *cache.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	e := &Engine{
		cfg:         cfg,
		machine:     state.NewMachine(b),
		dispatcher:  dispatch.New(logger),
		rest:        rc,
		db:          db,
		bus:         b,
		logger:      logger,
		localUserID: localUserID,
	}
	e.convs = store.NewConversationStore(b)
	e.msgs = store.NewMessageStore(b)
	e.typing = store.NewTypingTracker(b, cfg.TypingExpiry())
	e.presence = store.NewPresenceTracker(b, e.convs)
	e.negotiator = transport.NewNegotiator(topts, logger, e.onFrame, e.onChannelClose)
	return e
}

// Stores are read-only for callers; only the engine mutates them.

// Conversations returns the conversation store for reading.
func (e *Engine) Conversations() *store.ConversationStore { return e.convs }

// Messages returns the message store for reading.
func (e *Engine) Messages() *store.MessageStore { return e.msgs }

// Typing returns the typing tracker for reading.
func (e *Engine) Typing() *store.TypingTracker { return e.typing }

// Presence returns the presence tracker for reading.
func (e *Engine) Presence() *store.PresenceTracker { return e.presence }

// State returns the current connection state.
func (e *Engine) State() state.ConnState { return e.machine.Current() }

// AttemptErrors exposes the per-candidate failures of the most recent
// transport negotiation.
func (e *Engine) AttemptErrors() []*transport.TransportError {
	return e.negotiator.AttemptErrors()
}

// Attempts returns the current reconnect attempt count.
func (e *Engine) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

// ActiveConversation returns the id of the active conversation, if any.
func (e *Engine) ActiveConversation() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeConv
}

// WarmStart loads the cached conversation list so the UI has content
// before the first REST fetch. No-op without a cache.
func (e *Engine) WarmStart() {
	if e.db == nil {
		return
	}
	convs, err := e.db.ListConversations(e.cfg.ConversationsLimit)
	if err != nil {
		e.logger.Warn("warm start failed", zap.Error(err))
		return
	}
	if len(convs) > 0 {
		e.convs.UpsertFromList(convs)
		e.logger.Info("warm start", zap.Int("conversations", len(convs)))
	}
}

// warmMessages seeds the message store with the cached window for a
// conversation, so switching to it renders instantly before any history
// fetch. Append is idempotent, so a later REST page merges cleanly on top.
func (e *Engine) warmMessages(conversationID string) {
	if e.db == nil {
		return
	}
	if len(e.msgs.Snapshot(conversationID).Messages) > 0 {
		return
	}
	cached, err := e.db.ListMessages(conversationID, 0, e.cfg.MessagesLimit)
	if err != nil {
		e.logger.Warn("warm messages failed", zap.Error(err))
		return
	}
	for _, m := range cached {
		e.msgs.Append(m)
	}
	if len(cached) > 0 {
		e.logger.Debug("warm messages",
			zap.String("conversation", conversationID),
			zap.Int("count", len(cached)))
	}
}

// Connect establishes the channel with the given credential. The first
// attempt runs synchronously; on failure the reconnect timer takes over.
// Calling Connect again after a terminal failure (e.g. on credential
// refresh) restarts the cycle.
func (e *Engine) Connect(ctx context.Context, credential string) error {
	e.mu.Lock()
	e.credential = credential
	e.terminal = false
	e.attempts = 0
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
		e.reconnectTimer = nil
	}
	e.mu.Unlock()

	if e.rest != nil {
		e.rest.SetToken(credential)
	}
	e.registerHandlers()
	return e.attempt(ctx)
}

func (e *Engine) attempt(ctx context.Context) error {
	e.mu.Lock()
	terminal := e.terminal
	e.mu.Unlock()
	// A timer firing after Disconnect must not resurrect the channel.
	if terminal {
		return nil
	}

	if err := e.machine.Transition(state.Connecting); err != nil {
		return err
	}
	metrics.SetConnectionState(string(state.Connecting), allStates)

	e.mu.Lock()
	credential := e.credential
	e.mu.Unlock()

	if err := e.negotiator.Connect(ctx, credential); err != nil {
		_ = e.machine.Transition(state.Failed)
		_ = e.machine.Transition(state.Disconnected)
		metrics.SetConnectionState(string(state.Disconnected), allStates)
		e.scheduleReconnect()
		return err
	}

	_ = e.machine.Transition(state.Connected)
	metrics.SetConnectionState(string(state.Connected), allStates)

	e.mu.Lock()
	e.attempts = 0
	active := e.activeConv
	e.mu.Unlock()

	// Joined-conversation membership does not survive a reconnect.
	if active != "" {
		e.negotiator.Send(transport.EventJoinConversation, joinPayload{ConversationID: active})
	}

	// Missed history is reconciled through REST, not by trusting the
	// channel to replay it.
	if e.rest != nil {
		go func() {
			if err := e.RefreshConversations(context.Background()); err != nil {
				e.logger.Warn("conversation refresh after connect failed", zap.Error(err))
			}
		}()
	}

	e.logger.Info("channel connected")
	return nil
}

// scheduleReconnect arms the backoff timer for the next attempt, or
// reports terminal failure once the attempt budget is exhausted.
func (e *Engine) scheduleReconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminal {
		return
	}
	if e.attempts >= e.cfg.ReconnectMax {
		e.terminal = true
		e.logger.Error("unable to connect, giving up",
			zap.Int("attempts", e.attempts))
		e.bus.Publish(bus.Event{Kind: bus.KindConnTerminal, Payload: e.attempts})
		return
	}

	e.attempts++
	delay := e.backoffDelay(e.attempts)
	metrics.ReconnectAttempts.Inc()
	e.logger.Warn("reconnect scheduled",
		zap.Int("attempt", e.attempts),
		zap.Duration("delay", delay))

	e.reconnectTimer = time.AfterFunc(delay, func() {
		_ = e.attempt(context.Background())
	})
}

// backoffDelay doubles per attempt: base, 2*base, 4*base, ...
func (e *Engine) backoffDelay(attempt int) time.Duration {
	return e.cfg.ReconnectBase() << (attempt - 1)
}

func (e *Engine) onChannelClose(err error) {
	e.logger.Warn("channel lost", zap.Error(err))
	e.typing.StopAll()
	_ = e.machine.Transition(state.Disconnected)
	metrics.SetConnectionState(string(state.Disconnected), allStates)
	e.scheduleReconnect()
}

func (e *Engine) onFrame(f transport.Frame) {
	e.dispatcher.Dispatch(f)
}

// Disconnect cancels reconnect and typing timers, removes all event
// handlers and forces the Disconnected state. Always safe to call,
// including on an already-disconnected engine.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	e.terminal = true
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
		e.reconnectTimer = nil
	}
	e.mu.Unlock()

	e.negotiator.Disconnect()
	e.dispatcher.Reset()
	e.typing.StopAll()
	_ = e.machine.Transition(state.Disconnected)
	metrics.SetConnectionState(string(state.Disconnected), allStates)
	e.logger.Info("engine disconnected")
}

// Connected reports whether the channel is currently live.
func (e *Engine) Connected() bool {
	return e.machine.Current() == state.Connected && e.negotiator.Connected()
}

func (e *Engine) cacheConversation(conversationID string) {
	if e.db == nil {
		return
	}
	if c, ok := e.convs.Get(conversationID); ok {
		if err := e.db.UpsertConversation(&c); err != nil {
			e.logger.Warn("cache conversation failed", zap.Error(err))
		}
	}
}
