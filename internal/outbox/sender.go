// Package outbox drains messages composed while the channel was down.
// Entries stay queued across restarts and are pushed as soon as a live
// channel exists.
package outbox

import (
	"context"
	"time"

	"github.com/ecomstore/chatsync/internal/bus"
	"github.com/ecomstore/chatsync/internal/cache"
	"github.com/ecomstore/chatsync/internal/metrics"
	"go.uber.org/zap"
)

// QueuedSender pushes a previously queued message onto the channel.
// Returns false when the channel is not connected; the entry stays queued.
type QueuedSender interface {
	SendQueued(clientMsgID, receiverID, content, msgType string) bool
}

// Sender drains the outbox through the sync engine.
type Sender struct {
	db     *cache.DB
	sender QueuedSender
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(db *cache.DB, sender QueuedSender, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:     db,
		sender: sender,
		bus:    b,
		logger: logger,
	}
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Drain()
		case <-ctx.Done():
			return
		}
	}
}

// Drain attempts to push every queued entry once. Entries that cannot be
// sent because the channel is down remain queued for the next pass.
func (s *Sender) Drain() {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}
	metrics.OutboxPending.Set(float64(len(pending)))
	if len(pending) == 0 {
		return
	}

	for _, entry := range pending {
		if !s.sender.SendQueued(entry.ClientMsgID, entry.ReceiverID, entry.Content, entry.MessageType) {
			// Channel still down; keep the rest queued too.
			return
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sent",
				zap.Error(err),
				zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}
		s.logger.Info("queued message sent",
			zap.String("client_msg_id", entry.ClientMsgID))
		s.bus.Publish(bus.Event{
			Kind: bus.KindMessageStatus,
			Payload: map[string]string{
				"messageId": entry.ClientMsgID,
				"status":    "sent",
			},
		})
	}

	if count, err := s.db.PendingOutboxCount(); err == nil {
		metrics.OutboxPending.Set(float64(count))
	}
}
