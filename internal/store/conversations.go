// Package store holds the in-memory conversation, message, typing and
// presence state. Stores are mutated only by the sync engine; UI layers
// read snapshots and subscribe to change events on the bus.
package store

import (
	"sync"
	"time"

	"github.com/ecomstore/chatsync/internal/bus"
	"github.com/ecomstore/chatsync/internal/metrics"
	"github.com/ecomstore/chatsync/internal/model"
)

// QueuedMessage is an incoming message whose conversation was unknown at
// arrival time. It is held until the conversation list is next refreshed.
type QueuedMessage struct {
	ConversationID string
	Message        model.Message
}

// ConversationStore keeps the ordered conversation list, most recently
// active first, with unread counters and last-message summaries.
type ConversationStore struct {
	mu          sync.RWMutex
	bus         *bus.Bus
	order       []string
	byID        map[string]*model.Conversation
	pending     []QueuedMessage
	totalUnread int
}

// NewConversationStore creates an empty store.
func NewConversationStore(b *bus.Bus) *ConversationStore {
	return &ConversationStore{
		bus:  b,
		byID: make(map[string]*model.Conversation),
	}
}

// UpsertFromList replaces the store content with a freshly fetched page of
// conversations and recomputes the total unread count. Messages queued for
// conversations that are now known are returned for replay by the engine;
// the rest stay queued.
func (s *ConversationStore) UpsertFromList(convs []model.Conversation) []QueuedMessage {
	s.mu.Lock()

	s.order = s.order[:0]
	s.byID = make(map[string]*model.Conversation, len(convs))
	total := 0
	for i := range convs {
		c := convs[i]
		if c.UnreadCount < 0 {
			c.UnreadCount = 0
		}
		s.byID[c.ID] = &c
		s.order = append(s.order, c.ID)
		total += c.UnreadCount
	}
	s.totalUnread = total

	var replay, held []QueuedMessage
	for _, q := range s.pending {
		if _, ok := s.byID[q.ConversationID]; ok {
			replay = append(replay, q)
		} else {
			held = append(held, q)
		}
	}
	s.pending = held

	s.mu.Unlock()
	s.notify()
	return replay
}

// ApplyIncomingMessage updates the conversation summary for a new message.
// The unread counter increments only when the sender is not the local user
// and the conversation is not the active one. A message for an unknown
// conversation is queued, not dropped.
func (s *ConversationStore) ApplyIncomingMessage(conversationID string, msg model.Message, isActive bool) {
	s.mu.Lock()

	c, ok := s.byID[conversationID]
	if !ok {
		s.pending = append(s.pending, QueuedMessage{ConversationID: conversationID, Message: msg})
		s.mu.Unlock()
		return
	}

	c.LastMessage = &model.LastMessage{
		Content:   msg.Content,
		Type:      msg.Type,
		Timestamp: msg.Timestamp,
		SenderID:  msg.SenderID,
	}
	c.UpdatedAt = msg.Timestamp
	if c.UpdatedAt == 0 {
		c.UpdatedAt = time.Now().UnixMilli()
	}

	if !msg.FromMe && !isActive {
		c.UnreadCount++
		s.totalUnread++
	}

	s.moveToFront(conversationID)
	s.mu.Unlock()
	s.notify()
}

// MarkRead zeroes the conversation's unread counter and adjusts the total
// by the amount removed.
func (s *ConversationStore) MarkRead(conversationID string) {
	s.mu.Lock()
	c, ok := s.byID[conversationID]
	if !ok || c.UnreadCount == 0 {
		s.mu.Unlock()
		return
	}
	s.totalUnread -= c.UnreadCount
	c.UnreadCount = 0
	s.mu.Unlock()
	s.notify()
}

// SetOnline flips the online flag of the user in every conversation that
// lists them as a participant.
func (s *ConversationStore) SetOnline(userID string, online bool) {
	s.mu.Lock()
	changed := false
	for _, c := range s.byID {
		if !c.Participant(userID) {
			continue
		}
		for i := range c.Participants {
			if c.Participants[i].ID == userID && c.Participants[i].Online != online {
				c.Participants[i].Online = online
				changed = true
			}
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Get returns a copy of one conversation, or false if unknown.
func (s *ConversationStore) Get(conversationID string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[conversationID]
	if !ok {
		return model.Conversation{}, false
	}
	return copyConversation(c), true
}

// Snapshot returns copies of all conversations, most recently active first.
func (s *ConversationStore) Snapshot() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyConversation(s.byID[id]))
	}
	return out
}

// TotalUnread returns the sum of unread counts across all conversations.
func (s *ConversationStore) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalUnread
}

// PendingCount returns how many messages are queued for unknown
// conversations.
func (s *ConversationStore) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

func (s *ConversationStore) moveToFront(conversationID string) {
	for i, id := range s.order {
		if id == conversationID {
			copy(s.order[1:i+1], s.order[:i])
			s.order[0] = conversationID
			return
		}
	}
	s.order = append([]string{conversationID}, s.order...)
}

func (s *ConversationStore) notify() {
	s.mu.RLock()
	total := s.totalUnread
	s.mu.RUnlock()
	metrics.UnreadTotal.Set(float64(total))
	if s.bus != nil {
		s.bus.Publish(bus.Event{Kind: bus.KindConversations})
		s.bus.Publish(bus.Event{Kind: bus.KindUnreadChanged, Payload: total})
	}
}

func copyConversation(c *model.Conversation) model.Conversation {
	out := *c
	out.Participants = append([]model.UserSummary(nil), c.Participants...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return out
}
