package store

import (
	"sort"
	"sync"
	"time"

	"github.com/ecomstore/chatsync/internal/bus"
	"github.com/ecomstore/chatsync/internal/model"
)

// ConversationMessages is the per-conversation message page state.
type ConversationMessages struct {
	Pagination model.Pagination
	Loading    bool
	Error      string
	Messages   []model.Message
}

// MessageStore keeps per-conversation message sequences ordered by
// timestamp, with idempotent insertion by message id. Duplicate delivery
// across overlapping primary and fallback channels is resolved here, not by
// relying on delivery order.
type MessageStore struct {
	mu     sync.RWMutex
	bus    *bus.Bus
	byConv map[string]*ConversationMessages
	index  map[string]string // message id -> conversation id
}

// NewMessageStore creates an empty store.
func NewMessageStore(b *bus.Bus) *MessageStore {
	return &MessageStore{
		bus:    b,
		byConv: make(map[string]*ConversationMessages),
		index:  make(map[string]string),
	}
}

// Append inserts a message keeping non-decreasing timestamp order. If the
// id is already present the call is a no-op returning false.
func (s *MessageStore) Append(msg model.Message) bool {
	s.mu.Lock()
	if _, dup := s.index[msg.ID]; dup {
		s.mu.Unlock()
		return false
	}

	cm := s.conv(msg.ConversationID)
	cm.Messages = insertOrdered(cm.Messages, msg)
	s.index[msg.ID] = msg.ConversationID
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind: bus.KindMessageUpserted,
			Payload: map[string]string{
				"conversationId": msg.ConversationID,
				"messageId":      msg.ID,
			},
		})
	}
	return true
}

// SetStatus advances a message's delivery status. Transitions to an earlier
// status are rejected; sent -> delivered -> read only moves forward.
func (s *MessageStore) SetStatus(messageID string, status model.MessageStatus) bool {
	s.mu.Lock()
	convID, ok := s.index[messageID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	cm := s.byConv[convID]
	changed := false
	for i := range cm.Messages {
		if cm.Messages[i].ID != messageID {
			continue
		}
		if status.Rank() <= cm.Messages[i].Status.Rank() {
			break
		}
		cm.Messages[i].Status = status
		if status == model.StatusRead && cm.Messages[i].ReadAt == 0 {
			cm.Messages[i].ReadAt = time.Now().UnixMilli()
		}
		changed = true
		break
	}
	s.mu.Unlock()

	if changed && s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind: bus.KindMessageStatus,
			Payload: map[string]string{
				"conversationId": convID,
				"messageId":      messageID,
				"status":         string(status),
			},
		})
	}
	return changed
}

// ReplacePage merges a fetched history page into the conversation. Ids
// already appended optimistically are kept (with their higher status);
// ordering stays timestamp-sorted.
func (s *MessageStore) ReplacePage(conversationID string, msgs []model.Message, p model.Pagination) {
	s.mu.Lock()
	cm := s.conv(conversationID)

	for _, msg := range msgs {
		if existingConv, dup := s.index[msg.ID]; dup {
			if existingConv != conversationID {
				continue
			}
			// Keep the existing entry but let a further-along fetched
			// status win.
			for i := range cm.Messages {
				if cm.Messages[i].ID == msg.ID {
					if msg.Status.Rank() > cm.Messages[i].Status.Rank() {
						cm.Messages[i].Status = msg.Status
						cm.Messages[i].ReadAt = msg.ReadAt
					}
					break
				}
			}
			continue
		}
		cm.Messages = insertOrdered(cm.Messages, msg)
		s.index[msg.ID] = conversationID
	}

	cm.Pagination = p
	cm.Loading = false
	cm.Error = ""
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:    bus.KindMessageUpserted,
			Payload: map[string]string{"conversationId": conversationID},
		})
	}
}

// SetLoading flags a history fetch in flight.
func (s *MessageStore) SetLoading(conversationID string, loading bool) {
	s.mu.Lock()
	s.conv(conversationID).Loading = loading
	s.mu.Unlock()
}

// SetError records a failed history fetch.
func (s *MessageStore) SetError(conversationID string, errMsg string) {
	s.mu.Lock()
	cm := s.conv(conversationID)
	cm.Loading = false
	cm.Error = errMsg
	s.mu.Unlock()
}

// Get returns a copy of one message by id.
func (s *MessageStore) Get(messageID string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	convID, ok := s.index[messageID]
	if !ok {
		return model.Message{}, false
	}
	for _, m := range s.byConv[convID].Messages {
		if m.ID == messageID {
			return m, true
		}
	}
	return model.Message{}, false
}

// Snapshot returns a copy of the page state for a conversation.
func (s *MessageStore) Snapshot(conversationID string) ConversationMessages {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cm, ok := s.byConv[conversationID]
	if !ok {
		return ConversationMessages{}
	}
	out := *cm
	out.Messages = append([]model.Message(nil), cm.Messages...)
	return out
}

// Reset drops all message state (logout).
func (s *MessageStore) Reset() {
	s.mu.Lock()
	s.byConv = make(map[string]*ConversationMessages)
	s.index = make(map[string]string)
	s.mu.Unlock()
}

func (s *MessageStore) conv(conversationID string) *ConversationMessages {
	cm, ok := s.byConv[conversationID]
	if !ok {
		cm = &ConversationMessages{}
		s.byConv[conversationID] = cm
	}
	return cm
}

// insertOrdered places msg keeping non-decreasing timestamp order. Equal
// timestamps keep arrival order.
func insertOrdered(msgs []model.Message, msg model.Message) []model.Message {
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Timestamp > msg.Timestamp
	})
	msgs = append(msgs, model.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	return msgs
}
