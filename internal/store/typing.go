package store

import (
	"sync"
	"time"

	"github.com/ecomstore/chatsync/internal/bus"
	"github.com/ecomstore/chatsync/internal/model"
)

// TypingTracker keeps time-boxed "user X is typing in conversation Y"
// entries. An entry whose stop event is lost expires on its own, so the UI
// never shows a permanently stuck indicator.
type TypingTracker struct {
	mu      sync.Mutex
	bus     *bus.Bus
	ttl     time.Duration
	entries map[string]map[string]*typingEntry // conversation id -> user id
}

type typingEntry struct {
	name  string
	timer *time.Timer
}

// NewTypingTracker creates a tracker with the given expiry window.
func NewTypingTracker(b *bus.Bus, ttl time.Duration) *TypingTracker {
	return &TypingTracker{
		bus:     b,
		ttl:     ttl,
		entries: make(map[string]map[string]*typingEntry),
	}
}

// Start adds or refreshes an entry and (re)schedules its expiry timer.
func (t *TypingTracker) Start(conversationID, userID, userName string) {
	t.mu.Lock()
	users, ok := t.entries[conversationID]
	if !ok {
		users = make(map[string]*typingEntry)
		t.entries[conversationID] = users
	}
	if e, ok := users[userID]; ok {
		e.timer.Reset(t.ttl)
		e.name = userName
		t.mu.Unlock()
		return
	}
	users[userID] = &typingEntry{
		name: userName,
		timer: time.AfterFunc(t.ttl, func() {
			t.Stop(conversationID, userID)
		}),
	}
	t.mu.Unlock()
	t.notify(conversationID)
}

// Stop removes the entry and cancels its timer. Expiry calls this too.
func (t *TypingTracker) Stop(conversationID, userID string) {
	t.mu.Lock()
	users, ok := t.entries[conversationID]
	if !ok {
		t.mu.Unlock()
		return
	}
	e, ok := users[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	e.timer.Stop()
	delete(users, userID)
	if len(users) == 0 {
		delete(t.entries, conversationID)
	}
	t.mu.Unlock()
	t.notify(conversationID)
}

// Clear drops every entry for a conversation (conversation became
// inactive).
func (t *TypingTracker) Clear(conversationID string) {
	t.mu.Lock()
	users, ok := t.entries[conversationID]
	if !ok {
		t.mu.Unlock()
		return
	}
	for _, e := range users {
		e.timer.Stop()
	}
	delete(t.entries, conversationID)
	t.mu.Unlock()
	t.notify(conversationID)
}

// StopAll cancels every timer and drops all entries (disconnect).
func (t *TypingTracker) StopAll() {
	t.mu.Lock()
	for _, users := range t.entries {
		for _, e := range users {
			e.timer.Stop()
		}
	}
	t.entries = make(map[string]map[string]*typingEntry)
	t.mu.Unlock()
}

// Snapshot returns the current typing entries for a conversation.
func (t *TypingTracker) Snapshot(conversationID string) []model.TypingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.entries[conversationID]
	if !ok {
		return nil
	}
	out := make([]model.TypingEntry, 0, len(users))
	for id, e := range users {
		out = append(out, model.TypingEntry{
			ConversationID: conversationID,
			UserID:         id,
			UserName:       e.name,
		})
	}
	return out
}

// IsTyping reports whether the user currently has a live entry.
func (t *TypingTracker) IsTyping(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.entries[conversationID]
	if !ok {
		return false
	}
	_, ok = users[userID]
	return ok
}

func (t *TypingTracker) notify(conversationID string) {
	if t.bus != nil {
		t.bus.Publish(bus.Event{
			Kind:    bus.KindTypingChanged,
			Payload: conversationID,
		})
	}
}
