package store

import (
	"sync"

	"github.com/ecomstore/chatsync/internal/bus"
	"github.com/ecomstore/chatsync/internal/model"
)

// PresenceTracker maintains the set of currently online user summaries and
// cross-references online flags into the conversation store.
type PresenceTracker struct {
	mu     sync.RWMutex
	bus    *bus.Bus
	convs  *ConversationStore
	online map[string]model.UserSummary
}

// NewPresenceTracker creates a tracker bound to the conversation store.
func NewPresenceTracker(b *bus.Bus, convs *ConversationStore) *PresenceTracker {
	return &PresenceTracker{
		bus:    b,
		convs:  convs,
		online: make(map[string]model.UserSummary),
	}
}

// SetOnline records the user as online and updates conversation entries.
func (p *PresenceTracker) SetOnline(user model.UserSummary) {
	user.Online = true
	p.mu.Lock()
	p.online[user.ID] = user
	p.mu.Unlock()
	p.convs.SetOnline(user.ID, true)
	p.notify()
}

// SetOffline removes the user from the online set and updates conversation
// entries.
func (p *PresenceTracker) SetOffline(userID string) {
	p.mu.Lock()
	_, known := p.online[userID]
	delete(p.online, userID)
	p.mu.Unlock()
	p.convs.SetOnline(userID, false)
	if known {
		p.notify()
	}
}

// ReplaceAll swaps the online set for a freshly fetched one, reconciling
// conversation flags both ways.
func (p *PresenceTracker) ReplaceAll(users []model.UserSummary) {
	p.mu.Lock()
	old := p.online
	p.online = make(map[string]model.UserSummary, len(users))
	for _, u := range users {
		u.Online = true
		p.online[u.ID] = u
	}
	var wentOffline []string
	for id := range old {
		if _, still := p.online[id]; !still {
			wentOffline = append(wentOffline, id)
		}
	}
	p.mu.Unlock()

	for _, u := range users {
		p.convs.SetOnline(u.ID, true)
	}
	for _, id := range wentOffline {
		p.convs.SetOnline(id, false)
	}
	p.notify()
}

// IsOnline reports whether the user is currently online.
func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// Online returns copies of all online user summaries.
func (p *PresenceTracker) Online() []model.UserSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.UserSummary, 0, len(p.online))
	for _, u := range p.online {
		out = append(out, u)
	}
	return out
}

func (p *PresenceTracker) notify() {
	if p.bus != nil {
		p.bus.Publish(bus.Event{Kind: bus.KindPresenceChanged})
	}
}
