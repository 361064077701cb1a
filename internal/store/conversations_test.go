package store

import (
	"testing"

	"github.com/ecomstore/chatsync/internal/model"
)

func conv(id string, unread int, participants ...string) model.Conversation {
	c := model.Conversation{ID: id, UnreadCount: unread}
	for _, p := range participants {
		c.Participants = append(c.Participants, model.UserSummary{ID: p, Name: p})
	}
	return c
}

func msg(id, convID, sender string, ts int64) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       sender,
		Content:        "body-" + id,
		Type:           "text",
		Status:         model.StatusSent,
		Timestamp:      ts,
	}
}

func checkUnreadInvariant(t *testing.T, s *ConversationStore) {
	t.Helper()
	sum := 0
	for _, c := range s.Snapshot() {
		if c.UnreadCount < 0 {
			t.Fatalf("conversation %s has negative unread %d", c.ID, c.UnreadCount)
		}
		sum += c.UnreadCount
	}
	if got := s.TotalUnread(); got != sum {
		t.Fatalf("TotalUnread() = %d, want sum %d", got, sum)
	}
}

func TestUpsertFromListRecomputesTotal(t *testing.T) {
	s := NewConversationStore(nil)

	s.UpsertFromList([]model.Conversation{conv("c1", 2), conv("c2", 3)})
	if got := s.TotalUnread(); got != 5 {
		t.Errorf("TotalUnread() = %d, want 5", got)
	}
	checkUnreadInvariant(t, s)

	// A refetch replaces, never accumulates.
	s.UpsertFromList([]model.Conversation{conv("c1", 1)})
	if got := s.TotalUnread(); got != 1 {
		t.Errorf("TotalUnread() after refetch = %d, want 1", got)
	}
	checkUnreadInvariant(t, s)
}

func TestApplyIncomingMessageActiveConversation(t *testing.T) {
	s := NewConversationStore(nil)
	s.UpsertFromList([]model.Conversation{conv("c1", 0)})

	s.ApplyIncomingMessage("c1", msg("m1", "c1", "u2", 100), true)

	c, _ := s.Get("c1")
	if c.UnreadCount != 0 {
		t.Errorf("active conversation unread = %d, want 0", c.UnreadCount)
	}
	if s.TotalUnread() != 0 {
		t.Errorf("TotalUnread() = %d, want 0", s.TotalUnread())
	}
	if c.LastMessage == nil || c.LastMessage.Content != "body-m1" {
		t.Errorf("lastMessage not updated: %+v", c.LastMessage)
	}
}

func TestApplyIncomingMessageInactiveIncrements(t *testing.T) {
	s := NewConversationStore(nil)
	s.UpsertFromList([]model.Conversation{conv("c1", 0), conv("c2", 0)})

	s.ApplyIncomingMessage("c2", msg("m1", "c2", "u2", 100), false)

	c, _ := s.Get("c2")
	if c.UnreadCount != 1 {
		t.Errorf("inactive conversation unread = %d, want 1", c.UnreadCount)
	}
	if s.TotalUnread() != 1 {
		t.Errorf("TotalUnread() = %d, want 1", s.TotalUnread())
	}
	checkUnreadInvariant(t, s)
}

func TestApplyIncomingOwnMessageNoIncrement(t *testing.T) {
	s := NewConversationStore(nil)
	s.UpsertFromList([]model.Conversation{conv("c1", 0)})

	own := msg("m1", "c1", "me", 100)
	own.FromMe = true
	s.ApplyIncomingMessage("c1", own, false)

	c, _ := s.Get("c1")
	if c.UnreadCount != 0 {
		t.Errorf("own message incremented unread to %d", c.UnreadCount)
	}
}

func TestApplyIncomingMovesToFront(t *testing.T) {
	s := NewConversationStore(nil)
	s.UpsertFromList([]model.Conversation{conv("c1", 0), conv("c2", 0), conv("c3", 0)})

	s.ApplyIncomingMessage("c3", msg("m1", "c3", "u2", 100), false)

	snap := s.Snapshot()
	if snap[0].ID != "c3" {
		t.Errorf("front conversation = %s, want c3", snap[0].ID)
	}
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
}

func TestUnknownConversationQueuedAndReplayed(t *testing.T) {
	s := NewConversationStore(nil)
	s.UpsertFromList([]model.Conversation{conv("c1", 0)})

	// First message of a brand-new conversation before the REST fetch.
	s.ApplyIncomingMessage("c9", msg("m1", "c9", "u2", 100), false)
	if s.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", s.PendingCount())
	}

	// Refresh that now includes c9: the queued message comes back.
	replay := s.UpsertFromList([]model.Conversation{conv("c1", 0), conv("c9", 0)})
	if len(replay) != 1 || replay[0].Message.ID != "m1" {
		t.Fatalf("replay = %+v, want queued m1", replay)
	}
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() after replay = %d, want 0", s.PendingCount())
	}

	// Still-unknown conversations stay queued.
	s.ApplyIncomingMessage("c10", msg("m2", "c10", "u3", 200), false)
	replay = s.UpsertFromList([]model.Conversation{conv("c1", 0)})
	if len(replay) != 0 {
		t.Errorf("replay for still-unknown conversation = %+v, want none", replay)
	}
	if s.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", s.PendingCount())
	}
}

func TestMarkRead(t *testing.T) {
	s := NewConversationStore(nil)
	s.UpsertFromList([]model.Conversation{conv("c1", 4), conv("c2", 2)})

	s.MarkRead("c1")

	c, _ := s.Get("c1")
	if c.UnreadCount != 0 {
		t.Errorf("unread after MarkRead = %d, want 0", c.UnreadCount)
	}
	if s.TotalUnread() != 2 {
		t.Errorf("TotalUnread() = %d, want 2", s.TotalUnread())
	}
	checkUnreadInvariant(t, s)

	// MarkRead twice must not go negative.
	s.MarkRead("c1")
	checkUnreadInvariant(t, s)
}

func TestSetOnlineUpdatesParticipants(t *testing.T) {
	s := NewConversationStore(nil)
	s.UpsertFromList([]model.Conversation{
		conv("c1", 0, "u1", "u2"),
		conv("c2", 0, "u2"),
		conv("c3", 0, "u3"),
	})

	s.SetOnline("u2", true)

	for _, id := range []string{"c1", "c2"} {
		c, _ := s.Get(id)
		found := false
		for _, p := range c.Participants {
			if p.ID == "u2" {
				found = true
				if !p.Online {
					t.Errorf("u2 not online in %s", id)
				}
			}
		}
		if !found {
			t.Fatalf("u2 missing from %s", id)
		}
	}

	c3, _ := s.Get("c3")
	for _, p := range c3.Participants {
		if p.Online {
			t.Errorf("unrelated participant %s flagged online", p.ID)
		}
	}
}
