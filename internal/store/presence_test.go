package store

import (
	"testing"

	"github.com/ecomstore/chatsync/internal/model"
)

func TestPresenceOnlineOffline(t *testing.T) {
	convs := NewConversationStore(nil)
	convs.UpsertFromList([]model.Conversation{conv("c1", 0, "u1", "u2")})
	p := NewPresenceTracker(nil, convs)

	p.SetOnline(model.UserSummary{ID: "u2", Name: "Bob"})
	if !p.IsOnline("u2") {
		t.Fatal("u2 not online")
	}

	c, _ := convs.Get("c1")
	online := false
	for _, part := range c.Participants {
		if part.ID == "u2" && part.Online {
			online = true
		}
	}
	if !online {
		t.Error("conversation participant flag not set")
	}

	p.SetOffline("u2")
	if p.IsOnline("u2") {
		t.Error("u2 still online after SetOffline")
	}
	c, _ = convs.Get("c1")
	for _, part := range c.Participants {
		if part.ID == "u2" && part.Online {
			t.Error("conversation participant flag not cleared")
		}
	}
}

func TestPresenceReplaceAll(t *testing.T) {
	convs := NewConversationStore(nil)
	convs.UpsertFromList([]model.Conversation{conv("c1", 0, "u1", "u2")})
	p := NewPresenceTracker(nil, convs)

	p.SetOnline(model.UserSummary{ID: "u1"})
	p.ReplaceAll([]model.UserSummary{{ID: "u2", Name: "Bob"}})

	if p.IsOnline("u1") {
		t.Error("u1 online after ReplaceAll without u1")
	}
	if !p.IsOnline("u2") {
		t.Error("u2 not online after ReplaceAll")
	}

	c, _ := convs.Get("c1")
	for _, part := range c.Participants {
		switch part.ID {
		case "u1":
			if part.Online {
				t.Error("u1 flag not cleared in conversation")
			}
		case "u2":
			if !part.Online {
				t.Error("u2 flag not set in conversation")
			}
		}
	}
}
