package outbox

import (
	"path/filepath"
	"testing"

	"github.com/ecomstore/chatsync/internal/bus"
	"github.com/ecomstore/chatsync/internal/cache"
	"go.uber.org/zap"
)

type fakeSender struct {
	connected bool
	sent      []string
}

func (f *fakeSender) SendQueued(clientMsgID, receiverID, content, msgType string) bool {
	if !f.connected {
		return false
	}
	f.sent = append(f.sent, clientMsgID)
	return true
}

func testDB(t *testing.T) *cache.DB {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDrainWhileDisconnectedKeepsQueue(t *testing.T) {
	db := testDB(t)
	fs := &fakeSender{connected: false}
	s := NewSender(db, fs, bus.New(), zap.NewNop())

	if err := db.QueueOutbox(&cache.OutboxEntry{ClientMsgID: "cm1", ReceiverID: "u2", Content: "hi", MessageType: "text"}); err != nil {
		t.Fatal(err)
	}

	s.Drain()

	if len(fs.sent) != 0 {
		t.Errorf("sent = %v, want none", fs.sent)
	}
	count, _ := db.PendingOutboxCount()
	if count != 1 {
		t.Errorf("pending = %d, want 1", count)
	}
}

func TestDrainSendsInOrder(t *testing.T) {
	db := testDB(t)
	fs := &fakeSender{connected: true}
	s := NewSender(db, fs, bus.New(), zap.NewNop())

	for _, id := range []string{"cm1", "cm2", "cm3"} {
		if err := db.QueueOutbox(&cache.OutboxEntry{ClientMsgID: id, ReceiverID: "u2", Content: id, MessageType: "text"}); err != nil {
			t.Fatal(err)
		}
	}

	s.Drain()

	if len(fs.sent) != 3 || fs.sent[0] != "cm1" || fs.sent[2] != "cm3" {
		t.Errorf("sent = %v, want [cm1 cm2 cm3]", fs.sent)
	}
	count, _ := db.PendingOutboxCount()
	if count != 0 {
		t.Errorf("pending = %d, want 0", count)
	}
}

func TestDrainPublishesStatus(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	fs := &fakeSender{connected: true}
	s := NewSender(db, fs, b, zap.NewNop())

	if err := db.QueueOutbox(&cache.OutboxEntry{ClientMsgID: "cm1", ReceiverID: "u2", Content: "hi", MessageType: "text"}); err != nil {
		t.Fatal(err)
	}
	s.Drain()

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindMessageStatus {
			t.Errorf("event kind = %q", evt.Kind)
		}
	default:
		t.Error("no status event published")
	}
}
