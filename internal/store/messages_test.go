package store

import (
	"reflect"
	"testing"

	"github.com/ecomstore/chatsync/internal/model"
)

func TestAppendIdempotent(t *testing.T) {
	s := NewMessageStore(nil)

	m := msg("m1", "c1", "u1", 100)
	if !s.Append(m) {
		t.Fatal("first Append() = false, want true")
	}
	if s.Append(m) {
		t.Error("duplicate Append() = true, want false")
	}

	snap := s.Snapshot("c1")
	if len(snap.Messages) != 1 {
		t.Errorf("message count = %d, want 1", len(snap.Messages))
	}
}

func TestAppendKeepsTimestampOrder(t *testing.T) {
	s := NewMessageStore(nil)

	// Out-of-order arrival across a reconnect boundary.
	s.Append(msg("m3", "c1", "u1", 300))
	s.Append(msg("m1", "c1", "u1", 100))
	s.Append(msg("m2", "c1", "u1", 200))

	snap := s.Snapshot("c1")
	var ids []string
	for _, m := range snap.Messages {
		ids = append(ids, m.ID)
	}
	want := []string{"m1", "m2", "m3"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestSetStatusMonotonic(t *testing.T) {
	s := NewMessageStore(nil)
	s.Append(msg("m1", "c1", "u1", 100))

	if !s.SetStatus("m1", model.StatusDelivered) {
		t.Fatal("sent -> delivered rejected")
	}
	if !s.SetStatus("m1", model.StatusRead) {
		t.Fatal("delivered -> read rejected")
	}
	m, _ := s.Get("m1")
	if m.ReadAt == 0 {
		t.Error("ReadAt not set on read transition")
	}

	// Backward transition rejected.
	if s.SetStatus("m1", model.StatusDelivered) {
		t.Error("read -> delivered accepted, want rejected")
	}
	m, _ = s.Get("m1")
	if m.Status != model.StatusRead {
		t.Errorf("status = %s, want read", m.Status)
	}
}

func TestSetStatusUnknownMessage(t *testing.T) {
	s := NewMessageStore(nil)
	if s.SetStatus("nope", model.StatusRead) {
		t.Error("SetStatus on unknown id = true, want false")
	}
}

func TestReplacePageMergesWithoutDuplicates(t *testing.T) {
	s := NewMessageStore(nil)

	// Optimistic insert already present, read status locally.
	optimistic := msg("m2", "c1", "me", 200)
	optimistic.Status = model.StatusRead
	s.Append(optimistic)

	page := []model.Message{
		msg("m1", "c1", "u1", 100),
		msg("m2", "c1", "me", 200), // same id, lower status (sent)
		msg("m3", "c1", "u1", 300),
	}
	s.ReplacePage("c1", page, model.Pagination{Page: 1, Limit: 50, TotalCount: 3, HasMore: false})

	snap := s.Snapshot("c1")
	if len(snap.Messages) != 3 {
		t.Fatalf("message count = %d, want 3", len(snap.Messages))
	}
	var ids []string
	for _, m := range snap.Messages {
		ids = append(ids, m.ID)
	}
	if !reflect.DeepEqual(ids, []string{"m1", "m2", "m3"}) {
		t.Errorf("order = %v, want [m1 m2 m3]", ids)
	}

	// The fetched lower status must not regress the optimistic one.
	m2, _ := s.Get("m2")
	if m2.Status != model.StatusRead {
		t.Errorf("m2 status = %s, want read", m2.Status)
	}

	if snap.Pagination.TotalCount != 3 || snap.Pagination.HasMore {
		t.Errorf("pagination = %+v", snap.Pagination)
	}
	if snap.Loading || snap.Error != "" {
		t.Errorf("loading/error not cleared: %+v", snap)
	}
}

func TestLoadingAndError(t *testing.T) {
	s := NewMessageStore(nil)

	s.SetLoading("c1", true)
	if !s.Snapshot("c1").Loading {
		t.Error("Loading not set")
	}

	s.SetError("c1", "fetch failed")
	snap := s.Snapshot("c1")
	if snap.Loading {
		t.Error("Loading not cleared by SetError")
	}
	if snap.Error != "fetch failed" {
		t.Errorf("Error = %q", snap.Error)
	}
}

func TestReset(t *testing.T) {
	s := NewMessageStore(nil)
	s.Append(msg("m1", "c1", "u1", 100))
	s.Reset()
	if len(s.Snapshot("c1").Messages) != 0 {
		t.Error("messages survive Reset")
	}
	// Same id can be appended again after reset.
	if !s.Append(msg("m1", "c1", "u1", 100)) {
		t.Error("Append after Reset = false")
	}
}
