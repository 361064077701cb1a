package state

import (
	"testing"
	"time"

	"github.com/ecomstore/chatsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if got := m.Current(); got != Disconnected {
		t.Errorf("initial state = %s, want %s", got, Disconnected)
	}
}

func TestValidTransitions(t *testing.T) {
	m := NewMachine(nil)

	steps := []ConnState{Connecting, Connected, Disconnected, Connecting, Failed, Disconnected}
	for _, to := range steps {
		if err := m.Transition(to); err != nil {
			t.Fatalf("Transition(%s) from %s error = %v", to, m.Current(), err)
		}
	}
	if m.Current() != Disconnected {
		t.Errorf("final state = %s, want %s", m.Current(), Disconnected)
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)

	// Cannot go straight from Disconnected to Connected.
	if err := m.Transition(Connected); err == nil {
		t.Error("Transition(Connected) from Disconnected should fail")
	}
	if m.Current() != Disconnected {
		t.Errorf("state after failed transition = %s, want %s", m.Current(), Disconnected)
	}
}

func TestSelfTransitionIsNoop(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	if err := m.Transition(Disconnected); err != nil {
		t.Fatalf("self transition error = %v", err)
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event for self transition: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no event.
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(Change)
		if !ok {
			t.Fatalf("payload type = %T, want Change", evt.Payload)
		}
		if change.From != Disconnected || change.To != Connecting {
			t.Errorf("change = %+v, want Disconnected->Connecting", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for state change event")
	}
}
