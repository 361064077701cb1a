package dispatch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ecomstore/chatsync/internal/transport"
	"go.uber.org/zap"
)

func TestDispatchRunsHandler(t *testing.T) {
	d := New(zap.NewNop())

	var got string
	d.Register(transport.EventNewMessage, func(data json.RawMessage) error {
		var payload struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		got = payload.Content
		return nil
	})

	d.Dispatch(transport.Frame{
		Event: transport.EventNewMessage,
		Data:  json.RawMessage(`{"content":"hello"}`),
	})

	if got != "hello" {
		t.Errorf("handler saw content %q, want hello", got)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := New(zap.NewNop())

	d.Register(transport.EventNewMessage, func(json.RawMessage) error {
		panic("malformed payload")
	})

	// Must not propagate the panic.
	d.Dispatch(transport.Frame{Event: transport.EventNewMessage})

	// Dispatcher still works for later events.
	ran := false
	d.Register(transport.EventUserTyping, func(json.RawMessage) error {
		ran = true
		return nil
	})
	d.Dispatch(transport.Frame{Event: transport.EventUserTyping})
	if !ran {
		t.Error("dispatcher stopped working after a handler panic")
	}
}

func TestDispatchSwallowsHandlerError(t *testing.T) {
	d := New(zap.NewNop())

	d.Register(transport.EventMessagesRead, func(json.RawMessage) error {
		return errors.New("unknown conversation")
	})

	d.Dispatch(transport.Frame{Event: transport.EventMessagesRead})
	// Reaching here without panic is the contract.
}

func TestDispatchUnknownEvent(t *testing.T) {
	d := New(zap.NewNop())
	d.Dispatch(transport.Frame{Event: "mystery_event"})
}

func TestReset(t *testing.T) {
	d := New(zap.NewNop())

	ran := false
	d.Register(transport.EventNewMessage, func(json.RawMessage) error {
		ran = true
		return nil
	})
	d.Reset()
	d.Dispatch(transport.Frame{Event: transport.EventNewMessage})
	if ran {
		t.Error("handler ran after Reset")
	}
}
