package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ecomstore/chatsync/internal/model"
	"github.com/ecomstore/chatsync/internal/transport"
	"go.uber.org/zap"
)

type messageStatusPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type messagesReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
}

type presencePayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type membershipPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type serverErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type authenticatedPayload struct {
	UserID string `json:"userId"`
}

// registerHandlers installs every inbound event handler. Handlers run
// inside the dispatcher's isolation boundary: returning an error drops the
// event without touching the connection.
func (e *Engine) registerHandlers() {
	e.dispatcher.Register(transport.EventNewMessage, e.handleNewMessage)
	e.dispatcher.Register(transport.EventMessageSent, e.statusHandler(model.StatusSent))
	e.dispatcher.Register(transport.EventMessageDelivered, e.statusHandler(model.StatusDelivered))
	e.dispatcher.Register(transport.EventMessagesRead, e.handleMessagesRead)
	e.dispatcher.Register(transport.EventUserTyping, e.handleUserTyping)
	e.dispatcher.Register(transport.EventUserStopTyping, e.handleUserStopTyping)
	e.dispatcher.Register(transport.EventUserOnline, e.handleUserOnline)
	e.dispatcher.Register(transport.EventUserOffline, e.handleUserOffline)
	e.dispatcher.Register(transport.EventJoinedConversation, e.handleMembership("joined"))
	e.dispatcher.Register(transport.EventLeftConversation, e.handleMembership("left"))
	e.dispatcher.Register(transport.EventAuthenticated, e.handleAuthenticated)
	e.dispatcher.Register(transport.EventError, e.handleServerError)
}

func (e *Engine) handleNewMessage(data json.RawMessage) error {
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if msg.ID == "" || msg.ConversationID == "" {
		return fmt.Errorf("message missing id or conversation id")
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	if msg.Status == "" {
		msg.Status = model.StatusDelivered
	}
	msg.FromMe = msg.SenderID == e.localUserID

	e.mu.Lock()
	isActive := e.activeConv == msg.ConversationID
	e.mu.Unlock()

	// Duplicate delivery across overlapping channels: second insert is a
	// no-op, but the conversation summary must not double-count either.
	if !e.msgs.Append(msg) {
		return nil
	}
	e.convs.ApplyIncomingMessage(msg.ConversationID, msg, isActive)

	if e.db != nil {
		if err := e.db.UpsertMessage(&msg); err != nil {
			e.logger.Warn("cache message failed", zap.Error(err))
		}
	}
	e.cacheConversation(msg.ConversationID)

	// Reading happens implicitly in the open conversation.
	if isActive && !msg.FromMe {
		e.MarkRead(msg.ConversationID, []string{msg.ID})
	}
	return nil
}

func (e *Engine) statusHandler(status model.MessageStatus) func(json.RawMessage) error {
	return func(data json.RawMessage) error {
		var p messageStatusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode status payload: %w", err)
		}
		if p.MessageID == "" {
			return fmt.Errorf("status payload missing message id")
		}
		e.msgs.SetStatus(p.MessageID, status)
		if e.db != nil {
			if m, ok := e.msgs.Get(p.MessageID); ok {
				_ = e.db.SetMessageStatus(m.ID, m.Status, m.ReadAt)
			}
		}
		return nil
	}
}

func (e *Engine) handleMessagesRead(data json.RawMessage) error {
	var p messagesReadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode read payload: %w", err)
	}
	for _, id := range p.MessageIDs {
		e.msgs.SetStatus(id, model.StatusRead)
		if e.db != nil {
			if m, ok := e.msgs.Get(id); ok {
				_ = e.db.SetMessageStatus(m.ID, m.Status, m.ReadAt)
			}
		}
	}
	return nil
}

func (e *Engine) handleUserTyping(data json.RawMessage) error {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode typing payload: %w", err)
	}
	if p.ConversationID == "" || p.UserID == "" {
		return fmt.Errorf("typing payload missing ids")
	}
	e.typing.Start(p.ConversationID, p.UserID, p.UserName)
	return nil
}

func (e *Engine) handleUserStopTyping(data json.RawMessage) error {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode typing payload: %w", err)
	}
	e.typing.Stop(p.ConversationID, p.UserID)
	return nil
}

func (e *Engine) handleUserOnline(data json.RawMessage) error {
	var p presencePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode presence payload: %w", err)
	}
	if p.UserID == "" {
		return fmt.Errorf("presence payload missing user id")
	}
	e.presence.SetOnline(model.UserSummary{ID: p.UserID, Name: p.Name, Avatar: p.Avatar})
	return nil
}

func (e *Engine) handleUserOffline(data json.RawMessage) error {
	var p presencePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode presence payload: %w", err)
	}
	e.presence.SetOffline(p.UserID)
	return nil
}

func (e *Engine) handleMembership(kind string) func(json.RawMessage) error {
	return func(data json.RawMessage) error {
		var p membershipPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode membership payload: %w", err)
		}
		e.logger.Debug("conversation membership changed",
			zap.String("kind", kind),
			zap.String("conversation", p.ConversationID),
			zap.String("user", p.UserID))
		return nil
	}
}

func (e *Engine) handleAuthenticated(data json.RawMessage) error {
	var p authenticatedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode authenticated payload: %w", err)
	}
	if e.localUserID == "" && p.UserID != "" {
		e.localUserID = p.UserID
	}
	e.logger.Info("channel authenticated", zap.String("user", p.UserID))
	return nil
}

func (e *Engine) handleServerError(data json.RawMessage) error {
	var p serverErrorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode error payload: %w", err)
	}
	e.logger.Warn("server reported error",
		zap.String("code", p.Code),
		zap.String("message", p.Message))
	return nil
}
