package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecomstore/chatsync/internal/bus"
	"github.com/ecomstore/chatsync/internal/cache"
	"github.com/ecomstore/chatsync/internal/model"
	"github.com/ecomstore/chatsync/internal/transport"
	"go.uber.org/zap"
)

type sendMessagePayload struct {
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	Type        string `json:"type"`
	ClientMsgID string `json:"clientMsgId"`
}

type markReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

type joinPayload struct {
	ConversationID string `json:"conversationId"`
}

type typingIntentPayload struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
}

// SendMessage optimistically inserts the message and pushes it on the
// channel. Returns false when the channel is down; the message then stays
// in the outbox (when a cache is configured) and in the store as sending.
func (e *Engine) SendMessage(receiverID, content, msgType string) bool {
	if msgType == "" {
		msgType = "text"
	}
	clientID := uuid.New().String()
	now := time.Now().UnixMilli()

	e.mu.Lock()
	conversationID := e.activeConv
	e.mu.Unlock()

	// Optimistic insertion: the UI shows the message immediately.
	if conversationID != "" {
		msg := model.Message{
			ID:             clientID,
			ConversationID: conversationID,
			SenderID:       e.localUserID,
			Content:        content,
			Type:           msgType,
			FromMe:         true,
			Status:         model.StatusSending,
			Timestamp:      now,
		}
		e.msgs.Append(msg)
		e.convs.ApplyIncomingMessage(conversationID, msg, true)
		if e.db != nil {
			if err := e.db.UpsertMessage(&msg); err != nil {
				e.logger.Warn("cache message failed", zap.Error(err))
			}
		}
	}

	ok := e.negotiator.Send(transport.EventSendMessage, sendMessagePayload{
		ReceiverID:  receiverID,
		Content:     content,
		Type:        msgType,
		ClientMsgID: clientID,
	})
	if !ok {
		e.bus.Publish(bus.Event{
			Kind: bus.KindSendFailed,
			Payload: map[string]string{
				"clientMsgId":    clientID,
				"conversationId": conversationID,
				"receiverId":     receiverID,
			},
		})
		if e.db != nil {
			if err := e.db.QueueOutbox(&cache.OutboxEntry{
				ClientMsgID:    clientID,
				ReceiverID:     receiverID,
				ConversationID: conversationID,
				Content:        content,
				MessageType:    msgType,
			}); err != nil {
				e.logger.Warn("queue outbox failed", zap.Error(err))
			}
		}
	}
	return ok
}

// SendQueued pushes a previously queued outbox entry. Implements
// outbox.QueuedSender; no second optimistic insert happens here.
func (e *Engine) SendQueued(clientMsgID, receiverID, content, msgType string) bool {
	if !e.Connected() {
		return false
	}
	return e.negotiator.Send(transport.EventSendMessage, sendMessagePayload{
		ReceiverID:  receiverID,
		Content:     content,
		Type:        msgType,
		ClientMsgID: clientMsgID,
	})
}

// MarkRead zeroes the local unread counter, advances message statuses and
// notifies the service. Returns false when the channel is down; local
// state is updated regardless so the UI stays consistent.
func (e *Engine) MarkRead(conversationID string, messageIDs []string) bool {
	e.convs.MarkRead(conversationID)
	for _, id := range messageIDs {
		e.msgs.SetStatus(id, model.StatusRead)
	}
	e.cacheConversation(conversationID)

	return e.negotiator.Send(transport.EventMarkAsRead, markReadPayload{
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
	})
}

// JoinConversation subscribes to a conversation's events.
func (e *Engine) JoinConversation(conversationID string) bool {
	return e.negotiator.Send(transport.EventJoinConversation, joinPayload{ConversationID: conversationID})
}

// LeaveConversation unsubscribes and clears its typing indicators.
func (e *Engine) LeaveConversation(conversationID string) bool {
	e.typing.Clear(conversationID)
	return e.negotiator.Send(transport.EventLeaveConversation, joinPayload{ConversationID: conversationID})
}

// StartTyping signals the peer that the local user is typing.
func (e *Engine) StartTyping(conversationID, receiverID string) bool {
	return e.negotiator.Send(transport.EventTypingStart, typingIntentPayload{
		ConversationID: conversationID,
		ReceiverID:     receiverID,
	})
}

// StopTyping clears the local user's typing signal.
func (e *Engine) StopTyping(conversationID, receiverID string) bool {
	return e.negotiator.Send(transport.EventTypingStop, typingIntentPayload{
		ConversationID: conversationID,
		ReceiverID:     receiverID,
	})
}

// SetActiveConversation switches the open conversation: leaves the
// previous one, joins the new one and marks it read. An empty id means no
// conversation is open.
func (e *Engine) SetActiveConversation(conversationID string) {
	e.mu.Lock()
	previous := e.activeConv
	e.activeConv = conversationID
	e.mu.Unlock()

	if previous != "" && previous != conversationID {
		e.LeaveConversation(previous)
	}
	if conversationID != "" {
		e.warmMessages(conversationID)
		e.JoinConversation(conversationID)
		snap := e.msgs.Snapshot(conversationID)
		var unreadIDs []string
		for _, m := range snap.Messages {
			if !m.FromMe && m.Status != model.StatusRead {
				unreadIDs = append(unreadIDs, m.ID)
			}
		}
		e.MarkRead(conversationID, unreadIDs)
	}
}

// RefreshConversations fetches the conversation list over REST, replaces
// the store and replays messages that arrived for then-unknown
// conversations.
func (e *Engine) RefreshConversations(ctx context.Context) error {
	convs, _, err := e.rest.FetchConversations(ctx, 1, e.cfg.ConversationsLimit)
	if err != nil {
		return fmt.Errorf("refresh conversations: %w", err)
	}

	replay := e.convs.UpsertFromList(convs)

	e.mu.Lock()
	active := e.activeConv
	e.mu.Unlock()
	for _, q := range replay {
		e.convs.ApplyIncomingMessage(q.ConversationID, q.Message, q.ConversationID == active)
		e.msgs.Append(q.Message)
	}

	if e.db != nil {
		if err := e.db.ReplaceConversations(e.convs.Snapshot()); err != nil {
			e.logger.Warn("cache conversations failed", zap.Error(err))
		}
	}
	return nil
}

// LoadMessages fetches one history page for a conversation and merges it
// into the message store. ApplicationError propagates to the caller.
func (e *Engine) LoadMessages(ctx context.Context, conversationID string, page int) error {
	e.msgs.SetLoading(conversationID, true)

	msgs, pagination, err := e.rest.FetchMessages(ctx, conversationID, page, e.cfg.MessagesLimit)
	if err != nil {
		e.msgs.SetError(conversationID, err.Error())
		return fmt.Errorf("load messages: %w", err)
	}

	for i := range msgs {
		msgs[i].ConversationID = conversationID
		msgs[i].FromMe = msgs[i].SenderID == e.localUserID
	}
	e.msgs.ReplacePage(conversationID, msgs, pagination)

	if e.db != nil {
		if err := e.db.UpsertMessageBatch(msgs); err != nil {
			e.logger.Warn("cache message batch failed", zap.Error(err))
		}
	}
	return nil
}

// StartConversation creates or fetches the conversation with a user over
// REST and makes it known to the store.
func (e *Engine) StartConversation(ctx context.Context, userID string) (model.Conversation, error) {
	conv, err := e.rest.StartConversation(ctx, userID)
	if err != nil {
		return model.Conversation{}, err
	}
	if err := e.RefreshConversations(ctx); err != nil {
		e.logger.Warn("refresh after start failed", zap.Error(err))
	}
	return conv, nil
}

// SearchUsers proxies the REST user search, merging live presence flags
// into the results.
func (e *Engine) SearchUsers(ctx context.Context, query string) ([]model.UserSummary, error) {
	users, err := e.rest.SearchUsers(ctx, query)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Online = e.presence.IsOnline(users[i].ID)
	}
	return users, nil
}

// RefreshPresence fetches the online user set over REST.
func (e *Engine) RefreshPresence(ctx context.Context) error {
	users, err := e.rest.FetchOnlineUsers(ctx)
	if err != nil {
		return fmt.Errorf("refresh presence: %w", err)
	}
	e.presence.ReplaceAll(users)
	return nil
}
