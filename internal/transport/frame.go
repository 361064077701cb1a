package transport

import "encoding/json"

// Frame is a single event on the wire, in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound event names.
const (
	EventSendMessage       = "send_message"
	EventMarkAsRead        = "mark_as_read"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
)

// Inbound event names.
const (
	EventNewMessage         = "new_message"
	EventMessageSent        = "message_sent"
	EventMessageDelivered   = "message_delivered"
	EventMessagesRead       = "messages_read"
	EventUserTyping         = "user_typing"
	EventUserStopTyping     = "user_stop_typing"
	EventJoinedConversation = "joined_conversation"
	EventLeftConversation   = "left_conversation"
	EventUserOnline         = "user_online"
	EventUserOffline        = "user_offline"
	EventAuthenticated      = "authenticated"
	EventError              = "error"
)
