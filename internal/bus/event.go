package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced: "conn." for connection lifecycle, "store." for
// store mutations, "chat." for message-level notifications.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Well-known event kinds.
const (
	KindConnStateChanged = "conn.state_changed"
	KindConnTerminal     = "conn.terminal_failure"
	KindConversations    = "store.conversations_changed"
	KindUnreadChanged    = "store.unread_changed"
	KindMessageUpserted  = "chat.message_upserted"
	KindMessageStatus    = "chat.message_status"
	KindTypingChanged    = "chat.typing_changed"
	KindPresenceChanged  = "chat.presence_changed"
	KindSendFailed       = "chat.send_failed"
)
