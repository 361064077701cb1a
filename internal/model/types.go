package model

// MessageStatus tracks delivery progress of a message.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Rank orders statuses for monotonic transitions. Failed is terminal and
// sits outside the progression.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return -1
	}
}

// UserSummary identifies a chat participant.
type UserSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Online bool   `json:"online"`
}

// LastMessage is the conversation-list preview of the newest message.
type LastMessage struct {
	Content   string `json:"content"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	SenderID  string `json:"senderId"`
}

// Conversation represents a synced conversation.
type Conversation struct {
	ID           string        `json:"id"`
	Participants []UserSummary `json:"participants"`
	LastMessage  *LastMessage  `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	UpdatedAt    int64         `json:"updatedAt"`
}

// Participant reports whether the conversation includes the given user.
func (c *Conversation) Participant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// Message represents a synced message. Timestamp (unix millis) is the
// authoritative ordering key; ID is unique and used for idempotent insertion.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName,omitempty"`
	Content        string        `json:"content"`
	Type           string        `json:"type"`
	FromMe         bool          `json:"fromMe"`
	Status         MessageStatus `json:"status"`
	Timestamp      int64         `json:"timestamp"`
	ReadAt         int64         `json:"readAt,omitempty"`
}

// TypingEntry records that a user is typing in a conversation.
type TypingEntry struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
}

// Pagination describes the paging state of a fetched message history.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalCount int  `json:"totalCount"`
	HasMore    bool `json:"hasMore"`
}
