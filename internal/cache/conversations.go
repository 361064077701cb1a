package cache

import (
	"encoding/json"
	"time"

	"github.com/ecomstore/chatsync/internal/model"
)

// UpsertConversation writes a conversation summary (idempotent on id).
func (db *DB) UpsertConversation(c *model.Conversation) error {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return err
	}

	var lastContent, lastType, lastSender string
	var lastTs int64
	if c.LastMessage != nil {
		lastContent = c.LastMessage.Content
		lastType = c.LastMessage.Type
		lastSender = c.LastMessage.SenderID
		lastTs = c.LastMessage.Timestamp
	}

	_, err = db.Exec(`
		INSERT INTO conversations (id, participants, last_content, last_type, last_sender, last_ts, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participants = excluded.participants,
			last_content = excluded.last_content,
			last_type = excluded.last_type,
			last_sender = excluded.last_sender,
			last_ts = excluded.last_ts,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ID, string(participants), lastContent, lastType, lastSender, lastTs, c.UnreadCount, c.UpdatedAt)
	return err
}

// ListConversations returns cached conversations, most recently updated
// first.
func (db *DB) ListConversations(limit int) ([]model.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, participants, last_content, last_type, last_sender, last_ts, unread_count, updated_at
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		var participants string
		var lastContent, lastType, lastSender string
		var lastTs int64
		if err := rows.Scan(&c.ID, &participants, &lastContent, &lastType, &lastSender, &lastTs, &c.UnreadCount, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
			return nil, err
		}
		if lastTs > 0 || lastContent != "" {
			c.LastMessage = &model.LastMessage{
				Content:   lastContent,
				Type:      lastType,
				SenderID:  lastSender,
				Timestamp: lastTs,
			}
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// ReplaceConversations rewrites the cached list in one transaction.
func (db *DB) ReplaceConversations(convs []model.Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for i := range convs {
		c := convs[i]
		participants, err := json.Marshal(c.Participants)
		if err != nil {
			return err
		}
		var lastContent, lastType, lastSender string
		var lastTs int64
		if c.LastMessage != nil {
			lastContent = c.LastMessage.Content
			lastType = c.LastMessage.Type
			lastSender = c.LastMessage.SenderID
			lastTs = c.LastMessage.Timestamp
		}
		updatedAt := c.UpdatedAt
		if updatedAt == 0 {
			updatedAt = now
		}
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, participants, last_content, last_type, last_sender, last_ts, unread_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, string(participants), lastContent, lastType, lastSender, lastTs, c.UnreadCount, updatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
