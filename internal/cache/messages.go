package cache

import (
	"time"

	"github.com/ecomstore/chatsync/internal/model"
)

// UpsertMessage writes a message (idempotent on conversation_id + msg_id).
func (db *DB) UpsertMessage(m *model.Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, content, message_type, from_me, status, timestamp, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			content = excluded.content,
			status = excluded.status,
			read_at = excluded.read_at`,
		m.ConversationID, m.ID, m.SenderID, m.SenderName, m.Content, m.Type, m.FromMe, string(m.Status), m.Timestamp, m.ReadAt, now)
	return err
}

// UpsertMessageBatch writes a history page in one transaction.
func (db *DB) UpsertMessageBatch(msgs []model.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for i := range msgs {
		m := msgs[i]
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, content, message_type, from_me, status, timestamp, read_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
				sender_name = excluded.sender_name,
				content = excluded.content,
				status = excluded.status,
				read_at = excluded.read_at`,
			m.ConversationID, m.ID, m.SenderID, m.SenderName, m.Content, m.Type, m.FromMe, string(m.Status), m.Timestamp, m.ReadAt, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetMessageStatus updates the delivery status of a cached message.
func (db *DB) SetMessageStatus(messageID string, status model.MessageStatus, readAt int64) error {
	_, err := db.Exec(`UPDATE messages SET status = ?, read_at = ? WHERE msg_id = ?`,
		string(status), readAt, messageID)
	return err
}

// ListMessages returns messages for a conversation using keyset pagination
// by timestamp, oldest first within the window.
func (db *DB) ListMessages(conversationID string, beforeTs int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT conversation_id, msg_id, sender_id, sender_name, content, message_type, from_me, status, timestamp, read_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = ? AND timestamp < ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var status string
		if err := rows.Scan(&m.ConversationID, &m.ID, &m.SenderID, &m.SenderName, &m.Content, &m.Type, &m.FromMe, &status, &m.Timestamp, &m.ReadAt); err != nil {
			return nil, err
		}
		m.Status = model.MessageStatus(status)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
