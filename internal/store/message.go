package store

import (
	"database/sql"
	"fmt"
	"time"
)

// messageIndex returns the row index of a message inside its conversation's
// descending (timestamp, id) order. Tombstoned rows still occupy an index;
// suppression happens at render time.
func (db *DB) messageIndex(q queryRower, conversationID string, timestamp, rowID int64) (int, error) {
	var idx int
	err := q.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ?
		  AND (timestamp > ? OR (timestamp = ? AND id > ?))`,
		conversationID, timestamp, timestamp, rowID).Scan(&idx)
	if err != nil {
		return 0, fmt.Errorf("message index: %w", err)
	}
	return idx, nil
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

// UpsertMessage inserts or updates a message (idempotent on
// conversation_id + msg_id) and publishes the resulting row-level change:
// an insert for new rows, an update for in-place edits, and a move when the
// server timestamp changed and the row's position with it.
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()

	var oldID, oldTs int64
	err := db.QueryRow(`
		SELECT id, timestamp FROM messages
		WHERE conversation_id = ? AND msg_id = ?`,
		m.ConversationID, m.MsgID).Scan(&oldID, &oldTs)

	switch {
	case err == sql.ErrNoRows:
		res, err := db.Exec(`
			INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, body, kind, system_subkind, from_me, deleted, status, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ConversationID, m.MsgID, m.SenderID, m.SenderName, m.Body, m.Kind, m.Subkind, m.FromMe, m.Deleted, m.Status, m.Timestamp, now)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		m.ID, _ = res.LastInsertId()
		idx, err := db.messageIndex(db, m.ConversationID, m.Timestamp, m.ID)
		if err != nil {
			return err
		}
		db.publishChanges(m.ConversationID, []Change{{Op: OpInsert, Index: idx, Message: m}})
		return nil

	case err != nil:
		return fmt.Errorf("lookup message: %w", err)
	}

	oldIdx, err := db.messageIndex(db, m.ConversationID, oldTs, oldID)
	if err != nil {
		return err
	}

	if _, err := db.Exec(`
		UPDATE messages
		SET sender_name = ?, body = ?, status = ?, deleted = ?, timestamp = ?
		WHERE id = ?`,
		m.SenderName, m.Body, m.Status, m.Deleted, m.Timestamp, oldID); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	m.ID = oldID

	if m.Timestamp != oldTs {
		newIdx, err := db.messageIndex(db, m.ConversationID, m.Timestamp, oldID)
		if err != nil {
			return err
		}
		db.publishChanges(m.ConversationID, []Change{{Op: OpMove, Index: oldIdx, NewIndex: newIdx, Message: m}})
		return nil
	}

	db.publishChanges(m.ConversationID, []Change{{Op: OpUpdate, Index: oldIdx, Message: m}})
	return nil
}

// MarkMessageDeleted flags a message as deleted without removing the row.
// The tombstone keeps its index; renderers suppress its content.
func (db *DB) MarkMessageDeleted(conversationID, msgID string) error {
	m, err := db.GetMessage(conversationID, msgID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	if _, err := db.Exec(`UPDATE messages SET deleted = 1 WHERE id = ?`, m.ID); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	m.Deleted = true
	idx, err := db.messageIndex(db, conversationID, m.Timestamp, m.ID)
	if err != nil {
		return err
	}
	db.publishChanges(conversationID, []Change{{Op: OpUpdate, Index: idx, Message: m}})
	return nil
}

// RemoveMessage hard-deletes a message row and publishes the delete with
// the index it occupied.
func (db *DB) RemoveMessage(conversationID, msgID string) error {
	m, err := db.GetMessage(conversationID, msgID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	idx, err := db.messageIndex(db, conversationID, m.Timestamp, m.ID)
	if err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM messages WHERE id = ?`, m.ID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	db.publishChanges(conversationID, []Change{{Op: OpDelete, Index: idx, Message: m}})
	return nil
}

// GetMessage returns a single message by conversation and server identity,
// or nil if absent.
func (db *DB) GetMessage(conversationID, msgID string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT id, conversation_id, msg_id, sender_id, sender_name, body, kind, system_subkind, from_me, deleted, status, timestamp
		FROM messages
		WHERE conversation_id = ? AND msg_id = ?`,
		conversationID, msgID).Scan(
		&m.ID, &m.ConversationID, &m.MsgID, &m.SenderID, &m.SenderName, &m.Body,
		&m.Kind, &m.Subkind, &m.FromMe, &m.Deleted, &m.Status, &m.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages returns the total number of messages in a conversation,
// tombstones included.
func (db *DB) CountMessages(conversationID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// WindowMessages returns the first limit messages of a conversation in
// descending (timestamp, id) order: the materialized window prefix.
func (db *DB) WindowMessages(conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, conversation_id, msg_id, sender_id, sender_name, body, kind, system_subkind, from_me, deleted, status, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.MsgID, &m.SenderID, &m.SenderName, &m.Body,
			&m.Kind, &m.Subkind, &m.FromMe, &m.Deleted, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
