package store

import (
	"database/sql"
	"fmt"
	"time"
)

// IngestBatch processes a batch of synced messages in one transaction and
// publishes a single ChangeBatch per affected conversation, so consumers
// can commit each conversation's mutations as one visual update.
// Conversation previews are bumped alongside.
func (db *DB) IngestBatch(msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	batches := make(map[string][]Change)
	var order []string

	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, last_message_at, last_message_preview, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
				last_message_preview = CASE WHEN excluded.last_message_at > conversations.last_message_at
					THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
				updated_at = excluded.updated_at`,
			m.ConversationID, m.Timestamp, PreviewText(m.Body), now, now); err != nil {
			return fmt.Errorf("upsert conversation in batch: %w", err)
		}

		var oldID, oldTs int64
		err := tx.QueryRow(`
			SELECT id, timestamp FROM messages
			WHERE conversation_id = ? AND msg_id = ?`,
			m.ConversationID, m.MsgID).Scan(&oldID, &oldTs)

		switch {
		case err == sql.ErrNoRows:
			res, err := tx.Exec(`
				INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, body, kind, system_subkind, from_me, deleted, status, timestamp, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ConversationID, m.MsgID, m.SenderID, m.SenderName, m.Body, m.Kind, m.Subkind, m.FromMe, m.Deleted, m.Status, m.Timestamp, now)
			if err != nil {
				return fmt.Errorf("insert message in batch: %w", err)
			}
			m.ID, _ = res.LastInsertId()
			idx, err := db.messageIndex(tx, m.ConversationID, m.Timestamp, m.ID)
			if err != nil {
				return err
			}
			if _, seen := batches[m.ConversationID]; !seen {
				order = append(order, m.ConversationID)
			}
			batches[m.ConversationID] = append(batches[m.ConversationID], Change{Op: OpInsert, Index: idx, Message: m})

		case err != nil:
			return fmt.Errorf("lookup message in batch: %w", err)

		default:
			oldIdx, err := db.messageIndex(tx, m.ConversationID, oldTs, oldID)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`
				UPDATE messages SET sender_name = ?, body = ?, status = ?, deleted = ?, timestamp = ? WHERE id = ?`,
				m.SenderName, m.Body, m.Status, m.Deleted, m.Timestamp, oldID); err != nil {
				return fmt.Errorf("update message in batch: %w", err)
			}
			m.ID = oldID
			if _, seen := batches[m.ConversationID]; !seen {
				order = append(order, m.ConversationID)
			}
			if m.Timestamp != oldTs {
				newIdx, err := db.messageIndex(tx, m.ConversationID, m.Timestamp, oldID)
				if err != nil {
					return err
				}
				batches[m.ConversationID] = append(batches[m.ConversationID], Change{Op: OpMove, Index: oldIdx, NewIndex: newIdx, Message: m})
			} else {
				batches[m.ConversationID] = append(batches[m.ConversationID], Change{Op: OpUpdate, Index: oldIdx, Message: m})
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	for _, convoID := range order {
		db.publishChanges(convoID, batches[convoID])
	}
	return nil
}

