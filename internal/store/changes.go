package store

import (
	"time"

	"github.com/tmarsal/parley/internal/bus"
)

// EventChanges is the bus event kind carrying ChangeBatch payloads.
const EventChanges = "store.changes"

// ChangeOp identifies the kind of row-level mutation.
type ChangeOp int

const (
	OpInsert ChangeOp = iota
	OpDelete
	OpUpdate
	OpMove
)

func (op ChangeOp) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	case OpUpdate:
		return "update"
	case OpMove:
		return "move"
	}
	return "unknown"
}

// Change is a single row-level mutation in a conversation's descending
// timestamp order. Index is the row position before the change for deletes
// and updates, and the insertion position for inserts. Move carries the old
// position in Index and the new one in NewIndex.
type Change struct {
	Op       ChangeOp
	Index    int
	NewIndex int
	Message  *Message
}

// ChangeBatch groups the changes produced by one store mutation. Consumers
// apply the records in order and commit them as one visual update.
type ChangeBatch struct {
	ConversationID string
	Changes        []Change
}

func (db *DB) publishChanges(conversationID string, changes []Change) {
	if db.bus == nil || len(changes) == 0 {
		return
	}
	db.bus.Publish(bus.Event{
		Kind:      EventChanges,
		Timestamp: time.Now(),
		Payload:   ChangeBatch{ConversationID: conversationID, Changes: changes},
	})
}
