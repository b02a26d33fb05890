// Package sync ingests inbound wire events into the local store.
package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tmarsal/parley/internal/bus"
	"github.com/tmarsal/parley/internal/store"
)

// Deletion is the payload for wire deletion events.
type Deletion struct {
	ConversationID string
	MsgID          string
	// Purge removes the row entirely instead of tombstoning it.
	Purge bool
}

// Engine handles idempotent ingestion of messages into the store. It
// subscribes to "wire.*" events on the bus and processes them; the store
// publishes the resulting row changes for open timelines.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to inbound wire events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("wire.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "wire.message":
		msg, ok := evt.Payload.(*store.Message)
		if !ok {
			return
		}
		if err := e.IngestMessage(msg); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.MsgID))
		}
	case "wire.history_batch":
		msgs, ok := evt.Payload.([]*store.Message)
		if !ok {
			return
		}
		if err := e.db.IngestBatch(msgs); err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(msgs)))
		} else {
			e.logger.Info("history batch ingested", zap.Int("messages", len(msgs)))
		}
	case "wire.message_deleted":
		del, ok := evt.Payload.(Deletion)
		if !ok {
			return
		}
		if err := e.applyDeletion(del); err != nil {
			e.logger.Error("failed to apply deletion", zap.Error(err), zap.String("msg_id", del.MsgID))
		}
	}
}

// IngestMessage processes a single message into the store (idempotent).
func (e *Engine) IngestMessage(msg *store.Message) error {
	if err := e.db.TouchConversation(msg.ConversationID, msg.Timestamp, store.PreviewText(msg.Body)); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err := e.db.UpsertMessage(msg); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	return nil
}

func (e *Engine) applyDeletion(del Deletion) error {
	if del.Purge {
		return e.db.RemoveMessage(del.ConversationID, del.MsgID)
	}
	return e.db.MarkMessageDeleted(del.ConversationID, del.MsgID)
}

