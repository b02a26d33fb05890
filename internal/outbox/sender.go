package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tmarsal/parley/internal/bus"
	"github.com/tmarsal/parley/internal/store"
)

// MessageSender is the interface to the wire protocol engine for
// outgoing text messages.
type MessageSender interface {
	SendText(ctx context.Context, conversationID string, text string) (serverMsgID string, err error)
}

// Sender drains the outbox and sends messages through the protocol engine.
type Sender struct {
	db     *store.DB
	sender MessageSender
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender MessageSender, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:     db,
		sender: sender,
		bus:    b,
		logger: logger,
	}
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		// Optimistic insert: show the message in the timeline immediately.
		// UpsertMessage publishes the row change that patches open views.
		now := time.Now().UnixMilli()
		_ = s.db.UpsertMessage(&store.Message{
			ConversationID: entry.ConversationID,
			MsgID:          entry.ClientMsgID,
			Body:           entry.Body,
			Kind:           store.KindText,
			FromMe:         true,
			Status:         "sending",
			Timestamp:      now,
		})

		serverMsgID, err := s.sender.SendText(ctx, entry.ConversationID, entry.Body)
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			_ = s.db.UpsertMessage(&store.Message{
				ConversationID: entry.ConversationID, MsgID: entry.ClientMsgID,
				Body: entry.Body, Kind: store.KindText, FromMe: true,
				Status: "failed", Timestamp: now,
			})
			s.bus.Publish(bus.Event{
				Kind:      "message.send_failed",
				Timestamp: time.Now(),
				Payload: map[string]string{
					"client_msg_id": entry.ClientMsgID,
					"error":         err.Error(),
				},
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, serverMsgID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}

		_ = s.db.UpsertMessage(&store.Message{
			ConversationID: entry.ConversationID, MsgID: entry.ClientMsgID,
			Body: entry.Body, Kind: store.KindText, FromMe: true,
			Status: "sent", Timestamp: now,
		})

		s.logger.Info("message sent", zap.String("client_msg_id", entry.ClientMsgID), zap.String("server_msg_id", serverMsgID))
		s.bus.Publish(bus.Event{
			Kind:      "message.send_ack",
			Timestamp: time.Now(),
			Payload: map[string]string{
				"client_msg_id": entry.ClientMsgID,
				"server_msg_id": serverMsgID,
			},
		})
	}
}
