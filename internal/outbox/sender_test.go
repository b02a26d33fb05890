package outbox

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tmarsal/parley/internal/bus"
	"github.com/tmarsal/parley/internal/store"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	calls []sendCall
	err   error
	delay time.Duration // artificial delay to observe intermediate states
}

type sendCall struct {
	ConversationID string
	Text           string
}

func (m *mockSender) SendText(_ context.Context, conversationID string, text string) (string, error) {
	m.calls = append(m.calls, sendCall{ConversationID: conversationID, Text: text})
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return "", m.err
	}
	return "server-" + conversationID, nil
}

func testDB(t *testing.T, b *bus.Bus) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path, b)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSenderProcessesPendingMessages(t *testing.T) {
	b := bus.New()
	db := testDB(t, b)
	mock := &mockSender{}
	s := NewSender(db, mock, b, zap.NewNop())

	ch, unsub := b.Subscribe("message.send_ack", 10)
	defer unsub()

	if err := db.UpsertConversation(&store.Conversation{ID: "conv-1", Title: "Ana"}); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox("c1", "conv-1", "hello"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(time.Second)

	if len(mock.calls) != 1 {
		t.Fatalf("got %d send calls, want 1", len(mock.calls))
	}
	if mock.calls[0].ConversationID != "conv-1" || mock.calls[0].Text != "hello" {
		t.Errorf("call = %+v, want {conv-1, hello}", mock.calls[0])
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after send", len(pending))
	}

	select {
	case evt := <-ch:
		if evt.Kind != "message.send_ack" {
			t.Errorf("event kind = %q, want message.send_ack", evt.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_ack event")
	}
}

func TestSenderHandlesFailure(t *testing.T) {
	b := bus.New()
	db := testDB(t, b)
	mock := &mockSender{err: fmt.Errorf("network error")}
	s := NewSender(db, mock, b, zap.NewNop())

	ch, unsub := b.Subscribe("message.send_failed", 10)
	defer unsub()

	if err := db.UpsertConversation(&store.Conversation{ID: "conv-1"}); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox("c1", "conv-1", "hello"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(time.Second)

	select {
	case evt := <-ch:
		if evt.Kind != "message.send_failed" {
			t.Errorf("event kind = %q, want message.send_failed", evt.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_failed event")
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 (should be marked failed)", len(pending))
	}
}

// TestSenderOptimisticInsert verifies that the outbox writes the outgoing
// message with status "sending" before the send completes, then updates it
// to "sent" afterwards. The optimistic upsert is what makes an outgoing
// message appear in the timeline instantly.
func TestSenderOptimisticInsert(t *testing.T) {
	b := bus.New()
	db := testDB(t, b)
	mock := &mockSender{delay: 500 * time.Millisecond}
	s := NewSender(db, mock, b, zap.NewNop())

	if err := db.UpsertConversation(&store.Conversation{ID: "conv-1"}); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox("c1", "conv-1", "optimistic"); err != nil {
		t.Fatal(err)
	}

	// The store publishes a row change for the optimistic insert.
	ch, unsub := b.Subscribe(store.EventChanges, 10)
	defer unsub()

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for optimistic row change")
	}

	// Status is "sending" while the mock is still sleeping.
	msg, err := db.GetMessage("conv-1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != "sending" {
		t.Errorf("status = %q, want 'sending' (optimistic)", msg.Status)
	}
	if !msg.FromMe {
		t.Error("from_me = false, want true")
	}
	if msg.Kind != store.KindText {
		t.Errorf("kind = %q, want text", msg.Kind)
	}

	time.Sleep(time.Second)

	msg, err = db.GetMessage("conv-1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != "sent" {
		t.Errorf("final status = %q, want 'sent'", msg.Status)
	}
}

func TestSenderOptimisticInsertOnFailure(t *testing.T) {
	b := bus.New()
	db := testDB(t, b)
	mock := &mockSender{err: fmt.Errorf("timeout"), delay: 200 * time.Millisecond}
	s := NewSender(db, mock, b, zap.NewNop())

	if err := db.UpsertConversation(&store.Conversation{ID: "conv-1"}); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox("c1", "conv-1", "will-fail"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(time.Second)

	msg, err := db.GetMessage("conv-1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != "failed" {
		t.Errorf("status = %q, want 'failed'", msg.Status)
	}
}
