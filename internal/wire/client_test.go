package wire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tmarsal/parley/internal/bus"
	"github.com/tmarsal/parley/internal/store"
	"github.com/tmarsal/parley/internal/timeline"
)

// Kinds the relay speaks but this client version does not must land in the
// store as KindUnknown: every persisted row has to classify to a renderer.
func TestForeignKindsNormalizedToUnknown(t *testing.T) {
	tests := []struct {
		name        string
		kind        string
		subkind     string
		wantKind    store.Kind
		wantSubkind store.SystemSubkind
		wantCell    timeline.CellKind
	}{
		{"known kind", "image", "", store.KindImage, store.SubkindNone, timeline.CellImage},
		{"foreign kind", "sticker", "", store.KindUnknown, store.SubkindNone, timeline.CellUnknown},
		{"known system subkind", "system", "rename", store.KindSystem, store.SubkindRename, timeline.CellSystemRename},
		{"foreign system subkind", "system", "poll_created", store.KindUnknown, store.SubkindNone, timeline.CellUnknown},
		{"system without subkind", "system", "", store.KindUnknown, store.SubkindNone, timeline.CellUnknown},
		{"subkind on non-system kind", "text", "rename", store.KindText, store.SubkindNone, timeline.CellText},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := toStoreMessage(wireMessage{ConversationID: "c1", MsgID: "m1", Kind: tc.kind, Subkind: tc.subkind})
			if m.Kind != tc.wantKind {
				t.Errorf("kind = %q, want %q", m.Kind, tc.wantKind)
			}
			if m.Subkind != tc.wantSubkind {
				t.Errorf("subkind = %q, want %q", m.Subkind, tc.wantSubkind)
			}
			if got := timeline.CellKindFor(*m); got != tc.wantCell {
				t.Errorf("cell kind = %v, want %v", got, tc.wantCell)
			}
		})
	}
}

func TestSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q, want Bearer tok", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["conversation_id"] != "conv-1" || body["body"] != "hello" {
			t.Errorf("unexpected body %v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"msg_id": "srv-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, bus.New(), zap.NewNop())
	c.SetToken("tok")

	msgID, err := c.SendText(context.Background(), "conv-1", "hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if msgID != "srv-1" {
		t.Errorf("msgID = %q, want srv-1", msgID)
	}
}

func TestSendTextRelayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, bus.New(), zap.NewNop())
	if _, err := c.SendText(context.Background(), "conv-1", "hello"); err == nil {
		t.Fatal("SendText should surface relay errors")
	}
}

func TestEventStreamPublishesBusEvents(t *testing.T) {
	var served bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/events" {
			t.Errorf("path = %s, want /v1/events", r.URL.Path)
		}
		if served {
			// Hold subsequent polls open like a real long poll.
			time.Sleep(5 * time.Second)
			json.NewEncoder(w).Encode(map[string]any{"cursor": "c2", "events": []any{}})
			return
		}
		served = true
		json.NewEncoder(w).Encode(map[string]any{
			"cursor": "c1",
			"events": []any{
				map[string]any{
					"type": "message",
					"message": map[string]any{
						"conversation_id": "conv-1",
						"msg_id":          "m1",
						"sender_id":       "peer-1",
						"body":            "hi",
						"kind":            "text",
						"timestamp_ms":    1000,
					},
				},
				map[string]any{
					"type":            "deleted",
					"conversation_id": "conv-1",
					"msg_id":          "m0",
				},
			},
		})
	}))
	defer srv.Close()

	b := bus.New()
	ch, unsub := b.Subscribe("wire.", 16)
	defer unsub()

	c := NewClient(srv.URL, b, zap.NewNop())
	c.SetToken("tok")
	c.Start(context.Background())
	defer c.Stop()

	var kinds []string
	deadline := time.After(3 * time.Second)
	for len(kinds) < 2 {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
			if evt.Kind == "wire.message" {
				msg, ok := evt.Payload.(*store.Message)
				if !ok {
					t.Fatalf("payload type = %T, want *store.Message", evt.Payload)
				}
				if msg.MsgID != "m1" || msg.Kind != store.KindText || msg.Status != "received" {
					t.Errorf("message = %+v", msg)
				}
			}
		case <-deadline:
			t.Fatalf("timeout; saw events %v", kinds)
		}
	}
	if kinds[0] != "wire.message" || kinds[1] != "wire.message_deleted" {
		t.Errorf("event order = %v", kinds)
	}
}
