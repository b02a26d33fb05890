// Package wire is the HTTP transport to the relay service. Outgoing
// sends go through SendText; inbound traffic arrives over a long-poll
// stream and is republished as "wire.*" bus events for the sync engine.
package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tmarsal/parley/internal/bus"
	"github.com/tmarsal/parley/internal/store"
	intsync "github.com/tmarsal/parley/internal/sync"
)

const (
	sendTimeout = 15 * time.Second
	pollTimeout = 40 * time.Second
	pollBackoff = 2 * time.Second
)

// Client talks to the relay service for one account.
type Client struct {
	baseURL string
	http    *http.Client
	bus     *bus.Bus
	logger  *zap.Logger

	mu     sync.Mutex
	token  string
	cursor string
	cancel context.CancelFunc
}

// NewClient creates a relay client. The session token is set after
// sign-in, before Start.
func NewClient(baseURL string, b *bus.Bus, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: pollTimeout},
		bus:     b,
		logger:  logger,
	}
}

// SetToken installs the session token used for all requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) authToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SendText sends a text message and returns the server message ID.
// Implements the outbox's MessageSender.
func (c *Client) SendText(ctx context.Context, conversationID string, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"conversation_id": conversationID,
		"body":            text,
	})
	if err != nil {
		return "", fmt.Errorf("encoding send request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sending message: relay returned %d", resp.StatusCode)
	}

	var out struct {
		MsgID string `json:"msg_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding send response: %w", err)
	}
	return out.MsgID, nil
}

// Start begins the long-poll event loop.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.loop(ctx)
}

// Stop stops the event loop.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("event poll failed", zap.Error(err))
			select {
			case <-time.After(pollBackoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

type wireMessage struct {
	ConversationID string `json:"conversation_id"`
	MsgID          string `json:"msg_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	Body           string `json:"body"`
	Kind           string `json:"kind"`
	Subkind        string `json:"subkind"`
	FromMe         bool   `json:"from_me"`
	Timestamp      int64  `json:"timestamp_ms"`
}

type wireEvent struct {
	Type           string        `json:"type"`
	Message        *wireMessage  `json:"message,omitempty"`
	Messages       []wireMessage `json:"messages,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	MsgID          string        `json:"msg_id,omitempty"`
	Purge          bool          `json:"purge,omitempty"`
}

func (c *Client) poll(ctx context.Context) error {
	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	u := c.baseURL + "/v1/events?cursor=" + url.QueryEscape(cursor)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("relay returned %d", resp.StatusCode)
	}

	var out struct {
		Cursor string      `json:"cursor"`
		Events []wireEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding events: %w", err)
	}

	for _, evt := range out.Events {
		c.publish(evt)
	}

	c.mu.Lock()
	c.cursor = out.Cursor
	c.mu.Unlock()
	return nil
}

func (c *Client) publish(evt wireEvent) {
	switch evt.Type {
	case "message":
		if evt.Message == nil {
			return
		}
		c.bus.Publish(bus.Event{
			Kind:      "wire.message",
			Timestamp: time.Now(),
			Payload:   toStoreMessage(*evt.Message),
		})
	case "history":
		msgs := make([]*store.Message, 0, len(evt.Messages))
		for _, m := range evt.Messages {
			msgs = append(msgs, toStoreMessage(m))
		}
		c.bus.Publish(bus.Event{
			Kind:      "wire.history_batch",
			Timestamp: time.Now(),
			Payload:   msgs,
		})
	case "deleted":
		c.bus.Publish(bus.Event{
			Kind:      "wire.message_deleted",
			Timestamp: time.Now(),
			Payload: intsync.Deletion{
				ConversationID: evt.ConversationID,
				MsgID:          evt.MsgID,
				Purge:          evt.Purge,
			},
		})
	default:
		c.logger.Debug("ignoring unknown wire event", zap.String("type", evt.Type))
	}
}

// toStoreMessage converts a relay message, normalizing kind and subkind
// onto the store's closed sets. The relay may speak kinds this client
// version has never heard of; those rows persist as KindUnknown. A system
// message whose subkind we cannot classify has no renderer either, so it
// degrades to KindUnknown as a whole.
func toStoreMessage(m wireMessage) *store.Message {
	kind := store.ParseKind(m.Kind)
	subkind := store.SubkindNone
	if kind == store.KindSystem {
		sk, ok := store.ParseSubkind(m.Subkind)
		if !ok {
			kind = store.KindUnknown
		}
		subkind = sk
	}
	return &store.Message{
		ConversationID: m.ConversationID,
		MsgID:          m.MsgID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Body:           m.Body,
		Kind:           kind,
		Subkind:        subkind,
		FromMe:         m.FromMe,
		Status:         "received",
		Timestamp:      m.Timestamp,
	}
}
