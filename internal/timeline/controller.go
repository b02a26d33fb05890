// Package timeline maintains a bounded, lazily growing window over a
// conversation's message history and keeps a list control in sync with it
// through row-level change batches.
//
// The controller is single-consumer: every method must be called from the
// one goroutine that owns the UI. Store change notifications produced on
// other goroutines have to be re-dispatched onto that goroutine before
// Apply is called.
package timeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tmarsal/parley/internal/store"
)

const (
	// batchSize is the window growth unit requested by "load more".
	batchSize = 50
	// initialBatches sets the window size when a conversation opens.
	initialBatches = 2
	// advanceStep is the large growth step used when jumping to a
	// specific message (search hits, reply targets).
	advanceStep = 500
)

// Querier is the slice of the message store the timeline reads from.
type Querier interface {
	CountMessages(conversationID string) (int, error)
	WindowMessages(conversationID string, limit int) ([]store.Message, error)
}

// Controller owns the fetch limit, the materialized projection and the
// selection state for one conversation, and patches a ListSink to match.
type Controller struct {
	q       Querier
	convoID string
	sink    ListSink
	audio   AudioSession
	logger  *zap.Logger

	limit int
	total int
	rows  []store.Message
	index map[string]int

	selectedID string
	editingID  string
}

// NewController creates a controller for one conversation and materializes
// the initial window. The store must be reachable once a conversation is
// open; count or fetch failures are unrecoverable configuration errors.
func NewController(q Querier, conversationID string, sink ListSink, audio AudioSession, logger *zap.Logger) *Controller {
	c := &Controller{
		q:       q,
		convoID: conversationID,
		sink:    sink,
		audio:   audio,
		logger:  logger,
		limit:   batchSize * initialBatches,
		index:   make(map[string]int),
	}
	c.reload()
	return c
}

// reload requeries the window and issues a full visual reload. Growth is
// rare enough that a full redraw is cheaper than diffing the tail.
func (c *Controller) reload() {
	total, err := c.q.CountMessages(c.convoID)
	if err != nil {
		panic(fmt.Sprintf("timeline: count for %s: %v", c.convoID, err))
	}
	rows, err := c.q.WindowMessages(c.convoID, c.limit)
	if err != nil {
		panic(fmt.Sprintf("timeline: window fetch for %s: %v", c.convoID, err))
	}
	c.total = total
	c.rows = rows
	c.rebuildIndex(0)
	c.sink.Reload()
	c.logger.Debug("window reloaded",
		zap.String("conversation", c.convoID),
		zap.Int("limit", c.limit),
		zap.Int("rows", len(c.rows)),
		zap.Int("total", c.total))
}

func (c *Controller) rebuildIndex(from int) {
	if from == 0 {
		clear(c.index)
	}
	for i := from; i < len(c.rows); i++ {
		c.index[c.rows[i].MsgID] = i
	}
}

// Grow raises the fetch limit by n and requeries. It succeeds iff the
// current limit has not yet covered the total count; otherwise there is
// nothing more to load and the call is a no-op returning false.
func (c *Controller) Grow(n int) bool {
	if c.limit >= c.total {
		return false
	}
	c.limit += n
	c.reload()
	return true
}

// GrowBatch grows the window by one standard batch.
func (c *Controller) GrowBatch() bool {
	return c.Grow(batchSize)
}

// AdvanceUntilVisible grows the window in large steps until the target
// message is materialized. Returns false when growth is exhausted without
// finding it. The iteration bound guarantees termination even if the
// target is absent from the conversation.
func (c *Controller) AdvanceUntilVisible(msgID string) bool {
	if _, ok := c.index[msgID]; ok {
		return true
	}
	maxSteps := c.total/advanceStep + 1
	for i := 0; i < maxSteps; i++ {
		if !c.Grow(advanceStep) {
			return false
		}
		if _, ok := c.index[msgID]; ok {
			return true
		}
	}
	return false
}

// Apply translates one store change batch into sink mutations, committed
// as a single batched visual update. Records are applied in the order the
// store delivered them. Moves are replayed as delete+insert, matching how
// the change stream reports them.
func (c *Controller) Apply(batch store.ChangeBatch) {
	if batch.ConversationID != c.convoID {
		return
	}
	c.sink.BeginUpdates()
	for _, ch := range batch.Changes {
		switch ch.Op {
		case store.OpInsert:
			c.applyInsert(ch.Index, ch.Message)
		case store.OpDelete:
			c.applyDelete(ch.Index, ch.Message)
		case store.OpUpdate:
			c.applyUpdate(ch.Index, ch.Message)
		case store.OpMove:
			c.applyDelete(ch.Index, ch.Message)
			c.applyInsert(ch.NewIndex, ch.Message)
		}
	}
	c.sink.EndUpdates()
}

func (c *Controller) applyInsert(i int, m *store.Message) {
	c.total++
	if i >= c.limit {
		// Below the window; materialized only if the window grows there.
		return
	}
	if i > len(c.rows) {
		i = len(c.rows)
	}
	c.rows = append(c.rows, store.Message{})
	copy(c.rows[i+1:], c.rows[i:])
	c.rows[i] = *m
	c.rebuildIndex(i)
	c.sink.InsertRow(i)

	// Keep the projection bounded by the fetch limit.
	if len(c.rows) > c.limit {
		last := len(c.rows) - 1
		delete(c.index, c.rows[last].MsgID)
		c.rows = c.rows[:last]
		c.sink.DeleteRow(last)
	}
}

func (c *Controller) applyDelete(i int, m *store.Message) {
	if c.total > 0 {
		c.total--
	}
	if m != nil {
		if c.audio != nil && c.audio.CurrentMessage() == m.MsgID {
			c.logger.Info("stopping playback for removed message", zap.String("msg_id", m.MsgID))
			c.audio.Stop()
		}
		if c.selectedID == m.MsgID {
			c.selectedID = ""
		}
		if c.editingID == m.MsgID {
			c.editingID = ""
		}
	}
	if i >= len(c.rows) {
		return
	}
	delete(c.index, c.rows[i].MsgID)
	c.rows = append(c.rows[:i], c.rows[i+1:]...)
	c.rebuildIndex(i)
	c.sink.DeleteRow(i)
}

func (c *Controller) applyUpdate(i int, m *store.Message) {
	if i >= len(c.rows) || m == nil {
		return
	}
	c.rows[i] = *m
	if m.Deleted {
		// Tombstone: content stays suppressed, no rebind.
		return
	}
	if c.sink.RowVisible(i) {
		c.sink.RefreshRow(i)
	}
}

// RowCount returns the number of materialized rows.
func (c *Controller) RowCount() int {
	return len(c.rows)
}

// MessageAt returns the message bound to a row.
func (c *Controller) MessageAt(row int) (store.Message, bool) {
	if row < 0 || row >= len(c.rows) {
		return store.Message{}, false
	}
	return c.rows[row], true
}

// IndexOf resolves a message identity to its current row.
func (c *Controller) IndexOf(msgID string) (int, bool) {
	i, ok := c.index[msgID]
	return i, ok
}

// Total returns the total message count known upstream.
func (c *Controller) Total() int {
	return c.total
}

// Limit returns the current fetch limit.
func (c *Controller) Limit() int {
	return c.limit
}

// Select marks a message as selected, by identity. Returns false if the
// message is not materialized.
func (c *Controller) Select(msgID string) bool {
	if _, ok := c.index[msgID]; !ok {
		return false
	}
	c.selectedID = msgID
	return true
}

// Selected returns the selected message identity, or "".
func (c *Controller) Selected() string {
	return c.selectedID
}

// SelectedRow resolves the selection to its current row.
func (c *Controller) SelectedRow() (int, bool) {
	if c.selectedID == "" {
		return 0, false
	}
	return c.IndexOf(c.selectedID)
}

// ClearSelection drops the selection.
func (c *Controller) ClearSelection() {
	c.selectedID = ""
}

// SetEditing marks a message as under edit, by identity. At most one
// message is under edit at a time.
func (c *Controller) SetEditing(msgID string) bool {
	if _, ok := c.index[msgID]; !ok {
		return false
	}
	c.editingID = msgID
	return true
}

// Editing returns the identity of the message under edit, or "".
func (c *Controller) Editing() string {
	return c.editingID
}

// ClearEditing drops the edit marker.
func (c *Controller) ClearEditing() {
	c.editingID = ""
}
