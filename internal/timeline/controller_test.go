package timeline

import (
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/tmarsal/parley/internal/store"
)

// fakeQuerier serves a fixed descending-ordered message set.
type fakeQuerier struct {
	msgs []store.Message // newest first
}

func (f *fakeQuerier) CountMessages(string) (int, error) {
	return len(f.msgs), nil
}

func (f *fakeQuerier) WindowMessages(_ string, limit int) ([]store.Message, error) {
	if limit > len(f.msgs) {
		limit = len(f.msgs)
	}
	out := make([]store.Message, limit)
	copy(out, f.msgs[:limit])
	return out, nil
}

// fakeSink records every mutation call.
type fakeSink struct {
	ops     []string
	begins  int
	ends    int
	reloads int
	visible bool
}

func (s *fakeSink) BeginUpdates()       { s.begins++ }
func (s *fakeSink) EndUpdates()         { s.ends++ }
func (s *fakeSink) Reload()             { s.reloads++ }
func (s *fakeSink) InsertRow(i int)     { s.ops = append(s.ops, fmt.Sprintf("insert@%d", i)) }
func (s *fakeSink) DeleteRow(i int)     { s.ops = append(s.ops, fmt.Sprintf("delete@%d", i)) }
func (s *fakeSink) RefreshRow(i int)    { s.ops = append(s.ops, fmt.Sprintf("refresh@%d", i)) }
func (s *fakeSink) RowVisible(int) bool { return s.visible }

// fakeAudio tracks the bound message and counts stops.
type fakeAudio struct {
	current string
	stops   int
}

func (a *fakeAudio) CurrentMessage() string { return a.current }
func (a *fakeAudio) Stop()                  { a.stops++; a.current = "" }

func descMessages(n int) []store.Message {
	msgs := make([]store.Message, n)
	for i := 0; i < n; i++ {
		// Row 0 is the newest.
		msgs[i] = store.Message{
			ConversationID: "c1",
			MsgID:          fmt.Sprintf("m%d", n-i),
			Body:           "hello",
			Kind:           store.KindText,
			Timestamp:      int64((n - i) * 1000),
		}
	}
	return msgs
}

func newTestController(t *testing.T, total int) (*Controller, *fakeQuerier, *fakeSink, *fakeAudio) {
	t.Helper()
	q := &fakeQuerier{msgs: descMessages(total)}
	sink := &fakeSink{visible: true}
	audio := &fakeAudio{}
	c := NewController(q, "c1", sink, audio, zap.NewNop())
	return c, q, sink, audio
}

func TestInitialWindow(t *testing.T) {
	c, _, sink, _ := newTestController(t, 250)

	if got, want := c.RowCount(), batchSize*initialBatches; got != want {
		t.Errorf("RowCount = %d, want %d", got, want)
	}
	if c.Total() != 250 {
		t.Errorf("Total = %d, want 250", c.Total())
	}
	if sink.reloads != 1 {
		t.Errorf("reloads = %d, want 1", sink.reloads)
	}
	// Newest message is row 0.
	m, ok := c.MessageAt(0)
	if !ok || m.MsgID != "m250" {
		t.Errorf("row 0 = %v, want m250", m.MsgID)
	}
}

// TestGrowSucceedsIffMoreExists checks the window growth contract for a
// range of limits and totals: Grow succeeds and raises the limit by the
// requested step exactly when limit < total before the call.
func TestGrowSucceedsIffMoreExists(t *testing.T) {
	tests := []struct {
		total int
		step  int
		want  bool
	}{
		{total: 250, step: 50, want: true},
		{total: 101, step: 50, want: true},
		{total: 100, step: 50, want: false},
		{total: 10, step: 50, want: false},
		{total: 0, step: 50, want: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("total=%d", tt.total), func(t *testing.T) {
			c, _, sink, _ := newTestController(t, tt.total)
			before := c.Limit()
			reloadsBefore := sink.reloads

			got := c.Grow(tt.step)
			if got != tt.want {
				t.Fatalf("Grow = %v, want %v", got, tt.want)
			}
			if tt.want {
				if c.Limit() != before+tt.step {
					t.Errorf("limit = %d, want %d", c.Limit(), before+tt.step)
				}
				if sink.reloads != reloadsBefore+1 {
					t.Errorf("growth must trigger a full reload")
				}
			} else {
				if c.Limit() != before {
					t.Errorf("failed Grow must not change the limit (got %d)", c.Limit())
				}
				if sink.reloads != reloadsBefore {
					t.Errorf("failed Grow must not reload")
				}
			}
		})
	}
}

func TestGrowUntilExhausted(t *testing.T) {
	c, _, _, _ := newTestController(t, 230)

	grown := 0
	for c.GrowBatch() {
		grown++
		if grown > 10 {
			t.Fatal("Grow did not converge")
		}
	}
	if c.RowCount() != 230 {
		t.Errorf("RowCount = %d, want 230 after exhausting growth", c.RowCount())
	}
}

func TestAdvanceUntilVisibleFindsTarget(t *testing.T) {
	c, _, _, _ := newTestController(t, 2000)

	// m1 is the oldest message, materialized last.
	if !c.AdvanceUntilVisible("m1") {
		t.Fatal("AdvanceUntilVisible = false, want true for present message")
	}
	row, ok := c.IndexOf("m1")
	if !ok {
		t.Fatal("target not resolvable after advance")
	}
	if row != 1999 {
		t.Errorf("row = %d, want 1999", row)
	}
}

func TestAdvanceUntilVisibleAlreadyMaterialized(t *testing.T) {
	c, _, sink, _ := newTestController(t, 500)
	reloads := sink.reloads

	if !c.AdvanceUntilVisible("m500") {
		t.Fatal("AdvanceUntilVisible = false for already visible message")
	}
	if sink.reloads != reloads {
		t.Error("no growth expected for an already materialized target")
	}
}

// TestAdvanceUntilVisibleTerminatesOnAbsent guards the termination bound:
// an absent target must not loop, including when the initial window
// already covers the whole collection.
func TestAdvanceUntilVisibleTerminatesOnAbsent(t *testing.T) {
	for _, total := range []int{10, 100, 2000} {
		t.Run(fmt.Sprintf("total=%d", total), func(t *testing.T) {
			c, _, _, _ := newTestController(t, total)
			if c.AdvanceUntilVisible("no-such-message") {
				t.Error("AdvanceUntilVisible = true for absent message")
			}
		})
	}
}

// TestApplyMixedBatch covers the contract batch {insert at 2, delete at 5,
// update at 0}: the row count changes by exactly (+1 -1) and row 0 is
// refreshed in place.
func TestApplyMixedBatch(t *testing.T) {
	c, _, sink, _ := newTestController(t, 50)
	before := c.RowCount()
	row0Before, _ := c.MessageAt(0)
	sink.ops = nil

	ins := &store.Message{ConversationID: "c1", MsgID: "new", Kind: store.KindText, Timestamp: 47500}
	del, _ := c.MessageAt(5)
	upd := row0Before
	upd.Body = "refreshed"

	c.Apply(store.ChangeBatch{
		ConversationID: "c1",
		Changes: []store.Change{
			{Op: store.OpInsert, Index: 2, Message: ins},
			{Op: store.OpDelete, Index: 5, Message: &del},
			{Op: store.OpUpdate, Index: 0, Message: &upd},
		},
	})

	if c.RowCount() != before {
		t.Errorf("RowCount = %d, want %d (net +1 -1)", c.RowCount(), before)
	}
	row0After, _ := c.MessageAt(0)
	if row0After.MsgID != row0Before.MsgID {
		t.Errorf("row 0 identity changed: %s -> %s", row0Before.MsgID, row0After.MsgID)
	}
	if row0After.Body != "refreshed" {
		t.Errorf("row 0 body = %q, want refreshed", row0After.Body)
	}
	wantOps := []string{"insert@2", "delete@5", "refresh@0"}
	if len(sink.ops) != len(wantOps) {
		t.Fatalf("ops = %v, want %v", sink.ops, wantOps)
	}
	for i, w := range wantOps {
		if sink.ops[i] != w {
			t.Errorf("op %d = %s, want %s", i, sink.ops[i], w)
		}
	}
	if sink.begins != 1 || sink.ends != 1 {
		t.Errorf("begin/end = %d/%d, want 1/1 (atomic batch)", sink.begins, sink.ends)
	}
}

func TestApplyIgnoresOtherConversations(t *testing.T) {
	c, _, sink, _ := newTestController(t, 10)
	sink.ops = nil

	c.Apply(store.ChangeBatch{
		ConversationID: "other",
		Changes:        []store.Change{{Op: store.OpInsert, Index: 0, Message: &store.Message{MsgID: "x"}}},
	})

	if len(sink.ops) != 0 || sink.begins != 0 {
		t.Errorf("changes for another conversation must be ignored, got ops %v", sink.ops)
	}
}

func TestInsertEvictsBeyondLimit(t *testing.T) {
	c, _, sink, _ := newTestController(t, 100)
	if c.RowCount() != 100 {
		t.Fatalf("precondition: RowCount = %d, want 100 (at limit)", c.RowCount())
	}
	sink.ops = nil

	c.Apply(store.ChangeBatch{
		ConversationID: "c1",
		Changes: []store.Change{
			{Op: store.OpInsert, Index: 0, Message: &store.Message{ConversationID: "c1", MsgID: "fresh", Kind: store.KindText, Timestamp: 999999}},
		},
	})

	if c.RowCount() != 100 {
		t.Errorf("RowCount = %d, want 100 (projection bounded by limit)", c.RowCount())
	}
	if _, ok := c.IndexOf("fresh"); !ok {
		t.Error("new message must be materialized at the head")
	}
	if _, ok := c.IndexOf("m1"); ok {
		t.Error("tail message must be evicted")
	}
	if c.Total() != 101 {
		t.Errorf("Total = %d, want 101", c.Total())
	}
}

func TestDeleteStopsBoundAudioExactlyOnce(t *testing.T) {
	c, _, _, audio := newTestController(t, 10)
	target, _ := c.MessageAt(4)
	audio.current = target.MsgID

	c.Apply(store.ChangeBatch{
		ConversationID: "c1",
		Changes:        []store.Change{{Op: store.OpDelete, Index: 4, Message: &target}},
	})
	if audio.stops != 1 {
		t.Fatalf("stops = %d, want 1", audio.stops)
	}

	// A second, unrelated delete must not stop anything.
	other, _ := c.MessageAt(2)
	c.Apply(store.ChangeBatch{
		ConversationID: "c1",
		Changes:        []store.Change{{Op: store.OpDelete, Index: 2, Message: &other}},
	})
	if audio.stops != 1 {
		t.Errorf("stops = %d, want 1 (unrelated delete must not stop playback)", audio.stops)
	}
}

func TestUpdateTombstoneSkipsRebind(t *testing.T) {
	c, _, sink, _ := newTestController(t, 10)
	sink.ops = nil

	m, _ := c.MessageAt(3)
	m.Deleted = true
	c.Apply(store.ChangeBatch{
		ConversationID: "c1",
		Changes:        []store.Change{{Op: store.OpUpdate, Index: 3, Message: &m}},
	})

	for _, op := range sink.ops {
		if op == "refresh@3" {
			t.Error("tombstoned message must not be rebound")
		}
	}
	// The projection still carries the tombstone.
	got, _ := c.MessageAt(3)
	if !got.Deleted {
		t.Error("projection must record the deleted flag")
	}
}

func TestUpdateOffscreenDeferred(t *testing.T) {
	c, _, sink, _ := newTestController(t, 10)
	sink.visible = false
	sink.ops = nil

	m, _ := c.MessageAt(7)
	m.Body = "edited offscreen"
	c.Apply(store.ChangeBatch{
		ConversationID: "c1",
		Changes:        []store.Change{{Op: store.OpUpdate, Index: 7, Message: &m}},
	})

	if len(sink.ops) != 0 {
		t.Errorf("off-screen update must not refresh eagerly, got %v", sink.ops)
	}
	got, _ := c.MessageAt(7)
	if got.Body != "edited offscreen" {
		t.Error("projection content must still be updated for lazy rebinding")
	}
}

// TestRebindIdempotent re-applies the same update twice: the visual state
// must be stable (same row count, no inserts or deletes, identity fixed).
func TestRebindIdempotent(t *testing.T) {
	c, _, sink, _ := newTestController(t, 10)
	before := c.RowCount()

	m, _ := c.MessageAt(2)
	batch := store.ChangeBatch{
		ConversationID: "c1",
		Changes:        []store.Change{{Op: store.OpUpdate, Index: 2, Message: &m}},
	}
	sink.ops = nil
	c.Apply(batch)
	c.Apply(batch)

	if c.RowCount() != before {
		t.Errorf("RowCount = %d, want %d", c.RowCount(), before)
	}
	for _, op := range sink.ops {
		if op != "refresh@2" {
			t.Errorf("unexpected structural op %s during rebind", op)
		}
	}
	got, _ := c.MessageAt(2)
	if got.MsgID != m.MsgID {
		t.Errorf("row 2 identity = %s, want %s", got.MsgID, m.MsgID)
	}
}

func TestMoveReplayedAsDeleteInsert(t *testing.T) {
	c, _, sink, _ := newTestController(t, 10)
	m, _ := c.MessageAt(6)
	sink.ops = nil

	c.Apply(store.ChangeBatch{
		ConversationID: "c1",
		Changes:        []store.Change{{Op: store.OpMove, Index: 6, NewIndex: 0, Message: &m}},
	})

	wantOps := []string{"delete@6", "insert@0"}
	if len(sink.ops) != 2 || sink.ops[0] != wantOps[0] || sink.ops[1] != wantOps[1] {
		t.Fatalf("ops = %v, want %v", sink.ops, wantOps)
	}
	row, ok := c.IndexOf(m.MsgID)
	if !ok || row != 0 {
		t.Errorf("moved message row = %d/%v, want 0", row, ok)
	}
	if c.RowCount() != 10 {
		t.Errorf("RowCount = %d, want 10", c.RowCount())
	}
}

func TestSelectionTracksIdentityAcrossShifts(t *testing.T) {
	c, _, _, _ := newTestController(t, 10)
	target, _ := c.MessageAt(3)
	if !c.Select(target.MsgID) {
		t.Fatal("Select failed for materialized message")
	}

	// Insert above the selection shifts its row but not its identity.
	c.Apply(store.ChangeBatch{
		ConversationID: "c1",
		Changes: []store.Change{
			{Op: store.OpInsert, Index: 0, Message: &store.Message{ConversationID: "c1", MsgID: "head", Kind: store.KindText, Timestamp: 999999}},
		},
	})

	row, ok := c.SelectedRow()
	if !ok || row != 4 {
		t.Errorf("selected row = %d/%v, want 4", row, ok)
	}
	if c.Selected() != target.MsgID {
		t.Errorf("selection = %q, want %q", c.Selected(), target.MsgID)
	}
}

func TestDeleteClearsSelectionAndEditing(t *testing.T) {
	c, _, _, _ := newTestController(t, 10)
	target, _ := c.MessageAt(5)
	c.Select(target.MsgID)
	c.SetEditing(target.MsgID)

	c.Apply(store.ChangeBatch{
		ConversationID: "c1",
		Changes:        []store.Change{{Op: store.OpDelete, Index: 5, Message: &target}},
	})

	if c.Selected() != "" {
		t.Error("selection must be dropped when its message is removed")
	}
	if c.Editing() != "" {
		t.Error("edit marker must be dropped when its message is removed")
	}
}
