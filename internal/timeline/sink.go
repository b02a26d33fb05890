package timeline

// ListSink is the rendering side of a timeline: a keyed, ordered list
// control. Mutations arrive between BeginUpdates and EndUpdates so the
// sink can commit a change batch as one consistent visual diff.
//
// All calls originate from the controller's goroutine.
type ListSink interface {
	BeginUpdates()
	InsertRow(index int)
	DeleteRow(index int)
	RefreshRow(index int)
	EndUpdates()

	// Reload discards all rows and re-renders from the controller.
	// Used after window growth instead of an incremental diff.
	Reload()

	// RowVisible reports whether a row is currently on screen. Updates to
	// off-screen rows are not rebound eagerly; they pick up fresh content
	// on the next render.
	RowVisible(index int) bool
}

// AudioSession is an active audio playback bound to a message identity.
// The timeline stops it when the bound message's row is removed.
type AudioSession interface {
	// CurrentMessage returns the msg_id of the playing message, or ""
	// when idle.
	CurrentMessage() string
	Stop()
}
