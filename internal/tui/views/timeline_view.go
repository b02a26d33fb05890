package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tmarsal/parley/internal/store"
	"github.com/tmarsal/parley/internal/timeline"
	"github.com/tmarsal/parley/internal/tui/ui"
)

// TimelineView renders one conversation's message window as a table,
// newest message on top, matching the projection order. It is the
// ListSink the timeline controller patches on every store change.
type TimelineView struct {
	*tview.Table
	theme *ui.Theme
	ctrl  *timeline.Controller
}

// NewTimelineView creates an empty timeline view.
func NewTimelineView(theme *ui.Theme) *TimelineView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitleColor(theme.TitleColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	return &TimelineView{Table: table, theme: theme}
}

// Name implements Component.
func (tv *TimelineView) Name() string { return "Timeline" }

// Hints implements Component.
func (tv *TimelineView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "m", Description: "Load more"},
		{Key: "p", Description: "Play/stop voice note"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetController binds the view to a conversation's controller and
// materializes its current window. Passing nil detaches the view.
func (tv *TimelineView) SetController(ctrl *timeline.Controller) {
	tv.ctrl = ctrl
	tv.Reload()
}

// SetConversationTitle updates the border title.
func (tv *TimelineView) SetConversationTitle(title string) {
	tv.SetTitle(fmt.Sprintf(" %s ", title))
}

// SelectedMessage returns the message on the cursor row.
func (tv *TimelineView) SelectedMessage() (store.Message, bool) {
	if tv.ctrl == nil {
		return store.Message{}, false
	}
	row, _ := tv.GetSelection()
	return tv.ctrl.MessageAt(row)
}

// BeginUpdates implements ListSink. tview coalesces redraws per event
// loop pass, so there is nothing to suspend.
func (tv *TimelineView) BeginUpdates() {}

// EndUpdates implements ListSink.
func (tv *TimelineView) EndUpdates() {}

// InsertRow implements ListSink.
func (tv *TimelineView) InsertRow(i int) {
	tv.Table.InsertRow(i)
	tv.bind(i)
}

// DeleteRow implements ListSink.
func (tv *TimelineView) DeleteRow(i int) {
	tv.RemoveRow(i)
}

// RefreshRow implements ListSink.
func (tv *TimelineView) RefreshRow(i int) {
	tv.bind(i)
}

// Reload implements ListSink: full rebuild of the table from the
// controller's projection.
func (tv *TimelineView) Reload() {
	tv.Clear()
	if tv.ctrl == nil {
		return
	}
	for i := 0; i < tv.ctrl.RowCount(); i++ {
		tv.bind(i)
	}
}

// RowVisible implements ListSink. A row is visible when it falls inside
// the current scroll viewport.
func (tv *TimelineView) RowVisible(i int) bool {
	rowOffset, _ := tv.GetOffset()
	_, _, _, height := tv.GetInnerRect()
	return i >= rowOffset && i < rowOffset+height
}

func (tv *TimelineView) bind(i int) {
	m, ok := tv.ctrl.MessageAt(i)
	if !ok {
		return
	}

	sender := m.SenderName
	if sender == "" {
		sender = m.SenderID
	}
	if m.FromMe {
		sender = "You"
	}

	body, bodyColor := tv.renderBody(m)
	senderColor := tv.theme.SenderColor
	if m.Kind == store.KindSystem {
		sender = ""
	}

	tv.SetCell(i, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(sender))).
		SetMaxWidth(18).SetTextColor(senderColor).SetReference(m.MsgID))
	tv.SetCell(i, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(body))).
		SetExpansion(1).SetTextColor(bodyColor))
	tv.SetCell(i, 2, tview.NewTableCell(" "+formatTimestamp(m.Timestamp)).
		SetMaxWidth(12).SetTextColor(tv.theme.SystemColor))
}

// renderBody picks the display text for a row from its cell kind. The
// classifier is total; tombstones short-circuit before it.
func (tv *TimelineView) renderBody(m store.Message) (string, tcell.Color) {
	if m.Deleted {
		return "(message removed)", tv.theme.TombstoneColor
	}

	switch timeline.CellKindFor(m) {
	case timeline.CellText:
		return m.Body, tv.theme.FgColor
	case timeline.CellImage:
		return "[photo] " + m.Body, tv.theme.FgColor
	case timeline.CellVideo:
		return "[video] " + m.Body, tv.theme.FgColor
	case timeline.CellAudio:
		return "[voice note]", tv.theme.FgColor
	case timeline.CellFile:
		return "[file] " + m.Body, tv.theme.FgColor
	case timeline.CellLocation:
		return "[location]", tv.theme.FgColor
	case timeline.CellPing:
		return "[ping]", tv.theme.FgColor
	case timeline.CellUnknown:
		return "(unsupported message)", tv.theme.TombstoneColor
	case timeline.CellSystemMembership, timeline.CellSystemRename,
		timeline.CellSystemCall, timeline.CellSystemDeviceTrust:
		return m.Body, tv.theme.SystemColor
	case timeline.CellSystemDecryptFailed:
		return "(message could not be decrypted)", tv.theme.SystemColor
	}
	return m.Body, tv.theme.FgColor
}
