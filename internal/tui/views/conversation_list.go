package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tmarsal/parley/internal/store"
	"github.com/tmarsal/parley/internal/tui/ui"
)

// ConversationList is the main conversation table.
type ConversationList struct {
	*tview.Table
	theme         *ui.Theme
	conversations []store.Conversation
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" Conversations ")
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitleColor(theme.TitleColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	return &ConversationList{Table: table, theme: theme}
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "s", Description: "Search"},
		{Key: "q", Description: "Quit"},
	}
}

// Update refreshes the conversation list with new data.
func (cl *ConversationList) Update(conversations []store.Conversation) {
	cl.conversations = conversations
	cl.Clear()

	headers := []string{" NAME", " LAST MESSAGE", " TIME"}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	for i, c := range conversations {
		row := i + 1
		name := c.Title
		if name == "" {
			name = c.ID
		}
		if c.UnreadCount > 0 {
			name = fmt.Sprintf("* %s (%d)", name, c.UnreadCount)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).
			SetMaxWidth(30).SetExpansion(1).SetTextColor(cl.theme.FgColor).SetReference(c.ID))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(c.LastMessagePreview))).
			SetMaxWidth(40).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(c.LastMessageAt)).
			SetMaxWidth(12).SetTextColor(cl.theme.FgColor))
	}
}

// SelectedConversation returns the ID of the currently selected
// conversation, or "".
func (cl *ConversationList) SelectedConversation() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // header
	if idx >= 0 && idx < len(cl.conversations) {
		return cl.conversations[idx].ID
	}
	return ""
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
