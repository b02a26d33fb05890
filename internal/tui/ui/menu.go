package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Menu displays keyboard shortcut hints for the active view.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the hints on one line.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	for i, h := range hints {
		if i > 0 {
			_, _ = fmt.Fprint(m, "  ")
		}
		_, _ = fmt.Fprintf(m, "[%s::b]<%s>[-:-:-] %s", colorName(m.theme.MenuKeyColor), h.Key, h.Description)
	}
}

func colorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
