package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/tmarsal/parley/internal/tui/ui"
)

// StatusBar displays the account name, connection status and flash
// messages on the bottom line.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	account string
	status  string
	flash   ui.FlashMessage
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetAccount updates the account name display.
func (sb *StatusBar) SetAccount(name string) {
	sb.account = name
	sb.render()
}

// SetStatus updates the status display.
func (sb *StatusBar) SetStatus(status string) {
	sb.status = status
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg ui.FlashMessage) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", sb.account, sb.status, clock)
	if sb.flash.Text != "" {
		color := "navajowhite"
		switch sb.flash.Level {
		case ui.FlashWarn:
			color = "orange"
		case ui.FlashErr:
			color = "orangered"
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, tview.Escape(sb.flash.Text))
	}

	_, _ = fmt.Fprint(sb, line)
}
