package views

import (
	"github.com/rivo/tview"

	"github.com/tmarsal/parley/internal/auth"
	"github.com/tmarsal/parley/internal/tui/ui"
)

// SignInView is the sign-in form for existing accounts.
type SignInView struct {
	tview.Primitive
	form *tview.Form

	// OnSubmit fires with the typed credentials.
	OnSubmit func(creds auth.Credentials)
	// OnRegister switches to the registration flow instead.
	OnRegister func()
}

// NewSignInView creates the sign-in form.
func NewSignInView(theme *ui.Theme) *SignInView {
	sv := &SignInView{}

	f := tview.NewForm().
		AddInputField("Email", "", 40, nil, nil).
		AddPasswordField("Password", "", 40, '*', nil)
	f.AddButton("Sign in", func() {
		if sv.OnSubmit == nil {
			return
		}
		sv.OnSubmit(auth.Credentials{
			Email:    f.GetFormItemByLabel("Email").(*tview.InputField).GetText(),
			Password: f.GetFormItemByLabel("Password").(*tview.InputField).GetText(),
		})
	})
	f.AddButton("Create account", func() {
		if sv.OnRegister != nil {
			sv.OnRegister()
		}
	})
	f.SetBorder(true).SetTitle(" Sign in ")
	f.SetBorderColor(theme.BorderColor)
	f.SetBackgroundColor(theme.BgColor)
	f.SetTitleColor(theme.TitleColor)
	f.SetFieldBackgroundColor(theme.BgColor)
	f.SetFieldTextColor(theme.FgColor)
	f.SetLabelColor(theme.MenuKeyColor)
	f.SetButtonBackgroundColor(theme.MenuKeyColor)

	sv.form = f
	sv.Primitive = center(f, 60, 11)
	return sv
}

// Name implements Component.
func (sv *SignInView) Name() string { return "SignIn" }

// Hints implements Component.
func (sv *SignInView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Confirm"},
	}
}

// Prefill fills the form with recovered credentials, used when
// registration finds the email already has an account.
func (sv *SignInView) Prefill(creds auth.Credentials) {
	sv.form.GetFormItemByLabel("Email").(*tview.InputField).SetText(creds.Email)
	sv.form.GetFormItemByLabel("Password").(*tview.InputField).SetText(creds.Password)
}
