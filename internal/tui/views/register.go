package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tmarsal/parley/internal/registration"
	"github.com/tmarsal/parley/internal/tui/ui"
)

// RegisterView hosts one subpage per registration step and switches
// between them as the flow advances.
type RegisterView struct {
	*tview.Pages
	theme *ui.Theme

	emailForm  *tview.Form
	codeForm   *tview.Form
	termsForm  *tview.Form
	avatarForm *tview.Form
	complete   *tview.TextView

	// Completion callbacks from each screen.
	OnSubmitEmail func(displayName, email, password string)
	OnSubmitCode  func(code string)
	OnResendCode  func()
	OnAcceptTerms func()
	OnSetAvatar   func(path string)
	OnSkipAvatar  func()
	OnFinished    func()
}

// NewRegisterView creates the registration screens.
func NewRegisterView(theme *ui.Theme) *RegisterView {
	rv := &RegisterView{
		Pages: tview.NewPages(),
		theme: theme,
	}
	rv.buildEmailForm()
	rv.buildCodeForm()
	rv.buildTermsForm()
	rv.buildAvatarForm()
	rv.buildCompleteView()

	rv.AddPage(string(registration.StepEmailEntry), center(rv.emailForm, 60, 13), true, true)
	rv.AddPage(string(registration.StepVerification), center(rv.codeForm, 60, 11), true, false)
	rv.AddPage(string(registration.StepTerms), center(rv.termsForm, 70, 15), true, false)
	rv.AddPage(string(registration.StepProfilePicture), center(rv.avatarForm, 60, 11), true, false)
	rv.AddPage(string(registration.StepComplete), rv.complete, true, false)

	return rv
}

// Name implements Component.
func (rv *RegisterView) Name() string { return "Register" }

// Hints implements Component.
func (rv *RegisterView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Confirm"},
	}
}

// ShowStep switches to the subpage for the given flow step.
func (rv *RegisterView) ShowStep(step registration.Step) {
	rv.SwitchToPage(string(step))
}

// ShowDeviceLink renders the device pairing QR on the completion screen.
func (rv *RegisterView) ShowDeviceLink(url string) {
	rv.complete.Clear()
	_, _ = fmt.Fprintf(rv.complete,
		"\n  [::b]You're all set.[-:-:-]\n\n  Scan to link another device:\n\n%s\n  Press Enter to start messaging.",
		renderQR(url))
}

func (rv *RegisterView) styleForm(f *tview.Form, title string) {
	f.SetBorder(true).SetTitle(title)
	f.SetBorderColor(rv.theme.BorderColor)
	f.SetBackgroundColor(rv.theme.BgColor)
	f.SetTitleColor(rv.theme.TitleColor)
	f.SetFieldBackgroundColor(rv.theme.BgColor)
	f.SetFieldTextColor(rv.theme.FgColor)
	f.SetLabelColor(rv.theme.MenuKeyColor)
	f.SetButtonBackgroundColor(rv.theme.MenuKeyColor)
}

func (rv *RegisterView) buildEmailForm() {
	f := tview.NewForm().
		AddInputField("Name", "", 40, nil, nil).
		AddInputField("Email", "", 40, nil, nil).
		AddPasswordField("Password", "", 40, '*', nil)
	f.AddButton("Continue", func() {
		if rv.OnSubmitEmail == nil {
			return
		}
		name := f.GetFormItemByLabel("Name").(*tview.InputField).GetText()
		email := f.GetFormItemByLabel("Email").(*tview.InputField).GetText()
		password := f.GetFormItemByLabel("Password").(*tview.InputField).GetText()
		rv.OnSubmitEmail(name, email, password)
	})
	rv.styleForm(f, " Create account ")
	rv.emailForm = f
}

func (rv *RegisterView) buildCodeForm() {
	f := tview.NewForm().
		AddInputField("Verification code", "", 12, nil, nil)
	f.AddButton("Verify", func() {
		if rv.OnSubmitCode == nil {
			return
		}
		code := f.GetFormItemByLabel("Verification code").(*tview.InputField).GetText()
		rv.OnSubmitCode(code)
	})
	f.AddButton("Resend", func() {
		if rv.OnResendCode != nil {
			rv.OnResendCode()
		}
	})
	rv.styleForm(f, " Check your email ")
	rv.codeForm = f
}

func (rv *RegisterView) buildTermsForm() {
	f := tview.NewForm().
		AddTextView("Terms", "By continuing you agree to the terms of service\nand the privacy policy.", 60, 4, true, false)
	f.AddButton("Accept", func() {
		if rv.OnAcceptTerms != nil {
			rv.OnAcceptTerms()
		}
	})
	rv.styleForm(f, " Terms of service ")
	rv.termsForm = f
}

func (rv *RegisterView) buildAvatarForm() {
	f := tview.NewForm().
		AddInputField("Image path", "", 40, nil, nil)
	f.AddButton("Upload", func() {
		if rv.OnSetAvatar == nil {
			return
		}
		path := f.GetFormItemByLabel("Image path").(*tview.InputField).GetText()
		rv.OnSetAvatar(path)
	})
	f.AddButton("Skip", func() {
		if rv.OnSkipAvatar != nil {
			rv.OnSkipAvatar()
		}
	})
	rv.styleForm(f, " Profile picture ")
	rv.avatarForm = f
}

func (rv *RegisterView) buildCompleteView() {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true).SetTitle(" Welcome ")
	tv.SetBorderColor(rv.theme.BorderColor)
	tv.SetBackgroundColor(rv.theme.BgColor)
	tv.SetTextColor(rv.theme.FgColor)
	tv.SetTitleColor(rv.theme.TitleColor)
	tv.SetDoneFunc(func(key tcell.Key) {
		if rv.OnFinished != nil {
			rv.OnFinished()
		}
	})
	rv.complete = tv
}

// center wraps a primitive in a flex that centers it on screen.
func center(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false), width, 0, true).
		AddItem(nil, 0, 1, false)
}
