// Package tui is the terminal client shell: page navigation, key
// dispatch and the glue between the store's change feed and the
// timeline projection.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/tmarsal/parley/internal/audio"
	"github.com/tmarsal/parley/internal/auth"
	"github.com/tmarsal/parley/internal/bus"
	"github.com/tmarsal/parley/internal/registration"
	"github.com/tmarsal/parley/internal/store"
	"github.com/tmarsal/parley/internal/timeline"
	"github.com/tmarsal/parley/internal/tui/keys"
	"github.com/tmarsal/parley/internal/tui/ui"
	"github.com/tmarsal/parley/internal/tui/views"
	"github.com/tmarsal/parley/internal/wire"
)

const conversationPageSize = 200

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	theme    *ui.Theme
	registry *keys.Registry
	flash    *ui.FlashModel
	logger   *zap.Logger

	db    *store.DB
	bus   *bus.Bus
	authc auth.Service
	audio *audio.Session
	wire  *wire.Client
	flow  *registration.Flow

	statusBar *views.StatusBar
	menu      *ui.Menu
	convList  *views.ConversationList
	timelineV *views.TimelineView
	composer  *views.Composer
	searchV   *views.SearchView
	registerV *views.RegisterView
	signInV   *views.SignInView

	ctrl        *timeline.Controller
	session     *auth.Session
	activeConvo string
	recovered   auth.Credentials

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application for one account.
func NewApp(db *store.DB, b *bus.Bus, authc auth.Service, audioSess *audio.Session, wireC *wire.Client, accountName string, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		pages:    tview.NewPages(),
		theme:    theme,
		registry: keys.NewRegistry(),
		flash:    ui.NewFlashModel(),
		logger:   logger,

		db:    db,
		bus:   b,
		authc: authc,
		audio: audioSess,
		wire:  wireC,

		statusBar: views.NewStatusBar(theme),
		menu:      ui.NewMenu(theme),
		convList:  views.NewConversationList(theme),
		timelineV: views.NewTimelineView(theme),
		composer:  views.NewComposer(theme),
		searchV:   views.NewSearchView(theme),
		registerV: views.NewRegisterView(theme),
		signInV:   views.NewSignInView(theme),

		ctx:    ctx,
		cancel: cancel,
	}

	a.flow = registration.NewFlow(authc, b, logger)
	// Flow callbacks fire on the worker goroutine that drove the flow;
	// they only record state. The UI reacts after the call returns, on
	// the UI goroutine.
	a.flow.OnComplete = func(sess *auth.Session) { a.session = sess }
	a.flow.OnNeedsSignIn = func(creds auth.Credentials) { a.recovered = creds }

	a.statusBar.SetAccount(accountName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddView("conversations", "search", &keys.Action{
		Rune: 's', Key: tcell.KeyRune,
		Description: "s:search", Visible: true,
		Handler: func() { a.showSearch() },
	})
	a.registry.AddView("timeline", "more", &keys.Action{
		Rune: 'm', Key: tcell.KeyRune,
		Description: "m:load more", Visible: true,
		Handler: func() { a.loadMore() },
	})
	a.registry.AddView("timeline", "play", &keys.Action{
		Rune: 'p', Key: tcell.KeyRune,
		Description: "p:play", Visible: true,
		Handler: func() { a.togglePlayback() },
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if id := a.convList.SelectedConversation(); id != "" {
			a.openConversation(id, "")
		}
	})

	a.composer.SetOnSend(func(text string) { a.sendMessage(text) })

	a.searchV.SetOnQuery(func(query string) {
		results, err := a.db.SearchMessages(query, "", 50)
		if err != nil {
			a.flash.Err(err)
			a.syncStatus()
			return
		}
		a.searchV.Update(results)
		a.app.SetFocus(a.searchV.Results())
	})
	a.searchV.Results().SetSelectedFunc(func(row, col int) {
		convo, msgID := a.searchV.SelectedResult()
		if convo != "" {
			a.openConversation(convo, msgID)
		}
	})

	a.setupRegistrationCallbacks()

	a.signInV.OnSubmit = func(creds auth.Credentials) {
		go func() {
			sess, err := a.authc.SignIn(a.ctx, creds)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.flash.Err(err)
					a.syncStatus()
					return
				}
				a.session = sess
				a.enterMain()
			})
		}()
	}
	a.signInV.OnRegister = func() { a.showPage("register", a.registerV) }
}

// setupRegistrationCallbacks connects the registration screens to the
// flow. Every screen callback runs the blocking service call off-loop
// and re-dispatches the UI consequences with QueueUpdateDraw.
func (a *App) setupRegistrationCallbacks() {
	syncStep := func(err error) {
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrEmailTaken):
			a.flash.Warn("That email already has an account. Sign in instead.")
			a.signInV.Prefill(a.recovered)
			a.showPage("signin", a.signInV)
			a.syncStatus()
			return
		case errors.Is(err, auth.ErrBadCode):
			a.flash.Warn("That code didn't match. Check your email and try again.")
		default:
			a.flash.Err(err)
		}
		a.registerV.ShowStep(a.flow.Step())
		if a.flow.Step() == registration.StepComplete {
			link := ""
			if a.session != nil {
				link = a.session.DeviceLinkURL
			}
			a.registerV.ShowDeviceLink(link)
		}
		a.syncStatus()
	}

	a.registerV.OnSubmitEmail = func(displayName, email, password string) {
		go func() {
			err := a.flow.SubmitEmail(a.ctx, displayName, email, password)
			a.app.QueueUpdateDraw(func() { syncStep(err) })
		}()
	}
	a.registerV.OnSubmitCode = func(code string) {
		go func() {
			err := a.flow.SubmitCode(a.ctx, code)
			a.app.QueueUpdateDraw(func() { syncStep(err) })
		}()
	}
	a.registerV.OnResendCode = func() {
		go func() {
			err := a.flow.ResendCode(a.ctx)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.flash.Err(err)
				} else {
					a.flash.Info("Verification code resent.")
				}
				a.syncStatus()
			})
		}()
	}
	a.registerV.OnAcceptTerms = func() {
		go func() {
			err := a.flow.AcceptTerms(a.ctx)
			a.app.QueueUpdateDraw(func() { syncStep(err) })
		}()
	}
	a.registerV.OnSetAvatar = func(path string) {
		go func() {
			err := a.flow.SetProfilePicture(a.ctx, path)
			a.app.QueueUpdateDraw(func() { syncStep(err) })
		}()
	}
	a.registerV.OnSkipAvatar = func() {
		if err := a.flow.SkipProfilePicture(); err != nil {
			a.flash.Err(err)
		}
		syncStep(nil)
	}
	a.registerV.OnFinished = func() { a.enterMain() }
}

func (a *App) setupLayout() {
	timelineFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.timelineV, 0, 1, true).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("signin", a.signInV, true, true)
	a.pages.AddPage("register", a.registerV, true, false)
	a.pages.AddPage("conversations", a.convList, true, false)
	a.pages.AddPage("timeline", timelineFlex, true, false)
	a.pages.AddPage("search", a.searchV, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.menu, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.menu.Update(a.signInV.Hints())

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "timeline", "search":
				a.closeConversation()
				a.showPage("conversations", a.convList)
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}
		if _, ok := focused.(*tview.Button); ok {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == "timeline" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

func (a *App) showSearch() {
	a.showPage("search", a.searchV)
}

func (a *App) showPage(name string, c ui.Component) {
	a.pages.SwitchToPage(name)
	a.menu.Update(c.Hints())
	switch name {
	case "conversations":
		a.app.SetFocus(a.convList)
	case "timeline":
		a.app.SetFocus(a.timelineV)
	case "search":
		a.app.SetFocus(a.searchV.Input())
	}
}

// enterMain switches to the conversation list and starts the background
// loops. Called once sign-in or registration has produced a session.
func (a *App) enterMain() {
	if a.session != nil {
		a.wire.SetToken(a.session.Token)
	}
	a.wire.Start(a.ctx)
	a.refreshConversations()
	a.showPage("conversations", a.convList)
	a.statusBar.SetStatus("READY")
	a.watchChanges()
	a.startRefreshLoop()
}

func (a *App) refreshConversations() {
	conversations, err := a.db.ListConversations(conversationPageSize, 0)
	if err != nil {
		a.flash.Err(err)
		return
	}
	a.convList.Update(conversations)
}

// openConversation opens the timeline for a conversation. A non-empty
// msgID jumps to that message, growing the window as needed.
func (a *App) openConversation(id, msgID string) {
	a.closeConversation()
	a.activeConvo = id

	title := id
	if c, err := a.db.GetConversation(id); err == nil && c != nil && c.Title != "" {
		title = c.Title
	}
	a.timelineV.SetConversationTitle(title)

	a.ctrl = timeline.NewController(a.db, id, a.timelineV, a.audio, a.logger)
	a.timelineV.SetController(a.ctrl)
	a.showPage("timeline", a.timelineV)

	if msgID != "" {
		if !a.ctrl.AdvanceUntilVisible(msgID) {
			a.flash.Warn("Message no longer exists.")
			a.syncStatus()
			return
		}
		a.ctrl.Select(msgID)
		if row, ok := a.ctrl.IndexOf(msgID); ok {
			a.timelineV.Select(row, 0)
		}
	}
}

func (a *App) closeConversation() {
	a.audio.Stop()
	a.ctrl = nil
	a.activeConvo = ""
	a.timelineV.SetController(nil)
}

func (a *App) loadMore() {
	if a.ctrl == nil {
		return
	}
	if !a.ctrl.GrowBatch() {
		a.flash.Info("Beginning of conversation.")
		a.syncStatus()
	}
}

func (a *App) togglePlayback() {
	m, ok := a.timelineV.SelectedMessage()
	if !ok || m.Kind != store.KindAudio || m.Deleted {
		return
	}
	if a.audio.CurrentMessage() == m.MsgID {
		a.audio.Stop()
		return
	}
	a.audio.Play(m.MsgID)
}

func (a *App) sendMessage(text string) {
	convo := a.activeConvo
	if convo == "" {
		return
	}
	clientMsgID := uuid.New().String()
	if err := a.db.QueueOutbox(clientMsgID, convo, text); err != nil {
		a.flash.Err(err)
		a.syncStatus()
	}
	// The outbox sender picks the entry up and the optimistic upsert
	// flows back through the change feed.
}

// watchChanges forwards the store's row change feed to the active
// timeline controller, re-dispatched onto the UI goroutine.
func (a *App) watchChanges() {
	ch, unsub := a.bus.Subscribe(store.EventChanges, 64)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				batch, ok := evt.Payload.(store.ChangeBatch)
				if !ok {
					continue
				}
				a.app.QueueUpdateDraw(func() {
					if a.ctrl != nil {
						a.ctrl.Apply(batch)
					}
				})
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.app.QueueUpdateDraw(func() {
					currentPage, _ := a.pages.GetFrontPage()
					if currentPage == "conversations" {
						a.refreshConversations()
					}
					a.syncStatus()
				})
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

func (a *App) syncStatus() {
	a.statusBar.SetFlash(a.flash.Get())
}

// Run starts the TUI application.
func (a *App) Run() error {
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
