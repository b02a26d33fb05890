// Package registration sequences the account sign-up flow. Each screen
// drives the flow through completion callbacks; the flow validates the
// step ordering, calls the account service and reports what the UI
// should show next.
//
// The flow is single-consumer: all methods must be called from the UI
// goroutine. Service calls block; the UI runs them off-loop and
// re-dispatches the result before touching the flow again.
package registration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tmarsal/parley/internal/auth"
	"github.com/tmarsal/parley/internal/bus"
)

// Step identifies a screen of the registration flow.
type Step string

const (
	StepEmailEntry     Step = "EMAIL_ENTRY"
	StepVerification   Step = "VERIFICATION"
	StepTerms          Step = "TERMS_ACCEPTANCE"
	StepProfilePicture Step = "PROFILE_PICTURE"
	StepComplete       Step = "COMPLETE"
	StepFailed         Step = "FAILED"
)

// validTransitions defines the allowed step ordering. The flow is linear;
// Failed is reachable only from the steps whose service calls can reject
// the account itself.
var validTransitions = map[Step][]Step{
	StepEmailEntry:     {StepVerification, StepFailed},
	StepVerification:   {StepTerms, StepFailed},
	StepTerms:          {StepProfilePicture},
	StepProfilePicture: {StepComplete},
	StepComplete:       {},
	StepFailed:         {},
}

// verifySettleDelay holds the verification screen briefly after a
// successful code so the transition does not feel abrupt.
const verifySettleDelay = 750 * time.Millisecond

// StepChange is the payload for step change events.
type StepChange struct {
	From Step
	To   Step
}

// Flow tracks and enforces the registration step ordering.
type Flow struct {
	mu     sync.Mutex
	svc    auth.Service
	bus    *bus.Bus
	logger *zap.Logger

	step       Step
	creds      auth.Credentials
	session    *auth.Session
	failReason string
	completed  bool
	delay      time.Duration

	// OnComplete fires exactly once when the flow reaches Complete.
	OnComplete func(sess *auth.Session)
	// OnNeedsSignIn fires when registration is abandoned in favor of
	// sign-in, carrying the credentials the user already typed.
	OnNeedsSignIn func(creds auth.Credentials)
}

// NewFlow creates a flow starting at email entry.
func NewFlow(svc auth.Service, b *bus.Bus, logger *zap.Logger) *Flow {
	return &Flow{
		svc:    svc,
		bus:    b,
		logger: logger,
		step:   StepEmailEntry,
		delay:  verifySettleDelay,
	}
}

// Step returns the current step.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// FailureReason returns the reason recorded when the flow entered Failed.
func (f *Flow) FailureReason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failReason
}

// Session returns the account session established at verification, or nil.
func (f *Flow) Session() *auth.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *Flow) transition(to Step) error {
	f.mu.Lock()
	allowed := validTransitions[f.step]
	if !slices.Contains(allowed, to) {
		from := f.step
		f.mu.Unlock()
		return fmt.Errorf("invalid step transition from %s to %s", from, to)
	}
	from := f.step
	f.step = to
	f.mu.Unlock()

	f.logger.Info("registration step changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	if f.bus != nil {
		f.bus.Publish(bus.Event{
			Kind:      "registration.step_changed",
			Timestamp: time.Now(),
			Payload:   StepChange{From: from, To: to},
		})
	}
	return nil
}

func (f *Flow) requireStep(want Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != want {
		return fmt.Errorf("step is %s, want %s", f.step, want)
	}
	return nil
}

// SubmitEmail completes the email entry screen. A duplicate email fails
// the flow and hands the typed credentials to sign-in; any other service
// error is returned for display and the flow stays on email entry.
func (f *Flow) SubmitEmail(ctx context.Context, displayName, email, password string) error {
	if err := f.requireStep(StepEmailEntry); err != nil {
		return err
	}
	creds := auth.Credentials{Email: email, Password: password}
	if err := f.svc.Register(ctx, displayName, creds); err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			f.fail("email already registered")
			if f.OnNeedsSignIn != nil {
				f.OnNeedsSignIn(creds)
			}
		}
		return err
	}
	f.mu.Lock()
	f.creds = creds
	f.mu.Unlock()
	return f.transition(StepVerification)
}

// SubmitCode completes the verification screen. A bad code is returned
// for display and the flow stays on verification so the user can retry.
func (f *Flow) SubmitCode(ctx context.Context, code string) error {
	if err := f.requireStep(StepVerification); err != nil {
		return err
	}
	f.mu.Lock()
	email := f.creds.Email
	f.mu.Unlock()

	sess, err := f.svc.Verify(ctx, email, code)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.session = sess
	delay := f.delay
	f.mu.Unlock()

	// Settle delay only; the code is already accepted and nothing here
	// can fail or be cancelled.
	time.Sleep(delay)
	return f.transition(StepTerms)
}

// ResendCode requests a fresh verification email.
func (f *Flow) ResendCode(ctx context.Context) error {
	if err := f.requireStep(StepVerification); err != nil {
		return err
	}
	f.mu.Lock()
	email := f.creds.Email
	f.mu.Unlock()
	return f.svc.ResendCode(ctx, email)
}

// AcceptTerms completes the terms screen.
func (f *Flow) AcceptTerms(ctx context.Context) error {
	if err := f.requireStep(StepTerms); err != nil {
		return err
	}
	f.mu.Lock()
	email := f.creds.Email
	f.mu.Unlock()
	if err := f.svc.AcceptTerms(ctx, email); err != nil {
		return err
	}
	return f.transition(StepProfilePicture)
}

// SetProfilePicture uploads the chosen avatar and completes the flow.
func (f *Flow) SetProfilePicture(ctx context.Context, path string) error {
	if err := f.requireStep(StepProfilePicture); err != nil {
		return err
	}
	f.mu.Lock()
	email := f.creds.Email
	f.mu.Unlock()
	if err := f.svc.SetAvatar(ctx, email, path); err != nil {
		return err
	}
	return f.complete()
}

// SkipProfilePicture completes the flow without an avatar.
func (f *Flow) SkipProfilePicture() error {
	if err := f.requireStep(StepProfilePicture); err != nil {
		return err
	}
	return f.complete()
}

func (f *Flow) complete() error {
	if err := f.transition(StepComplete); err != nil {
		return err
	}
	f.mu.Lock()
	first := !f.completed
	f.completed = true
	sess := f.session
	f.mu.Unlock()
	if first && f.OnComplete != nil {
		f.OnComplete(sess)
	}
	return nil
}

func (f *Flow) fail(reason string) {
	f.mu.Lock()
	f.failReason = reason
	f.mu.Unlock()
	if err := f.transition(StepFailed); err != nil {
		f.logger.Warn("failing registration flow", zap.Error(err))
	}
}
