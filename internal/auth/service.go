// Package auth talks to the hosted account service. Registration,
// verification and sign-in all happen server-side; this package only
// carries requests and maps the service's failures onto typed errors.
package auth

import (
	"context"
	"errors"
)

var (
	// ErrEmailTaken is returned by Register when the email is already
	// registered. Callers hand the user off to sign-in instead.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrBadCode is returned by Verify for a wrong or expired code.
	ErrBadCode = errors.New("auth: invalid verification code")
)

// Credentials is an email/password pair.
type Credentials struct {
	Email    string
	Password string
}

// Session is an authenticated account session.
type Session struct {
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
	// DeviceLinkURL encodes a one-time link for pairing another device;
	// rendered as a QR code after registration completes.
	DeviceLinkURL string `json:"device_link_url"`
}

// Service is the remote account service used by the registration flow
// and sign-in. All methods block on the network; callers running a UI
// loop invoke them off-loop and re-dispatch results.
type Service interface {
	Register(ctx context.Context, displayName string, creds Credentials) error
	Verify(ctx context.Context, email, code string) (*Session, error)
	ResendCode(ctx context.Context, email string) error
	AcceptTerms(ctx context.Context, email string) error
	SetAvatar(ctx context.Context, email, path string) error
	SignIn(ctx context.Context, creds Credentials) (*Session, error)
}
