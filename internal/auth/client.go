package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const requestTimeout = 15 * time.Second

// Client is the HTTP implementation of Service against the account
// service's JSON API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the account service at baseURL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) post(ctx context.Context, path string, body any, out any) (int, *apiError, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &apiErr); err != nil {
			apiErr.Message = string(data)
		}
		c.logger.Warn("account service rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code))
		return resp.StatusCode, &apiErr, nil
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil, nil
}

// Register creates a pending account and triggers the verification email.
func (c *Client) Register(ctx context.Context, displayName string, creds Credentials) error {
	status, apiErr, err := c.post(ctx, "/v1/register", map[string]string{
		"display_name": displayName,
		"email":        creds.Email,
		"password":     creds.Password,
	}, nil)
	if err != nil {
		return err
	}
	if apiErr != nil {
		if status == http.StatusConflict {
			return ErrEmailTaken
		}
		return fmt.Errorf("register: %s", apiErr.Message)
	}
	return nil
}

// Verify confirms the emailed code and returns the account session.
func (c *Client) Verify(ctx context.Context, email, code string) (*Session, error) {
	var sess Session
	status, apiErr, err := c.post(ctx, "/v1/verify", map[string]string{
		"email": email,
		"code":  code,
	}, &sess)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		if status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity {
			return nil, ErrBadCode
		}
		return nil, fmt.Errorf("verify: %s", apiErr.Message)
	}
	return &sess, nil
}

// ResendCode asks for a fresh verification email.
func (c *Client) ResendCode(ctx context.Context, email string) error {
	_, apiErr, err := c.post(ctx, "/v1/resend", map[string]string{"email": email}, nil)
	if err != nil {
		return err
	}
	if apiErr != nil {
		return fmt.Errorf("resend: %s", apiErr.Message)
	}
	return nil
}

// AcceptTerms records acceptance of the terms of service.
func (c *Client) AcceptTerms(ctx context.Context, email string) error {
	_, apiErr, err := c.post(ctx, "/v1/terms", map[string]string{"email": email}, nil)
	if err != nil {
		return err
	}
	if apiErr != nil {
		return fmt.Errorf("accept terms: %s", apiErr.Message)
	}
	return nil
}

// SetAvatar uploads the profile picture path chosen during registration.
func (c *Client) SetAvatar(ctx context.Context, email, path string) error {
	_, apiErr, err := c.post(ctx, "/v1/avatar", map[string]string{
		"email": email,
		"path":  path,
	}, nil)
	if err != nil {
		return err
	}
	if apiErr != nil {
		return fmt.Errorf("set avatar: %s", apiErr.Message)
	}
	return nil
}

// SignIn authenticates an existing account.
func (c *Client) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	var sess Session
	status, apiErr, err := c.post(ctx, "/v1/signin", map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	}, &sess)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		if status == http.StatusUnauthorized {
			return nil, fmt.Errorf("sign in: invalid credentials")
		}
		return nil, fmt.Errorf("sign in: %s", apiErr.Message)
	}
	return &sess, nil
}
