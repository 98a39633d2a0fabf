// Package client calls the rollbook HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSessionExpired is returned once the server rejected the session token
// or the session was logged out.
var ErrSessionExpired = errors.New("session expired, log in again")

// APIError is a non-2xx response other than an auth failure.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to one API server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	now     func() time.Time
}

// New creates a client with a 15s timeout.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
}

// Signup registers a teacher account.
func (c *Client) Signup(ctx context.Context, name, email, password string) error {
	_, err := c.call(ctx, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": password,
	}, nil)
	return err
}

// Login authenticates and opens a session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var out struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if _, err := c.call(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	}, &out); err != nil {
		return nil, err
	}
	return &Session{client: c, token: out.Token, TeacherID: out.ID, Name: out.Name, Email: out.Email}, nil
}

// Resume opens a session from a previously issued token.
func (c *Client) Resume(token string) *Session {
	return &Session{client: c, token: token}
}

// ForgotPassword asks the server to email a reset code and returns its message.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	return c.call(ctx, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password using the emailed code.
func (c *Client) ResetPassword(ctx context.Context, code, newPassword string) error {
	_, err := c.call(ctx, http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"token": code, "newPassword": newPassword,
	}, nil)
	return err
}

// call sends a JSON request and decodes the envelope's data into out.
// It returns the envelope message.
func (c *Client) call(ctx context.Context, method, path, token string, in, out any) (string, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return "", err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = resp.Status
		}
		return "", &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return env.Message, nil
}
