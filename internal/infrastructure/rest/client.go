// Package rest implements the ports.API contract against the qrconnect
// REST collaborator over net/http.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/qrconnect/qrconnect-client/internal/core/domain"
)

const defaultTimeout = 10 * time.Second

// Config captures the settings for building a REST client.
type Config struct {
	// BaseURL is the API root, including any /api prefix.
	BaseURL string
	Timeout time.Duration
}

// Client is a thin HTTP client that maps the REST collaborator's statuses
// onto domain errors: 401 → ErrInvalidCredentials, transport failures →
// ErrNetwork. It holds the bearer credential set by the session layer.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	mu    sync.RWMutex
	token string
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// SetToken replaces the bearer credential attached to authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, password string) (string, *domain.Identity, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/users/login", loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return "", nil, err
	}
	return resp.Token, &resp.User, nil
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*domain.Identity, error) {
	var identity domain.Identity
	err := c.do(ctx, http.MethodPost, "/users/register", registerRequest{Name: name, Email: email, Password: password}, &identity)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (c *Client) CurrentUser(ctx context.Context) (*domain.Identity, error) {
	var identity domain.Identity
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (c *Client) ListConnections(ctx context.Context, userID string) ([]domain.Connection, error) {
	var conns []domain.Connection
	path := "/connections/user/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &conns); err != nil {
		return nil, err
	}
	return conns, nil
}

type createConnectionRequest struct {
	User1ID string `json:"user1Id"`
	User2ID string `json:"user2Id"`
}

func (c *Client) CreateConnection(ctx context.Context, user1ID, user2ID string) error {
	return c.do(ctx, http.MethodPost, "/connections", createConnectionRequest{User1ID: user1ID, User2ID: user2ID}, nil)
}

type createMessageRequest struct {
	ConnectionID string `json:"connectionId"`
	SenderID     string `json:"senderId"`
	Content      string `json:"content"`
}

func (c *Client) CreateMessage(ctx context.Context, connectionID, senderID, content string) (*domain.Message, error) {
	var msg domain.Message
	req := createMessageRequest{ConnectionID: connectionID, SenderID: senderID, Content: content}
	if err := c.do(ctx, http.MethodPost, "/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) ListMessages(ctx context.Context, connectionID string) ([]domain.Message, error) {
	var msgs []domain.Message
	path := "/messages/connection/" + url.PathEscape(connectionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// do performs one round trip: marshal body, attach bearer credential,
// execute, map status, decode into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp); err != nil {
		c.log.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("request rejected")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

// errorResponse is the collaborator's error envelope: {"error": "<message>"}.
type errorResponse struct {
	Error string `json:"error"`
}

func mapStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var envelope errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&envelope)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return domain.ErrInvalidCredentials
	case http.StatusConflict:
		return domain.ErrUserExists
	case http.StatusNotFound:
		return domain.ErrConnectionNotFound
	default:
		if envelope.Error != "" {
			return fmt.Errorf("server: %s", envelope.Error)
		}
		return fmt.Errorf("server: unexpected status %d", resp.StatusCode)
	}
}
