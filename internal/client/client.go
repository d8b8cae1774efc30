package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/planboard/notify/internal/domain"
)

// Client talks to the notification API as one signed-in user.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the API at baseURL authenticating with token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme %q: %w", u.Scheme, domain.ErrValidation)
	}
	c := &Client{base: u, token: token, http: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("%s %s: %w: %s", method, path, statusError(resp.StatusCode), msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w: %w", path, domain.ErrTransport, err)
	}
	return nil
}

// statusError maps a response status back to the domain sentinel the
// server derived it from.
func statusError(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrValidation
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusServiceUnavailable:
		return domain.ErrUnsupported
	default:
		return domain.ErrTransport
	}
}

// Summary fetches the page-load seed.
func (c *Client) Summary(ctx context.Context) (*domain.Summary, error) {
	var s domain.Summary
	if err := c.do(ctx, http.MethodGet, "/v1/session", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListRecent(ctx context.Context, limit int) ([]domain.Notification, error) {
	var views []domain.NotificationView
	if err := c.do(ctx, http.MethodGet, "/v1/notifications?limit="+strconv.Itoa(limit), nil, &views); err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(views))
	for _, v := range views {
		out = append(out, v.Notification)
	}
	return out, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var env struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/notifications/unread-count", nil, &env); err != nil {
		return 0, err
	}
	return env.UnreadCount, nil
}

func (c *Client) MarkRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, "/v1/notifications/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/v1/notifications/read-all", nil, nil)
}

func (c *Client) SetMuted(ctx context.Context, muted bool) (bool, error) {
	enabled := !muted
	var pref domain.NotificationPreference
	err := c.do(ctx, http.MethodPut, "/v1/notifications/preferences",
		domain.UpdatePreferenceRequest{NotificationsEnabled: &enabled}, &pref)
	if err != nil {
		return false, err
	}
	return pref.Muted(), nil
}

func (c *Client) PublicKey(ctx context.Context) (string, bool, error) {
	var env struct {
		Enabled   bool   `json:"enabled"`
		PublicKey string `json:"public_key"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/push/public-key", nil, &env); err != nil {
		return "", false, err
	}
	return env.PublicKey, env.Enabled && env.PublicKey != "", nil
}

func (c *Client) Subscribe(ctx context.Context, req domain.SaveSubscriptionRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/push/subscriptions", req, nil)
}

func (c *Client) Unsubscribe(ctx context.Context, endpoint string) error {
	return c.do(ctx, http.MethodDelete, "/v1/push/subscriptions", domain.RemoveSubscriptionRequest{Endpoint: endpoint}, nil)
}

// IsAuthError reports whether err came from a rejected token.
func IsAuthError(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrForbidden)
}

// Create inserts a notification. The token must carry the admin role.
func (c *Client) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	var v domain.NotificationView
	if err := c.do(ctx, http.MethodPost, "/v1/notifications", req, &v); err != nil {
		return nil, err
	}
	return &v.Notification, nil
}
