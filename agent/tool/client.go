package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

const (
	defaultHTTPTimeout   = 15 * time.Second
	maxResponseSizeBytes = 1 << 20
)

var (
	ErrNotFound  = errors.New("backend: item not found")
	ErrForbidden = errors.New("backend: permission denied")
	ErrUpstream  = errors.New("backend: request failed")
)

// Client talks to the zoo backend on behalf of a caller. The credential is
// supplied per call and never comes from the model.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("backend base url is empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) ListAnimals(ctx context.Context, token string) ([]catalog.Animal, error) {
	var animals []catalog.Animal
	if err := c.do(ctx, token, http.MethodGet, "/animal", nil, &animals); err != nil {
		return nil, err
	}
	return animals, nil
}

func (c *Client) AppendStatus(ctx context.Context, token, animalID, status string) error {
	path := "/animal/" + url.PathEscape(animalID) + "/status"
	return c.do(ctx, token, http.MethodPost, path, map[string]string{"status": status}, nil)
}

func (c *Client) Notify(ctx context.Context, token string, role catalog.Role, description string) error {
	path := "/staff/notification/" + url.PathEscape(role.String())
	return c.do(ctx, token, http.MethodPost, path, map[string]string{"description": description}, nil)
}

func (c *Client) Notifications(ctx context.Context, token string) ([]catalog.StaffNotification, error) {
	var out []catalog.StaffNotification
	if err := c.do(ctx, token, http.MethodGet, "/staff/notification", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TriggerEmergency(ctx context.Context, token, protocol, description string) error {
	body := map[string]string{"protocol": protocol, "description": description}
	return c.do(ctx, token, http.MethodPost, "/emergency/protocol", body, nil)
}

// Bind returns a Toolset that acts with the given credential.
func (c *Client) Bind(token string) *Toolset {
	return &Toolset{client: c, token: token}
}

func (c *Client) do(ctx context.Context, token, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", ErrUpstream, method, path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(method, path, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrUpstream, method, path, err)
	}
	return nil
}

func statusError(method, path string, status int, raw []byte) error {
	var msg struct {
		Message string `json:"message"`
	}
	detail := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &msg) == nil && msg.Message != "" {
		detail = msg.Message
	}

	sentinel := ErrUpstream
	switch status {
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrForbidden
	}
	return fmt.Errorf("%w: %s %s status=%d: %s", sentinel, method, path, status, detail)
}
