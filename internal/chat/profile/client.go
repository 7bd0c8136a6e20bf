// Package profile talks to the profile and activity store next to the chat:
// display names for senders and fire-and-forget activity records.
package profile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxErrorBody = 512

// Client is a thin HTTP client for the profile store.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient builds a Client against baseURL, e.g. http://localhost:3000/api.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse profile url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("profile url %q must be absolute", baseURL)
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
	}, nil
}

type userResponse struct {
	User *struct {
		Address  string `json:"address"`
		Username string `json:"username"`
	} `json:"user"`
}

// Username returns the username registered for address, empty when none is.
func (c *Client) Username(ctx context.Context, address string) (string, error) {
	q := url.Values{"address": {model.NormalizeAddress(address)}}
	var resp userResponse
	if err := c.do(ctx, http.MethodGet, "users", q, nil, &resp); err != nil {
		return "", err
	}
	if resp.User == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.User.Username), nil
}

// Register upserts the user record of address.
func (c *Client) Register(ctx context.Context, address string) error {
	body := map[string]string{"address": model.NormalizeAddress(address)}
	return c.do(ctx, http.MethodPost, "users", nil, body, nil)
}

type activityRequest struct {
	Address  string             `json:"address"`
	Type     model.ActivityType `json:"type"`
	Metadata map[string]any     `json:"metadata,omitempty"`
}

// PostActivity records one activity of address.
func (c *Client) PostActivity(ctx context.Context, address string, activity model.ActivityType, metadata map[string]any) error {
	return c.do(ctx, http.MethodPost, "activity", nil, activityRequest{
		Address:  model.NormalizeAddress(address),
		Type:     activity,
		Metadata: metadata,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
