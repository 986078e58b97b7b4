// Package backend is a client for the remote asset service.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"capture-go/internal/capture"
	"capture-go/internal/config"
)

const assetsPath = "/api/v3/assets/"

// Client calls the asset service over HTTP.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
}

var _ capture.AssetBackend = (*Client)(nil)

// NewClient creates a Client. A zero timeout uses config.DefaultBackendTimeout.
func NewClient(baseURL, token string, timeout time.Duration, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = config.DefaultBackendTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		http:    httpClient,
	}
}

// NewClientFromConfig creates a Client from the backend section.
func NewClientFromConfig(cfg config.BackendConfig) *Client {
	return NewClient(cfg.BaseURL, cfg.Token, cfg.Timeout, nil)
}

// ListNotOriginallyOwned fetches one page of assets the user received from
// someone else.
func (c *Client) ListNotOriginallyOwned(ctx context.Context, offset, limit int) (*capture.AssetPage, error) {
	q := url.Values{}
	q.Set("is_original_owner", "false")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var page capture.AssetPage
	if err := c.get(ctx, assetsPath, q, &page); err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	if page.Results == nil {
		page.Results = []capture.Asset{}
	}
	return &page, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if c.token == "" {
		return capture.ErrNoToken
	}
	if c.baseURL == "" {
		return fmt.Errorf("%w: no base url configured", capture.ErrTransport)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return capture.ErrTimeout
		}
		return fmt.Errorf("%w: %v", capture.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: %s", capture.ErrTransport, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(err) {
			return capture.ErrTimeout
		}
		return fmt.Errorf("%w: decoding response: %v", capture.ErrTransport, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
