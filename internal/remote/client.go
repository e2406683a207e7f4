package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/gigledger/internal/ledger"
)

// Client talks to a sheet served by NewHandler.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the sheet server at baseURL.
// A zero timeout disables the per-request deadline.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// PushRecord implements Remote.
func (c *Client) PushRecord(ctx context.Context, col ledger.Collection, row int64, payload json.RawMessage) error {
	u := fmt.Sprintf("%s/sheets/%s/%d", c.baseURL, url.PathEscape(string(col)), row)
	return c.do(ctx, http.MethodPut, u, payload, nil)
}

// DeleteRecord implements Remote.
func (c *Client) DeleteRecord(ctx context.Context, col ledger.Collection, row int64) error {
	u := fmt.Sprintf("%s/sheets/%s/%d", c.baseURL, url.PathEscape(string(col)), row)
	return c.do(ctx, http.MethodDelete, u, nil, nil)
}

// FetchAll implements Remote.
func (c *Client) FetchAll(ctx context.Context, col ledger.Collection) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	u := fmt.Sprintf("%s/sheets/%s", c.baseURL, url.PathEscape(string(col)))
	if err := c.do(ctx, http.MethodGet, u, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchSecondary implements Remote.
func (c *Client) FetchSecondary(ctx context.Context, cs []ledger.Collection) (map[ledger.Collection][]json.RawMessage, error) {
	q := url.Values{}
	for _, col := range cs {
		q.Add("collection", string(col))
	}

	out := map[ledger.Collection][]json.RawMessage{}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/sheets/?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, u, ErrRowNotFound)
	}
	if resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: status %d: %s", method, u, resp.StatusCode, e.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", u, err)
	}
	return nil
}

var (
	_ Remote = (*Sheet)(nil)
	_ Remote = (*Client)(nil)
)
