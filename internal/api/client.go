package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL   string
	AuthToken string
	Client    *http.Client // Allow override for testing
}

// NewClient returns a new API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AuthToken: token,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Error returned by API calls.
type APIError struct {
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Msg)
}

func parseAPIError(resp *http.Response) error {
	var j struct {
		Error string `json:"error"`
	}
	body, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(body, &j)
	msg := j.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Msg: msg}
}

func (c *Client) do(req *http.Request, want int, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return parseAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status fetches the node's per-shard progress.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	var out StatusResponse
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadBundles posts newline or whitespace separated bundle documents to a
// shard. encoding is sent as Content-Encoding and may be empty.
func (c *Client) UploadBundles(ctx context.Context, shard int, body io.Reader, encoding string) (*UploadResponse, error) {
	url := fmt.Sprintf("%s/api/shards/%d/bundles", c.BaseURL, shard)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	var out UploadResponse
	if err := c.do(req, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
