package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"wa_listings/models"
)

// Envelope is the wire shape of an /extract response.
type Envelope struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

type extractRequest struct {
	Prompt   string `json:"prompt"`
	ChatName string `json:"chatName"`
}

// Client calls a remote /extract endpoint.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, http: httpClient}
}

func (c *Client) Extract(ctx context.Context, text, chatName string) (*models.ListingRecord, error) {
	body, err := json.Marshal(extractRequest{Prompt: text, ChatName: chatName})
	if err != nil {
		return nil, failErr("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, failErr("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failErr("request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, failErr("read body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failf("status %d", resp.StatusCode)
	}
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		return nil, failf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, failErr("decode envelope", err)
	}
	if !env.Success {
		return nil, failf("service reported failure: %s", env.Error)
	}
	if env.Result == "" {
		return nil, failf("empty result")
	}

	rec, err := Decode(env.Result)
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return rec, nil
}
