// Package hub validates signed frame actions against a Farcaster hub.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTimeout = 5 * time.Second

// Result is the hub's verdict on a message.
type Result struct {
	Valid bool
	FID   int64
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewClientWithHTTPClient(baseURL, &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

func NewClientWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type validateResponse struct {
	Valid   bool `json:"valid"`
	Message struct {
		Data struct {
			FID int64 `json:"fid"`
		} `json:"data"`
	} `json:"message"`
}

// Validate submits the raw message bytes to the hub's validateMessage
// endpoint. An error means the hub could not give an answer.
func (c *Client) Validate(ctx context.Context, message []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/validateMessage", bytes.NewReader(message))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("calling hub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("hub returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var body validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("decoding hub response: %w", err)
	}
	return Result{Valid: body.Valid, FID: body.Message.Data.FID}, nil
}
