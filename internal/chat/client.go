package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"intake-chat/internal/prompt"
	"intake-chat/internal/types"
)

// RequestError is a failed round trip to the chat server. Message is the
// server's error text when it sent one.
type RequestError struct {
	Status  int
	Message string
	Details string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return RequestFailed
}

// Client talks to the intake server's JSON API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Chat implements Gateway.
func (c *Client) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	if req.History == nil {
		req.History = []types.HistoryMessage{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out types.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Units fetches the organization profile served by the gateway.
func (c *Client) Units(ctx context.Context) (*prompt.Organization, error) {
	var out prompt.Organization
	if err := c.do(ctx, http.MethodGet, "/api/units", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", RequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope types.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope)
		return &RequestError{Status: resp.StatusCode, Message: envelope.Error, Details: envelope.Details}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
