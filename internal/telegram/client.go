// Package telegram talks to the Telegram Bot API on behalf of hosted bots:
// webhook registration after a deploy, webhook removal, and token sanity
// checks. Bot tokens never appear in errors or logs produced here.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	maxAttempts      = 3
	initialBackoff   = time.Second
	maxResponseBytes = 1 << 20
)

// Client is a thin HTTP wrapper around the Telegram Bot API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Bot API client for one bot token. baseURL is normally
// https://api.telegram.org and only changes under test.
func NewClient(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// redact strips the bot token out of a string. Transport errors embed the
// full request URL, which carries the token in its path.
func (c *Client) redact(s string) string {
	if c.token == "" {
		return s
	}
	return strings.ReplaceAll(s, c.token, "<redacted>")
}

// do sends a JSON POST to the given Bot API method and decodes the envelope.
// 429 responses are retried honoring retry_after, up to maxAttempts total.
func do[T any](ctx context.Context, c *Client, method string, payload any) (*T, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("telegram: marshal %s request: %w", method, err)
		}
	}

	backoff := initialBackoff

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var body io.Reader
		if data != nil {
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, fmt.Errorf("telegram: create %s request: %s", method, c.redact(err.Error()))
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("telegram: %s request failed: %s", method, c.redact(err.Error()))
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("telegram: read %s response: %s", method, c.redact(err.Error()))
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts-1 {
			var throttled apiResponse[json.RawMessage]
			if err := json.Unmarshal(respBody, &throttled); err == nil && throttled.Parameters != nil && throttled.Parameters.RetryAfter > 0 {
				backoff = time.Duration(throttled.Parameters.RetryAfter) * time.Second
			}

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			continue
		}

		var envelope apiResponse[T]
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return nil, fmt.Errorf("telegram: decode %s response (status %d): %w", method, resp.StatusCode, err)
		}

		if !envelope.OK {
			apiErr := &APIError{
				Code:        envelope.ErrorCode,
				Description: envelope.Description,
			}
			if envelope.Parameters != nil {
				apiErr.RetryAfter = envelope.Parameters.RetryAfter
			}
			return nil, apiErr
		}

		return &envelope.Result, nil
	}

	return nil, fmt.Errorf("telegram: %s: rate limited after %d attempts", method, maxAttempts)
}

// GetMe returns the bot account behind the token. Used to verify a token
// before accepting a deploy.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return do[User](ctx, c, "getMe", nil)
}

// SetWebhook points the bot's webhook at the given URL.
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	_, err := do[bool](ctx, c, "setWebhook", req)
	return err
}

// DeleteWebhook removes the current webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	_, err := do[bool](ctx, c, "deleteWebhook", deleteWebhookRequest{DropPendingUpdates: dropPending})
	return err
}

// GetWebhookInfo returns the current webhook registration state.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	return do[WebhookInfo](ctx, c, "getWebhookInfo", nil)
}
