package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTEST_TOKEN/getMe", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		writeJSON(t, w, apiResponse[User]{
			OK: true,
			Result: User{
				ID:        123,
				IsBot:     true,
				FirstName: "OrderBot",
				Username:  "order_bot",
			},
		})
	}))
	defer srv.Close()

	client := NewClient("TEST_TOKEN", srv.URL)
	user, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123), user.ID)
	assert.True(t, user.IsBot)
	assert.Equal(t, "order_bot", user.Username)
}

func TestSetWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/setWebhook", r.URL.Path)

		var req SetWebhookRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://bots.example.com/webhook/order_bot", req.URL)
		assert.Equal(t, "s3cret", req.SecretToken)
		assert.True(t, req.DropPendingUpdates)

		writeJSON(t, w, apiResponse[bool]{OK: true, Result: true})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	err := client.SetWebhook(context.Background(), SetWebhookRequest{
		URL:                "https://bots.example.com/webhook/order_bot",
		SecretToken:        "s3cret",
		DropPendingUpdates: true,
	})
	require.NoError(t, err)
}

func TestSetWebhookOmitsEmptySecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, present := raw["secret_token"]
		assert.False(t, present, "empty secret_token must not be sent")

		writeJSON(t, w, apiResponse[bool]{OK: true, Result: true})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	err := client.SetWebhook(context.Background(), SetWebhookRequest{
		URL:                "https://bots.example.com/webhook/order_bot",
		DropPendingUpdates: true,
	})
	require.NoError(t, err)
}

func TestDeleteWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/deleteWebhook", r.URL.Path)

		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, true, raw["drop_pending_updates"])

		writeJSON(t, w, apiResponse[bool]{OK: true, Result: true})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	require.NoError(t, client.DeleteWebhook(context.Background(), true))
}

func TestGetWebhookInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/getWebhookInfo", r.URL.Path)

		writeJSON(t, w, apiResponse[WebhookInfo]{
			OK: true,
			Result: WebhookInfo{
				URL:                "https://bots.example.com/webhook/order_bot",
				PendingUpdateCount: 4,
				LastErrorMessage:   "Connection timed out",
			},
		})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	info, err := client.GetWebhookInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://bots.example.com/webhook/order_bot", info.URL)
	assert.Equal(t, 4, info.PendingUpdateCount)
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, apiResponse[json.RawMessage]{
			OK:          false,
			ErrorCode:   401,
			Description: "Unauthorized",
		})
	}))
	defer srv.Close()

	client := NewClient("BAD_TOKEN", srv.URL)
	_, err := client.GetMe(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Code)
	assert.Equal(t, "Unauthorized", apiErr.Description)
}

func TestRateLimitRetry(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			writeJSON(t, w, apiResponse[json.RawMessage]{
				OK:          false,
				ErrorCode:   429,
				Description: "Too Many Requests: retry after 1",
				Parameters:  &responseParameters{RetryAfter: 1},
			})
			return
		}
		writeJSON(t, w, apiResponse[bool]{OK: true, Result: true})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	err := client.SetWebhook(context.Background(), SetWebhookRequest{
		URL:                "https://bots.example.com/webhook/order_bot",
		DropPendingUpdates: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestErrorsNeverCarryToken(t *testing.T) {
	const token = "7123456789:AAH-very-secret-value"

	// Unroutable address: the transport error embeds the request URL,
	// which carries the token in its path.
	client := NewClient(token, "http://127.0.0.1:1")
	_, err := client.GetMe(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), token)
	assert.Contains(t, err.Error(), "<redacted>")
}

func TestAPIErrorString(t *testing.T) {
	err := &APIError{Code: 429, Description: "Too Many Requests", RetryAfter: 5}
	assert.Equal(t, "telegram: 429 Too Many Requests (retry after 5s)", err.Error())

	err = &APIError{Code: 404, Description: "Not Found"}
	assert.Equal(t, "telegram: 404 Not Found", err.Error())

	var target *APIError
	assert.True(t, errors.As(error(err), &target))
}
