package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		rawQuery string
		wantOK   bool
		wantBot  string
		wantRest string
	}{
		{
			name:    "bare bot path",
			path:    "/webhook/order_bot",
			wantOK:  true,
			wantBot: "order_bot",
		},
		{
			name:     "nested rest",
			path:     "/webhook/order_bot/updates",
			wantOK:   true,
			wantBot:  "order_bot",
			wantRest: "/updates",
		},
		{
			name:     "trailing slash is part of the rest",
			path:     "/webhook/order_bot/",
			wantOK:   true,
			wantBot:  "order_bot",
			wantRest: "/",
		},
		{
			name:     "rest may contain webhook again",
			path:     "/webhook/bot-a/webhook/extra",
			wantOK:   true,
			wantBot:  "bot-a",
			wantRest: "/webhook/extra",
		},
		{
			name:     "hyphen and digits in identifier",
			path:     "/webhook/bot-2/x/y/z",
			wantOK:   true,
			wantBot:  "bot-2",
			wantRest: "/x/y/z",
		},
		{
			name:   "webhook without identifier",
			path:   "/webhook",
			wantOK: false,
		},
		{
			name:   "webhook with empty identifier",
			path:   "/webhook/",
			wantOK: false,
		},
		{
			name:   "uppercase identifier",
			path:   "/webhook/OrderBot",
			wantOK: false,
		},
		{
			name:   "dotted identifier",
			path:   "/webhook/my.bot",
			wantOK: false,
		},
		{
			name:   "identifier with space",
			path:   "/webhook/my bot",
			wantOK: false,
		},
		{
			name:   "unrelated path",
			path:   "/metrics",
			wantOK: false,
		},
		{
			name:   "root",
			path:   "/",
			wantOK: false,
		},
		{
			name:     "query preserved",
			path:     "/webhook/order_bot/updates",
			rawQuery: "offset=5&limit=2",
			wantOK:   true,
			wantBot:  "order_bot",
			wantRest: "/updates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, ok := resolveTarget(tt.path, tt.rawQuery)
			if !tt.wantOK {
				assert.False(t, ok)
				assert.Nil(t, target)
				return
			}

			require.True(t, ok)
			require.NotNil(t, target)
			assert.Equal(t, tt.wantBot, target.Bot)
			assert.Equal(t, tt.wantRest, target.Rest)
			assert.Equal(t, tt.rawQuery, target.Query)
		})
	}
}

func TestFormatHostPort(t *testing.T) {
	assert.Equal(t, "order_bot:8080", formatHostPort("order_bot", 8080))
	assert.Equal(t, "[::1]:8080", formatHostPort("::1", 8080))
}
