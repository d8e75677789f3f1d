package cert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeProviderLifecycle(t *testing.T) {
	p := NewChallengeProvider()

	_, ok := p.KeyAuth("tok-1")
	assert.False(t, ok)

	require.NoError(t, p.Present("bots.example.com", "tok-1", "tok-1.acct-thumbprint"))

	keyAuth, ok := p.KeyAuth("tok-1")
	require.True(t, ok)
	assert.Equal(t, "tok-1.acct-thumbprint", keyAuth)

	require.NoError(t, p.CleanUp("bots.example.com", "tok-1", "tok-1.acct-thumbprint"))
	_, ok = p.KeyAuth("tok-1")
	assert.False(t, ok)
}

func TestChallengeProviderMultipleTokens(t *testing.T) {
	p := NewChallengeProvider()

	require.NoError(t, p.Present("bots.example.com", "tok-1", "auth-1"))
	require.NoError(t, p.Present("bots.example.com", "tok-2", "auth-2"))

	auth1, ok := p.KeyAuth("tok-1")
	require.True(t, ok)
	auth2, ok2 := p.KeyAuth("tok-2")
	require.True(t, ok2)
	assert.Equal(t, "auth-1", auth1)
	assert.Equal(t, "auth-2", auth2)
}
