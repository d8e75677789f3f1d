package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJail(t *testing.T, threshold int, sentence time.Duration) *Jail {
	t.Helper()
	j, err := OpenJail(t.TempDir(), threshold, time.Minute, sentence)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJailStrikeBelowThreshold(t *testing.T) {
	j := openTestJail(t, 5, time.Minute)

	for i := 0; i < 4; i++ {
		jailed, err := j.Strike("203.0.113.7")
		require.NoError(t, err)
		assert.False(t, jailed, "strike %d should not jail", i+1)
	}

	jailed, err := j.IsJailed("203.0.113.7")
	require.NoError(t, err)
	assert.False(t, jailed)
}

func TestJailStrikeReachesThreshold(t *testing.T) {
	j := openTestJail(t, 3, time.Minute)

	var jailed bool
	var err error
	for i := 0; i < 3; i++ {
		jailed, err = j.Strike("203.0.113.8")
		require.NoError(t, err)
	}
	assert.True(t, jailed, "third strike should jail")

	jailed, err = j.IsJailed("203.0.113.8")
	require.NoError(t, err)
	assert.True(t, jailed)

	// Unrelated IPs stay free.
	jailed, err = j.IsJailed("203.0.113.9")
	require.NoError(t, err)
	assert.False(t, jailed)
}

func TestJailSentenceExpires(t *testing.T) {
	j := openTestJail(t, 1, 50*time.Millisecond)

	jailed, err := j.Strike("203.0.113.10")
	require.NoError(t, err)
	require.True(t, jailed)

	time.Sleep(80 * time.Millisecond)

	jailed, err = j.IsJailed("203.0.113.10")
	require.NoError(t, err)
	assert.False(t, jailed, "sentence should have expired")
}

func TestJailRelease(t *testing.T) {
	j := openTestJail(t, 1, time.Hour)

	jailed, err := j.Strike("203.0.113.11")
	require.NoError(t, err)
	require.True(t, jailed)

	require.NoError(t, j.Release("203.0.113.11"))

	jailed, err = j.IsJailed("203.0.113.11")
	require.NoError(t, err)
	assert.False(t, jailed)
}

func TestJailedIPsListing(t *testing.T) {
	j := openTestJail(t, 1, time.Hour)

	_, err := j.Strike("203.0.113.12")
	require.NoError(t, err)
	_, err = j.Strike("203.0.113.13")
	require.NoError(t, err)

	jailed, err := j.JailedIPs()
	require.NoError(t, err)
	assert.Contains(t, jailed, "203.0.113.12")
	assert.Contains(t, jailed, "203.0.113.13")
	for _, until := range jailed {
		assert.True(t, until.After(time.Now()))
	}
}
