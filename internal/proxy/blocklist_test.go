package proxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBlocklist(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewBlocklistCreatesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yml")

	b, err := NewBlocklist(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	assert.False(t, b.IsBlocked("203.0.113.7"))
}

func TestBlocklistMatchesIPsAndRanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yml")
	writeBlocklist(t, path, `ips:
  - 203.0.113.7
ranges:
  - 198.51.100.0/24
  - 203.0.113.9
`)

	b, err := NewBlocklist(path)
	require.NoError(t, err)

	assert.True(t, b.IsBlocked("203.0.113.7"), "listed IP")
	assert.True(t, b.IsBlocked("198.51.100.42"), "inside range")
	assert.True(t, b.IsBlocked("203.0.113.9"), "bare IP under ranges")

	assert.False(t, b.IsBlocked("203.0.113.8"))
	assert.False(t, b.IsBlocked("8.8.8.8"))
	assert.False(t, b.IsBlocked("not-an-ip"))
}

func TestBlocklistBareIPv6RangeBlocksOnlyThatAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yml")
	writeBlocklist(t, path, `ranges:
  - 2001:db8::7
  - 2001:db8:aaaa::/48
`)

	b, err := NewBlocklist(path)
	require.NoError(t, err)

	assert.True(t, b.IsBlocked("2001:db8::7"))
	assert.False(t, b.IsBlocked("2001:db8::8"), "neighbor of a bare IPv6 entry")

	assert.True(t, b.IsBlocked("2001:db8:aaaa::1"))
	assert.False(t, b.IsBlocked("2001:db8:bbbb::1"))
}

func TestBlocklistReloadsOnFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yml")
	writeBlocklist(t, path, "ips:\n  - 203.0.113.7\n")

	b, err := NewBlocklist(path)
	require.NoError(t, err)
	require.True(t, b.IsBlocked("203.0.113.7"))
	require.False(t, b.IsBlocked("203.0.113.99"))

	writeBlocklist(t, path, "ips:\n  - 203.0.113.99\n")
	// Mtime granularity can swallow a rewrite within the same instant.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	// Expire the stat throttle so the next lookup re-checks the file.
	b.mu.Lock()
	b.checkedAt = time.Time{}
	b.mu.Unlock()

	assert.True(t, b.IsBlocked("203.0.113.99"))
	assert.False(t, b.IsBlocked("203.0.113.7"))
}

func TestBlocklistSkipsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yml")
	writeBlocklist(t, path, `ips:
  - not-an-ip
  - 203.0.113.7
ranges:
  - 198.51.100.0/99
  - 198.51.100.0/24
`)

	b, err := NewBlocklist(path)
	require.NoError(t, err)

	assert.True(t, b.IsBlocked("203.0.113.7"))
	assert.True(t, b.IsBlocked("198.51.100.42"))
	assert.False(t, b.IsBlocked("192.0.2.1"))
}

func TestBlocklistRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yml")
	writeBlocklist(t, path, "ips: [unterminated\n")

	_, err := NewBlocklist(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocklist.yml")
}
