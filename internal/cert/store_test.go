package cert

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCertificate(t *testing.T, domain string) *tls.Certificate {
	t.Helper()
	chain, key, err := GenerateSelfSigned([]string{domain}, SelfSignedValidity)
	require.NoError(t, err)
	pair, err := tls.X509KeyPair(chain, key)
	require.NoError(t, err)
	return &pair
}

func TestStorePutGet(t *testing.T) {
	store := NewStore()
	pair := testCertificate(t, "bots.example.com")

	store.Put("bots.example.com", pair)

	got, ok := store.Get("bots.example.com")
	require.True(t, ok)
	assert.Same(t, pair, got)

	_, ok = store.Get("other.example.com")
	assert.False(t, ok)
}

func TestStoreSwap(t *testing.T) {
	store := NewStore()
	first := testCertificate(t, "bots.example.com")
	second := testCertificate(t, "bots.example.com")

	store.Put("bots.example.com", first)
	store.Put("bots.example.com", second)

	got, ok := store.Get("bots.example.com")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestGetCertificateBySNI(t *testing.T) {
	store := NewStore()
	pair := testCertificate(t, "bots.example.com")
	store.Put("bots.example.com", pair)

	got, err := store.GetCertificate(&tls.ClientHelloInfo{ServerName: "bots.example.com"})
	require.NoError(t, err)
	assert.Same(t, pair, got)
}

func TestGetCertificateNormalizesServerName(t *testing.T) {
	store := NewStore()
	pair := testCertificate(t, "bots.example.com")
	store.Put("bots.example.com", pair)

	got, err := store.GetCertificate(&tls.ClientHelloInfo{ServerName: "BOTS.Example.COM."})
	require.NoError(t, err)
	assert.Same(t, pair, got)
}

func TestGetCertificateWithoutSNIFallsBackToSingle(t *testing.T) {
	store := NewStore()
	pair := testCertificate(t, "bots.example.com")
	store.Put("bots.example.com", pair)

	got, err := store.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.Same(t, pair, got)
}

func TestGetCertificateUnknownName(t *testing.T) {
	store := NewStore()
	store.Put("bots.example.com", testCertificate(t, "bots.example.com"))
	store.Put("second.example.com", testCertificate(t, "second.example.com"))

	_, err := store.GetCertificate(&tls.ClientHelloInfo{ServerName: "ghost.example.com"})
	require.Error(t, err)
}
