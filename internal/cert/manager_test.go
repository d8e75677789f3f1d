package cert

import (
	"context"
	"database/sql"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/internal/db"
)

func newTestManager(t *testing.T, enabled bool) (*Manager, *Store, *sql.DB, string) {
	t.Helper()

	certDir := t.TempDir()
	handle, _, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })

	conf := &common.Config{}
	conf.LetsEncrypt.Enabled = enabled
	conf.LetsEncrypt.Mode = "staging"
	conf.LetsEncrypt.CertDir = certDir
	conf.LetsEncrypt.RenewBefore = "30d"

	store := NewStore()
	m := NewManager(conf, handle, store, NewChallengeProvider())
	return m, store, handle, certDir
}

func diskSerial(t *testing.T, certDir, domain string) *big.Int {
	t.Helper()
	chain, err := os.ReadFile(ChainPath(certDir, domain))
	require.NoError(t, err)
	leaf, _, err := parseLeaf(chain)
	require.NoError(t, err)
	return leaf.SerialNumber
}

func TestEnsureIssuesSelfSignedWhenDisabled(t *testing.T) {
	m, store, handle, certDir := newTestManager(t, false)

	require.NoError(t, m.Ensure(context.Background(), "bots.example.com"))

	_, err := os.Stat(ChainPath(certDir, "bots.example.com"))
	require.NoError(t, err)
	_, err = os.Stat(KeyPath(certDir, "bots.example.com"))
	require.NoError(t, err)

	_, ok := store.Get("bots.example.com")
	assert.True(t, ok)

	rec, err := db.GetCertificate(handle, "bots.example.com")
	require.NoError(t, err)
	assert.Equal(t, string(StateValid), rec.State)
	assert.Equal(t, "self-signed", rec.Issuer)
	assert.NotEmpty(t, rec.ExpiresAt)
}

func TestEnsureReusesFreshCertificate(t *testing.T) {
	m, _, _, certDir := newTestManager(t, false)

	require.NoError(t, m.Ensure(context.Background(), "bots.example.com"))
	first := diskSerial(t, certDir, "bots.example.com")

	require.NoError(t, m.Ensure(context.Background(), "bots.example.com"))
	second := diskSerial(t, certDir, "bots.example.com")

	assert.Zero(t, first.Cmp(second), "a fresh certificate must not be reissued")
}

func TestEnsureNormalizesDomain(t *testing.T) {
	m, store, _, _ := newTestManager(t, false)

	require.NoError(t, m.Ensure(context.Background(), "BOTS.Example.COM."))
	_, ok := store.Get("bots.example.com")
	assert.True(t, ok)
}

func TestEnsureReplacesExpiredPair(t *testing.T) {
	m, _, handle, certDir := newTestManager(t, false)

	chain, key, err := GenerateSelfSigned([]string{"bots.example.com"}, -48*time.Hour)
	require.NoError(t, err)
	require.NoError(t, WritePair(certDir, "bots.example.com", chain, key))
	stale := diskSerial(t, certDir, "bots.example.com")

	require.NoError(t, m.Ensure(context.Background(), "bots.example.com"))
	fresh := diskSerial(t, certDir, "bots.example.com")

	assert.NotZero(t, stale.Cmp(fresh), "expired certificate must be replaced")

	rec, err := db.GetCertificate(handle, "bots.example.com")
	require.NoError(t, err)
	assert.Equal(t, string(StateValid), rec.State)
}

func TestEnsureReplacesWrongDomainPair(t *testing.T) {
	m, _, _, certDir := newTestManager(t, false)

	chain, key, err := GenerateSelfSigned([]string{"other.example.com"}, SelfSignedValidity)
	require.NoError(t, err)
	require.NoError(t, WritePair(certDir, "bots.example.com", chain, key))

	require.NoError(t, m.Ensure(context.Background(), "bots.example.com"))

	onDisk, err := os.ReadFile(ChainPath(certDir, "bots.example.com"))
	require.NoError(t, err)
	_, _, err = ValidateCertFile(onDisk, "bots.example.com")
	assert.NoError(t, err)
}

func TestRenewNoOpInsideWindow(t *testing.T) {
	m, _, _, certDir := newTestManager(t, false)

	require.NoError(t, m.Ensure(context.Background(), "bots.example.com"))
	before := diskSerial(t, certDir, "bots.example.com")

	require.NoError(t, m.Renew(context.Background(), "bots.example.com"))
	after := diskSerial(t, certDir, "bots.example.com")

	assert.Zero(t, before.Cmp(after))
}

func TestForceRenewReplaces(t *testing.T) {
	m, _, _, certDir := newTestManager(t, false)

	require.NoError(t, m.Ensure(context.Background(), "bots.example.com"))
	before := diskSerial(t, certDir, "bots.example.com")

	require.NoError(t, m.ForceRenew(context.Background(), "bots.example.com"))
	after := diskSerial(t, certDir, "bots.example.com")

	assert.NotZero(t, before.Cmp(after))
}

func TestEnsureFailsWithoutEmail(t *testing.T) {
	m, _, handle, _ := newTestManager(t, true)

	err := m.Ensure(context.Background(), "bots.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")

	rec, err := db.GetCertificate(handle, "bots.example.com")
	require.NoError(t, err)
	assert.Equal(t, string(StateFailed), rec.State)
}

func TestRenewFailureKeepsServingCert(t *testing.T) {
	m, store, handle, _ := newTestManager(t, false)
	require.NoError(t, m.Ensure(context.Background(), "bots.example.com"))

	// Flip to ACME with no email: the forced renewal cannot succeed.
	m.conf.LetsEncrypt.Enabled = true
	err := m.ForceRenew(context.Background(), "bots.example.com")
	require.Error(t, err)

	_, ok := store.Get("bots.example.com")
	assert.True(t, ok, "the live certificate must keep serving")

	rec, err := db.GetCertificate(handle, "bots.example.com")
	require.NoError(t, err)
	assert.Equal(t, string(StateFailed), rec.State)
}
