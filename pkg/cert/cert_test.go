package cert

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	certPEM, keyPEM, err := Generate("example.local", []string{"127.0.0.1", "not-an-ip"})
	require.NoError(t, err)

	crt, err := DecodeCertPEM(certPEM)
	require.NoError(t, err)
	assert.Equal(t, "example.local", crt.Subject.CommonName)
	assert.Contains(t, crt.DNSNames, "example.local")
	require.Len(t, crt.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", crt.IPAddresses[0].String())
	assert.True(t, crt.IsCA)
	assert.True(t, crt.NotAfter.After(time.Now().Add(9*365*24*time.Hour)))

	key, err := DecodeKeyPEM(keyPEM)
	require.NoError(t, err)
	assert.Equal(t, &key.PublicKey, crt.PublicKey)

	// Self-signed, so it verifies against itself.
	pool := x509.NewCertPool()
	pool.AddCert(crt)
	_, err = crt.Verify(x509.VerifyOptions{Roots: pool, DNSName: "example.local"})
	assert.NoError(t, err)
}

func TestPEMRoundTrip(t *testing.T) {
	certPEM, keyPEM, err := Generate("host-a", nil)
	require.NoError(t, err)

	names, err := DNSNames(certPEM)
	require.NoError(t, err)
	assert.Equal(t, []string{"host-a"}, names)

	_, err = DecodeCertPEM([]byte("garbage"))
	assert.ErrorIs(t, err, ErrInvalidPEM)
	_, err = DecodeKeyPEM(certPEM)
	assert.ErrorIs(t, err, ErrInvalidPEM)
	_, err = DecodeKeyPEM(keyPEM)
	assert.NoError(t, err)
}

func TestEnsure(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")

	t.Run("GeneratesWhenMissing", func(t *testing.T) {
		require.NoError(t, Ensure(certPath, keyPath, "host-a"))
		crt, err := ReadCertFile(certPath)
		require.NoError(t, err)
		assert.Contains(t, crt.DNSNames, "host-a")

		info, err := os.Stat(keyPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("KeepsMatchingCert", func(t *testing.T) {
		before, err := os.ReadFile(certPath)
		require.NoError(t, err)
		require.NoError(t, Ensure(certPath, keyPath, "host-a"))
		after, err := os.ReadFile(certPath)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("RegeneratesOnHostnameChange", func(t *testing.T) {
		before, err := os.ReadFile(certPath)
		require.NoError(t, err)
		require.NoError(t, Ensure(certPath, keyPath, "host-b"))
		after, err := os.ReadFile(certPath)
		require.NoError(t, err)
		assert.NotEqual(t, before, after)

		names, err := DNSNames(after)
		require.NoError(t, err)
		assert.Equal(t, []string{"host-b"}, names)
	})
}

func TestLoadTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	require.NoError(t, Ensure(certPath, keyPath, "localhost"))

	cfg, err := LoadTLSConfig(certPath, keyPath)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)

	_, err = LoadTLSConfig(filepath.Join(dir, "missing.crt"), keyPath)
	assert.Error(t, err)
}
