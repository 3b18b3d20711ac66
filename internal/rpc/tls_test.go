package rpc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCertificateGeneratesAndReloads(t *testing.T) {
	dir := t.TempDir()

	cert, fingerprint, err := LoadCertificate(dir)
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Len(t, fingerprint, 64)
	assert.Equal(t, "hvgate", cert.Leaf.Subject.CommonName)

	// key material is not world readable
	info, err := os.Stat(filepath.Join(dir, "tls", "cert-private-key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// second load returns the same identity
	_, fingerprint2, err := LoadCertificate(dir)
	require.NoError(t, err)
	assert.Equal(t, fingerprint, fingerprint2)
}

func TestLoadCertificateRegeneratesWhenCorrupt(t *testing.T) {
	dir := t.TempDir()

	_, fingerprint, err := LoadCertificate(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tls", "cert.pem"), []byte("garbage"), 0644))

	_, fingerprint2, err := LoadCertificate(dir)
	require.NoError(t, err)
	assert.NotEqual(t, fingerprint, fingerprint2)
}

func TestPinnedClient(t *testing.T) {
	svr := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello")
	}))
	defer svr.Close()

	fingerprint := Fingerprint(svr.Certificate().Raw)

	t.Run("matching fingerprint", func(t *testing.T) {
		client := NewPinnedClient(fingerprint, time.Second*5)

		resp, err := client.Get(svr.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("wrong fingerprint", func(t *testing.T) {
		client := NewPinnedClient("deadbeef", time.Second*5)

		_, err := client.Get(svr.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "untrusted server certificate")
	})
}
