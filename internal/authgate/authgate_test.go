package authgate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyAPIKey(t *testing.T) {
	gate := New("test-key", "", nil)

	assert.NoError(t, gate.VerifyAPIKey("test-key"))

	tests := []string{"", "wrong", "test-key ", "test-ke", "test-keyy"}
	for _, provided := range tests {
		err := gate.VerifyAPIKey(provided)
		require.Error(t, err, "key %q should be rejected", provided)
		assert.Equal(t, ReasonBadKey, err.(*Denial).Reason)
	}
}

func TestVerifySignature(t *testing.T) {
	const secret = "test-secret"
	gate := New("k", secret, nil)

	body := []byte(`{"vm_name":"test"}`)
	timestamp := "1234567890"
	valid := sign(secret, body, timestamp)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, gate.VerifySignature(valid, timestamp, body))
	})

	t.Run("missing signature", func(t *testing.T) {
		err := gate.VerifySignature("", timestamp, body)
		require.Error(t, err)
		assert.Equal(t, ReasonMissingSignature, err.(*Denial).Reason)
	})

	t.Run("missing timestamp", func(t *testing.T) {
		err := gate.VerifySignature(valid, "", body)
		require.Error(t, err)
		assert.Equal(t, ReasonMissingSignature, err.(*Denial).Reason)
	})

	t.Run("tampered body", func(t *testing.T) {
		tampered := []byte(`{"vm_name":"Test"}`)
		err := gate.VerifySignature(valid, timestamp, tampered)
		require.Error(t, err)
		assert.Equal(t, ReasonBadSignature, err.(*Denial).Reason)
	})

	t.Run("tampered timestamp", func(t *testing.T) {
		err := gate.VerifySignature(valid, "1234567891", body)
		require.Error(t, err)
		assert.Equal(t, ReasonBadSignature, err.(*Denial).Reason)
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := gate.VerifySignature(sign("other-secret", body, timestamp), timestamp, body)
		require.Error(t, err)
		assert.Equal(t, ReasonBadSignature, err.(*Denial).Reason)
	})

	t.Run("signing disabled", func(t *testing.T) {
		open := New("k", "", nil)
		assert.NoError(t, open.VerifySignature("", "", nil))
	})

	t.Run("empty body round trip", func(t *testing.T) {
		assert.NoError(t, gate.VerifySignature(sign(secret, nil, timestamp), timestamp, []byte{}))
	})
}

func TestVerifyIP(t *testing.T) {
	t.Run("empty allow-list accepts any origin", func(t *testing.T) {
		gate := New("k", "s", nil)
		assert.NoError(t, gate.VerifyIP("192.168.1.100"))
		assert.NoError(t, gate.VerifyIP("8.8.8.8"))
	})

	t.Run("exact match only", func(t *testing.T) {
		gate := New("k", "s", []string{"10.0.0.5", "10.0.0.6"})
		assert.NoError(t, gate.VerifyIP("10.0.0.5"))
		assert.NoError(t, gate.VerifyIP("10.0.0.6"))

		for _, ip := range []string{"10.0.0.9", "10.0.0.50", "::ffff:10.0.0.5", ""} {
			err := gate.VerifyIP(ip)
			require.Error(t, err, "ip %q should be rejected", ip)
			assert.Equal(t, ReasonIPDenied, err.(*Denial).Reason)
		}
	})
}

func TestAuthenticateOrder(t *testing.T) {
	const secret = "s"
	gate := New("key", secret, nil)

	body := []byte("body")
	timestamp := "111"

	// bad key short-circuits before the signature is inspected
	err := gate.Authenticate("wrong", "", "", body)
	require.Error(t, err)
	assert.Equal(t, ReasonBadKey, err.(*Denial).Reason)

	// good key but missing signature
	err = gate.Authenticate("key", "", "", body)
	require.Error(t, err)
	assert.Equal(t, ReasonMissingSignature, err.(*Denial).Reason)

	// fully valid
	assert.NoError(t, gate.Authenticate("key", sign(secret, body, timestamp), timestamp, body))
}

func TestDenialHTTPStatus(t *testing.T) {
	assert.Equal(t, 401, (&Denial{Reason: ReasonBadKey}).HTTPStatus())
	assert.Equal(t, 401, (&Denial{Reason: ReasonMissingSignature}).HTTPStatus())
	assert.Equal(t, 401, (&Denial{Reason: ReasonBadSignature}).HTTPStatus())
	assert.Equal(t, 403, (&Denial{Reason: ReasonIPDenied}).HTTPStatus())
}
