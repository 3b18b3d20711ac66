// Package authgate decides, per request, whether a caller may proceed.
//
// Checks run in a fixed order - API key, HMAC signature, client IP - and
// short-circuit on the first failure with a typed Denial. The IP check is
// exposed separately because the request pipeline applies it at the boundary
// before any handler runs.
//
// Signature timestamps are not checked for freshness: a captured valid
// (signature, timestamp) pair remains replayable. Deployments that need a
// replay window should enforce it in front of the gateway.
package authgate

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

type Reason string

const (
	ReasonBadKey           Reason = "bad_key"
	ReasonMissingSignature Reason = "missing_signature"
	ReasonBadSignature     Reason = "bad_signature"
	ReasonIPDenied         Reason = "ip_denied"
)

// Denial is the terminal result of a failed check.
type Denial struct {
	Reason Reason
}

func (d *Denial) Error() string {
	switch d.Reason {
	case ReasonBadKey:
		return "unauthorized"
	case ReasonMissingSignature:
		return "missing signature"
	case ReasonBadSignature:
		return "invalid HMAC signature"
	case ReasonIPDenied:
		return "forbidden: IP not allowed"
	default:
		return "denied"
	}
}

// HTTPStatus maps the denial onto the response code handlers should return.
func (d *Denial) HTTPStatus() int {
	if d.Reason == ReasonIPDenied {
		return 403
	}
	return 401
}

type Gate struct {
	apiKey     string
	hmacSecret string
	allowIPs   []string
}

func New(apiKey, hmacSecret string, allowIPs []string) *Gate {
	return &Gate{apiKey: apiKey, hmacSecret: hmacSecret, allowIPs: allowIPs}
}

// VerifyAPIKey compares the provided key against the configured one without
// leaking timing correlated with matching prefix length: both sides are
// hashed before the constant-time compare.
func (g *Gate) VerifyAPIKey(provided string) error {
	if provided == "" {
		return &Denial{Reason: ReasonBadKey}
	}

	want := sha256.Sum256([]byte(g.apiKey))
	got := sha256.Sum256([]byte(provided))
	if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
		return &Denial{Reason: ReasonBadKey}
	}
	return nil
}

// VerifySignature checks hex(HMAC-SHA256(secret, body || timestamp)) over
// the raw request body bytes. With no secret configured, signing is disabled
// and the check passes.
func (g *Gate) VerifySignature(signature, timestamp string, body []byte) error {
	if g.hmacSecret == "" {
		return nil
	}
	if signature == "" || timestamp == "" {
		return &Denial{Reason: ReasonMissingSignature}
	}

	mac := hmac.New(sha256.New, []byte(g.hmacSecret))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return &Denial{Reason: ReasonBadSignature}
	}
	return nil
}

// VerifyIP allows any origin when the allow-list is empty, otherwise the
// client IP must appear verbatim - no CIDR or IPv4-in-IPv6 normalization.
func (g *Gate) VerifyIP(clientIP string) error {
	if len(g.allowIPs) == 0 {
		return nil
	}
	for _, ip := range g.allowIPs {
		if ip == clientIP {
			return nil
		}
	}
	return &Denial{Reason: ReasonIPDenied}
}

// Authenticate runs the key check then the signature check. The IP check is
// the request pipeline's job and happens earlier.
func (g *Gate) Authenticate(apiKey, signature, timestamp string, body []byte) error {
	if err := g.VerifyAPIKey(apiKey); err != nil {
		return err
	}
	return g.VerifySignature(signature, timestamp, body)
}
