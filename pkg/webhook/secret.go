package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SecretStatus classifies how a delivery relates to the configured
// per-repository secrets.
type SecretStatus int

const (
	// NoSecret: the repository is configured without a secret, deliveries
	// are accepted unsigned.
	NoSecret SecretStatus = iota
	// HasSecret: a secret is configured and the signature matched.
	HasSecret
	// Unauthorized: a secret is configured and the signature was missing
	// or wrong.
	Unauthorized
	// NotFound: the repository is not configured at all.
	NotFound
)

func (s SecretStatus) String() string {
	switch s {
	case NoSecret:
		return "no_secret"
	case HasSecret:
		return "has_secret"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	}
	return "unknown"
}

// CheckSignature validates a GitHub X-Hub-Signature-256 header value
// ("sha256=<hex hmac>") against the raw request body.
func CheckSignature(secret string, body []byte, header string) SecretStatus {
	if secret == "" {
		return NoSecret
	}

	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok || sig == "" {
		return Unauthorized
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return Unauthorized
	}
	return HasSecret
}
