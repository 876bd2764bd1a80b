package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestCheckSignature(t *testing.T) {
	body := []byte(`{"zen":"Keep it logically awesome."}`)

	cases := []struct {
		name   string
		secret string
		header string
		want   SecretStatus
	}{
		{"no secret configured", "", "", NoSecret},
		{"valid signature", "s3cret", sign("s3cret", body), HasSecret},
		{"wrong secret", "s3cret", sign("other", body), Unauthorized},
		{"missing header", "s3cret", "", Unauthorized},
		{"malformed header", "s3cret", "sha1=deadbeef", Unauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CheckSignature(tc.secret, body, tc.header); got != tc.want {
				t.Fatalf("CheckSignature = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSecretStatusString(t *testing.T) {
	if NotFound.String() != "not_found" {
		t.Fatalf("NotFound.String() = %q, want %q", NotFound.String(), "not_found")
	}
}
