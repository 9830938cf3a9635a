package billing

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signSHA256(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func signMD5(payload []byte, secret string) string {
	mac := hmac.New(md5.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"type":"subscription.created"}`)
	secret := "whsec_test"

	if !VerifyWebhookSignature(payload, signSHA256(payload, secret), secret) {
		t.Error("expected valid SHA256 signature to verify")
	}
	if !VerifyWebhookSignature(payload, signMD5(payload, secret), secret) {
		t.Error("expected legacy MD5 signature to verify")
	}

	// Uppercase hex is accepted
	upper := signSHA256(payload, secret)
	if !VerifyWebhookSignature(payload, "  "+upper+"  ", secret) {
		t.Error("expected signature with surrounding whitespace to verify")
	}
}

func TestVerifyWebhookSignatureRejects(t *testing.T) {
	payload := []byte(`{"type":"subscription.created"}`)
	secret := "whsec_test"

	cases := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
	}{
		{"empty signature", payload, "", secret},
		{"empty secret", payload, signSHA256(payload, secret), ""},
		{"not hex", payload, "zzzz", secret},
		{"wrong secret", payload, signSHA256(payload, "other"), secret},
		{"tampered payload", []byte(`{"type":"x"}`), signSHA256(payload, secret), secret},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifyWebhookSignature(tc.payload, tc.signature, tc.secret) {
				t.Error("expected signature verification to fail")
			}
		})
	}
}
