package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the payload signature on webhook requests,
// outbound and inbound alike.
const SignatureHeader = "X-Signature"

// Sign computes the hex-encoded HMAC-SHA256 of body under the shared
// partner secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the body in constant
// time.
func VerifySignature(body []byte, secret, signature string) bool {
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
