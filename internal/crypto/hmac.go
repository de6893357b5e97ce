package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// WebhookAuth signs outbound webhook deliveries so receivers can verify the
// engine actually produced a notification.
type WebhookAuth struct {
	Secret string
}

// Headers returns the HTTP headers for a webhook delivery. The signature is
// HMAC-SHA256(secret, timestamp+body) encoded as base64.
//
// Returned header keys:
//   - X-Settled-Timestamp
//   - X-Settled-Signature
func (w *WebhookAuth) Headers(body string) map[string]string {
	return w.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (w *WebhookAuth) HeadersAt(body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	sig := hmacSHA256Base64([]byte(w.Secret), ts+body)
	return map[string]string{
		"X-Settled-Timestamp": ts,
		"X-Settled-Signature": sig,
	}
}

// Verify checks a received signature against the body and timestamp.
func (w *WebhookAuth) Verify(body, ts, sig string) bool {
	expected := hmacSHA256Base64([]byte(w.Secret), ts+body)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (w *WebhookAuth) String() string {
	if len(w.Secret) <= 4 {
		return "WebhookAuth{secret=****}"
	}
	return fmt.Sprintf("WebhookAuth{secret=%s****}", w.Secret[:4])
}
