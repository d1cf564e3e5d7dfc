package email

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyMailgunSignature checks a Mailgun webhook signature: the hex
// HMAC-SHA256 of timestamp||token under the webhook signing key. All
// inputs are required; a missing key means verification is disabled
// upstream and this function is not called.
func VerifyMailgunSignature(key, timestamp, token, signature string) bool {
	if key == "" || timestamp == "" || token == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + token))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
