package governance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Anonymizer turns PII values into stable pseudonymous tokens. The same input
// always yields the same token so downstream joins keep working.
type Anonymizer struct {
	key []byte
}

// NewAnonymizer returns an anonymizer keyed with key. An empty key gives a
// plain SHA-256 digest.
func NewAnonymizer(key string) Anonymizer {
	if key == "" {
		return Anonymizer{}
	}
	return Anonymizer{key: []byte(key)}
}

// Anonymize returns the hex token for value. Every string, including the
// empty one, has a defined token.
func (a Anonymizer) Anonymize(value string) string {
	if a.key == nil {
		sum := sha256.Sum256([]byte(value))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, a.key)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
