package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GenerateCallerID produces an opaque external identifier of the form
// CL-[0-9A-F]{12}.
func GenerateCallerID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("CL-%X", b), nil
}

// GenerateAPIKey produces a random plaintext key for callerID, prefixed
// with the caller id so the X-API-Key header is self-describing and a
// bcrypt-hashed credential can still be looked up without a table scan.
func GenerateAPIKey(callerID string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "nx_" + callerID + "." + base64.URLEncoding.EncodeToString(b), nil
}

// SplitAPIKey extracts the embedded caller id from a key produced by
// GenerateAPIKey, returning the caller id and the remaining secret.
func SplitAPIKey(raw string) (callerID, secret string, ok bool) {
	const prefix = "nx_"
	if len(raw) <= len(prefix) {
		return "", "", false
	}
	raw = raw[len(prefix):]
	for i := 0; i < len(raw); i++ {
		if raw[i] == '.' {
			return raw[:i], raw[i+1:], true
		}
	}
	return "", "", false
}

// KeyID derives a short, non-reversible identifier for a plaintext API
// key, recorded on activity records for audit without retaining the key.
func KeyID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

// HashAPIKey bcrypt-hashes a plaintext API key for storage.
func HashAPIKey(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareAPIKey reports whether plaintext matches hash.
func CompareAPIKey(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
