package protocol

import (
	"crypto/sha256"
	"encoding/base64"
)

// AuthToken computes the obs-websocket authentication string:
//
//	base64(sha256(base64(sha256(password + salt)) + challenge))
//
// Both hashes are over the raw byte concatenation; the inner digest is
// base64-encoded before the challenge is appended.
func AuthToken(password, salt, challenge string) string {
	inner := sha256.Sum256([]byte(password + salt))
	secret := base64.StdEncoding.EncodeToString(inner[:])
	outer := sha256.Sum256([]byte(secret + challenge))
	return base64.StdEncoding.EncodeToString(outer[:])
}
