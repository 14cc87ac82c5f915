// Package security provides non-reversible fingerprints of secrets that
// must appear in structured logs without ever exposing the secret itself.
//
// There is no at-rest storage or key-rotation concern in a client holding a
// single long-lived bearer token, so fingerprints use a plain BLAKE2b-256
// digest rather than an HMAC construction.
package security

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a short, non-reversible hex digest of token, suitable
// for distinguishing "which token" in a log line without risking exposure.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}
