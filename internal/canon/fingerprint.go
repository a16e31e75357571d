package canon

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the SHA-256 hex digest of the canonical serialization
// of v. Equal values (under canonical ordering rules) always produce equal
// fingerprints; any observable difference flips the digest.
func Fingerprint(v interface{}) string {
	sum := sha256.Sum256([]byte(Canonicalize(v)))
	return hex.EncodeToString(sum[:])
}
