// Package idhash computes the deterministic digests stored in identity tokens.
package idhash

import "crypto/sha256"

// Attribute hashes one identity attribute (name, date of birth, gender).
// The value is hashed byte for byte, without normalization, so clients can
// recompute the digest from what they submitted.
func Attribute(value string) [32]byte {
	return sha256.Sum256([]byte(value))
}

// Matches reports whether digest is the hash of value.
func Matches(digest [32]byte, value string) bool {
	return Attribute(value) == digest
}
