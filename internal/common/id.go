package common

import (
	"crypto/rand"
	"encoding/hex"
)

// idBytes is the number of random bytes behind an entity id (24 hex chars).
const idBytes = 12

// MakeRandHexString generates a random hexadecimal string from size random
// bytes. The resulting string is twice as long as size.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewID returns a fresh 24-character hex identifier for users, folders,
// files and pending uploads.
func NewID() string {
	s, err := MakeRandHexString(idBytes)
	if err != nil {
		// crypto/rand.Read never fails on supported platforms.
		panic(err)
	}
	return s
}
