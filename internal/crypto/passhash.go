// Package crypto provides password hashing for the stub backend's seeded
// fixtures. Parameters are tuned down from production settings; the stub only
// needs realistic verification behavior, not brute-force resistance.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 16
	keyLen  = 32

	argonTime    uint32 = 1
	argonMemory  uint32 = 32 * 1024
	argonThreads uint8  = 2
)

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	b := make([]byte, saltLen)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword derives a hex-encoded Argon2id digest.
func HashPassword(password, salt []byte) string {
	sum := argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, keyLen)
	return hex.EncodeToString(sum)
}

// VerifyPassword reports whether password matches the stored digest.
func VerifyPassword(password, salt []byte, digest string) bool {
	want, err := hex.DecodeString(digest)
	if err != nil || len(want) != keyLen {
		return false
	}
	got := argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, keyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}
