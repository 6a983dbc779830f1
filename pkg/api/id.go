package api

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// tokenBytes is the entropy of an opaque bearer token. 32 bytes gives
// 256 bits, comfortably above the 128-bit floor needed to make token
// guessing and cross-tenant collisions negligible.
const tokenBytes = 32

// NewUserID generates a unique user identifier.
func NewUserID() string {
	return "usr_" + uuid.NewString()
}

// NewWidgetID generates a unique widget identifier.
func NewWidgetID() string {
	return "wid_" + uuid.NewString()
}

// NewTokenValue generates a fresh opaque bearer token as a hex string.
func NewTokenValue() string {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
