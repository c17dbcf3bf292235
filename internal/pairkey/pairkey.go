// Package pairkey canonicalizes two user ids into an order-independent key
// and derives the stable room id for their call channel.
//
// Both the scorer's symmetry guarantees and the call-request uniqueness
// invariant hang off this canonical form, so it must stay a pure function.
package pairkey

import (
	"crypto/sha256"
	"encoding/hex"
)

// roomIDLen is the hex length of a derived room id.
const roomIDLen = 32

// Canonical orders two opaque user ids lexicographically so both
// participants resolve to the same pair key.
//
// Self-pairing is not rejected here; the call-request state machine owns
// that validation.
func Canonical(u1, u2 string) (a, b string) {
	if u2 < u1 {
		return u2, u1
	}
	return u1, u2
}

// RoomID derives the deterministic call-room identifier for a pair.
//
// Stable across process restarts and across repeated requests for the same
// two users, so a reconnect after a dropped call lands in the same logical
// room. Order of arguments does not matter.
func RoomID(u1, u2 string) string {
	a, b := Canonical(u1, u2)
	sum := sha256.Sum256([]byte(a + ":" + b))
	return hex.EncodeToString(sum[:])[:roomIDLen]
}
