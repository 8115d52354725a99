// Package cryptoutil holds the one primitive mincoin's chain builds on:
// the double-SHA-256 used for block hashing and PoW.
package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// DoubleSHA256 returns the lowercase hex digest of SHA-256 applied twice:
// once to the UTF-8 bytes of s, and again to the ASCII bytes of the first
// digest's hex encoding (not to the raw 32 bytes). The second pass must
// hash hex text, not binary, or chains produced by this node will not match
// chains produced by the reference node.
func DoubleSHA256(s string) string {
	first := sha256.Sum256([]byte(s))
	firstHex := hex.EncodeToString(first[:])
	second := sha256.Sum256([]byte(firstHex))
	return hex.EncodeToString(second[:])
}
