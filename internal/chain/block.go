package chain

// block.go defines the Block shape and its canonical JSON encoding.
// Field order below is load-bearing: it is hashed directly, so the
// struct's declaration order (timestamp, transactions,
// previous_block_hash, nonce) must never change.

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

// GenesisTransaction is the genesis block's sole, fixed transaction
// literal.
const GenesisTransaction = "ad9b477b42b22cdf18b1335603d07378ace83561d8398fbfc8de94196c65d806"

// Nonce wraps an unsigned 128-bit integer (the low 128 bits of a
// uint256.Int; the type is reused for its correct unsigned arithmetic
// rather than for its extra range). A nil *Nonce encodes as JSON null,
// matching a block under PoW search that has not yet found a winner.
type Nonce struct {
	v *uint256.Int
}

// NonceFromUint64 builds a Nonce from a small starting value, used by
// the PoW search loop.
func NonceFromUint64(n uint64) *Nonce {
	return &Nonce{v: uint256.NewInt(n)}
}

// Inc returns a new Nonce one greater than n (n itself is untouched).
func (n *Nonce) Inc() *Nonce {
	next := new(uint256.Int).Add(n.v, uint256.NewInt(1))
	return &Nonce{v: next}
}

// String renders the nonce as a decimal string, the form concatenated
// onto the PoW search message.
func (n *Nonce) String() string {
	if n == nil || n.v == nil {
		return ""
	}
	return n.v.Dec()
}

// MarshalJSON renders the nonce as a bare JSON number, or null.
func (n *Nonce) MarshalJSON() ([]byte, error) {
	if n == nil || n.v == nil {
		return []byte("null"), nil
	}
	return []byte(n.v.Dec()), nil
}

// UnmarshalJSON parses a bare JSON number (or null) into the nonce.
func (n *Nonce) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		n.v = nil
		return nil
	}
	val, err := uint256.FromDecimal(s)
	if err != nil {
		return fmt.Errorf("chain: invalid nonce %q: %w", s, err)
	}
	n.v = val
	return nil
}

// Block is a single chain entry. Transactions are stored as their
// already-JSON-encoded strings, not structured values, so that a
// block's hash is stable regardless of how Transaction itself evolves.
type Block struct {
	Timestamp         int64    `json:"timestamp"`
	Transactions      []string `json:"transactions"`
	PreviousBlockHash *string  `json:"previous_block_hash"`
	Nonce             *Nonce   `json:"nonce"`
}

// CanonicalJSON returns the exact byte sequence hashed for this block,
// either as the PoW search message (call with nonce unset) or as the
// chain-linking hash of a fully mined block (call with nonce set).
func (b Block) CanonicalJSON() ([]byte, error) {
	return json.Marshal(b)
}

// WithoutNonce returns a copy of b with its nonce cleared, the form
// used as the PoW search header.
func (b Block) WithoutNonce() Block {
	b.Nonce = nil
	return b
}

func strPtr(s string) *string { return &s }
