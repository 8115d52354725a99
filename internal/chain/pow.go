package chain

// pow.go implements the proof-of-work nonce search: find the smallest
// nonce such that double-SHA-256(canonical-JSON-without-nonce || nonce)
// ends in exactly `difficulty` hex zero characters.

import (
	"strings"
	"time"

	"github.com/mincoin-project/mincoin/internal/cryptoutil"
)

// DefaultDifficulty is the number of trailing hex-zero characters a
// mined block's digest must end in.
const DefaultDifficulty = 5

// Mine performs the PoW search for a new block extending prevHash and
// carrying txs (already JSON-encoded transaction strings). now is
// injected so callers (and tests) control the timestamp deterministically.
func Mine(now time.Time, prevHash string, txs []string, difficulty int) (Block, error) {
	header := Block{
		Timestamp:         now.Unix(),
		Transactions:      txs,
		PreviousBlockHash: strPtr(prevHash),
		Nonce:             nil,
	}
	headerBytes, err := header.CanonicalJSON()
	if err != nil {
		return Block{}, err
	}
	suffix := strings.Repeat("0", difficulty)

	nonce := NonceFromUint64(0)
	for {
		candidate := string(headerBytes) + nonce.String()
		if strings.HasSuffix(cryptoutil.DoubleSHA256(candidate), suffix) {
			header.Nonce = nonce
			return header, nil
		}
		nonce = nonce.Inc()
	}
}

// CheckPoW reports whether b's stored nonce actually satisfies
// difficulty against b's own header fields.
func CheckPoW(b Block, difficulty int) bool {
	if b.Nonce == nil {
		return false
	}
	headerBytes, err := b.WithoutNonce().CanonicalJSON()
	if err != nil {
		return false
	}
	candidate := string(headerBytes) + b.Nonce.String()
	suffix := strings.Repeat("0", difficulty)
	return strings.HasSuffix(cryptoutil.DoubleSHA256(candidate), suffix)
}
