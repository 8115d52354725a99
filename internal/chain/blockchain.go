package chain

// blockchain.go is the linear chain: genesis plus appended PoW blocks,
// with append-time validation of both hash linkage and PoW.

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mincoin-project/mincoin/internal/cryptoutil"
)

// ErrChainInvalid marks a block that fails to extend the chain it was
// appended to, either on hash linkage or on proof-of-work.
var ErrChainInvalid = errors.New("chain: block does not validly extend the chain")

// Blockchain is an ordered sequence of blocks starting at a fixed
// genesis block. Appends are serialized by mu.
type Blockchain struct {
	mu         sync.Mutex
	difficulty int
	genesis    Block
	blocks     []Block
}

// NewGenesisBlock returns a fresh genesis block: no predecessor, one
// fixed transaction literal, timestamped now.
func NewGenesisBlock(now time.Time) Block {
	return Block{
		Timestamp:         now.Unix(),
		Transactions:      []string{GenesisTransaction},
		PreviousBlockHash: nil,
		Nonce:             nil,
	}
}

// NewBlockchain creates a chain seeded with an unmined genesis block;
// difficulty applies to every block appended after it.
func NewBlockchain(difficulty int, now time.Time) *Blockchain {
	genesis := NewGenesisBlock(now)
	return &Blockchain{
		difficulty: difficulty,
		genesis:    genesis,
		blocks:     []Block{genesis},
	}
}

// Difficulty returns the chain's configured PoW difficulty.
func (bc *Blockchain) Difficulty() int {
	return bc.difficulty
}

// Genesis returns the chain's retained genesis block.
func (bc *Blockchain) Genesis() Block {
	return bc.genesis
}

// Latest returns the most recently appended block (or genesis, if none).
func (bc *Blockchain) Latest() Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.blocks[len(bc.blocks)-1]
}

// HashOf returns the double-SHA-256 of b's canonical JSON encoding.
func (bc *Blockchain) HashOf(b Block) (string, error) {
	j, err := b.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return cryptoutil.DoubleSHA256(string(j)), nil
}

// Append validates b against the current latest block (hash linkage and
// PoW) and, if valid, adds it to the chain.
func (bc *Blockchain) Append(b Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	latest := bc.blocks[len(bc.blocks)-1]
	latestHash, err := bc.hashOfLocked(latest)
	if err != nil {
		return err
	}
	if b.PreviousBlockHash == nil || *b.PreviousBlockHash != latestHash {
		return fmt.Errorf("%w: previous_block_hash mismatch", ErrChainInvalid)
	}
	if !CheckPoW(b, bc.difficulty) {
		return fmt.Errorf("%w: proof of work invalid", ErrChainInvalid)
	}
	bc.blocks = append(bc.blocks, b)
	return nil
}

func (bc *Blockchain) hashOfLocked(b Block) (string, error) {
	j, err := b.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return cryptoutil.DoubleSHA256(string(j)), nil
}

// Snapshot returns a copy of the full chain, genesis first.
func (bc *Blockchain) Snapshot() []Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	cp := make([]Block, len(bc.blocks))
	copy(cp, bc.blocks)
	return cp
}

// IsValid checks every link in the chain: for every index i >= 1,
// blocks[i].previous_block_hash must equal the hash of blocks[i-1].
func (bc *Blockchain) IsValid() bool {
	bc.mu.Lock()
	blocks := make([]Block, len(bc.blocks))
	copy(blocks, bc.blocks)
	bc.mu.Unlock()

	for i := 1; i < len(blocks); i++ {
		prevHash, err := bc.HashOf(blocks[i-1])
		if err != nil {
			return false
		}
		if blocks[i].PreviousBlockHash == nil || *blocks[i].PreviousBlockHash != prevHash {
			return false
		}
	}
	return true
}
