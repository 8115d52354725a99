package chain

// pool.go implements the node's transaction pool: an insertion-ordered,
// de-duplicated-on-intake queue shared by every dispatch goroutine and
// drained by the miner. MineDrain snapshots exactly the transactions a
// mined block will cover and only removes that prefix on success, so a
// transaction that arrives mid-mine is never silently dropped.

import (
	"errors"
	"sync"
)

// ErrPoolEmpty is returned by MineDrain when there is nothing to mine.
var ErrPoolEmpty = errors.New("chain: transaction pool is empty")

// Pool is the ordered, de-duplicated sequence of pending transactions.
type Pool struct {
	mu  sync.Mutex
	txs []Transaction
}

// NewPool returns an empty transaction pool.
func NewPool() *Pool {
	return &Pool{}
}

// Contains reports whether an equal transaction is already queued.
func (p *Pool) Contains(tx Transaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.containsLocked(tx)
}

func (p *Pool) containsLocked(tx Transaction) bool {
	for _, t := range p.txs {
		if t.Equal(tx) {
			return true
		}
	}
	return false
}

// Append adds tx to the end of the pool, preserving arrival order. It
// returns false without modifying the pool if an equal transaction is
// already present, so that callers on the gossip path can tell whether
// they should re-flood the transaction.
func (p *Pool) Append(tx Transaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.containsLocked(tx) {
		return false
	}
	p.txs = append(p.txs, tx)
	return true
}

// Snapshot returns a copy of the pool's current contents, safe to use
// without holding any lock.
func (p *Pool) Snapshot() []Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]Transaction, len(p.txs))
	copy(cp, p.txs)
	return cp
}

// Len returns the current pool length.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// MineDrain runs mine against a snapshot of the pool taken under lock,
// holding that lock for the entire call so that transactions arriving
// during mining are neither lost nor double-counted: they simply wait
// for the lock and get appended after the drained prefix is removed.
// On success it truncates the first n entries (n = the snapshot length
// at call time), preserving anything that arrived meanwhile.
func (p *Pool) MineDrain(mine func(txs []Transaction) (Block, error)) (Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.txs)
	if n == 0 {
		return Block{}, ErrPoolEmpty
	}
	snapshot := make([]Transaction, n)
	copy(snapshot, p.txs)

	blk, err := mine(snapshot)
	if err != nil {
		return Block{}, err
	}
	p.txs = p.txs[n:]
	return blk, nil
}
