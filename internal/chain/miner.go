package chain

// miner.go drives the periodic mine-from-pool loop: every interval,
// drain the pool under its own lock, PoW-mine a block extending the
// chain's current head, and append it.

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Miner periodically drains Pool into a new PoW block appended to Chain.
type Miner struct {
	Chain    *Blockchain
	Pool     *Pool
	Interval time.Duration

	// OnBlock, if set, is called after each successfully mined block.
	OnBlock func(Block)

	log log.Logger
}

// NewMiner builds a Miner over the given chain and pool.
func NewMiner(bc *Blockchain, pool *Pool, interval time.Duration) *Miner {
	return &Miner{
		Chain:    bc,
		Pool:     pool,
		Interval: interval,
		log:      log.New("component", "miner"),
	}
}

// Run blocks, mining on every tick until ctx is canceled.
func (m *Miner) Run(ctx context.Context) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mineOnce()
		}
	}
}

func (m *Miner) mineOnce() {
	latest := m.Chain.Latest()
	prevHash, err := m.Chain.HashOf(latest)
	if err != nil {
		m.log.Error("failed to hash latest block", "err", err)
		return
	}
	difficulty := m.Chain.Difficulty()

	blk, err := m.Pool.MineDrain(func(txs []Transaction) (Block, error) {
		encoded := make([]string, len(txs))
		for i, tx := range txs {
			s, err := tx.Encode()
			if err != nil {
				return Block{}, err
			}
			encoded[i] = s
		}
		return Mine(time.Now(), prevHash, encoded, difficulty)
	})
	if err != nil {
		if errors.Is(err, ErrPoolEmpty) {
			m.log.Debug("transaction pool empty, skipping mine cycle")
			return
		}
		m.log.Error("mining failed", "err", err)
		return
	}

	if err := m.Chain.Append(blk); err != nil {
		m.log.Error("mined block rejected by chain", "err", err)
		return
	}
	m.log.Info("mined new block", "transactions", len(blk.Transactions), "prev_hash", prevHash)
	if m.OnBlock != nil {
		m.OnBlock(blk)
	}
}
