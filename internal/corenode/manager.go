// Package corenode implements a mesh core node: the TCP listener and
// accept loop, the dispatch table over incoming peer envelopes, a
// periodic liveness ping that evicts unreachable peers, and the
// broadcast helpers that keep every core peer's view of membership and
// pending transactions in sync. Locally mined blocks are not sent to
// peers; they are only handed to the hooks registered via OnBlockMined.
package corenode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/mincoin-project/mincoin/internal/chain"
	"github.com/mincoin-project/mincoin/internal/membership"
	"github.com/mincoin-project/mincoin/internal/protocol"
)

// Config bundles a core manager's startup parameters.
type Config struct {
	SelfAddr     string        // own externally-reachable "ip:port"
	Bootstrap    string        // optional: an existing core to join; empty starts a genesis core
	Difficulty   int           // PoW difficulty for the miner
	PingInterval time.Duration // liveness check cadence
	MineInterval time.Duration // miner cadence
	DialTimeout  time.Duration // per-peer connect deadline; defaults to 2s if zero
}

// EnhancedHandler receives Enhanced-tagged envelopes. The dispatch table
// does not interpret this message type itself; it hands the envelope to
// whatever handler the caller installed via SetEnhancedHandler, or drops
// it silently if none is set.
type EnhancedHandler func(protocol.Envelope)

// Manager is a running core node: membership, pool, chain and miner,
// plus the goroutines that drive them.
type Manager struct {
	addr        string
	bootstrap   string
	dialTimeout time.Duration

	core *membership.Set
	edge *membership.Set
	pool *chain.Pool
	bc   *chain.Blockchain
	miner *chain.Miner

	pingInterval time.Duration
	enhanced     EnhancedHandler

	hookMu     sync.Mutex
	blockHooks []func(chain.Block)

	log gethlog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewManager builds a core manager. It does not start any goroutine or
// bind any socket; call Start for that.
func NewManager(cfg Config) *Manager {
	core := membership.New()
	core.Add(cfg.SelfAddr)
	edge := membership.New()

	bc := chain.NewBlockchain(cfg.Difficulty, time.Now())
	pool := chain.NewPool()

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}

	m := &Manager{
		addr:         cfg.SelfAddr,
		bootstrap:    cfg.Bootstrap,
		dialTimeout:  dialTimeout,
		core:         core,
		edge:         edge,
		pool:         pool,
		bc:           bc,
		pingInterval: cfg.PingInterval,
		log:          gethlog.New("component", "corenode", "addr", cfg.SelfAddr),
	}
	m.miner = chain.NewMiner(bc, pool, cfg.MineInterval)
	m.miner.OnBlock = func(b chain.Block) {
		m.log.Info("locally mined block", "transactions", len(b.Transactions))
		m.hookMu.Lock()
		hooks := append([]func(chain.Block){}, m.blockHooks...)
		m.hookMu.Unlock()
		for _, h := range hooks {
			h(b)
		}
	}
	return m
}

// SetEnhancedHandler installs the delegate for Enhanced-tagged messages.
func (m *Manager) SetEnhancedHandler(h EnhancedHandler) {
	m.enhanced = h
}

// OnBlockMined registers a callback invoked whenever the local miner
// produces a new block, in addition to the manager's own logging. Used
// by the introspection API to push a WebSocket event.
func (m *Manager) OnBlockMined(f func(chain.Block)) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.blockHooks = append(m.blockHooks, f)
}

// Addr returns the manager's own endpoint.
func (m *Manager) Addr() string { return m.addr }

// CoreSnapshot returns the current core-set, sorted.
func (m *Manager) CoreSnapshot() []string { return m.core.Snapshot() }

// EdgeSnapshot returns the current edge-set, sorted.
func (m *Manager) EdgeSnapshot() []string { return m.edge.Snapshot() }

// PoolSnapshot returns the current pending transaction pool.
func (m *Manager) PoolSnapshot() []chain.Transaction { return m.pool.Snapshot() }

// ChainSnapshot returns the current chain, genesis first.
func (m *Manager) ChainSnapshot() []chain.Block { return m.bc.Snapshot() }

// Join sends addr an Add message containing our own endpoint, and
// records addr as the bootstrap core if none is recorded yet. Safe to
// call again later (e.g. from LAN discovery) to attempt joining a
// freshly-discovered candidate: the Add is sent on every call, while an
// already-recorded bootstrap is kept.
func (m *Manager) Join(addr string) {
	if m.bootstrap == "" {
		m.bootstrap = addr
	}
	msg, err := protocol.Build(protocol.MsgAdd, m.addr, nil, nil)
	if err != nil {
		m.log.Error("failed to build Add message", "err", err)
		return
	}
	if err := m.sendRaw(addr, msg); err != nil {
		m.log.Warn("failed to join bootstrap core", "bootstrap", addr, "err", err)
	}
}

// Start binds the listener and launches the accept loop, ping loop and
// miner loop. It returns once the listener is bound; the loops run
// until ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("corenode: listen on %s: %w", m.addr, err)
	}
	m.mu.Lock()
	m.listener = ln
	m.mu.Unlock()

	go m.acceptLoop(ctx, ln)
	go m.pingLoop(ctx)
	go m.miner.Run(ctx)

	if m.bootstrap != "" {
		m.Join(m.bootstrap)
	}
	m.log.Info("core node started", "bootstrap", m.bootstrap)
	return nil
}

// Leave sends a best-effort Remove to the recorded bootstrap core. It
// does not retry and ignores send failures: a node that is shutting down
// has no use for the error, and the remaining core peers will evict us
// from their own liveness pings shortly regardless.
func (m *Manager) Leave() {
	if m.bootstrap == "" {
		return
	}
	msg, err := protocol.Build(protocol.MsgRemove, m.addr, nil, nil)
	if err != nil {
		return
	}
	_ = m.sendRaw(m.bootstrap, msg)
}

// Close stops accepting new connections.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Close()
}

func (m *Manager) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			m.log.Warn("accept failed", "err", err)
			continue
		}
		go m.handleConn(conn)
	}
}

func (m *Manager) handleConn(conn net.Conn) {
	defer conn.Close()
	frame, err := protocol.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		m.log.Debug("read failed", "err", err)
		return
	}
	env, err := protocol.Parse(frame)
	if err != nil {
		// CodecError: drop the frame, keep the peer, just log.
		m.log.Warn("dropping malformed message", "err", err)
		return
	}
	m.dispatch(*env)
}

func (m *Manager) dispatch(env protocol.Envelope) {
	switch env.MsgType {
	case protocol.MsgAdd:
		m.core.Add(env.MyAddr)
		if env.MyAddr != m.addr {
			m.broadcastCoreList()
		}
	case protocol.MsgRemove:
		m.core.Remove(env.MyAddr)
		m.broadcastCoreList()
	case protocol.MsgPing:
		// no-op; the connection itself is the liveness signal.
	case protocol.MsgRequestCoreList:
		m.replyCoreList(env.MyAddr)
	case protocol.MsgAddAsEdge:
		m.edge.Add(env.MyAddr)
		m.replyCoreList(env.MyAddr)
	case protocol.MsgRemoveEdge:
		m.edge.Remove(env.MyAddr)
	case protocol.MsgCoreList:
		m.core.Overwrite(env.NewCoreSet)
	case protocol.MsgNewTransaction:
		m.handleNewTransaction(env)
	case protocol.MsgNewBlock, protocol.MsgRspFullChain:
		m.log.Debug("accepted but not processed", "msg_type", env.MsgType)
	case protocol.MsgEnhanced:
		if m.enhanced != nil {
			m.enhanced(env)
		}
	default:
		m.log.Warn("ignoring unknown message type", "msg_type", env.MsgType)
	}
}

func (m *Manager) handleNewTransaction(env protocol.Envelope) {
	if env.NewTransaction == nil {
		m.log.Warn("NewTransaction message missing payload")
		return
	}
	added := m.pool.Append(*env.NewTransaction)
	if !added {
		return // duplicate: already in the pool, drop it silently.
	}
	// Any transaction that did not arrive from an already-known core peer
	// is fresh off the edge and must be flooded onward once, tagged
	// NewTransaction, so every other core peer picks it up exactly once.
	if !m.core.Has(env.MyAddr) {
		m.floodTransaction(*env.NewTransaction)
	}
}

// SubmitTransaction is the local-origin path used by the introspection
// API: append to the pool and, if new, flood to the mesh exactly as a
// freshly-received edge transaction would be.
func (m *Manager) SubmitTransaction(tx chain.Transaction) bool {
	added := m.pool.Append(tx)
	if added {
		m.floodTransaction(tx)
	}
	return added
}

func (m *Manager) floodTransaction(tx chain.Transaction) {
	msg, err := protocol.Build(protocol.MsgNewTransaction, m.addr, nil, &tx)
	if err != nil {
		m.log.Error("failed to build flood message", "err", err)
		return
	}
	m.broadcastRaw(msg)
}

func (m *Manager) broadcastCoreList() {
	msg, err := m.buildCoreListMsg()
	if err != nil {
		m.log.Error("failed to build CoreList message", "err", err)
		return
	}
	m.broadcastRaw(msg)
}

func (m *Manager) replyCoreList(to string) {
	msg, err := m.buildCoreListMsg()
	if err != nil {
		m.log.Error("failed to build CoreList message", "err", err)
		return
	}
	if err := m.sendRaw(to, msg); err != nil {
		m.log.Debug("reply failed", "to", to, "err", err)
	}
}

func (m *Manager) buildCoreListMsg() (string, error) {
	return protocol.Build(protocol.MsgCoreList, m.addr, m.core.Snapshot(), nil)
}

// broadcastRaw iterates a released-lock snapshot of the core set and
// sends msg to each member; a peer we fail to connect to is evicted
// immediately, with no retry. A peer that is actually alive but briefly
// unreachable rejoins on its own next Add.
func (m *Manager) broadcastRaw(msg string) {
	for _, peer := range m.core.Snapshot() {
		if err := m.sendRaw(peer, msg); err != nil {
			m.log.Warn("peer unreachable during broadcast, evicting", "peer", peer, "err", err)
			m.core.Remove(peer)
		}
	}
}

// pingLoop checks every core peer's liveness once per PingInterval and
// evicts anything unreachable, broadcasting a refreshed CoreList if the
// set changed.
func (m *Manager) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkPeers()
		}
	}
}

func (m *Manager) checkPeers() {
	msg, err := protocol.Build(protocol.MsgPing, m.addr, nil, nil)
	if err != nil {
		m.log.Error("failed to build Ping message", "err", err)
		return
	}
	changed := false
	for _, peer := range m.core.Snapshot() {
		if err := m.sendRaw(peer, msg); err != nil {
			m.core.Remove(peer)
			changed = true
		}
	}
	if changed {
		m.broadcastCoreList()
	}
}

// sendRaw connects to addr synchronously, so callers can observe and
// act on a dial failure (evicting the peer), then writes msg on a
// spawned goroutine. The write itself is fire-and-forget: a write error
// only means the peer dropped the connection after we dialed it
// successfully, which is not worth blocking the caller to handle.
func (m *Manager) sendRaw(addr string, msg string) error {
	conn, err := net.DialTimeout("tcp", addr, m.dialTimeout)
	if err != nil {
		return fmt.Errorf("corenode: dial %s: %w", addr, err)
	}
	go func() {
		defer conn.Close()
		if err := protocol.WriteFrame(conn, msg); err != nil {
			m.log.Debug("write failed", "peer", addr, "err", err)
		}
	}()
	return nil
}
