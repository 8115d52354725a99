// Package edgenode implements the edge-node connection manager: a thin
// client that attaches to a single core, tracks that core's advertised
// peer list for failover, and can submit transactions into the mesh
// without ever joining the core-set itself.
package edgenode

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/mincoin-project/mincoin/internal/chain"
	"github.com/mincoin-project/mincoin/internal/membership"
	"github.com/mincoin-project/mincoin/internal/protocol"
)

// Config bundles an edge manager's startup parameters.
type Config struct {
	SelfAddr     string        // own listening endpoint, advertised to the core
	Core         string        // the core to attach to
	PingInterval time.Duration
	DialTimeout  time.Duration
}

// Manager is a running edge node: the core it is currently attached to,
// the most recent core-list snapshot received from it (used to pick a
// replacement if the current core goes dark), and a local listener that
// accepts CoreList/Ping pushes from the core.
type Manager struct {
	addr        string
	dialTimeout time.Duration

	mu   sync.Mutex
	core string

	known *membership.Set // last CoreList advertised by our core, for failover

	pingInterval time.Duration
	log          gethlog.Logger

	listener net.Listener
}

// NewManager builds an edge manager attached to cfg.Core.
func NewManager(cfg Config) *Manager {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	known := membership.New()
	known.Add(cfg.Core)
	return &Manager{
		addr:         cfg.SelfAddr,
		dialTimeout:  dialTimeout,
		core:         cfg.Core,
		known:        known,
		pingInterval: cfg.PingInterval,
		log:          gethlog.New("component", "edgenode", "addr", cfg.SelfAddr),
	}
}

// CurrentCore returns the endpoint this edge is currently attached to.
func (m *Manager) CurrentCore() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.core
}

// KnownCores returns the last core-list snapshot this edge has heard,
// sorted lexicographically.
func (m *Manager) KnownCores() []string { return m.known.Snapshot() }

// Start binds a listener for CoreList/Ping pushes from the core, sends
// the initial AddAsEdge attach message, and launches the liveness ping
// loop. It returns once the listener is bound.
func (m *Manager) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("edgenode: listen on %s: %w", m.addr, err)
	}
	m.listener = ln

	go m.acceptLoop(ctx, ln)
	go m.pingLoop(ctx)

	m.attach(m.CurrentCore())
	return nil
}

// Close stops accepting pushes from the core.
func (m *Manager) Close() error {
	if m.listener == nil {
		return nil
	}
	return m.listener.Close()
}

func (m *Manager) attach(core string) {
	msg, err := protocol.Build(protocol.MsgAddAsEdge, m.addr, nil, nil)
	if err != nil {
		m.log.Error("failed to build AddAsEdge message", "err", err)
		return
	}
	if err := m.sendRaw(core, msg); err != nil {
		m.log.Warn("failed to attach to core", "core", core, "err", err)
	}
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
			m.log.Debug("accept failed", "err", err)
			continue
		}
		go m.handleConn(conn)
	}
}

func (m *Manager) handleConn(conn net.Conn) {
	defer conn.Close()
	frame, err := protocol.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		return
	}
	env, err := protocol.Parse(frame)
	if err != nil {
		m.log.Warn("dropping malformed message", "err", err)
		return
	}
	switch env.MsgType {
	case protocol.MsgCoreList:
		m.known.Overwrite(env.NewCoreSet)
	case protocol.MsgPing:
		// no-op; an edge never pings back on its own accept loop.
	default:
		m.log.Debug("edge ignoring message type", "msg_type", env.MsgType)
	}
}

// SubmitTransaction sends tx to the current core as a NewTransaction
// message, retrying once against a replacement core on failure.
func (m *Manager) SubmitTransaction(tx chain.Transaction) error {
	msg, err := protocol.Build(protocol.MsgNewTransaction, m.addr, nil, &tx)
	if err != nil {
		return fmt.Errorf("edgenode: build NewTransaction: %w", err)
	}
	return m.sendWithFailover(msg)
}

// pingLoop periodically checks the current core's liveness and fails
// over to a replacement on failure: drop the dead core from the known
// set, pick a new one via Top, and retry once; if no candidate remains,
// stop pinging.
func (m *Manager) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg, err := protocol.Build(protocol.MsgPing, m.addr, nil, nil)
			if err != nil {
				m.log.Error("failed to build Ping message", "err", err)
				continue
			}
			if err := m.sendWithFailover(msg); err != nil {
				if m.known.Len() == 0 {
					m.log.Warn("no reachable core remains, stopping liveness checks", "err", err)
					return
				}
				m.log.Warn("liveness check failed after failover", "err", err)
			}
		}
	}
}

// sendWithFailover sends msg to the current core; on failure it removes
// that core from the known set, promotes the lexicographically first
// survivor via Top, retries once, and gives up if no candidate remains.
func (m *Manager) sendWithFailover(msg string) error {
	core := m.CurrentCore()
	if err := m.sendRaw(core, msg); err == nil {
		return nil
	}
	m.log.Warn("core unreachable, failing over", "dead_core", core)
	m.known.Remove(core)

	next, ok := m.known.Top()
	if !ok {
		return fmt.Errorf("edgenode: no known core reachable")
	}
	m.mu.Lock()
	m.core = next
	m.mu.Unlock()

	if err := m.sendRaw(next, msg); err != nil {
		return fmt.Errorf("edgenode: replacement core %s also unreachable: %w", next, err)
	}
	return nil
}

func (m *Manager) sendRaw(addr string, msg string) error {
	conn, err := net.DialTimeout("tcp", addr, m.dialTimeout)
	if err != nil {
		return fmt.Errorf("edgenode: dial %s: %w", addr, err)
	}
	go func() {
		defer conn.Close()
		if err := protocol.WriteFrame(conn, msg); err != nil {
			m.log.Debug("write failed", "peer", addr, "err", err)
		}
	}()
	return nil
}
