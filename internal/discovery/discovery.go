// Package discovery implements optional LAN peer discovery: a libp2p
// host running only mDNS advertisement/discovery, no gossipsub. It
// exists purely to surface join candidates; every discovered peer is
// handed to the caller's callback, which feeds it into the same Join
// path a manually supplied --bootstrap flag would use. It never joins
// the mesh itself, so the core node's own membership protocol stays the
// sole authority over who is actually in the mesh.
package discovery

import (
	"context"
	"fmt"

	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
)

// rendezvous is the mDNS service tag LAN peers advertise under. It
// identifies the mesh, not a specific node.
const rendezvous = "mincoin-mesh"

// PeerFound is invoked with a dial candidate "ip:meshPort" each time a
// LAN peer is discovered. Peer discovery only yields the host's
// address; the mesh TCP port is not exchanged over libp2p, so each
// discovered host is paired with the meshPort passed to Start.
type PeerFound func(addr string)

// LAN drives a libp2p host doing nothing but mDNS advertise/discover.
type LAN struct {
	host host.Host
	log  gethlog.Logger
}

// Start creates a libp2p host listening on listenPort and begins
// advertising and discovering peers over mDNS. meshPort is the TCP
// port discovered peers are assumed to run their mesh listener on.
func Start(ctx context.Context, listenPort int, meshPort int, onFound PeerFound) (*LAN, error) {
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", listenPort)),
	)
	if err != nil {
		return nil, fmt.Errorf("discovery: create libp2p host: %w", err)
	}

	l := &LAN{host: h, log: gethlog.New("component", "discovery")}
	notifee := &notifee{self: h.ID(), meshPort: meshPort, onFound: onFound, log: l.log}
	svc := mdns.NewMdnsService(h, rendezvous, notifee)
	if err := svc.Start(); err != nil {
		h.Close()
		return nil, fmt.Errorf("discovery: start mdns: %w", err)
	}
	l.log.Info("LAN discovery started", "peer_id", h.ID().String(), "listen_port", listenPort)
	return l, nil
}

// Close shuts down the underlying libp2p host.
func (l *LAN) Close() error {
	return l.host.Close()
}

type notifee struct {
	self     peer.ID
	meshPort int
	onFound  PeerFound
	log      gethlog.Logger
}

// HandlePeerFound extracts an IPv4/IPv6 host from the discovered
// peer's multiaddrs and reports it paired with the configured mesh
// port; it never dials the libp2p connection itself, since the mesh
// protocol runs over plain TCP, not over this host.
func (n *notifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.self {
		return
	}
	for _, addr := range pi.Addrs {
		if ip, ok := hostIP(addr); ok {
			n.log.Debug("discovered LAN peer", "peer_id", pi.ID.String(), "ip", ip)
			n.onFound(fmt.Sprintf("%s:%d", ip, n.meshPort))
			return
		}
	}
}

func hostIP(addr ma.Multiaddr) (string, bool) {
	if ip4, err := addr.ValueForProtocol(ma.P_IP4); err == nil {
		return ip4, true
	}
	if ip6, err := addr.ValueForProtocol(ma.P_IP6); err == nil {
		return ip6, true
	}
	return "", false
}
