package discovery

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/jabolina/relt/pkg/relt"

	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/logging"
	"github.com/jabolina/go-o2rt/pkg/o2rt/transport"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// Config holds discovery's tunables: the beacon interval and peer idle
// timeout are configuration parameters of the run loop.
type Config struct {
	Application    string
	Self           types.ProcessID
	Host           string
	DiscoveryPort  int
	TCPPort        int
	UDPPort        int
	BeaconInterval time.Duration
	IdleTimeout    time.Duration
}

// DefaultConfig fills in reasonable periodic intervals for discovery.
func DefaultConfig(app string, self types.ProcessID) Config {
	return Config{
		Application:    app,
		Self:           self,
		BeaconInterval: time.Second,
		IdleTimeout:    5 * time.Second,
	}
}

// Engine drives the discovery group over a relt-backed broadcast
// channel and maintains the peer table.
type Engine struct {
	cfg   Config
	group *relt.Relt
	tcp   *transport.TCPChannel
	log   logging.Logger

	peers    map[types.ProcessID]*Peer
	nextID   types.PeerID
	lastTx   time.Time
	isMaster bool

	localServices func() []string

	OnPeerConnected func(*Peer, []string)
	OnPeerDropped   func(types.PeerID)
}

// NewEngine joins the discovery group for cfg.Application: a dedicated
// relt instance per process, keyed by a group address derived from the
// application name. tcp is the already-bound service channel peers will
// dial into; the engine owns accepting and handshaking over it but not
// its lifecycle.
func NewEngine(cfg Config, tcp *transport.TCPChannel, localServices func() []string, log logging.Logger) (*Engine, error) {
	conf := relt.DefaultReltConfiguration()
	conf.Name = string(cfg.Self)
	conf.Exchange = relt.GroupAddress(cfg.Application)
	group, err := relt.NewRelt(*conf)
	if err != nil {
		return nil, errs.Wrap(err, "joining discovery group")
	}
	return &Engine{
		cfg:           cfg,
		group:         group,
		tcp:           tcp,
		log:           log,
		peers:         make(map[types.ProcessID]*Peer),
		localServices: localServices,
		nextID:        types.InvalidPeerID + 1,
	}, nil
}

// Close leaves the discovery group. The TCP channel belongs to the
// caller and is closed separately.
func (e *Engine) Close() error {
	return e.group.Close()
}

// SetMaster flips whether future beacons advertise this process as the
// clock-sync master, mirroring the runtime's static election (spec.md
// §4.6: exactly one process calls set_clock at startup).
func (e *Engine) SetMaster(isMaster bool) {
	e.isMaster = isMaster
}

// MaybeAnnounce emits a beacon if BeaconInterval has elapsed since the
// last one. Beacons continue after connection so late joiners can still
// discover existing peers.
func (e *Engine) MaybeAnnounce(now time.Time) error {
	if now.Sub(e.lastTx) < e.cfg.BeaconInterval {
		return nil
	}
	e.lastTx = now
	data := EncodeBeacon(Beacon{
		Application:   e.cfg.Application,
		ProcessID:     e.cfg.Self,
		Host:          e.cfg.Host,
		DiscoveryPort: e.cfg.DiscoveryPort,
		TCPPort:       e.cfg.TCPPort,
		UDPPort:       e.cfg.UDPPort,
		IsMaster:      e.isMaster,
	})
	send := relt.Send{Address: relt.GroupAddress(e.cfg.Application), Data: data}
	return errs.Wrap(e.group.Broadcast(context.Background(), send), "emitting discovery beacon")
}

// DrainIncoming consumes whatever beacons are currently buffered, without
// blocking.
func (e *Engine) DrainIncoming() {
	listener, err := e.group.Consume()
	if err != nil {
		e.log.Errorf("discovery consume unavailable: %v", err)
		return
	}
	for {
		select {
		case recv, ok := <-listener:
			if !ok {
				return
			}
			if recv.Error != nil {
				e.log.Warnf("discovery receive error: %v", recv.Error)
				continue
			}
			e.handleBeacon(recv.Data)
		default:
			return
		}
	}
}

func (e *Engine) handleBeacon(data []byte) {
	b, err := DecodeBeacon(data)
	if err != nil {
		e.log.Warnf("dropping malformed beacon: %v", err)
		return
	}
	if b.Application != e.cfg.Application || b.ProcessID == e.cfg.Self {
		return
	}

	peer, known := e.peers[b.ProcessID]
	if !known {
		e.nextID++
		peer = &Peer{
			ID:            e.nextID,
			ProcessID:     b.ProcessID,
			Host:          b.Host,
			DiscoveryPort: b.DiscoveryPort,
			TCPPort:       b.TCPPort,
			UDPPort:       b.UDPPort,
			State:         Announced,
			Services:      make(map[string]bool),
		}
		e.peers[b.ProcessID] = peer
	}
	peer.LastSeen = time.Now()
	peer.IsMaster = b.IsMaster

	if known && peer.State != Announced {
		return
	}

	// Symmetry-breaking: the process with the lexicographically lower id
	// initiates the TCP handshake.
	if e.cfg.Self.Less(b.ProcessID) {
		e.connect(peer)
	}
}

func (e *Engine) connect(peer *Peer) {
	peer.State = Connecting
	conn, err := transport.Dial(peer.TCPAddress())
	if err != nil {
		e.log.Warnf("failed dialing peer %s: %v", peer.ProcessID, err)
		peer.State = Announced
		return
	}
	peer.Conn = conn

	if err := e.handshake(peer); err != nil {
		e.log.Warnf("handshake with %s failed: %v", peer.ProcessID, err)
		conn.Close()
		peer.State = Announced
		return
	}
	peer.State = Connected
	if e.OnPeerConnected != nil {
		e.OnPeerConnected(peer, servicesOf(peer))
	}
}

// handshake exchanges the complete local service list over the newly
// dialed TCP channel (spec.md §4.5).
func (e *Engine) handshake(peer *Peer) error {
	local := e.localServices()
	payload, err := json.Marshal(local)
	if err != nil {
		return errs.Wrap(err, "marshaling local service list")
	}
	if err := transport.WriteFrame(peer.Conn, payload); err != nil {
		return err
	}
	remote, err := transport.ReadFrame(peer.Conn, 3*time.Second)
	if err != nil {
		return err
	}
	var names []string
	if err := json.Unmarshal(remote, &names); err != nil {
		return errs.Wrap(err, "decoding peer service list")
	}
	for _, n := range names {
		peer.Services[n] = true
	}
	return nil
}

// AcceptIncoming services one pending inbound handshake, if any, matching
// the connecting socket back to a peer announced by an earlier beacon
// (the higher-id process never dials; it only answers).
func (e *Engine) AcceptIncoming(deadline time.Duration) {
	conn, err := e.tcp.Accept(deadline)
	if err != nil {
		e.log.Warnf("accepting peer connection: %v", err)
		return
	}
	if conn == nil {
		return
	}

	peer := e.peerByAddr(conn.RemoteAddr())
	if peer == nil {
		e.log.Warnf("rejecting handshake from unannounced peer %s", conn.RemoteAddr())
		conn.Close()
		return
	}
	peer.Conn = conn
	peer.State = Connecting

	if err := e.acceptHandshake(peer); err != nil {
		e.log.Warnf("passive handshake with %s failed: %v", peer.ProcessID, err)
		conn.Close()
		peer.State = Announced
		return
	}
	peer.State = Connected
	if e.OnPeerConnected != nil {
		e.OnPeerConnected(peer, servicesOf(peer))
	}
}

// acceptHandshake is the passive counterpart of handshake: it reads the
// initiator's service list first, then answers with its own.
func (e *Engine) acceptHandshake(peer *Peer) error {
	remote, err := transport.ReadFrame(peer.Conn, 3*time.Second)
	if err != nil {
		return err
	}
	var names []string
	if err := json.Unmarshal(remote, &names); err != nil {
		return errs.Wrap(err, "decoding peer service list")
	}
	for _, n := range names {
		peer.Services[n] = true
	}

	payload, err := json.Marshal(e.localServices())
	if err != nil {
		return errs.Wrap(err, "marshaling local service list")
	}
	return transport.WriteFrame(peer.Conn, payload)
}

// peerByAddr finds a peer advertising the given TCP host, ignoring the
// ephemeral source port of the dialing side.
func (e *Engine) peerByAddr(addr net.Addr) *Peer {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	for _, peer := range e.peers {
		if peer.Host == host || strings.EqualFold(peer.Host, host) {
			return peer
		}
	}
	return nil
}

// PeerByUDPAddr finds the peer that owns addr's host and UDP port, so the
// best-effort datagram path can demultiplex inbound reads the same way
// peerByAddr demultiplexes inbound TCP connections.
func (e *Engine) PeerByUDPAddr(addr *net.UDPAddr) *Peer {
	for _, peer := range e.peers {
		if peer.UDPPort == addr.Port && (peer.Host == addr.IP.String() || strings.EqualFold(peer.Host, addr.IP.String())) {
			return peer
		}
	}
	return nil
}

func servicesOf(peer *Peer) []string {
	names := make([]string, 0, len(peer.Services))
	for n := range peer.Services {
		names = append(names, n)
	}
	return names
}

// SweepTimeouts drops peers not seen within IdleTimeout (spec.md §4.5:
// "Timeouts trigger re-announce then drop").
func (e *Engine) SweepTimeouts(now time.Time) {
	for id, peer := range e.peers {
		if peer.State == Dropped {
			continue
		}
		if now.Sub(peer.LastSeen) > e.cfg.IdleTimeout {
			peer.State = Dropped
			if peer.Conn != nil {
				peer.Conn.Close()
			}
			if e.OnPeerDropped != nil {
				e.OnPeerDropped(peer.ID)
			}
			delete(e.peers, id)
		}
	}
}

// SetPeerSyncing transitions a Connected peer to Syncing, marking that a
// clock-sync handshake with it is now underway (spec.md §4.5's
// Connected(services) -> Syncing -> Synced machine). Peers that are not
// currently Connected are left alone: the transition only ever applies to
// the master relationship a client is pinging, never to peers already
// Dropped or mid-handshake.
func (e *Engine) SetPeerSyncing(id types.PeerID) {
	peer := e.peerByID(id)
	if peer == nil || peer.State != Connected {
		return
	}
	peer.State = Syncing
}

// SetPeerSynced transitions a peer between Syncing and Synced as this
// process's clocksync.Engine reports its own synced state flipping.
// synced=false after having been Synced steps back to Syncing rather than
// Connected, since the peer relationship itself has not dropped.
func (e *Engine) SetPeerSynced(id types.PeerID, synced bool) {
	peer := e.peerByID(id)
	if peer == nil {
		return
	}
	if synced {
		if peer.State == Connected || peer.State == Syncing {
			peer.State = Synced
		}
		peer.ClockSynced = true
		return
	}
	if peer.State == Synced {
		peer.State = Syncing
	}
	peer.ClockSynced = false
}

func (e *Engine) peerByID(id types.PeerID) *Peer {
	for _, peer := range e.peers {
		if peer.ID == id {
			return peer
		}
	}
	return nil
}

// Peers returns the live peer table (not a copy), for introspection and
// tests.
func (e *Engine) Peers() map[types.ProcessID]*Peer {
	return e.peers
}

// MasterPeer returns the connected peer advertising itself as the
// clock-sync master, if any, so the clock-sync engine knows where to
// send pings (spec.md §4.6 ping/pong protocol).
func (e *Engine) MasterPeer() *Peer {
	for _, peer := range e.peers {
		if peer.IsMaster && peer.Conn != nil && peer.State != Dropped {
			return peer
		}
	}
	return nil
}
