// Package discovery implements the discovery engine from spec.md §4.5
// (component E): a periodic multicast beacon, peer reception, the
// symmetry-breaking TCP handshake, and per-peer state tracking.
package discovery

import (
	"net"
	"strconv"
	"time"

	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// State is a peer's position in the discovery/handshake state machine
// from spec.md §4.5.
type State int

const (
	Announced State = iota
	Connecting
	Connected
	Syncing
	Synced
	Dropped
)

// Peer is everything this process knows about another process in the
// same application.
type Peer struct {
	ID            types.PeerID
	ProcessID     types.ProcessID
	Host          string
	DiscoveryPort int
	TCPPort       int
	UDPPort       int
	State         State
	LastSeen      time.Time
	Services      map[string]bool

	Conn    net.Conn
	UDPAddr *net.UDPAddr

	IsMaster    bool
	ClockSynced bool
	ClockOffset float64
}

// TCPAddress is the address this peer's service channel listens on.
func (p *Peer) TCPAddress() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.TCPPort))
}
