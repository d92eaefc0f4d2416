// Package directory implements the service directory and status
// tracking: a map from service name to exactly one of {local handler,
// remote peer, OSC delegate, bridge}, each carrying an observable,
// ordered status.
package directory

import (
	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// Status is the 9-way ordered service status. The ordering itself is the
// contract: callers test `>= LocalNotime` for "deliverable immediately"
// and `>= Local` for "timed-deliverable".
type Status int

const (
	Fail Status = iota
	LocalNotime
	RemoteNotime
	BridgeNotime
	ToOscNotime
	Local
	Remote
	Bridge
	ToOsc
)

// Deliverable reports whether s is at least good enough for an
// immediate-delivery send.
func (s Status) Deliverable() bool { return s >= LocalNotime }

// TimedDeliverable reports whether s supports a timed send (a valid,
// monotone global clock is available).
func (s Status) TimedDeliverable() bool { return s >= Local }

// Kind distinguishes the three (four, counting the Bridge stub) directory
// entry variants.
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
	KindOscDelegate
	KindBridge
)

// Entry is one service directory record. Exactly one of PeerID / Osc* is
// meaningful, selected by Kind.
type Entry struct {
	Name     string
	Kind     Kind
	PeerID   types.PeerID
	OscHost  string
	OscPort  int
	Reliable bool
	status   Status
}

// Status returns the entry's current observable status.
func (e *Entry) Status() Status { return e.status }

// Directory is the process-wide service -> entry map. A service name
// appears at most once.
type Directory struct {
	entries map[string]*Entry
	synced  bool // this process's own clock-sync state, for Local entries
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{entries: make(map[string]*Entry)}
}

// AddLocal registers a local service root, initially LocalNotime unless
// this process's clock is already synced.
func (d *Directory) AddLocal(name string) error {
	return d.add(&Entry{Name: name, Kind: KindLocal, status: d.initialStatus(KindLocal)})
}

// AddRemote registers a service owned by a peer.
func (d *Directory) AddRemote(name string, peer types.PeerID) error {
	return d.add(&Entry{Name: name, Kind: KindRemote, PeerID: peer, status: d.initialStatus(KindRemote)})
}

// AddOscDelegate registers an outbound OSC bridge.
func (d *Directory) AddOscDelegate(name, host string, port int, reliable bool) error {
	return d.add(&Entry{Name: name, Kind: KindOscDelegate, OscHost: host, OscPort: port, Reliable: reliable, status: d.initialStatus(KindOscDelegate)})
}

// AddBridge registers a stub bridge entry: the status codes exist, but no
// concrete non-IP transport backs them yet.
func (d *Directory) AddBridge(name string) error {
	return d.add(&Entry{Name: name, Kind: KindBridge, status: BridgeNotime})
}

func (d *Directory) initialStatus(kind Kind) Status {
	if !d.synced {
		switch kind {
		case KindLocal:
			return LocalNotime
		case KindRemote:
			return RemoteNotime
		case KindOscDelegate:
			return ToOscNotime
		default:
			return BridgeNotime
		}
	}
	switch kind {
	case KindLocal:
		return Local
	case KindRemote:
		return Remote
	case KindOscDelegate:
		return ToOsc
	default:
		return BridgeNotime
	}
}

func (d *Directory) add(e *Entry) error {
	if _, exists := d.entries[e.Name]; exists {
		return errs.ErrServiceExists
	}
	d.entries[e.Name] = e
	return nil
}

// Remove deletes a service, used when a peer drops or a local service is
// torn down. Any caller-side queued timed messages to it must be
// discarded and reported by whoever holds the scheduler.
func (d *Directory) Remove(name string) {
	delete(d.entries, name)
}

// Get returns the entry for name, if any.
func (d *Directory) Get(name string) (*Entry, bool) {
	e, ok := d.entries[name]
	return e, ok
}

// StatusOf returns the observable status for name, or Fail if the service
// doesn't exist.
func (d *Directory) StatusOf(name string) Status {
	e, ok := d.entries[name]
	if !ok {
		return Fail
	}
	return e.status
}

// OnPeerDrop removes every entry owned by peer and returns their names, so
// the caller can discard their queued timed messages.
func (d *Directory) OnPeerDrop(peer types.PeerID) []string {
	var dropped []string
	for name, e := range d.entries {
		if e.Kind == KindRemote && e.PeerID == peer {
			dropped = append(dropped, name)
			delete(d.entries, name)
		}
	}
	return dropped
}

// SetPeerSynced updates the status of every Remote entry owned by peer in
// response to that peer's own clock-sync transition.
func (d *Directory) SetPeerSynced(peer types.PeerID, synced bool) {
	for _, e := range d.entries {
		if e.Kind != KindRemote || e.PeerID != peer {
			continue
		}
		if synced {
			e.status = Remote
		} else {
			e.status = RemoteNotime
		}
	}
}

// SetLocalSynced updates every Local/OscDelegate entry in response to this
// process's own clock-sync transition.
func (d *Directory) SetLocalSynced(synced bool) {
	d.synced = synced
	for _, e := range d.entries {
		switch e.Kind {
		case KindLocal:
			if synced {
				e.status = Local
			} else {
				e.status = LocalNotime
			}
		case KindOscDelegate:
			if synced {
				e.status = ToOsc
			} else {
				e.status = ToOscNotime
			}
		}
	}
}

// Names returns every registered service name, for iteration by callers
// such as the discovery handshake (which advertises the full local list).
func (d *Directory) Names() []string {
	names := make([]string, 0, len(d.entries))
	for n := range d.entries {
		names = append(names, n)
	}
	return names
}
