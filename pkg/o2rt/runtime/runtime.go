// Package runtime implements the dispatch loop and the process-wide
// runtime state: spec.md components G (Poll) and I (Runtime). It owns
// every other subsystem and exposes the flat API's operations as methods,
// per Design Note "Global singleton" (the package-level singleton slot
// itself lives in pkg/o2rt, one level up).
package runtime

import (
	"net"
	"strconv"
	"time"

	"github.com/jabolina/go-o2rt/pkg/o2rt/clocksync"
	"github.com/jabolina/go-o2rt/pkg/o2rt/directory"
	"github.com/jabolina/go-o2rt/pkg/o2rt/discovery"
	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/logging"
	"github.com/jabolina/go-o2rt/pkg/o2rt/osc"
	"github.com/jabolina/go-o2rt/pkg/o2rt/scheduler"
	"github.com/jabolina/go-o2rt/pkg/o2rt/transport"
	"github.com/jabolina/go-o2rt/pkg/o2rt/trie"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// Runtime is the process-wide singleton described in spec.md §3/§9: it
// owns the service directory, the address trie, both schedulers, the
// peer table (via discovery.Engine), the clock-sync engine, and the
// pending-delivery FIFO. Per spec.md §5, "multiple threads may not
// invoke the runtime concurrently; it is the caller's responsibility to
// serialize invocations if they originate from more than one thread" —
// so Runtime carries no internal lock of its own. A lock here would in
// any case be wrong: Poll synchronously re-enters user handlers through
// the trie, and a handler calling back into SendMessage or Schedule is
// expected (invariant 6 exists precisely for that case), which a
// non-reentrant mutex held across the handler call would deadlock on.
// depth is the re-entrancy guard that makes that callback safe instead.
type Runtime struct {
	cfg Config
	log logging.Logger
	id  types.ProcessID

	dir  *directory.Directory
	trie *trie.Trie

	local  *scheduler.Scheduler
	global *scheduler.Scheduler

	clock *clocksync.Engine

	tcp   *transport.TCPChannel
	udp   *transport.UDPChannel
	disco *discovery.Engine

	peerByID map[types.PeerID]*discovery.Peer

	oscIn  map[string]*osc.InboundPort
	oscOut map[string]*osc.OutboundDelegate

	pending []types.Message
	depth   int // re-entrancy depth, spec.md §5/§4.7 step 4, invariant 6

	startedAt time.Time
	lastPing  time.Time

	stopped       bool
	stopRequested bool
}

// New assembles a fresh Runtime from cfg: binds the TCP service channel
// and UDP best-effort channel, joins the discovery group, and wires the
// clock-sync engine's callbacks into the directory and global scheduler.
// It does not start polling; the caller drives that via Poll or Run.
func New(cfg Config) (*Runtime, error) {
	if cfg.Application == "" {
		return nil, errs.ErrBadApplicationName
	}

	log := logging.NewDefaultLogger("o2rt")
	id := types.NewProcessID()

	tcp, err := transport.NewTCPChannel(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort)), nil)
	if err != nil {
		return nil, err
	}
	udp, err := transport.NewUDPChannel(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.UDPPort)))
	if err != nil {
		tcp.Close()
		return nil, err
	}

	rt := &Runtime{
		cfg:       cfg,
		log:       log,
		id:        id,
		dir:       directory.New(),
		trie:      trie.New(),
		local:     scheduler.New(cfg.TickRate, true),
		global:    scheduler.New(cfg.TickRate, false),
		tcp:       tcp,
		udp:       udp,
		peerByID:  make(map[types.PeerID]*discovery.Peer),
		oscIn:     make(map[string]*osc.InboundPort),
		oscOut:    make(map[string]*osc.OutboundDelegate),
		startedAt: time.Now(),
	}

	rt.clock = clocksync.NewClient(rt.localNow, cfg.ClockSync)
	rt.clock.OnSyncedChange(func(synced bool) {
		rt.dir.SetLocalSynced(synced)
		rt.global.SetLive(synced)
		if master := rt.disco.MasterPeer(); master != nil {
			rt.disco.SetPeerSynced(master.ID, synced)
		}
	})
	rt.clock.OnClockJump(func(previous, current float64) {
		rt.log.Warnf("clock jump: offset %.6f -> %.6f", previous, current)
	})

	tcpHost, tcpPortStr, err := net.SplitHostPort(tcp.LocalAddress())
	if err != nil {
		tcp.Close()
		udp.Close()
		return nil, errs.Wrap(err, "parsing advertised tcp address")
	}
	tcpPort, _ := strconv.Atoi(tcpPortStr)

	discoCfg := discovery.Config{
		Application:    cfg.Application,
		Self:           id,
		Host:           tcpHost,
		DiscoveryPort:  cfg.DiscoveryPort,
		TCPPort:        tcpPort,
		UDPPort:        udp.LocalAddr().Port,
		BeaconInterval: cfg.BeaconInterval,
		IdleTimeout:    cfg.IdleTimeout,
	}
	disco, err := discovery.NewEngine(discoCfg, tcp, rt.localServiceNames, log)
	if err != nil {
		tcp.Close()
		udp.Close()
		return nil, err
	}
	disco.OnPeerConnected = rt.onPeerConnected
	disco.OnPeerDropped = rt.onPeerDropped
	rt.disco = disco

	return rt, nil
}

// Finish tears the runtime down: every socket is closed, every scheduler
// bucket and the pending FIFO are dropped, and the directory/trie are
// reset to empty, so a subsequent Initialize; Finish; Initialize sequence
// is indistinguishable from a fresh process-lifetime start (spec.md §9
// Open Question 1 — this repo mandates the correct teardown the original
// source lacked).
func (rt *Runtime) Finish() error {
	if rt.stopped {
		return errs.ErrNotRunning
	}

	for _, in := range rt.oscIn {
		in.Close()
	}
	if rt.disco != nil {
		rt.disco.Close()
	}
	for _, peer := range rt.peerByID {
		if peer.Conn != nil {
			peer.Conn.Close()
		}
	}
	if rt.tcp != nil {
		rt.tcp.Close()
	}
	if rt.udp != nil {
		rt.udp.Close()
	}

	rt.dir = directory.New()
	rt.trie = trie.New()
	rt.local = scheduler.New(rt.cfg.TickRate, true)
	rt.global = scheduler.New(rt.cfg.TickRate, false)
	rt.peerByID = make(map[types.PeerID]*discovery.Peer)
	rt.oscIn = make(map[string]*osc.InboundPort)
	rt.oscOut = make(map[string]*osc.OutboundDelegate)
	rt.pending = nil
	rt.stopped = true

	return nil
}

// AddService registers a local service root, mirroring add_service.
func (rt *Runtime) AddService(name string) error {
	if name == "" {
		return errs.ErrBadApplicationName
	}
	if err := rt.dir.AddLocal(name); err != nil {
		return err
	}
	rt.trie.AddServiceRoot(name)
	return nil
}

// AddMethod installs a handler at path, mirroring add_method. The
// service named by path's first segment must already have been
// registered with AddService.
func (rt *Runtime) AddMethod(path, typeSpec string, handler trie.Handler, cookie interface{}, coerce, parse bool) error {
	service := types.ServiceName(path)
	if _, ok := rt.dir.Get(service); !ok {
		return errs.ErrServiceMissing
	}
	return rt.trie.Insert(path, typeSpec, handler, cookie, coerce, parse)
}

// RemoveMethod deletes the handler installed at path and prunes the trie
// nodes that led only to it, so AddMethod followed by RemoveMethod leaves
// the trie as it was (spec.md §8 round-trip law).
func (rt *Runtime) RemoveMethod(path string) error {
	return rt.trie.Remove(path)
}

// Status reports a service's observable status, mirroring status().
func (rt *Runtime) Status(service string) directory.Status {
	return rt.dir.StatusOf(service)
}

// SetClock promotes this process to clock-sync master, mirroring
// set_clock(gettime_fn, cookie). Exactly one process per application
// should call this (spec.md §4.6's static election).
func (rt *Runtime) SetClock(gettime clocksync.GetTimeFn) {
	rt.clock.SetClock(gettime)
	rt.dir.SetLocalSynced(true)
	rt.global.SetLive(true)
	if rt.disco != nil {
		rt.disco.SetMaster(true)
	}
}

// GetTime returns the best estimate of master (global) time, mirroring
// get_time(). ok is false if no global time is available yet.
func (rt *Runtime) GetTime() (types.Timestamp, bool) {
	return rt.clock.GlobalTime()
}

// LocalTime returns this process's own monotonic clock, mirroring
// local_time().
func (rt *Runtime) LocalTime() types.Timestamp {
	return rt.localNow()
}

// RoundTrip exposes the clock-sync engine's RTT window, mirroring
// roundtrip(&mean, &min).
func (rt *Runtime) RoundTrip() (mean float64, min float64, err error) {
	return rt.clock.RoundTrip()
}

// localNow is this process's monotonic clock, backing both the local
// scheduler and the clock-sync engine's GetTimeFn. time.Since uses Go's
// monotonic clock reading, so this is strictly non-decreasing regardless
// of wall-clock adjustments (spec.md §3 "Monotonicity of the local clock
// is required").
func (rt *Runtime) localNow() types.Timestamp {
	return types.Timestamp(time.Since(rt.startedAt).Seconds())
}

// localServiceNames backs discovery's handshake (it advertises this
// process's complete local service list). Only called from within Poll,
// per the single-caller contract documented on Runtime.
func (rt *Runtime) localServiceNames() []string {
	names := make([]string, 0)
	for _, name := range rt.dir.Names() {
		if e, ok := rt.dir.Get(name); ok && e.Kind != directory.KindRemote {
			names = append(names, name)
		}
	}
	return names
}
