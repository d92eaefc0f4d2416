package runtime

import (
	"net"
	"strconv"

	"github.com/jabolina/go-o2rt/pkg/o2rt/codec"
	"github.com/jabolina/go-o2rt/pkg/o2rt/directory"
	"github.com/jabolina/go-o2rt/pkg/o2rt/discovery"
	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/scheduler"
	"github.com/jabolina/go-o2rt/pkg/o2rt/transport"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// SchedulerKind selects which of the two timing wheels a caller of
// Schedule means, mirroring schedule(scheduler, msg) (spec.md §6).
type SchedulerKind int

const (
	SchedulerLocal SchedulerKind = iota
	SchedulerGlobal
)

// Send builds a message from a type descriptor and positional arguments
// and routes it best-effort, mirroring send(path, time, typestr, args...).
func (rt *Runtime) Send(address string, when types.Timestamp, typeTag string, args ...interface{}) error {
	return rt.buildAndSend(address, when, typeTag, args, false)
}

// SendCmd is Send's reliable counterpart, mirroring send_cmd.
func (rt *Runtime) SendCmd(address string, when types.Timestamp, typeTag string, args ...interface{}) error {
	return rt.buildAndSend(address, when, typeTag, args, true)
}

func (rt *Runtime) buildAndSend(address string, when types.Timestamp, typeTag string, args []interface{}, reliable bool) error {
	values, err := codec.Assemble(typeTag, args)
	if err != nil {
		return err
	}
	return rt.SendMessage(types.Message{Time: when, Address: address, Args: values}, reliable)
}

// SendMessage takes ownership of a fully built message and routes it,
// mirroring send_message(msg, reliable?). This is the single entry point
// every other send variant funnels through.
func (rt *Runtime) SendMessage(msg types.Message, reliable bool) error {
	return rt.route(msg, reliable)
}

// Schedule directly enqueues a pre-built timed message on the requested
// scheduler, mirroring schedule(scheduler, msg).
func (rt *Runtime) Schedule(kind SchedulerKind, msg types.Message) error {
	if rt.depth > 0 {
		rt.pending = append(rt.pending, msg)
		return nil
	}
	return rt.scheduleLocked(kind, msg)
}

func (rt *Runtime) scheduleLocked(kind SchedulerKind, msg types.Message) error {
	switch kind {
	case SchedulerLocal:
		return rt.local.Schedule(msg, rt.localNow(), scheduler.SinkFunc(rt.deliverDue))
	case SchedulerGlobal:
		g, ok := rt.clock.GlobalTime()
		if !ok {
			return errs.ErrClockNotLive
		}
		return rt.global.Schedule(msg, g, scheduler.SinkFunc(rt.deliverDue))
	default:
		return errs.New(errs.KindInvariant, errs.ErrGeneric, "unknown scheduler kind")
	}
}

// route resolves msg's destination service and either dispatches it
// immediately or schedules it, per spec.md §4.7 step 3. Called-from-a-
// handler re-entrancy is gated here (and in Schedule): while a handler is
// running, msg is appended to the pending FIFO instead.
//
// A design decision (no pack precedent pins this down exactly): message
// timestamps are always expressed in this process's estimated global
// time, consistent with spec.md example 2 ("B calls
// send(path, get_time()+0.5, ...)"). A LOCAL destination converts that
// global due-time to this process's own local-clock equivalent before
// scheduling on the local wheel (so Advance's monotonic now never races
// drift corrections); a REMOTE destination schedules directly on the
// global wheel, tracking the shared clock until it's time to forward.
// The one documented exception is the outbound OSC delegate path
// (spec.md §4.8), which always rides the local wheel.
func (rt *Runtime) route(msg types.Message, reliable bool) error {
	if rt.depth > 0 {
		rt.pending = append(rt.pending, msg)
		return nil
	}

	name := types.ServiceName(msg.Address)
	entry, ok := rt.dir.Get(name)
	if !ok {
		rt.log.Warnf("send to unknown service %q dropped", name)
		return errs.ErrServiceMissing
	}

	if !msg.Time.IsTimed() {
		return rt.deliverLocked(msg, entry, reliable)
	}

	if entry.Kind == directory.KindOscDelegate {
		return rt.local.Schedule(msg, rt.localNow(), scheduler.SinkFunc(rt.deliverDue))
	}

	global, ok := rt.clock.GlobalTime()
	if !ok {
		return errs.ErrClockNotLive
	}

	if entry.Kind == directory.KindLocal {
		localDue := rt.localNow() + types.Timestamp(float64(msg.Time)-float64(global))
		return rt.local.Schedule(types.Message{Time: localDue, Address: msg.Address, Args: msg.Args}, rt.localNow(), scheduler.SinkFunc(rt.deliverDue))
	}

	return rt.global.Schedule(msg, global, scheduler.SinkFunc(rt.deliverDue))
}

// deliverDue resolves and delivers a message that is due *now*: either
// handed straight from Schedule (time <= now) or popped from a bucket by
// Advance, or drained from the pending FIFO. It is never gated by the
// re-entrancy depth check itself — it IS the dispatch step that depth
// protects callers from re-entering.
func (rt *Runtime) deliverDue(msg types.Message) {
	name := types.ServiceName(msg.Address)
	entry, ok := rt.dir.Get(name)
	if !ok {
		rt.log.Warnf("dropping message to unknown service %q", name)
		return
	}
	if err := rt.deliverLocked(msg, entry, false); err != nil {
		rt.log.Warnf("delivering message to %q: %v", name, err)
	}
}

func (rt *Runtime) deliverLocked(msg types.Message, entry *directory.Entry, reliable bool) error {
	switch entry.Kind {
	case directory.KindLocal:
		rt.invokeLocal(msg)
		return nil
	case directory.KindRemote:
		return rt.forwardToPeer(entry.PeerID, msg, reliable)
	case directory.KindOscDelegate:
		delegate, ok := rt.oscOut[entry.Name]
		if !ok {
			return errs.ErrServiceMissing
		}
		return delegate.Forward(msg)
	case directory.KindBridge:
		return errs.New(errs.KindState, errs.ErrGeneric, "bridge transport has no concrete implementation")
	default:
		return errs.ErrServiceMissing
	}
}

// invokeLocal dispatches msg through the trie, tracking re-entrancy depth
// so any Send/Schedule call made from inside a handler lands on the
// pending FIFO instead of recursing (spec.md §5, invariant 6).
func (rt *Runtime) invokeLocal(msg types.Message) {
	rt.depth++
	rt.trie.Dispatch(&msg)
	rt.depth--
}

func (rt *Runtime) forwardToPeer(id types.PeerID, msg types.Message, reliable bool) error {
	peer, ok := rt.peerByID[id]
	if !ok || peer.State == discovery.Dropped {
		return errs.ErrPeerHungUp
	}
	payload, err := codec.Pack(msg)
	if err != nil {
		return err
	}
	frame := append([]byte{frameMessage}, payload...)
	if reliable {
		if peer.Conn == nil {
			return errs.ErrPeerHungUp
		}
		return transport.WriteFrame(peer.Conn, frame)
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(peer.Host, strconv.Itoa(peer.UDPPort)))
	if err != nil {
		return errs.Wrap(err, "resolving peer udp address")
	}
	return rt.udp.SendTo(addr, frame)
}

// onPeerConnected registers every service a newly connected peer
// advertised, as Remote directory entries, mirroring spec.md §4.5's
// handshake exchange of the complete local service list.
func (rt *Runtime) onPeerConnected(peer *discovery.Peer, services []string) {
	rt.peerByID[peer.ID] = peer
	for _, name := range services {
		if _, exists := rt.dir.Get(name); exists {
			continue
		}
		if err := rt.dir.AddRemote(name, peer.ID); err != nil {
			rt.log.Warnf("registering remote service %q from %s: %v", name, peer.ProcessID, err)
		}
	}
}

// onPeerDropped removes every Remote entry owned by the dropped peer and
// discards its queued timed messages, mirroring spec.md §4.4's "On drop"
// clause.
func (rt *Runtime) onPeerDropped(id types.PeerID) {

	dropped := rt.dir.OnPeerDrop(id)
	delete(rt.peerByID, id)
	if len(dropped) == 0 {
		return
	}

	belongsToDropped := func(m types.Message) bool {
		name := types.ServiceName(m.Address)
		for _, d := range dropped {
			if d == name {
				return true
			}
		}
		return false
	}
	discardedLocal := rt.local.DiscardMatching(belongsToDropped)
	discardedGlobal := rt.global.DiscardMatching(belongsToDropped)
	if n := discardedLocal + discardedGlobal; n > 0 {
		rt.log.Warnf("discarded %d queued message(s) for %d dropped service(s)", n, len(dropped))
	}

	kept := rt.pending[:0]
	for _, m := range rt.pending {
		if belongsToDropped(m) {
			continue
		}
		kept = append(kept, m)
	}
	rt.pending = kept
}
