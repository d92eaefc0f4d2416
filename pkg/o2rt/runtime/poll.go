package runtime

import (
	"bytes"
	"encoding/binary"
	"math"
	"net"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/jabolina/go-o2rt/pkg/o2rt/clocksync"
	"github.com/jabolina/go-o2rt/pkg/o2rt/codec"
	"github.com/jabolina/go-o2rt/pkg/o2rt/discovery"
	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/scheduler"
	"github.com/jabolina/go-o2rt/pkg/o2rt/transport"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// Frame kinds multiplex the single reliable TCP byte stream between user
// messages and the clock-sync ping/pong protocol, once the discovery
// handshake's own one-shot JSON exchange has completed.
const (
	frameMessage byte = 'M'
	framePing    byte = 'P'
	framePong    byte = 'O'
)

// Poll is the single dispatch-loop entry point, mirroring poll() in
// spec.md §4.7. It performs, in order: (1) read ready sockets, (2)
// advance the local then global scheduler, (3) resolve and deliver due
// messages inline as part of (1)/(2)'s sinks, (4) drain the
// pending-delivery FIFO to quiescence, (5) emit periodic protocol traffic.
func (rt *Runtime) Poll() error {
	if rt.stopped {
		return errs.ErrNotRunning
	}

	now := time.Now()

	rt.disco.DrainIncoming()
	rt.disco.AcceptIncoming(0)
	rt.drainPeerReads()
	rt.drainPeerUDPReads()
	rt.drainOscInbound()
	rt.drainPending()

	rt.local.Advance(rt.localNow(), scheduler.SinkFunc(rt.deliverDue))
	if globalNow, ok := rt.clock.GlobalTime(); ok {
		rt.global.Advance(globalNow, scheduler.SinkFunc(rt.deliverDue))
	}
	rt.drainPending()

	if err := rt.disco.MaybeAnnounce(now); err != nil {
		rt.log.Warnf("emitting discovery beacon: %v", err)
	}
	rt.maybeSendPing(now)
	rt.disco.SweepTimeouts(now)

	return nil
}

// drainPending repeats dispatch step 3 over every entry produced during
// handler re-entry until the FIFO is empty, per spec.md §4.7 step 4 and
// invariant 6: further re-entrant sends append to rt.pending again and
// are picked up by the next iteration of this very loop.
func (rt *Runtime) drainPending() {
	for len(rt.pending) > 0 {
		batch := rt.pending
		rt.pending = nil
		for _, m := range batch {
			rt.deliverDue(m)
		}
	}
}

func (rt *Runtime) drainOscInbound() {
	for _, in := range rt.oscIn {
		in.Drain(0, rt.deliverDue)
	}
}

// Run drives Poll at rate Hz until RequestStop is called, mirroring
// run(rate_hz).
func (rt *Runtime) Run(rateHz float64) error {
	if rateHz <= 0 {
		rateHz = scheduler.DefaultTickRate
	}
	interval := time.Duration(float64(time.Second) / rateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if rt.stopRequested {
			return nil
		}
		if err := rt.Poll(); err != nil {
			return err
		}
		<-ticker.C
	}
}

// RequestStop sets the stop flag Run polls, mirroring run()'s documented
// "until a stop flag is set" contract.
func (rt *Runtime) RequestStop() {
	rt.stopRequested = true
}

// drainPeerReads reads, without blocking, every frame already available on
// each connected peer's TCP service channel, demultiplexing user messages
// from clock-sync frames.
func (rt *Runtime) drainPeerReads() {
	for _, peer := range rt.disco.Peers() {
		if peer.Conn == nil || peer.State == discovery.Dropped {
			continue
		}
		for {
			frame, err := transport.ReadFrame(peer.Conn, 0)
			if err != nil {
				if !isTimeout(err) {
					rt.log.Warnf("peer %s read failed: %v", peer.ProcessID, err)
					peer.Conn.Close()
					peer.State = discovery.Dropped
				}
				break
			}
			if len(frame) == 0 {
				break
			}
			rt.handlePeerFrame(peer, frame)
		}
	}
}

// drainPeerUDPReads performs non-blocking reads on the shared best-effort
// socket until nothing remains, demultiplexing each datagram's source
// address back to the discovery.Peer that sent it (spec.md §4.7 step 1's
// "per-peer UDP" read, spec.md §4.5/§4.7's best-effort Send path).
func (rt *Runtime) drainPeerUDPReads() {
	for {
		payload, from, err := rt.udp.ReadFrom(0)
		if err != nil {
			rt.log.Warnf("udp read failed: %v", err)
			return
		}
		if payload == nil {
			return
		}
		peer := rt.disco.PeerByUDPAddr(from)
		if peer == nil {
			rt.log.Warnf("dropping udp datagram from unknown peer %s", from)
			continue
		}
		if len(payload) == 0 {
			continue
		}
		rt.handlePeerFrame(peer, payload)
	}
}

func isTimeout(err error) bool {
	if ne, ok := pkgerrors.Cause(err).(net.Error); ok {
		return ne.Timeout()
	}
	return false
}

func (rt *Runtime) handlePeerFrame(peer *discovery.Peer, frame []byte) {
	kind, body := frame[0], frame[1:]
	switch kind {
	case frameMessage:
		msg, err := codec.Unpack(body)
		if err != nil {
			rt.log.Warnf("dropping malformed message from peer %s: %v", peer.ProcessID, err)
			return
		}
		rt.deliverDue(msg)
	case framePing:
		if rt.clock.Role() != clocksync.RoleMaster {
			return
		}
		k, _, ok := decodePingPong(body)
		if !ok {
			return
		}
		_, tMaster := rt.clock.HandlePingAtMaster(k)
		rt.sendPong(peer, k, tMaster)
	case framePong:
		k, tMaster, ok := decodePingPong(body)
		if !ok {
			return
		}
		if err := rt.clock.RecordPong(k, tMaster); err != nil {
			rt.log.Warnf("pong from %s: %v", peer.ProcessID, err)
		}
	default:
		rt.log.Warnf("unknown frame kind %q from peer %s", kind, peer.ProcessID)
	}
}

// maybeSendPing emits a ping to the master peer if this process is a
// client and PingInterval has elapsed, mirroring spec.md §4.6's client
// protocol and §4.7 step 5.
func (rt *Runtime) maybeSendPing(now time.Time) {
	if rt.clock.Role() != clocksync.RoleClient {
		return
	}
	if now.Sub(rt.lastPing) < rt.cfg.PingInterval {
		return
	}
	master := rt.disco.MasterPeer()
	if master == nil || master.Conn == nil {
		return
	}
	rt.disco.SetPeerSyncing(master.ID)
	rt.lastPing = now
	k, t0 := rt.clock.NewPing()
	frame := append([]byte{framePing}, encodePingPong(k, t0)...)
	if err := transport.WriteFrame(master.Conn, frame); err != nil {
		rt.log.Warnf("sending clock ping to %s: %v", master.ProcessID, err)
	}
}

func (rt *Runtime) sendPong(peer *discovery.Peer, k uint64, masterTime types.Timestamp) {
	frame := append([]byte{framePong}, encodePingPong(k, masterTime)...)
	if err := transport.WriteFrame(peer.Conn, frame); err != nil {
		rt.log.Warnf("sending clock pong to %s: %v", peer.ProcessID, err)
	}
}

func encodePingPong(k uint64, t types.Timestamp) []byte {
	var buf bytes.Buffer
	var kb [8]byte
	binary.BigEndian.PutUint64(kb[:], k)
	buf.Write(kb[:])
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], math.Float64bits(float64(t)))
	buf.Write(tb[:])
	return buf.Bytes()
}

func decodePingPong(body []byte) (uint64, types.Timestamp, bool) {
	if len(body) != 16 {
		return 0, 0, false
	}
	k := binary.BigEndian.Uint64(body[0:8])
	t := types.Timestamp(math.Float64frombits(binary.BigEndian.Uint64(body[8:16])))
	return k, t, true
}
