// Package osc implements the OSC gateway from spec.md §4.8 (component H):
// bridging an external OSC UDP port into an internal service (inbound) and
// translating internal messages into OSC frames delivered to a delegate
// endpoint (outbound). Wire encode/decode is delegated entirely to
// github.com/hypebeast/go-osc/osc rather than re-derived, per SPEC_FULL.md's
// domain-stack table.
package osc

import (
	"net"
	"strconv"
	"time"

	gosc "github.com/hypebeast/go-osc/osc"

	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/logging"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// InboundPort bridges an external OSC UDP port onto service: every
// well-formed OSC message at /a/b/c arrives as an internal message at
// /service/a/b/c. Bundles are unbundled and the bundle's own time tag
// becomes each contained message's internal timestamp.
type InboundPort struct {
	service string
	conn    *net.UDPConn
	log     logging.Logger

	// Dropped counts malformed OSC frames, spec.md §4.8/§7.
	Dropped int
}

// OpenInbound binds a UDP port and starts bridging its traffic onto
// service. Only UDP is implemented — the gateway's upstream dependency's
// own server is UDP-only — so a TCP request is rejected rather than
// silently downgraded.
func OpenInbound(service string, port int, udp bool, log logging.Logger) (*InboundPort, error) {
	if !udp {
		return nil, errs.New(errs.KindState, errs.ErrGeneric, "only udp osc ports are supported")
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, errs.Wrap(err, "resolving osc port address")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errs.Wrap(err, "binding osc port")
	}
	return &InboundPort{service: service, conn: conn, log: log}, nil
}

// Close releases the bound socket.
func (p *InboundPort) Close() error { return p.conn.Close() }

// Drain performs one non-blocking read and hands every decoded message to
// sink with its address rewritten under the owning service. Malformed
// frames are dropped and counted, never surfaced as an error (spec.md §7
// Protocol policy: recovered locally).
func (p *InboundPort) Drain(budget time.Duration, sink func(types.Message)) {
	p.conn.SetReadDeadline(time.Now().Add(budget))
	buf := make([]byte, 65507)
	n, _, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		p.log.Warnf("osc inbound read error on %s: %v", p.service, err)
		return
	}
	packet, err := gosc.ParsePacket(string(buf[:n]))
	if err != nil {
		p.Dropped++
		p.log.Warnf("dropping malformed osc frame on %s: %v", p.service, err)
		return
	}
	p.deliver(packet, types.Immediate, sink)
}

func (p *InboundPort) deliver(packet gosc.Packet, bundleTime types.Timestamp, sink func(types.Message)) {
	switch pk := packet.(type) {
	case *gosc.Message:
		sink(p.translate(pk, bundleTime))
	case *gosc.Bundle:
		t := timetagToTimestamp(pk.Timetag)
		for _, m := range pk.Messages {
			sink(p.translate(m, t))
		}
		for _, b := range pk.Bundles {
			p.deliver(b, t, sink)
		}
	default:
		p.Dropped++
		p.log.Warnf("dropping unrecognized osc packet type on %s", p.service)
	}
}

func (p *InboundPort) translate(msg *gosc.Message, t types.Timestamp) types.Message {
	args := make([]types.Value, 0, len(msg.Arguments))
	for _, a := range msg.Arguments {
		args = append(args, fromOSCArg(a))
	}
	return types.Message{
		Time:    t,
		Address: "/" + p.service + msg.Address,
		Args:    args,
	}
}

// OutboundDelegate is the send side of component H: messages addressed to
// /service/... are translated to an OSC frame and forwarded to (ip, port).
type OutboundDelegate struct {
	service  string
	client   *gosc.Client
	Reliable bool
}

// NewOutboundDelegate opens a client toward a delegate endpoint. reliable
// is the caller's declared intent (spec.md §4.4 OscDelegate.reliable?);
// the gateway dependency itself only speaks UDP, so a forward-synchronous
// reliable path (spec.md §4.8, the "optional" bundle path) is left
// unimplemented and this flag is informational only.
func NewOutboundDelegate(service, ip string, port int, reliable bool) *OutboundDelegate {
	return &OutboundDelegate{
		service:  service,
		client:   gosc.NewClient(ip, port),
		Reliable: reliable,
	}
}

// Forward translates msg into an OSC frame and sends it to the delegate
// endpoint. The leading /service segment is stripped since the delegate
// only understands its own OSC address space.
func (d *OutboundDelegate) Forward(msg types.Message) error {
	segs := types.Segments(msg.Address)
	oscAddr := "/"
	if len(segs) > 1 {
		oscAddr += joinSlash(segs[1:])
	}
	out := gosc.NewMessage(oscAddr)
	for _, a := range msg.Args {
		v, err := toOSCArg(a)
		if err != nil {
			return err
		}
		out.Append(v)
	}
	return errs.Wrap(d.client.Send(out), "forwarding message to osc delegate")
}

func joinSlash(segs []string) string {
	out := segs[0]
	for _, s := range segs[1:] {
		out += "/" + s
	}
	return out
}
