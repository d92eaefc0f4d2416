package osc

import (
	"net"
	"testing"
	"time"

	gosc "github.com/hypebeast/go-osc/osc"

	"github.com/jabolina/go-o2rt/pkg/o2rt/logging"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

func TestInboundPortTranslateRewritesAddressUnderService(t *testing.T) {
	p := &InboundPort{service: "synth", log: logging.NewDefaultLogger("test")}
	msg := gosc.NewMessage("/freq")
	msg.Append(int32(440))
	msg.Append("sine")

	got := p.translate(msg, types.Immediate)

	if got.Address != "/synth/freq" {
		t.Fatalf("expected /synth/freq, got %q", got.Address)
	}
	if len(got.Args) != 2 || got.Args[0].I32 != 440 || got.Args[1].Str != "sine" {
		t.Fatalf("unexpected args: %+v", got.Args)
	}
}

func TestInboundPortDeliverUnbundlesWithBundleTimetag(t *testing.T) {
	p := &InboundPort{service: "synth", log: logging.NewDefaultLogger("test")}

	inner := gosc.NewMessage("/freq")
	inner.Append(int32(220))

	stamp := time.Now().Add(5 * time.Second)
	bundle := gosc.NewBundle(stamp)
	if err := bundle.Append(inner); err != nil {
		t.Fatalf("append: %v", err)
	}

	var got []types.Message
	p.deliver(bundle, types.Immediate, func(m types.Message) { got = append(got, m) })

	if len(got) != 1 {
		t.Fatalf("expected one delivered message, got %d", len(got))
	}
	if got[0].Address != "/synth/freq" {
		t.Fatalf("unexpected address: %q", got[0].Address)
	}
	if float64(got[0].Time) < float64(types.Timestamp(stamp.Unix())) {
		t.Fatalf("expected bundle timetag to carry through, got %v", got[0].Time)
	}
}

func TestOutboundDelegateForwardStripsServiceSegment(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	addr := conn.LocalAddr().(*net.UDPAddr)
	delegate := NewOutboundDelegate("remote_synth", "127.0.0.1", addr.Port, false)

	msg := types.Message{
		Address: "/remote_synth/freq",
		Args:    []types.Value{{Code: types.TypeInt32, I32: 330}},
	}
	if err := delegate.Forward(msg); err != nil {
		t.Fatalf("forward: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	packet, err := gosc.ParsePacket(string(buf[:n]))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, ok := packet.(*gosc.Message)
	if !ok {
		t.Fatalf("expected a plain message, got %T", packet)
	}
	if got.Address != "/freq" {
		t.Fatalf("expected /freq (service segment stripped), got %q", got.Address)
	}
}

func TestOpenInboundRejectsNonUDP(t *testing.T) {
	if _, err := OpenInbound("svc", 0, false, logging.NewDefaultLogger("test")); err == nil {
		t.Fatalf("expected an error requesting a non-udp osc port")
	}
}
