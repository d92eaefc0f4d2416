// Package transport implements the raw point-to-point channels used by
// peers: the TCP service channel (handshake and length-prefixed frames)
// and the best-effort UDP channel (spec.md §4.5, §4.7). No keep-alive
// frames are sent on the TCP channel; peer liveness is tracked from
// discovery beacons. Discovery's multicast
// beacon is a separate concern, served by relt (see package discovery).
package transport

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
)

// ErrorNotAdvertiseAddress mirrors the teacher's own TCP transport test
// (test/tcp_transport_test.go): binding to 0.0.0.0 without an explicit
// advertise address leaves peers with no usable address to dial back.
var ErrorNotAdvertiseAddress = errs.New(errs.KindState, errs.ErrGeneric, "no advertisable address")

// TCPChannel is this process's listening TCP endpoint for peer service
// channels: handshake connections land here, and the resulting net.Conn
// carries framed traffic for the lifetime of the peer relationship. It
// sends no keep-alive frames of its own.
type TCPChannel struct {
	listener  net.Listener
	advertise string
}

// NewTCPChannel binds bindAddr and validates that advertise names a
// concrete, dialable address — a 0.0.0.0 bind with no override is
// rejected, the same check the teacher's transport test exercises.
func NewTCPChannel(bindAddr string, advertise *net.TCPAddr) (*TCPChannel, error) {
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, errs.Wrap(err, "binding tcp channel")
	}

	addr := advertise
	if addr == nil {
		addr, _ = listener.Addr().(*net.TCPAddr)
	}
	if addr == nil || addr.IP == nil || addr.IP.IsUnspecified() {
		listener.Close()
		return nil, ErrorNotAdvertiseAddress
	}

	return &TCPChannel{listener: listener, advertise: addr.String()}, nil
}

// LocalAddress returns the address peers should dial to reach this
// channel.
func (c *TCPChannel) LocalAddress() string { return c.advertise }

// Accept blocks for the next inbound handshake connection. The dispatch
// loop calls this with a short deadline so polling stays non-blocking
// overall (spec.md §5).
func (c *TCPChannel) Accept(deadline time.Duration) (net.Conn, error) {
	if tl, ok := c.listener.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(deadline))
	}
	conn, err := c.listener.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, errs.Wrap(err, "accepting peer connection")
	}
	return conn, nil
}

// Dial opens the reliable service channel to a peer's advertised address.
func Dial(addr string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return nil, errs.Wrap(err, "dialing peer")
	}
	return conn, nil
}

// Close shuts down the listening socket.
func (c *TCPChannel) Close() error {
	if c.listener == nil {
		return nil
	}
	return c.listener.Close()
}

// WriteFrame writes a length-prefixed frame on the reliable channel, so
// reads on the other end can recover individual messages instead of
// splitting the TCP byte stream on their own.
func WriteFrame(conn net.Conn, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := conn.Write(header[:]); err != nil {
		return errs.Wrap(err, "writing frame header")
	}
	if _, err := conn.Write(payload); err != nil {
		return errs.Wrap(err, "writing frame payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, honoring deadline so the
// caller's poll loop never blocks indefinitely.
func ReadFrame(conn net.Conn, deadline time.Duration) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(deadline))
	var header [4]byte
	if _, err := readFull(conn, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	payload := make([]byte, size)
	if _, err := readFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() && total == 0 {
				return total, errs.Wrap(err, "read timeout")
			}
			return total, errs.Wrap(errs.ErrPeerHungUp, err.Error())
		}
	}
	return total, nil
}
