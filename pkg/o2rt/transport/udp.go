package transport

import (
	"net"
	"time"

	"github.com/prometheus/common/log"

	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
)

// UDPChannel is the best-effort per-process channel used for send()'s
// unreliable path (spec.md §4.7 step 3). Unlike the TCP service channel,
// a single UDP socket serves every peer, addressed per-datagram.
type UDPChannel struct {
	conn *net.UDPConn
}

// NewUDPChannel binds a UDP socket for best-effort traffic.
func NewUDPChannel(bindAddr string) (*UDPChannel, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, errs.Wrap(err, "resolving udp bind address")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errs.Wrap(err, "binding udp channel")
	}
	return &UDPChannel{conn: conn}, nil
}

// LocalAddr returns the bound address, for advertising in discovery
// beacons.
func (u *UDPChannel) LocalAddr() *net.UDPAddr {
	return u.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo fires a best-effort datagram; failures are logged and also
// returned to the caller.
func (u *UDPChannel) SendTo(addr *net.UDPAddr, payload []byte) error {
	if _, err := u.conn.WriteToUDP(payload, addr); err != nil {
		log.Errorf("udp send to %s failed: %v", addr, err)
		return errs.Wrap(err, "udp send")
	}
	return nil
}

// ReadFrom performs one non-blocking read: it returns immediately with
// whatever is available, or (nil, nil, nil) if nothing arrived within the
// poll's budget (spec.md §5: "reads return what is available and the loop
// yields").
func (u *UDPChannel) ReadFrom(budget time.Duration) ([]byte, *net.UDPAddr, error) {
	u.conn.SetReadDeadline(time.Now().Add(budget))
	buf := make([]byte, 65507)
	n, from, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, nil
		}
		return nil, nil, errs.Wrap(err, "udp read")
	}
	return buf[:n], from, nil
}

// Close releases the socket.
func (u *UDPChannel) Close() error {
	return u.conn.Close()
}
