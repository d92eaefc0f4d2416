package discovery

import (
	"encoding/binary"

	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// Beacon is the small fixed-schema record broadcast periodically on the
// discovery group (spec.md §6 "Wire formats"): a length-prefixed
// application name, the advertiser's identity, and its three ports.
type Beacon struct {
	Application   string
	ProcessID     types.ProcessID
	Host          string
	DiscoveryPort int
	TCPPort       int
	UDPPort       int
	IsMaster      bool
}

func writeLenPrefixed(buf []byte, s string) []byte {
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(s)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, s...)
}

func readLenPrefixed(data []byte, offset int) (string, int, error) {
	if offset+2 > len(data) {
		return "", 0, errs.ErrMalformedMessage
	}
	n := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if offset+n > len(data) {
		return "", 0, errs.ErrMalformedMessage
	}
	return string(data[offset : offset+n]), offset + n, nil
}

// EncodeBeacon packs a Beacon into its wire form. Sender and receiver must
// agree on this layout within a deployment (spec.md §6).
func EncodeBeacon(b Beacon) []byte {
	buf := make([]byte, 0, 64)
	buf = writeLenPrefixed(buf, b.Application)
	buf = writeLenPrefixed(buf, string(b.ProcessID))
	buf = writeLenPrefixed(buf, b.Host)
	var ports [7]byte
	binary.BigEndian.PutUint16(ports[0:2], uint16(b.DiscoveryPort))
	binary.BigEndian.PutUint16(ports[2:4], uint16(b.TCPPort))
	binary.BigEndian.PutUint16(ports[4:6], uint16(b.UDPPort))
	if b.IsMaster {
		ports[6] = 1
	}
	return append(buf, ports[:]...)
}

// DecodeBeacon reverses EncodeBeacon, reporting a Protocol-kind error on
// any malformed frame (spec.md §7).
func DecodeBeacon(data []byte) (Beacon, error) {
	app, off, err := readLenPrefixed(data, 0)
	if err != nil {
		return Beacon{}, err
	}
	pid, off, err := readLenPrefixed(data, off)
	if err != nil {
		return Beacon{}, err
	}
	host, off, err := readLenPrefixed(data, off)
	if err != nil {
		return Beacon{}, err
	}
	if off+7 != len(data) {
		return Beacon{}, errs.ErrMalformedMessage
	}
	return Beacon{
		Application:   app,
		ProcessID:     types.ProcessID(pid),
		Host:          host,
		DiscoveryPort: int(binary.BigEndian.Uint16(data[off : off+2])),
		TCPPort:       int(binary.BigEndian.Uint16(data[off+2 : off+4])),
		UDPPort:       int(binary.BigEndian.Uint16(data[off+4 : off+6])),
		IsMaster:      data[off+6] != 0,
	}, nil
}
