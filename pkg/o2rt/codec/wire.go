package codec

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// Pack renders msg onto the wire following the OSC convention: a
// 4-byte-aligned, null-padded address, a ','-prefixed, null-padded type
// descriptor, then the packed arguments in order.
// Integers and floats are big-endian; timestamps are 64-bit IEEE-754
// doubles; blobs are a big-endian size followed by padded data.
func Pack(msg types.Message) ([]byte, error) {
	var buf bytes.Buffer
	writePaddedString(&buf, msg.Address)
	writePaddedString(&buf, ","+msg.TypeTag())

	for _, arg := range msg.Args {
		switch arg.Code {
		case types.TypeInt32, types.TypeChar:
			writeUint32(&buf, uint32(arg.I32))
		case types.TypeInt64:
			writeUint64(&buf, uint64(arg.I64))
		case types.TypeFloat32:
			writeUint32(&buf, math.Float32bits(arg.F32))
		case types.TypeFloat64:
			writeUint64(&buf, math.Float64bits(arg.F64))
		case types.TypeTime:
			writeUint64(&buf, math.Float64bits(float64(arg.Time)))
		case types.TypeString, types.TypeSymbol:
			writePaddedString(&buf, arg.Str)
		case types.TypeMIDI:
			buf.Write(arg.MIDI[:])
		case types.TypeBlob:
			writeUint32(&buf, uint32(len(arg.Blob)))
			buf.Write(arg.Blob)
			padTo4(&buf, len(arg.Blob))
		case types.TypeTrue, types.TypeFalse, types.TypeNil, types.TypeInfinite:
			// no payload on the wire
		case types.TypeBool:
			var b uint32
			if arg.Bool {
				b = 1
			}
			writeUint32(&buf, b)
		default:
			return nil, errs.Wrap(errs.ErrMalformedMessage, "unknown argument type on build")
		}
	}

	return buf.Bytes(), nil
}

// Unpack parses a wire frame back into a Message. Malformed frames
// (misaligned padding, a type descriptor not starting with ',', or a
// declared length inconsistent with the parsed arguments) are reported as
// a Protocol-kind error, to be dropped and counted by the dispatch loop.
func Unpack(data []byte) (types.Message, error) {
	addr, off, err := readPaddedString(data, 0)
	if err != nil {
		return types.Message{}, errs.Wrap(err, "reading address")
	}

	tag, off, err := readPaddedString(data, off)
	if err != nil {
		return types.Message{}, errs.Wrap(err, "reading type tag")
	}
	if len(tag) == 0 || tag[0] != ',' {
		return types.Message{}, errs.Wrap(errs.ErrMalformedMessage, "type descriptor missing ',' prefix")
	}
	tag = tag[1:]

	msg := types.Message{Address: addr}
	for _, c := range []byte(tag) {
		code := types.TypeCode(c)
		var v types.Value
		v.Code = code
		switch code {
		case types.TypeInt32:
			u, next, err := readUint32(data, off)
			if err != nil {
				return types.Message{}, err
			}
			v.I32 = int32(u)
			off = next
		case types.TypeChar:
			u, next, err := readUint32(data, off)
			if err != nil {
				return types.Message{}, err
			}
			v.I32 = int32(byte(u))
			off = next
		case types.TypeInt64:
			u, next, err := readUint64(data, off)
			if err != nil {
				return types.Message{}, err
			}
			v.I64 = int64(u)
			off = next
		case types.TypeFloat32:
			u, next, err := readUint32(data, off)
			if err != nil {
				return types.Message{}, err
			}
			v.F32 = math.Float32frombits(u)
			off = next
		case types.TypeFloat64:
			u, next, err := readUint64(data, off)
			if err != nil {
				return types.Message{}, err
			}
			v.F64 = math.Float64frombits(u)
			off = next
		case types.TypeTime:
			u, next, err := readUint64(data, off)
			if err != nil {
				return types.Message{}, err
			}
			v.Time = types.Timestamp(math.Float64frombits(u))
			off = next
		case types.TypeString, types.TypeSymbol:
			s, next, err := readPaddedString(data, off)
			if err != nil {
				return types.Message{}, err
			}
			v.Str = s
			off = next
		case types.TypeMIDI:
			if off+4 > len(data) {
				return types.Message{}, errs.Wrap(errs.ErrMalformedMessage, "truncated midi packet")
			}
			copy(v.MIDI[:], data[off:off+4])
			off += 4
		case types.TypeBlob:
			n, next, err := readUint32(data, off)
			if err != nil {
				return types.Message{}, err
			}
			off = next
			size := int(n)
			if off+size > len(data) {
				return types.Message{}, errs.Wrap(errs.ErrMalformedMessage, "truncated blob")
			}
			v.Blob = append([]byte(nil), data[off:off+size]...)
			off += size
			off += paddingLength(size)
		case types.TypeBool:
			u, next, err := readUint32(data, off)
			if err != nil {
				return types.Message{}, err
			}
			v.Bool = u != 0
			off = next
		case types.TypeTrue:
			v.Bool = true
		case types.TypeFalse:
			v.Bool = false
		case types.TypeNil, types.TypeInfinite:
			// no payload
		default:
			return types.Message{}, errs.Wrap(errs.ErrMalformedMessage, "unknown type tag character")
		}
		msg.Args = append(msg.Args, v)
	}

	if off != len(data) {
		return types.Message{}, errs.Wrap(errs.ErrMalformedMessage, "declared length inconsistent with parsed arguments")
	}

	return msg, nil
}

func paddingLength(n int) int {
	rem := n % 4
	if rem == 0 {
		return 0
	}
	return 4 - rem
}

func padTo4(buf *bytes.Buffer, written int) {
	for i := 0; i < paddingLength(written); i++ {
		buf.WriteByte(0)
	}
}

// writePaddedString writes s null-terminated, padded with nulls so the
// total (including the terminator) is a multiple of 4 — OSC string framing.
func writePaddedString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	pad := 4 - (len(s) % 4)
	for i := 0; i < pad; i++ {
		buf.WriteByte(0)
	}
}

func readPaddedString(data []byte, offset int) (string, int, error) {
	if offset > len(data) {
		return "", 0, errs.Wrap(errs.ErrMalformedMessage, "offset past end of frame")
	}
	end := bytes.IndexByte(data[offset:], 0)
	if end < 0 {
		return "", 0, errs.Wrap(errs.ErrMalformedMessage, "unterminated string")
	}
	s := string(data[offset : offset+end])
	total := end + (4 - (end % 4))
	next := offset + total
	if next > len(data) {
		return "", 0, errs.Wrap(errs.ErrMalformedMessage, "string padding runs past end of frame")
	}
	return s, next, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func readUint32(data []byte, offset int) (uint32, int, error) {
	if offset+4 > len(data) {
		return 0, 0, errs.Wrap(errs.ErrMalformedMessage, "truncated 4-byte value")
	}
	return binary.BigEndian.Uint32(data[offset : offset+4]), offset + 4, nil
}

func readUint64(data []byte, offset int) (uint64, int, error) {
	if offset+8 > len(data) {
		return 0, 0, errs.Wrap(errs.ErrMalformedMessage, "truncated 8-byte value")
	}
	return binary.BigEndian.Uint64(data[offset : offset+8]), offset + 8, nil
}
