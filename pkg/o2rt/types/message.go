// Package types holds the data model shared by every o2rt subsystem: the
// timestamp, the sealed message, its typed argument values, and process/peer
// identifiers.
package types

import (
	"strings"
)

// Timestamp is a finite, non-negative number of seconds. Zero means
// "deliver immediately, ignore clock state". Negative values are
// reserved as sentinels for "unknown global time" and never appear on a
// sealed message.
type Timestamp float64

// Immediate is the distinguished "deliver now" timestamp.
const Immediate Timestamp = 0

// UnknownTime is the sentinel used internally for "no global time yet".
const UnknownTime Timestamp = -1

// IsTimed reports whether t requires scheduling rather than immediate
// delivery.
func (t Timestamp) IsTimed() bool { return t > 0 }

// TypeCode enumerates the single-character argument type tags.
type TypeCode byte

const (
	TypeInt32    TypeCode = 'i'
	TypeInt64    TypeCode = 'h'
	TypeFloat32  TypeCode = 'f'
	TypeFloat64  TypeCode = 'd'
	TypeTime     TypeCode = 't'
	TypeString   TypeCode = 's'
	TypeSymbol   TypeCode = 'S'
	TypeChar     TypeCode = 'c'
	TypeMIDI     TypeCode = 'm'
	TypeBlob     TypeCode = 'b'
	TypeTrue     TypeCode = 'T'
	TypeFalse    TypeCode = 'F'
	TypeBool     TypeCode = 'B'
	TypeNil      TypeCode = 'N'
	TypeInfinite TypeCode = 'I'
)

// NoTypeChecking is the sentinel type descriptor meaning "accept anything",
// used by trie nodes that were installed without a required type string.
const NoTypeChecking = ""

// Value is a single decoded argument. Exactly one of the typed fields is
// meaningful, selected by Code; Bool additionally backs TypeTrue/TypeFalse
// (always true/false respectively) and TypeBool (0/1 encoded).
type Value struct {
	Code  TypeCode
	I32   int32
	I64   int64
	F32   float32
	F64   float64
	Time  Timestamp
	Str   string
	Blob  []byte
	Bool  bool
	MIDI  [4]byte
}

// Message is an immutable record once returned by Seal: address, type
// descriptor, arguments and a delivery timestamp. Nothing in this package
// mutates a Message after construction; callers must not retain a Message
// past the handler call that received it.
type Message struct {
	Time    Timestamp
	Address string
	Args    []Value
}

// TypeTag returns the single-character type descriptor string for the
// message's arguments, in order.
func (m Message) TypeTag() string {
	var b strings.Builder
	for _, a := range m.Args {
		b.WriteByte(byte(a.Code))
	}
	return b.String()
}

// IsPattern reports whether address contains OSC pattern metacharacters
// that must be interpreted at dispatch time. A leading '!' asserts "no
// pattern characters" and always answers false.
func IsPattern(address string) bool {
	if strings.HasPrefix(address, "!") {
		return false
	}
	return strings.ContainsAny(address, "*?[]{}")
}

// Segments splits a path on '/', dropping the leading '!' marker and any
// empty leading segment produced by a leading '/'.
func Segments(address string) []string {
	trimmed := strings.TrimPrefix(address, "!")
	trimmed = strings.TrimPrefix(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// ServiceName returns the first path segment, which names the service
// root a message is addressed to.
func ServiceName(address string) string {
	segs := Segments(address)
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}
