// Package codec implements the message builder/extractor, the coercion
// matrix, and the OSC-style wire pack/unpack for o2rt messages.
package codec

import (
	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// Builder accumulates typed arguments before Seal produces an immutable
// Message. Builder state is per-caller; since the runtime is
// single-threaded, a single Builder per goroutine suffices.
type Builder struct {
	args []types.Value
}

// StartBuild returns a fresh Builder, mirroring the flat API's start_build.
func StartBuild() *Builder {
	return &Builder{}
}

func (b *Builder) AddInt32(v int32) *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeInt32, I32: v})
	return b
}

func (b *Builder) AddInt64(v int64) *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeInt64, I64: v})
	return b
}

func (b *Builder) AddFloat32(v float32) *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeFloat32, F32: v})
	return b
}

func (b *Builder) AddFloat64(v float64) *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeFloat64, F64: v})
	return b
}

func (b *Builder) AddTimestamp(v types.Timestamp) *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeTime, Time: v})
	return b
}

func (b *Builder) AddString(v string) *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeString, Str: v})
	return b
}

func (b *Builder) AddSymbol(v string) *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeSymbol, Str: v})
	return b
}

func (b *Builder) AddChar(v byte) *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeChar, I32: int32(v)})
	return b
}

func (b *Builder) AddMIDI(packet [4]byte) *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeMIDI, MIDI: packet})
	return b
}

func (b *Builder) AddBlob(v []byte) *Builder {
	cp := make([]byte, len(v))
	copy(cp, v)
	b.args = append(b.args, types.Value{Code: types.TypeBlob, Blob: cp})
	return b
}

func (b *Builder) AddTrue() *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeTrue, Bool: true})
	return b
}

func (b *Builder) AddFalse() *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeFalse, Bool: false})
	return b
}

func (b *Builder) AddBool(v bool) *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeBool, Bool: v})
	return b
}

func (b *Builder) AddNil() *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeNil})
	return b
}

func (b *Builder) AddInfinitum() *Builder {
	b.args = append(b.args, types.Value{Code: types.TypeInfinite})
	return b
}

// Seal produces the immutable Message, mirroring the flat API's
// seal(time, address). The builder must not be reused afterwards.
func (b *Builder) Seal(time types.Timestamp, address string) types.Message {
	return types.Message{
		Time:    time,
		Address: address,
		Args:    b.args,
	}
}

// Assemble builds the argument list for a send(path, time, typestr, args...)
// style call: one positional Go value per character of typeTag, structurally
// matched the way the flat API's strongly typed builder replaces the
// original's variadic marker arguments (Design Note "Macro-based marker
// arguments"). N and I carry no Go value and are skipped in args.
func Assemble(typeTag string, args []interface{}) ([]types.Value, error) {
	b := StartBuild()
	ai := 0
	next := func() (interface{}, error) {
		if ai >= len(args) {
			return nil, errs.Wrap(errs.ErrMalformedMessage, "too few arguments for type descriptor")
		}
		v := args[ai]
		ai++
		return v, nil
	}
	for _, c := range []byte(typeTag) {
		switch types.TypeCode(c) {
		case types.TypeInt32:
			v, err := next()
			if err != nil {
				return nil, err
			}
			i, ok := v.(int32)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected int32 argument")
			}
			b.AddInt32(i)
		case types.TypeInt64:
			v, err := next()
			if err != nil {
				return nil, err
			}
			i, ok := v.(int64)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected int64 argument")
			}
			b.AddInt64(i)
		case types.TypeFloat32:
			v, err := next()
			if err != nil {
				return nil, err
			}
			f, ok := v.(float32)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected float32 argument")
			}
			b.AddFloat32(f)
		case types.TypeFloat64:
			v, err := next()
			if err != nil {
				return nil, err
			}
			f, ok := v.(float64)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected float64 argument")
			}
			b.AddFloat64(f)
		case types.TypeTime:
			v, err := next()
			if err != nil {
				return nil, err
			}
			t, ok := v.(types.Timestamp)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected timestamp argument")
			}
			b.AddTimestamp(t)
		case types.TypeString:
			v, err := next()
			if err != nil {
				return nil, err
			}
			s, ok := v.(string)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected string argument")
			}
			b.AddString(s)
		case types.TypeSymbol:
			v, err := next()
			if err != nil {
				return nil, err
			}
			s, ok := v.(string)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected symbol argument")
			}
			b.AddSymbol(s)
		case types.TypeChar:
			v, err := next()
			if err != nil {
				return nil, err
			}
			ch, ok := v.(byte)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected char argument")
			}
			b.AddChar(ch)
		case types.TypeMIDI:
			v, err := next()
			if err != nil {
				return nil, err
			}
			m, ok := v.([4]byte)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected midi argument")
			}
			b.AddMIDI(m)
		case types.TypeBlob:
			v, err := next()
			if err != nil {
				return nil, err
			}
			blob, ok := v.([]byte)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected blob argument")
			}
			b.AddBlob(blob)
		case types.TypeBool:
			v, err := next()
			if err != nil {
				return nil, err
			}
			bo, ok := v.(bool)
			if !ok {
				return nil, errs.Wrap(errs.ErrMalformedMessage, "expected bool argument")
			}
			b.AddBool(bo)
		case types.TypeTrue:
			b.AddTrue()
		case types.TypeFalse:
			b.AddFalse()
		case types.TypeNil:
			b.AddNil()
		case types.TypeInfinite:
			b.AddInfinitum()
		default:
			return nil, errs.Wrap(errs.ErrMalformedMessage, "unknown type descriptor character")
		}
	}
	return b.args, nil
}
