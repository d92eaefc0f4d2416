package osc

import (
	"time"

	gosc "github.com/hypebeast/go-osc/osc"

	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// timetagToTimestamp converts an OSC time tag into an internal timestamp.
// The OSC convention's fixed-point timetag is already carried as a
// time.Time by the gateway dependency, so the conversion is mechanical
// (spec.md §4.1 "implementation is free to also accept OSC fixed-point
// timetags on the OSC gateway path; conversion is mechanical").
func timetagToTimestamp(tag gosc.Timetag) types.Timestamp {
	return types.Timestamp(float64(tag.Time().UnixNano()) / 1e9)
}

// timestampToTimetag is the inverse conversion, used when a 't' argument
// is forwarded to an OSC delegate.
func timestampToTimetag(t types.Timestamp) gosc.Timetag {
	sec := int64(t)
	nsec := int64((float64(t) - float64(sec)) * 1e9)
	return *gosc.NewTimetag(time.Unix(sec, nsec))
}

// fromOSCArg maps a decoded OSC argument onto an internal Value. Unknown
// argument types decode to nil per §4.1's type alphabet and are treated
// as TypeNil.
func fromOSCArg(a interface{}) types.Value {
	switch v := a.(type) {
	case int32:
		return types.Value{Code: types.TypeInt32, I32: v}
	case int64:
		return types.Value{Code: types.TypeInt64, I64: v}
	case float32:
		return types.Value{Code: types.TypeFloat32, F32: v}
	case float64:
		return types.Value{Code: types.TypeFloat64, F64: v}
	case string:
		return types.Value{Code: types.TypeString, Str: v}
	case bool:
		if v {
			return types.Value{Code: types.TypeTrue, Bool: true}
		}
		return types.Value{Code: types.TypeFalse, Bool: false}
	case []byte:
		return types.Value{Code: types.TypeBlob, Blob: v}
	case gosc.Timetag:
		return types.Value{Code: types.TypeTime, Time: timetagToTimestamp(v)}
	default:
		return types.Value{Code: types.TypeNil}
	}
}

// toOSCArg is the inverse of fromOSCArg, used when forwarding internal
// messages out to an OSC delegate. N and I have no OSC-argument
// representation in the upstream dependency's type set and are dropped
// with a Protocol-kind error, matching the taxonomy's "malformed" policy
// for untranslatable content (spec.md §7).
func toOSCArg(v types.Value) (interface{}, error) {
	switch v.Code {
	case types.TypeInt32, types.TypeChar:
		return v.I32, nil
	case types.TypeInt64:
		return v.I64, nil
	case types.TypeFloat32:
		return v.F32, nil
	case types.TypeFloat64:
		return v.F64, nil
	case types.TypeTime:
		return timestampToTimetag(v.Time), nil
	case types.TypeString, types.TypeSymbol:
		return v.Str, nil
	case types.TypeBlob:
		return v.Blob, nil
	case types.TypeTrue:
		return true, nil
	case types.TypeFalse:
		return false, nil
	case types.TypeBool:
		return v.Bool, nil
	case types.TypeMIDI:
		return v.MIDI[:], nil
	default:
		return nil, errs.Wrap(errs.ErrMalformedMessage, "argument type has no OSC representation")
	}
}
