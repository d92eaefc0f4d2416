package codec

import (
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// numeric reports whether code is one of the freely-coercible numeric
// types.
func numeric(code types.TypeCode) bool {
	switch code {
	case types.TypeInt32, types.TypeInt64, types.TypeFloat32, types.TypeFloat64,
		types.TypeTime, types.TypeChar, types.TypeBool:
		return true
	default:
		return false
	}
}

func asFloat64(v types.Value) float64 {
	switch v.Code {
	case types.TypeInt32:
		return float64(v.I32)
	case types.TypeInt64:
		return float64(v.I64)
	case types.TypeFloat32:
		return float64(v.F32)
	case types.TypeFloat64:
		return v.F64
	case types.TypeTime:
		return float64(v.Time)
	case types.TypeChar:
		return float64(v.I32)
	case types.TypeBool:
		if v.Bool {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Coerce converts v to the requested target type code: numeric types
// wrap/saturate per ANSI conversion rules (Go's own numeric conversions
// already do this), T/F coerce to/from B, s coerces to/from S, and N/I
// coerce only to themselves. ok is false when no coercion rule applies.
func Coerce(v types.Value, target types.TypeCode) (types.Value, bool) {
	if v.Code == target {
		return v, true
	}

	switch target {
	case types.TypeNil, types.TypeInfinite:
		return types.Value{}, false

	case types.TypeString:
		if v.Code == types.TypeSymbol {
			return types.Value{Code: types.TypeString, Str: v.Str}, true
		}
		return types.Value{}, false

	case types.TypeSymbol:
		if v.Code == types.TypeString {
			return types.Value{Code: types.TypeSymbol, Str: v.Str}, true
		}
		return types.Value{}, false

	case types.TypeBool:
		switch v.Code {
		case types.TypeTrue:
			return types.Value{Code: types.TypeBool, Bool: true}, true
		case types.TypeFalse:
			return types.Value{Code: types.TypeBool, Bool: false}, true
		}
		if numeric(v.Code) {
			return types.Value{Code: types.TypeBool, Bool: asFloat64(v) != 0}, true
		}
		return types.Value{}, false

	case types.TypeTrue:
		if v.Code == types.TypeBool && v.Bool {
			return types.Value{Code: types.TypeTrue, Bool: true}, true
		}
		return types.Value{}, false

	case types.TypeFalse:
		if v.Code == types.TypeBool && !v.Bool {
			return types.Value{Code: types.TypeFalse, Bool: false}, true
		}
		return types.Value{}, false
	}

	if v.Code == types.TypeNil || v.Code == types.TypeInfinite {
		return types.Value{}, false
	}
	if !numeric(target) || !numeric(v.Code) {
		return types.Value{}, false
	}

	f := asFloat64(v)
	switch target {
	case types.TypeInt32:
		return types.Value{Code: types.TypeInt32, I32: int32(f)}, true
	case types.TypeInt64:
		return types.Value{Code: types.TypeInt64, I64: int64(f)}, true
	case types.TypeFloat32:
		return types.Value{Code: types.TypeFloat32, F32: float32(f)}, true
	case types.TypeFloat64:
		return types.Value{Code: types.TypeFloat64, F64: f}, true
	case types.TypeTime:
		return types.Value{Code: types.TypeTime, Time: types.Timestamp(f)}, true
	case types.TypeChar:
		return types.Value{Code: types.TypeChar, I32: int32(byte(int64(f)))}, true
	default:
		return types.Value{}, false
	}
}
