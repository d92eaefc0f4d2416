package osc

import (
	"testing"
	"time"

	gosc "github.com/hypebeast/go-osc/osc"

	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

func TestTimetagTimestampRoundTrip(t *testing.T) {
	want := time.Now().Truncate(time.Second)
	tag := gosc.NewTimetag(want)

	ts := timetagToTimestamp(*tag)
	back := timestampToTimetag(ts)

	if back.Time().Unix() != want.Unix() {
		t.Fatalf("round trip drifted: want %v got %v", want, back.Time())
	}
}

func TestFromOSCArgCoversEveryWireType(t *testing.T) {
	cases := []struct {
		in   interface{}
		want types.TypeCode
	}{
		{int32(7), types.TypeInt32},
		{int64(7), types.TypeInt64},
		{float32(1.5), types.TypeFloat32},
		{float64(1.5), types.TypeFloat64},
		{"hi", types.TypeString},
		{true, types.TypeTrue},
		{false, types.TypeFalse},
		{[]byte{1, 2}, types.TypeBlob},
	}
	for _, c := range cases {
		got := fromOSCArg(c.in)
		if got.Code != c.want {
			t.Fatalf("fromOSCArg(%#v): want code %v got %v", c.in, c.want, got.Code)
		}
	}

	if got := fromOSCArg(struct{}{}); got.Code != types.TypeNil {
		t.Fatalf("unknown arg should decode to TypeNil, got %v", got.Code)
	}
}

func TestToOSCArgRoundTripsKnownTypes(t *testing.T) {
	v := types.Value{Code: types.TypeInt32, I32: 9}
	out, err := toOSCArg(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(int32) != 9 {
		t.Fatalf("expected 9, got %v", out)
	}
}

func TestToOSCArgRejectsUnrepresentableTypes(t *testing.T) {
	v := types.Value{Code: types.TypeNil}
	if _, err := toOSCArg(v); err == nil {
		t.Fatalf("expected error for a type with no OSC representation")
	}
	v = types.Value{Code: types.TypeInfinite}
	if _, err := toOSCArg(v); err == nil {
		t.Fatalf("expected error for infinitum, which OSC cannot carry")
	}
}
