package codec

import (
	"testing"

	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

func TestBuildSealExtractRoundTrip(t *testing.T) {
	msg := StartBuild().
		AddInt32(42).
		AddFloat64(3.14).
		AddString("hello").
		AddBool(true).
		Seal(types.Immediate, "/chat/text")

	if msg.TypeTag() != "idsB" {
		t.Fatalf("unexpected type tag: %q", msg.TypeTag())
	}

	ex := StartExtract(&msg)
	if v, ok := ex.GetNext(types.TypeInt32); !ok || v.I32 != 42 {
		t.Fatalf("expected int32 42, got %+v ok=%v", v, ok)
	}
	if v, ok := ex.GetNext(types.TypeFloat64); !ok || v.F64 != 3.14 {
		t.Fatalf("expected float64 3.14, got %+v ok=%v", v, ok)
	}
	if v, ok := ex.GetNext(types.TypeString); !ok || v.Str != "hello" {
		t.Fatalf("expected string hello, got %+v ok=%v", v, ok)
	}
	if v, ok := ex.GetNext(types.TypeBool); !ok || v.Bool != true {
		t.Fatalf("expected bool true, got %+v ok=%v", v, ok)
	}
	if _, ok := ex.GetNext(types.TypeInt32); ok {
		t.Fatalf("expected exhausted extractor to report absence")
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	msg := StartBuild().
		AddInt32(7).
		AddString("ping").
		AddBlob([]byte{1, 2, 3}).
		AddTimestamp(types.Timestamp(123.5)).
		Seal(types.Timestamp(123.5), "/osc_in/ping")

	data, err := Pack(msg)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	if len(data)%4 != 0 {
		t.Fatalf("packed frame not 4-byte aligned: %d", len(data))
	}

	got, err := Unpack(data)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if got.Address != msg.Address {
		t.Fatalf("address mismatch: %q vs %q", got.Address, msg.Address)
	}
	if got.TypeTag() != msg.TypeTag() {
		t.Fatalf("type tag mismatch: %q vs %q", got.TypeTag(), msg.TypeTag())
	}
	if got.Args[0].I32 != 7 {
		t.Fatalf("int32 mismatch: %+v", got.Args[0])
	}
	if got.Args[1].Str != "ping" {
		t.Fatalf("string mismatch: %+v", got.Args[1])
	}
	if string(got.Args[2].Blob) != "\x01\x02\x03" {
		t.Fatalf("blob mismatch: %+v", got.Args[2])
	}
}

func TestUnpackRejectsMissingCommaPrefix(t *testing.T) {
	msg := StartBuild().AddInt32(1).Seal(types.Immediate, "/a")
	data, _ := Pack(msg)
	// Corrupt the comma to break the type descriptor.
	addrEnd := 0
	for data[addrEnd] != 0 {
		addrEnd++
	}
	tagStart := addrEnd + paddingLength(addrEnd)
	data[tagStart] = 'x'
	if _, err := Unpack(data); err == nil {
		t.Fatalf("expected malformed-message error")
	}
}

func TestCoercionTruncatesAndWidens(t *testing.T) {
	msg := StartBuild().AddFloat32(3.5).AddInt32(2).Seal(types.Immediate, "/syn/a/x")
	ex := StartExtract(&msg)

	v, ok := ex.GetNext(types.TypeInt32)
	if !ok || v.I32 != 3 {
		t.Fatalf("expected truncated int32 3, got %+v ok=%v", v, ok)
	}
	v, ok = ex.GetNext(types.TypeFloat64)
	if !ok || v.F64 != 2.0 {
		t.Fatalf("expected widened float64 2.0, got %+v ok=%v", v, ok)
	}
}

func TestNilAndInfinitumNeverCoerce(t *testing.T) {
	if _, ok := Coerce(types.Value{Code: types.TypeNil}, types.TypeInt32); ok {
		t.Fatalf("nil must not coerce to int32")
	}
	if _, ok := Coerce(types.Value{Code: types.TypeInfinite}, types.TypeFloat64); ok {
		t.Fatalf("infinitum must not coerce to float64")
	}
	if _, ok := Coerce(types.Value{Code: types.TypeNil}, types.TypeNil); !ok {
		t.Fatalf("nil must coerce to itself")
	}
}
