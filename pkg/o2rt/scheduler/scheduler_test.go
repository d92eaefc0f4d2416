package scheduler

import (
	"testing"

	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

type recorder struct{ order []string }

func (r *recorder) Deliver(m types.Message) { r.order = append(r.order, m.Address) }

func TestSchedulingPastMessageGoesToPendingNotABucket(t *testing.T) {
	s := New(DefaultTickRate, true)
	rec := &recorder{}
	msg := types.Message{Time: types.Timestamp(0.5), Address: "/past"}
	if err := s.Schedule(msg, types.Timestamp(1.0), rec); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no bucket entries, got %d", s.Pending())
	}
	if len(rec.order) != 1 || rec.order[0] != "/past" {
		t.Fatalf("expected immediate delivery via pending sink, got %v", rec.order)
	}
}

func TestOrderingIsTimestampThenInsertionOrder(t *testing.T) {
	s := New(DefaultTickRate, true)
	rec := &recorder{}
	_ = s.Schedule(types.Message{Time: 1.0, Address: "first-1.0"}, 0, rec)
	_ = s.Schedule(types.Message{Time: 1.0, Address: "second-1.0"}, 0, rec)
	_ = s.Schedule(types.Message{Time: 0.9, Address: "only-0.9"}, 0, rec)

	s.Advance(types.Timestamp(1.1), rec)

	want := []string{"only-0.9", "first-1.0", "second-1.0"}
	if len(rec.order) != len(want) {
		t.Fatalf("expected %v, got %v", want, rec.order)
	}
	for i := range want {
		if rec.order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, rec.order)
		}
	}
}

func TestLapDeliversEveryOverdueMessageExactlyOnce(t *testing.T) {
	s := New(DefaultTickRate, true)
	rec := &recorder{}
	s.Advance(types.Timestamp(0.01), rec) // establish lastTime near zero

	for i := 0; i < 5; i++ {
		_ = s.Schedule(types.Message{Time: types.Timestamp(0.02 + float64(i)*0.01), Address: "m"}, 0, rec)
	}

	// Jump far enough that (now - lastTime) > B/R, forcing a full scan.
	farFuture := types.Timestamp(float64(BucketCount)/DefaultTickRate + 10)
	s.Advance(farFuture, rec)

	if len(rec.order) != 5 {
		t.Fatalf("expected all 5 overdue messages delivered exactly once, got %d", len(rec.order))
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no stragglers left behind, got %d", s.Pending())
	}
}

func TestGlobalSchedulerRejectsWorkWhenNotLive(t *testing.T) {
	s := New(DefaultTickRate, false)
	rec := &recorder{}
	err := s.Schedule(types.Message{Time: 5.0, Address: "/x"}, 0, rec)
	if err == nil {
		t.Fatalf("expected scheduling against a non-live clock to fail")
	}
}
