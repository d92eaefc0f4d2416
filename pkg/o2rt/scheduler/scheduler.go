// Package scheduler implements the two-scheduler timing wheel from
// spec.md §4.3 (component C): a fixed-size ring of B=128 buckets indexed
// by tick rate, each holding a timestamp-ordered list, drained one tick at
// a time with lap (cold-restart) detection.
package scheduler

import (
	"math"

	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// BucketCount is the fixed ring size B from spec.md §3.
const BucketCount = 128

// DefaultTickRate is a reasonable default R (ticks per second) when the
// caller doesn't override it via Config.
const DefaultTickRate = 100.0

// Sink receives messages whose time has arrived, either because they were
// scheduled in the past (never entering a bucket) or because advance
// popped them from a bucket.
type Sink interface {
	Deliver(types.Message)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(types.Message)

// Deliver implements Sink.
func (f SinkFunc) Deliver(m types.Message) { f(m) }

// Scheduler is one of the two timing wheels (local or global) described in
// spec.md §3/§4.3.
type Scheduler struct {
	buckets  [BucketCount][]types.Message
	tickRate float64
	lastBin  int
	lastTime types.Timestamp
	live     bool
}

// New creates a scheduler at the given tick rate. live controls whether
// Schedule/Advance accept work: the local scheduler is always live; the
// global scheduler only becomes live once the clock-sync engine reports a
// usable master time (spec.md §4.3).
func New(tickRate float64, live bool) *Scheduler {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	return &Scheduler{tickRate: tickRate, live: live}
}

// SetLive toggles whether the scheduler currently accepts work. The
// global scheduler's clock-sync engine calls this as status crosses the
// LOCAL threshold (spec.md §4.4 invariant 4).
func (s *Scheduler) SetLive(live bool) { s.live = live }

// Live reports whether the scheduler currently accepts scheduling.
func (s *Scheduler) Live() bool { return s.live }

func (s *Scheduler) bin(t types.Timestamp) int {
	b := int(math.Floor(float64(t) * s.tickRate))
	b %= BucketCount
	if b < 0 {
		b += BucketCount
	}
	return b
}

// Schedule enqueues msg. A message already due (time <= now) is handed
// straight to pending instead of entering a bucket — schedule never
// dispatches synchronously (spec.md §4.3, invariant 2).
func (s *Scheduler) Schedule(msg types.Message, now types.Timestamp, pending Sink) error {
	if !msg.Time.IsTimed() {
		return errs.New(errs.KindInvariant, errs.ErrGeneric, "only timed messages may be scheduled")
	}
	if !s.live {
		return errs.ErrClockNotLive
	}
	if msg.Time <= now {
		pending.Deliver(msg)
		return nil
	}
	b := s.bin(msg.Time)
	bucket := s.buckets[b]
	idx := len(bucket)
	for i, m := range bucket {
		if m.Time > msg.Time {
			idx = i
			break
		}
	}
	bucket = append(bucket, types.Message{})
	copy(bucket[idx+1:], bucket[idx:])
	bucket[idx] = msg
	s.buckets[b] = bucket
	return nil
}

// Advance drains every bucket whose messages are now due, from the last
// position up through now's bucket, and delivers them to sink in
// ascending-timestamp order (ties broken by insertion order, per spec.md
// §5 ordering guarantees). If more time has elapsed than the wheel can
// represent in one lap (now - lastTime > B/R), every bucket is scanned so
// no overdue message is missed (spec.md §4.3, §8).
func (s *Scheduler) Advance(now types.Timestamp, sink Sink) {
	if !s.live {
		return
	}
	lapped := s.lastTime != 0 && float64(now-s.lastTime) > float64(BucketCount)/s.tickRate
	if lapped {
		for b := 0; b < BucketCount; b++ {
			s.drainBucket(b, now, sink)
		}
	} else {
		start := s.lastBin + 1
		target := s.bin(now)
		for i := 0; i <= BucketCount; i++ {
			b := (start + i) % BucketCount
			s.drainBucket(b, now, sink)
			if b == target {
				break
			}
		}
	}
	s.lastBin = s.bin(now)
	s.lastTime = now
}

func (s *Scheduler) drainBucket(b int, now types.Timestamp, sink Sink) {
	bucket := s.buckets[b]
	if len(bucket) == 0 {
		return
	}
	i := 0
	for i < len(bucket) && bucket[i].Time <= now {
		i++
	}
	if i == 0 {
		return
	}
	due := bucket[:i]
	remaining := bucket[i:]
	for _, m := range due {
		sink.Deliver(m)
	}
	if len(remaining) == 0 {
		s.buckets[b] = nil
	} else {
		kept := make([]types.Message, len(remaining))
		copy(kept, remaining)
		s.buckets[b] = kept
	}
}

// DiscardMatching removes every bucketed message for which match returns
// true, reporting how many were dropped. Used when a service directory
// entry disappears (spec.md §4.4: "any queued timed messages to it are
// discarded and reported").
func (s *Scheduler) DiscardMatching(match func(types.Message) bool) int {
	discarded := 0
	for b, bucket := range s.buckets {
		if len(bucket) == 0 {
			continue
		}
		kept := bucket[:0]
		for _, m := range bucket {
			if match(m) {
				discarded++
				continue
			}
			kept = append(kept, m)
		}
		if len(kept) == 0 {
			s.buckets[b] = nil
		} else {
			s.buckets[b] = kept
		}
	}
	return discarded
}

// Pending reports how many messages currently sit in buckets, for tests
// and introspection.
func (s *Scheduler) Pending() int {
	n := 0
	for _, b := range s.buckets {
		n += len(b)
	}
	return n
}
