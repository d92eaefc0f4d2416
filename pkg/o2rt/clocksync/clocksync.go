// Package clocksync implements the clock-sync engine: static master
// election, ping/pong round-trip estimation, a sliding-window median
// offset, and monotone-preserving drift smoothing.
package clocksync

import (
	"sort"

	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// Role is this process's part in the clock-sync protocol.
type Role int

const (
	RoleUninitialized Role = iota
	RoleMaster
	RoleClient
)

// GetTimeFn returns the current time in seconds; callers close over
// whatever cookie they need, mirroring the flat API's
// set_clock(gettime_fn, cookie).
type GetTimeFn func() types.Timestamp

// Config holds the calibration constants, exposed so callers can
// override the defaults.
type Config struct {
	WindowSize          int     // H
	EMAConstant         float64 // drift-smoothing blend factor
	DispersionThreshold float64 // max-min RTT must be below this to trust the window
	StepEpsilon         float64 // offset deltas below this blend instead of stepping
}

// DefaultConfig returns the constants this package was tuned against.
func DefaultConfig() Config {
	return Config{
		WindowSize:          5,
		EMAConstant:         0.125,
		DispersionThreshold: 0.015,
		StepEpsilon:         0.002,
	}
}

type sample struct {
	rtt    float64
	offset float64
}

// Engine is the per-process clock-sync state machine.
type Engine struct {
	cfg         Config
	role        Role
	localTime   GetTimeFn
	masterTime  GetTimeFn
	window      []sample
	offset      float64
	haveOffset  bool
	synced      bool
	lastGlobal  types.Timestamp
	outstanding map[uint64]types.Timestamp
	nextPing    uint64
	onJump      func(previous, current float64)
	onSynced    func(bool)
}

// NewClient builds an engine defaulting to Role=Client. Every process
// starts as a client; exactly one later calls SetClock to become master.
func NewClient(localTime GetTimeFn, cfg Config) *Engine {
	return &Engine{
		cfg:         cfg,
		role:        RoleClient,
		localTime:   localTime,
		outstanding: make(map[uint64]types.Timestamp),
	}
}

// SetClock promotes this engine to Role=Master, mirroring the flat API's
// set_clock. Exactly one process per application should call this.
func (e *Engine) SetClock(gettime GetTimeFn) {
	e.role = RoleMaster
	e.masterTime = gettime
	e.synced = true
}

// OnClockJump registers a callback invoked whenever drift correction steps
// instead of blends.
func (e *Engine) OnClockJump(fn func(previous, current float64)) { e.onJump = fn }

// OnSyncedChange registers a callback invoked whenever this engine's
// synced state flips, so the directory and discovery layers can react.
func (e *Engine) OnSyncedChange(fn func(bool)) { e.onSynced = fn }

// Role reports this process's clock-sync role.
func (e *Engine) Role() Role { return e.role }

// IsSynced reports whether global time is currently usable.
func (e *Engine) IsSynced() bool { return e.synced }

// LocalTime returns this process's own monotonic clock.
func (e *Engine) LocalTime() types.Timestamp { return e.localTime() }

// GlobalTime returns the best estimate of master time, holding the
// previous value rather than retrograding if smoothing would otherwise
// move it backwards. ok is false when no global time is available yet.
func (e *Engine) GlobalTime() (types.Timestamp, bool) {
	if e.role == RoleMaster {
		return e.masterTime(), true
	}
	if !e.synced {
		return types.UnknownTime, false
	}
	candidate := e.localTime() + types.Timestamp(e.offset)
	if candidate < e.lastGlobal {
		candidate = e.lastGlobal
	}
	e.lastGlobal = candidate
	return candidate, true
}

// NewPing starts a ping round (client side only): it records the send
// time t0 keyed by a fresh correlation id k, mirroring ping(k).
func (e *Engine) NewPing() (k uint64, t0 types.Timestamp) {
	e.nextPing++
	k = e.nextPing
	t0 = e.localTime()
	e.outstanding[k] = t0
	return k, t0
}

// HandlePingAtMaster answers a client's ping with the current master
// time, mirroring pong(k, t_master) on the master side.
func (e *Engine) HandlePingAtMaster(k uint64) (uint64, types.Timestamp) {
	return k, e.masterTime()
}

// RecordPong folds a pong response into the sliding window: the RTT
// sample is t1-t0 and the offset estimate is t_master - (t0+t1)/2. It
// returns an error only for an unknown/expired k.
func (e *Engine) RecordPong(k uint64, masterTime types.Timestamp) error {
	t0, ok := e.outstanding[k]
	if !ok {
		return errs.New(errs.KindProtocol, errs.ErrGeneric, "pong for unknown ping id")
	}
	delete(e.outstanding, k)
	t1 := e.localTime()

	rtt := float64(t1 - t0)
	off := float64(masterTime) - float64(t0+t1)/2

	e.window = append(e.window, sample{rtt: rtt, offset: off})
	if len(e.window) > e.cfg.WindowSize {
		e.window = e.window[len(e.window)-e.cfg.WindowSize:]
	}

	if len(e.window) == e.cfg.WindowSize && e.dispersionAcceptable() {
		e.applyWindowEstimate()
	}
	return nil
}

func (e *Engine) dispersionAcceptable() bool {
	min, max := e.window[0].rtt, e.window[0].rtt
	for _, s := range e.window[1:] {
		if s.rtt < min {
			min = s.rtt
		}
		if s.rtt > max {
			max = s.rtt
		}
	}
	return (max - min) < e.cfg.DispersionThreshold
}

func (e *Engine) applyWindowEstimate() {
	offsets := make([]float64, len(e.window))
	for i, s := range e.window {
		offsets[i] = s.offset
	}
	sort.Float64s(offsets)
	median := offsets[len(offsets)/2]
	if len(offsets)%2 == 0 {
		median = (offsets[len(offsets)/2-1] + offsets[len(offsets)/2]) / 2
	}

	wasSynced := e.synced

	if !e.haveOffset {
		e.offset = median
		e.haveOffset = true
	} else {
		diff := median - e.offset
		if abs(diff) < e.cfg.StepEpsilon {
			e.offset += diff * e.cfg.EMAConstant
		} else {
			previous := e.offset
			e.offset = median
			if e.onJump != nil {
				e.onJump(previous, e.offset)
			}
		}
	}

	e.synced = true
	if !wasSynced && e.onSynced != nil {
		e.onSynced(true)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// RoundTrip exposes the sliding window's mean and min RTT, mirroring
// roundtrip(&mean, &min). It fails if not yet synced.
func (e *Engine) RoundTrip() (mean float64, min float64, err error) {
	if !e.synced || len(e.window) == 0 {
		return 0, 0, errs.New(errs.KindState, errs.ErrGeneric, "clock not synced")
	}
	min = e.window[0].rtt
	sum := 0.0
	for _, s := range e.window {
		sum += s.rtt
		if s.rtt < min {
			min = s.rtt
		}
	}
	return sum / float64(len(e.window)), min, nil
}
