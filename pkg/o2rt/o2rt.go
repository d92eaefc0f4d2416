// Package o2rt exposes the flat public API from spec.md §6 as free
// functions over a package-level singleton, mirroring the original
// process-wide-runtime design the rest of this module implements as
// pkg/o2rt/runtime.Runtime. Only Initialize, InitializeWithConfig and
// Finish set the singleton slot itself, guarded by mu; every other function reads the
// slot once and calls straight through to the Runtime method, so this
// package's lock never overlaps a call that might re-enter (see the
// non-reentrancy note on runtime.Runtime) — it only ever protects the
// swap of the pointer.
package o2rt

import (
	"sync"

	"github.com/jabolina/go-o2rt/pkg/o2rt/clocksync"
	"github.com/jabolina/go-o2rt/pkg/o2rt/codec"
	"github.com/jabolina/go-o2rt/pkg/o2rt/directory"
	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/runtime"
	"github.com/jabolina/go-o2rt/pkg/o2rt/trie"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

var (
	mu   sync.Mutex
	inst *runtime.Runtime
)

// MallocFn and FreeFn mirror the allocator hooks from spec.md §6. They
// are accepted and retained for API completeness (Design Note "allocator
// hooks are an external collaborator, out of scope for this module") but
// are never invoked: Go's garbage collector owns every allocation this
// module makes, so there is nothing for them to back.
type MallocFn func(size int) []byte
type FreeFn func([]byte)

var (
	mallocHook MallocFn
	freeHook   FreeFn
)

// Memory installs allocator hooks, mirroring memory(malloc_fn, free_fn).
// Must be called before Initialize, per §6.
func Memory(malloc MallocFn, free FreeFn) error {
	mu.Lock()
	defer mu.Unlock()
	if inst != nil {
		return errs.ErrAlreadyInit
	}
	mallocHook, freeHook = malloc, free
	return nil
}

// Initialize creates the process-wide singleton, mirroring
// initialize(app_name).
func Initialize(appName string) error {
	mu.Lock()
	defer mu.Unlock()
	if inst != nil {
		return errs.ErrAlreadyInit
	}
	rt, err := runtime.New(runtime.DefaultConfig(appName))
	if err != nil {
		return err
	}
	inst = rt
	return nil
}

// InitializeWithConfig is Initialize's configurable counterpart, for
// callers that need non-default ports or timing (not part of the §6
// surface, but every field of runtime.Config is otherwise unreachable
// from this package).
func InitializeWithConfig(cfg runtime.Config) error {
	mu.Lock()
	defer mu.Unlock()
	if inst != nil {
		return errs.ErrAlreadyInit
	}
	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}
	inst = rt
	return nil
}

// Finish tears down the singleton, mirroring finish().
func Finish() error {
	mu.Lock()
	defer mu.Unlock()
	if inst == nil {
		return errs.ErrNotRunning
	}
	err := inst.Finish()
	inst = nil
	mallocHook, freeHook = nil, nil
	return err
}

func current() (*runtime.Runtime, error) {
	mu.Lock()
	rt := inst
	mu.Unlock()
	if rt == nil {
		return nil, errs.ErrNotRunning
	}
	return rt, nil
}

// AddService registers a local service root, mirroring add_service(name).
func AddService(name string) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.AddService(name)
}

// AddMethod installs a handler, mirroring
// add_method(path, types, handler, cookie, coerce, parse).
func AddMethod(path, typeSpec string, handler trie.Handler, cookie interface{}, coerce, parse bool) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.AddMethod(path, typeSpec, handler, cookie, coerce, parse)
}

// RemoveMethod deletes a previously installed handler.
func RemoveMethod(path string) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.RemoveMethod(path)
}

// Status reports a service's observable status, mirroring status(service).
func Status(service string) (directory.Status, error) {
	rt, err := current()
	if err != nil {
		return directory.Fail, err
	}
	return rt.Status(service), nil
}

// Send builds and routes a best-effort message, mirroring
// send(path, time, typestr, args...).
func Send(address string, when types.Timestamp, typeTag string, args ...interface{}) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.Send(address, when, typeTag, args...)
}

// SendCmd is Send's reliable counterpart, mirroring send_cmd.
func SendCmd(address string, when types.Timestamp, typeTag string, args ...interface{}) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.SendCmd(address, when, typeTag, args...)
}

// SendMessage takes ownership of a fully built message and routes it,
// mirroring send_message(msg, reliable?).
func SendMessage(msg types.Message, reliable bool) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.SendMessage(msg, reliable)
}

// StartSend returns a fresh incremental builder, mirroring start_send.
// add_* and finish_send[_cmd] are the Builder's own Add* methods and
// Seal, followed by SendMessage — this package does not reimplement
// them, since codec.Builder already is the incremental build API.
func StartSend() *codec.Builder {
	return codec.StartBuild()
}

// StartExtract begins incremental argument extraction, mirroring
// start_extract/get_next(code).
func StartExtract(msg *types.Message) *codec.Extractor {
	return codec.StartExtract(msg)
}

// Schedule directly enqueues a pre-built timed message, mirroring
// schedule(scheduler, msg).
func Schedule(kind runtime.SchedulerKind, msg types.Message) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.Schedule(kind, msg)
}

// Poll drives the runtime one step, mirroring poll().
func Poll() error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.Poll()
}

// Run drives Poll at rate Hz until RequestStop is called, mirroring
// run(rate_hz).
func Run(rateHz float64) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.Run(rateHz)
}

// RequestStop signals Run's loop to exit after its current iteration.
func RequestStop() error {
	rt, err := current()
	if err != nil {
		return err
	}
	rt.RequestStop()
	return nil
}

// SetClock promotes this process to clock-sync master, mirroring
// set_clock(gettime_fn, cookie). The cookie parameter from §6 has no
// referent in an idiomatic Go closure-based callback and is dropped;
// callers close over whatever state gettime needs.
func SetClock(gettime clocksync.GetTimeFn) error {
	rt, err := current()
	if err != nil {
		return err
	}
	rt.SetClock(gettime)
	return nil
}

// GetTime returns the best estimate of master time, mirroring get_time().
func GetTime() (types.Timestamp, bool, error) {
	rt, err := current()
	if err != nil {
		return 0, false, err
	}
	t, ok := rt.GetTime()
	return t, ok, nil
}

// LocalTime returns this process's own clock, mirroring local_time().
func LocalTime() (types.Timestamp, error) {
	rt, err := current()
	if err != nil {
		return 0, err
	}
	return rt.LocalTime(), nil
}

// RoundTrip exposes the clock-sync RTT window, mirroring
// roundtrip(&mean, &min).
func RoundTrip() (mean float64, min float64, err error) {
	rt, err := current()
	if err != nil {
		return 0, 0, err
	}
	return rt.RoundTrip()
}

// CreateOscPort opens an inbound OSC bridge, mirroring
// create_osc_port(service, port, udp?).
func CreateOscPort(service string, port int, udp bool) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.CreateOscPort(service, port, udp)
}

// DelegateToOsc registers an outbound OSC bridge, mirroring
// delegate_to_osc(service, ip, port, reliable?).
func DelegateToOsc(service, ip string, port int, reliable bool) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.DelegateToOsc(service, ip, port, reliable)
}

// SendOscMessage sends directly to an OSC delegate, mirroring
// send_osc_message(service, path, typestr, args...).
func SendOscMessage(service, path, typeTag string, args ...interface{}) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.SendOscMessage(service, path, typeTag, args...)
}

// Code translates any error returned by this package's functions into the
// flat API's return-code table, mirroring §6/§7's "all operations report
// via this code" contract for callers that want numeric codes instead of
// Go errors.
func Code(err error) errs.Code {
	return errs.ToCode(err)
}
