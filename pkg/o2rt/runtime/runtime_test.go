package runtime

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/go-o2rt/pkg/o2rt/directory"
	"github.com/jabolina/go-o2rt/pkg/o2rt/trie"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

func newTestRuntime(t *testing.T, app string) *Runtime {
	t.Helper()
	cfg := DefaultConfig(app)
	rt, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Finish(); err != nil {
			t.Errorf("Finish: %v", err)
		}
	})
	return rt
}

func TestAddServiceThenAddMethodDeliversLocally(t *testing.T) {
	defer goleak.VerifyNone(t)
	rt := newTestRuntime(t, "test-app-"+t.Name())

	if err := rt.AddService("chat"); err != nil {
		t.Fatalf("AddService: %v", err)
	}

	var got types.Message
	handler := func(msg *types.Message, cookie interface{}) error {
		got = *msg
		return nil
	}
	if err := rt.AddMethod("/chat/text", "s", trie.Handler(handler), nil, false, false); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	if err := rt.Send("/chat/text", types.Immediate, "s", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.Address != "/chat/text" || len(got.Args) != 1 || got.Args[0].Str != "hello" {
		t.Fatalf("handler did not see the expected message: %+v", got)
	}
}

func TestAddMethodBeforeAddServiceFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	rt := newTestRuntime(t, "test-app-"+t.Name())

	handler := func(msg *types.Message, cookie interface{}) error { return nil }
	if err := rt.AddMethod("/nosuch/path", "", trie.Handler(handler), nil, false, false); err == nil {
		t.Fatalf("expected error installing a method under an unregistered service")
	}
}

func TestReentrantSendFromHandlerLandsOnPendingFIFO(t *testing.T) {
	defer goleak.VerifyNone(t)
	rt := newTestRuntime(t, "test-app-"+t.Name())

	if err := rt.AddService("pingpong"); err != nil {
		t.Fatalf("AddService: %v", err)
	}

	var calls []string
	onPing := func(msg *types.Message, cookie interface{}) error {
		calls = append(calls, "ping")
		if err := rt.Send("/pingpong/pong", types.Immediate, ""); err != nil {
			t.Errorf("reentrant send: %v", err)
		}
		return nil
	}
	onPong := func(msg *types.Message, cookie interface{}) error {
		calls = append(calls, "pong")
		return nil
	}
	if err := rt.AddMethod("/pingpong/ping", "", trie.Handler(onPing), nil, false, false); err != nil {
		t.Fatalf("AddMethod ping: %v", err)
	}
	if err := rt.AddMethod("/pingpong/pong", "", trie.Handler(onPong), nil, false, false); err != nil {
		t.Fatalf("AddMethod pong: %v", err)
	}

	if err := rt.Send("/pingpong/ping", types.Immediate, ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// The reentrant send against /pingpong/pong is only queued by route(),
	// not delivered, until something drains rt.pending.
	if len(calls) != 1 || calls[0] != "ping" {
		t.Fatalf("expected only ping to have fired synchronously, got %v", calls)
	}

	rt.drainPending()
	if len(calls) != 2 || calls[1] != "pong" {
		t.Fatalf("expected pong to fire once pending was drained, got %v", calls)
	}
}

func TestStatusReflectsServiceKind(t *testing.T) {
	defer goleak.VerifyNone(t)
	rt := newTestRuntime(t, "test-app-"+t.Name())

	if err := rt.AddService("local_service"); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	if got := rt.Status("local_service"); got != directory.LocalNotime {
		t.Fatalf("expected LocalNotime before clock sync, got %v", got)
	}

	rt.SetClock(func() types.Timestamp { return rt.localNow() })
	if got := rt.Status("local_service"); got != directory.Local {
		t.Fatalf("expected Local after becoming clock master, got %v", got)
	}
}

func TestScheduleLocalDeliversOnAdvance(t *testing.T) {
	defer goleak.VerifyNone(t)
	rt := newTestRuntime(t, "test-app-"+t.Name())

	if err := rt.AddService("timed"); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	fired := make(chan struct{}, 1)
	handler := func(msg *types.Message, cookie interface{}) error { fired <- struct{}{}; return nil }
	if err := rt.AddMethod("/timed/tick", "", trie.Handler(handler), nil, false, false); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	due := rt.localNow() + types.Timestamp(0.01)
	msg := types.Message{Time: due, Address: "/timed/tick"}
	if err := rt.Schedule(SchedulerLocal, msg); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := rt.Poll(); err != nil {
			t.Fatalf("Poll: %v", err)
		}
		select {
		case <-fired:
			return
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("timed message never fired")
}

func TestFinishIsIdempotentlyRejectedWhenAlreadyStopped(t *testing.T) {
	rt, err := New(DefaultConfig("test-app-" + t.Name()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rt.Finish(); err != nil {
		t.Fatalf("first Finish: %v", err)
	}
	if err := rt.Finish(); err == nil {
		t.Fatalf("expected second Finish to report not-running")
	}
}
