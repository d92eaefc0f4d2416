package o2rt

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/trie"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

func resetSingleton(t *testing.T) {
	t.Helper()
	mu.Lock()
	leftover := inst
	inst = nil
	mu.Unlock()
	if leftover != nil {
		leftover.Finish()
	}
	t.Cleanup(func() {
		mu.Lock()
		leftover := inst
		inst = nil
		mu.Unlock()
		if leftover != nil {
			leftover.Finish()
		}
	})
}

func TestEveryOperationFailsBeforeInitialize(t *testing.T) {
	resetSingleton(t)

	if err := AddService("svc"); err != errs.ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if _, err := LocalTime(); err != errs.ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := Finish(); err != errs.ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	resetSingleton(t)
	defer goleak.VerifyNone(t)

	if err := Initialize("test-app-" + t.Name()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := Initialize("test-app-" + t.Name()); err != errs.ErrAlreadyInit {
		t.Fatalf("expected ErrAlreadyInit on double Initialize, got %v", err)
	}
	if err := Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestFlatAPISendReachesRegisteredHandler(t *testing.T) {
	resetSingleton(t)
	defer goleak.VerifyNone(t)

	if err := Initialize("test-app-" + t.Name()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Finish()

	if err := AddService("greeter"); err != nil {
		t.Fatalf("AddService: %v", err)
	}

	var got string
	handler := func(msg *types.Message, cookie interface{}) error {
		got = msg.Args[0].Str
		return nil
	}
	if err := AddMethod("/greeter/hello", "s", trie.Handler(handler), nil, false, false); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	if err := Send("/greeter/hello", types.Immediate, "s", "world"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "world" {
		t.Fatalf("expected handler to observe %q, got %q", "world", got)
	}
}

func TestCodeTranslatesErrorsToReturnCodes(t *testing.T) {
	if Code(nil) != errs.Success {
		t.Fatalf("expected Success for nil error")
	}
	if Code(errs.ErrServiceMissing) != errs.ErrNoService {
		t.Fatalf("expected ErrNoService, got %v", Code(errs.ErrServiceMissing))
	}
}
