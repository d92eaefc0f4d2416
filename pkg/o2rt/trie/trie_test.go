package trie

import (
	"testing"

	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

func noop(*types.Message, interface{}) error { return nil }

func TestPatternDispatchInvokesAllMatches(t *testing.T) {
	tr := New()
	var hitA, hitB int
	_ = tr.Insert("/syn/a/x", types.NoTypeChecking, func(m *types.Message, c interface{}) error {
		hitA++
		return nil
	}, nil, false, false)
	_ = tr.Insert("/syn/b/x", types.NoTypeChecking, func(m *types.Message, c interface{}) error {
		hitB++
		return nil
	}, nil, false, false)

	msg := types.Message{Address: "/syn/*/x"}
	if n := tr.Dispatch(&msg); n != 2 {
		t.Fatalf("expected 2 handlers invoked, got %d", n)
	}
	if hitA != 1 || hitB != 1 {
		t.Fatalf("expected both handlers to fire once, got a=%d b=%d", hitA, hitB)
	}
}

func TestPatternDispatchVisitsSiblingsInInsertionOrder(t *testing.T) {
	tr := New()
	var order []string
	install := func(label string) {
		l := label
		_ = tr.Insert("/syn/"+l+"/x", types.NoTypeChecking, func(*types.Message, interface{}) error {
			order = append(order, l)
			return nil
		}, nil, false, false)
	}
	// Insert siblings in an order that does not sort alphabetically, so a
	// regression back to map iteration would be caught by this assertion
	// even on a run where map order happens to coincide with sorted order.
	install("zeta")
	install("mike")
	install("alpha")

	msg := types.Message{Address: "/syn/*/x"}
	for i := 0; i < 5; i++ {
		order = nil
		if n := tr.Dispatch(&msg); n != 3 {
			t.Fatalf("expected 3 handlers invoked, got %d", n)
		}
		want := []string{"zeta", "mike", "alpha"}
		if len(order) != len(want) {
			t.Fatalf("expected order %v, got %v", want, order)
		}
		for i, label := range want {
			if order[i] != label {
				t.Fatalf("expected insertion order %v, got %v", want, order)
			}
		}
	}
}

func TestLiteralBangPrefixDoesNotPatternMatch(t *testing.T) {
	tr := New()
	hits := 0
	_ = tr.Insert("/syn/a/x", types.NoTypeChecking, func(*types.Message, interface{}) error {
		hits++
		return nil
	}, nil, false, false)

	msg := types.Message{Address: "!syn/*/x"}
	if n := tr.Dispatch(&msg); n != 0 {
		t.Fatalf("expected 0 handlers for literal '!' address, got %d", n)
	}
	if hits != 0 {
		t.Fatalf("handler should not have fired")
	}
}

func TestInsertThenRemoveRestoresStructure(t *testing.T) {
	tr := New()
	_ = tr.Insert("/chat/text", "s", noop, nil, false, false)
	if !tr.HasServiceRoot("chat") {
		t.Fatalf("expected chat service root to exist")
	}
	if err := tr.Remove("/chat/text"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if n := len(tr.roots["chat"].children); n != 0 {
		t.Fatalf("expected remove to prune the node insert created, %d child(ren) left", n)
	}
	msg := types.Message{Address: "/chat/text", Args: []types.Value{{Code: types.TypeString, Str: "hi"}}}
	if n := tr.Dispatch(&msg); n != 0 {
		t.Fatalf("expected no handler after remove, got %d invocations", n)
	}
}

func TestTypeCheckSkipsMismatchedHandler(t *testing.T) {
	tr := New()
	fired := false
	_ = tr.Insert("/chat/text", "s", func(*types.Message, interface{}) error {
		fired = true
		return nil
	}, nil, false, false)

	msg := types.Message{Address: "/chat/text", Args: []types.Value{{Code: types.TypeInt32, I32: 1}}}
	tr.Dispatch(&msg)
	if fired {
		t.Fatalf("handler should have been skipped on type mismatch")
	}
}

func TestCoercionAllowsMismatchedButConvertibleTypes(t *testing.T) {
	tr := New()
	var got types.Value
	_ = tr.Insert("/syn/a/x", "id", func(m *types.Message, c interface{}) error {
		got = m.Args[0]
		return nil
	}, nil, true, true)

	msg := types.Message{Address: "/syn/a/x", Args: []types.Value{
		{Code: types.TypeFloat32, F32: 3.5},
		{Code: types.TypeInt32, I32: 2},
	}}
	if n := tr.Dispatch(&msg); n != 1 {
		t.Fatalf("expected coerced handler to fire, got %d", n)
	}
	if got.Code != types.TypeFloat32 {
		t.Fatalf("dispatch must not mutate the message's own arg values")
	}
}
