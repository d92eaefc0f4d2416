// Package trie implements the hierarchical address space and pattern
// dispatch: a labeled child-map per node, carrying an optional handler
// entry, walked depth-first with OSC-style pattern matching at each
// segment.
package trie

import (
	"github.com/jabolina/go-o2rt/pkg/o2rt/codec"
	"github.com/jabolina/go-o2rt/pkg/o2rt/errs"
	"github.com/jabolina/go-o2rt/pkg/o2rt/types"
)

// Handler is a registered method. Its return value is intentionally
// ignored by the dispatcher; it exists only so handlers can log
// internally.
type Handler func(msg *types.Message, cookie interface{}) error

// Entry is everything a trie node carries about an installed handler.
type Entry struct {
	Handler  Handler
	Cookie   interface{}
	TypeSpec string // types.NoTypeChecking means "accept any descriptor"
	Coerce   bool
	Parse    bool
}

type node struct {
	children   map[string]*node
	childOrder []string // insertion order, so pattern dispatch stays deterministic
	entry      *Entry
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// childOf returns n's child labeled seg, creating it (and recording its
// insertion position in childOrder) if it doesn't already exist.
func (n *node) childOf(seg string) *node {
	child, ok := n.children[seg]
	if !ok {
		child = newNode()
		n.children[seg] = child
		n.childOrder = append(n.childOrder, seg)
	}
	return child
}

// Trie is the full runtime address space: its top-level children are
// service roots, and every deeper node is owned by exactly one service.
type Trie struct {
	roots map[string]*node
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{roots: make(map[string]*node)}
}

// AddServiceRoot registers a bare service root with no handler, so the
// service is addressable even before any method is installed under it.
func (t *Trie) AddServiceRoot(name string) {
	if _, ok := t.roots[name]; !ok {
		t.roots[name] = newNode()
	}
}

// RemoveServiceRoot deletes a whole service subtree.
func (t *Trie) RemoveServiceRoot(name string) {
	delete(t.roots, name)
}

// HasServiceRoot reports whether a service root exists, backing
// lookup_service.
func (t *Trie) HasServiceRoot(name string) bool {
	_, ok := t.roots[name]
	return ok
}

// Insert installs a handler at path (service-qualified, e.g. "/chat/text"),
// creating intermediate literal nodes as needed.
func (t *Trie) Insert(path string, typeSpec string, handler Handler, cookie interface{}, coerce, parse bool) error {
	segs := types.Segments(path)
	if len(segs) == 0 {
		return errs.Wrap(errs.ErrMalformedMessage, "empty address")
	}
	service := segs[0]
	n, ok := t.roots[service]
	if !ok {
		n = newNode()
		t.roots[service] = n
	}
	for _, seg := range segs[1:] {
		n = n.childOf(seg)
	}
	n.entry = &Entry{
		Handler:  handler,
		Cookie:   cookie,
		TypeSpec: typeSpec,
		Coerce:   coerce,
		Parse:    parse,
	}
	return nil
}

// Remove deletes the handler installed at path and prunes the nodes below
// the service root that no longer lead to any handler. The service root
// itself is kept.
func (t *Trie) Remove(path string) error {
	segs := types.Segments(path)
	if len(segs) == 0 {
		return errs.Wrap(errs.ErrMalformedMessage, "empty address")
	}
	n, ok := t.roots[segs[0]]
	if !ok {
		return errs.ErrServiceMissing
	}
	var parents []*node
	for _, seg := range segs[1:] {
		child, ok := n.children[seg]
		if !ok {
			return errs.ErrServiceMissing
		}
		parents = append(parents, n)
		n = child
	}
	n.entry = nil
	// Prune nodes left with no handler and no children, so Insert followed
	// by Remove leaves the service subtree as it was before the Insert.
	for i := len(parents) - 1; i >= 0 && n.entry == nil && len(n.children) == 0; i-- {
		parent, seg := parents[i], segs[i+1]
		delete(parent.children, seg)
		for j, label := range parent.childOrder {
			if label == seg {
				parent.childOrder = append(parent.childOrder[:j], parent.childOrder[j+1:]...)
				break
			}
		}
		n = parent
	}
	return nil
}

// Dispatch walks the trie from the message's service root, recursing into
// every child whose label matches the (possibly-pattern) segment, and
// invokes every matching leaf handler whose type descriptor accepts the
// message (after coercion, if enabled). It returns the number of handlers
// invoked. Matching is depth-first, insertion-order among siblings,
// deterministic for a fixed trie layout.
func (t *Trie) Dispatch(msg *types.Message) int {
	segs := types.Segments(msg.Address)
	if len(segs) == 0 {
		return 0
	}
	root, ok := t.roots[segs[0]]
	if !ok {
		return 0
	}
	noPattern := types.IsPattern(msg.Address) == false
	count := 0
	walk(root, segs[1:], noPattern, msg, &count)
	return count
}

func walk(n *node, remaining []string, literalOnly bool, msg *types.Message, count *int) {
	if len(remaining) == 0 {
		if n.entry != nil && invoke(n.entry, msg) {
			*count++
		}
		return
	}
	seg := remaining[0]
	rest := remaining[1:]
	if literalOnly {
		if child, ok := n.children[seg]; ok {
			walk(child, rest, literalOnly, msg, count)
		}
		return
	}
	pat := Compile(seg)
	for _, label := range n.childOrder {
		if pat.Match(label) {
			walk(n.children[label], rest, literalOnly, msg, count)
		}
	}
}

func invoke(e *Entry, msg *types.Message) bool {
	if e.TypeSpec != types.NoTypeChecking {
		if !typeMatches(e, msg) {
			return false
		}
	}
	_ = e.Handler(msg, e.Cookie)
	return true
}

// typeMatches reports whether msg's arguments satisfy e's required type
// descriptor, applying coercion only when both Coerce and Parse were
// requested at install time.
func typeMatches(e *Entry, msg *types.Message) bool {
	if len(msg.Args) != len(e.TypeSpec) {
		return false
	}
	if !e.Coerce || !e.Parse {
		return msg.TypeTag() == e.TypeSpec
	}
	for i, c := range []byte(e.TypeSpec) {
		if byte(msg.Args[i].Code) == c {
			continue
		}
		if _, ok := codec.Coerce(msg.Args[i], types.TypeCode(c)); !ok {
			return false
		}
	}
	return true
}
