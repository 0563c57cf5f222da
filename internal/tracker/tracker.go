// Package tracker detects which positional input slots changed since the
// previous recomputation cycle.
//
// Slots are keyed by (category, list position), not by any content-stable
// identity. If an upstream producer reorders its output list between cycles
// the tracker attributes the change to whichever positions now hold different
// tokens, so a reorder looks like edits of every moved slot. No stable
// identity exists at the input boundary, so this is kept as is.
package tracker

import (
	"fmt"
	"hash/fnv"
	"sync/atomic"
)

// Token is an opaque change marker supplied by upstream producers. Only
// equality is meaningful.
type Token uint64

var sequence atomic.Uint64

// Next returns a process-unique token.
func Next() Token {
	return Token(sequence.Add(1))
}

// Hash derives a token from content, so identical content yields an
// identical token across cycles.
func Hash(data []byte) Token {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return Token(h.Sum64())
}

// Category names the kind of input a slot belongs to.
type Category int

const (
	SolverOptions Category = iota
	Params
	Geometry
	ForceField
	SceneObject
	Overlay
)

func (c Category) String() string {
	switch c {
	case SolverOptions:
		return "options"
	case Params:
		return "params"
	case Geometry:
		return "geometry"
	case ForceField:
		return "force_field"
	case SceneObject:
		return "scene_object"
	case Overlay:
		return "overlay"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// SlotKey identifies one tracked input position. Keys are positional: if a
// producer reorders its list between cycles, every moved element reads as
// changed in its new slot.
type SlotKey struct {
	Category Category
	Index    int
}

// Key is shorthand for SlotKey{c, i}.
func Key(c Category, i int) SlotKey {
	return SlotKey{Category: c, Index: i}
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s[%d]", k.Category, k.Index)
}

// Tracker caches the last committed token of every slot.
type Tracker struct {
	last  map[SlotKey]Token
	count map[Category]int
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		last:  make(map[SlotKey]Token),
		count: make(map[Category]int),
	}
}

// Last returns the committed token of a slot, if any.
func (t *Tracker) Last(key SlotKey) (Token, bool) {
	tok, ok := t.last[key]
	return tok, ok
}

// IsDirty reports whether tok differs from the committed token of key. A slot
// that was never committed is dirty.
func (t *Tracker) IsDirty(key SlotKey, tok Token) bool {
	last, ok := t.last[key]
	return !ok || last != tok
}

// Commit records tok as the last-seen token of key.
func (t *Tracker) Commit(key SlotKey, tok Token) {
	t.last[key] = tok
	if key.Index+1 > t.count[key.Category] {
		t.count[key.Category] = key.Index + 1
	}
}

// Observe compares and commits in one call.
func (t *Tracker) Observe(key SlotKey, tok Token) bool {
	dirty := t.IsDirty(key, tok)
	t.Commit(key, tok)
	return dirty
}

// Len returns the number of positions ever committed in a category, i.e. the
// highest committed index plus one.
func (t *Tracker) Len(c Category) int {
	return t.count[c]
}

// Forget drops the committed token of key so the next comparison is dirty.
// The category length is unaffected.
func (t *Tracker) Forget(key SlotKey) {
	delete(t.last, key)
}

// Reset drops all committed state.
func (t *Tracker) Reset() {
	t.last = make(map[SlotKey]Token)
	t.count = make(map[Category]int)
}
