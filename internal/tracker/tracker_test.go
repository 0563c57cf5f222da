package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnknownSlotIsDirty(t *testing.T) {
	tr := New()
	assert.True(t, tr.IsDirty(Key(Params, 0), 7))
	_, ok := tr.Last(Key(Params, 0))
	assert.False(t, ok, "IsDirty must not commit")
}

func TestCommitThenCompare(t *testing.T) {
	tr := New()
	key := Key(SceneObject, 2)

	tr.Commit(key, 10)
	assert.False(t, tr.IsDirty(key, 10))
	assert.True(t, tr.IsDirty(key, 11))

	assert.True(t, tr.Observe(key, 11))
	assert.False(t, tr.Observe(key, 11), "second observe of same token is clean")
}

func TestLenTracksHighestIndex(t *testing.T) {
	tr := New()
	assert.Equal(t, 0, tr.Len(SceneObject))

	tr.Commit(Key(SceneObject, 0), 1)
	tr.Commit(Key(SceneObject, 3), 1)
	assert.Equal(t, 4, tr.Len(SceneObject))
	assert.Equal(t, 0, tr.Len(Overlay), "categories are independent")

	tr.Forget(Key(SceneObject, 3))
	assert.Equal(t, 4, tr.Len(SceneObject))
	assert.True(t, tr.IsDirty(Key(SceneObject, 3), 1))
}

func TestReset(t *testing.T) {
	tr := New()
	tr.Commit(Key(Geometry, 0), 5)
	tr.Commit(Key(ForceField, 1), 5)

	tr.Reset()
	assert.True(t, tr.IsDirty(Key(Geometry, 0), 5))
	assert.Equal(t, 0, tr.Len(ForceField))
}

// Reordering the upstream list is reported as changes at every moved
// position, because slots are positional.
func TestReorderLooksLikeEdits(t *testing.T) {
	tr := New()
	tokens := []Token{100, 200, 300}
	for i, tok := range tokens {
		tr.Commit(Key(SceneObject, i), tok)
	}

	reordered := []Token{200, 100, 300}
	var dirty []int
	for i, tok := range reordered {
		if tr.IsDirty(Key(SceneObject, i), tok) {
			dirty = append(dirty, i)
		}
	}
	assert.Equal(t, []int{0, 1}, dirty)
}

func TestTokens(t *testing.T) {
	a, b := Next(), Next()
	assert.NotEqual(t, a, b)

	assert.Equal(t, Hash([]byte("cloth")), Hash([]byte("cloth")))
	assert.NotEqual(t, Hash([]byte("cloth")), Hash([]byte("fluid")))
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "overlay[3]", Key(Overlay, 3).String())
	assert.Equal(t, "category(42)", Category(42).String())
}
