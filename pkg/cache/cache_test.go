package cache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-commit-miner/pkg/annotate"
)

func entry(ids ...int) Entry {
	return Entry{Facts: []annotate.Annotation{{
		Label:            annotate.DataXDef,
		Line:             1,
		AbsolutePosition: 4,
		Length:           5,
		DependencyIDs:    ids,
		Version:          "destination",
		Function:         "f",
	}}}
}

func TestResultCache_Basic(t *testing.T) {
	c := New(Options{MaxSize: 3})

	c.Set("a", entry(1))
	c.Set("b", entry(2))

	assert.Equal(t, 2, c.Len())

	e, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, []int{1}, e.Facts[0].DependencyIDs)
	assert.False(t, e.CreatedAt.IsZero())

	_, found = c.Get("missing")
	assert.False(t, found)

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 0.5, st.HitRate(), 1e-9)
}

func TestResultCache_LRUEviction(t *testing.T) {
	var evicted []string
	c := New(Options{MaxSize: 3, OnEvict: func(key string, _ Entry) {
		evicted = append(evicted, key)
	}})

	c.Set("a", entry(1))
	c.Set("b", entry(2))
	c.Set("c", entry(3))

	// Touch a so that b becomes the least recently used.
	c.Get("a")
	c.Set("d", entry(4))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found)
	for _, k := range []string{"a", "c", "d"} {
		_, found := c.Get(k)
		assert.True(t, found, k)
	}
	assert.Equal(t, int64(1), c.Stats().Evicted)
}

func TestResultCache_MaxBytes(t *testing.T) {
	size := estimateSize("a", entry(1))
	c := New(Options{MaxBytes: 2 * size})

	c.Set("a", entry(1))
	c.Set("b", entry(2))
	c.Set("c", entry(3))

	assert.Equal(t, 2, c.Len())
	assert.LessOrEqual(t, c.Stats().Bytes, 2*size)
	_, found := c.Get("a")
	assert.False(t, found)
}

func TestResultCache_ReplaceAndDelete(t *testing.T) {
	c := New(Options{})
	c.Set("a", entry(1))
	c.Set("a", entry(1, 2))
	assert.Equal(t, 1, c.Len())

	e, _ := c.Get("a")
	assert.Equal(t, []int{1, 2}, e.Facts[0].DependencyIDs)

	c.Delete("a")
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().Bytes)

	c.Set("b", entry(3))
	c.Clear()
	assert.Zero(t, c.Len())
}

func TestResultCache_SaveLoadKeepsOrder(t *testing.T) {
	c := New(Options{MaxSize: 2})
	c.Set("a", entry(1))
	c.Set("b", entry(2))
	c.Get("a")

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	restored := New(Options{MaxSize: 2})
	require.NoError(t, restored.Load(&buf))
	assert.Equal(t, 2, restored.Len())

	// b was least recently used before saving, so it goes first.
	restored.Set("c", entry(3))
	_, found := restored.Get("b")
	assert.False(t, found)
	e, found := restored.Get("a")
	require.True(t, found)
	assert.Equal(t, entry(1).Facts, e.Facts)
}

func TestResultCache_PersistToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.msgpack")

	c := New(Options{})
	c.Set(Key([]byte("x"), []byte("y"), "f"), entry(7))
	require.NoError(t, c.PersistToFile(path))

	restored := New(Options{})
	require.NoError(t, restored.LoadFromFile(path))
	e, found := restored.Get(Key([]byte("x"), []byte("y"), "f"))
	require.True(t, found)
	assert.Equal(t, []int{7}, e.Facts[0].DependencyIDs)

	missing := New(Options{})
	assert.NoError(t, missing.LoadFromFile(filepath.Join(t.TempDir(), "none")))
	assert.Zero(t, missing.Len())
}

func TestResultCache_LoadRejectsGarbage(t *testing.T) {
	c := New(Options{})
	assert.Error(t, c.Load(bytes.NewReader([]byte{0xc1})))
}

func TestKey(t *testing.T) {
	base := Key([]byte("a"), []byte("b"), "f", "sensitive=false")
	assert.Len(t, base, 64)
	assert.Equal(t, base, Key([]byte("a"), []byte("b"), "f", "sensitive=false"))

	tests := []struct {
		name string
		key  string
	}{
		{"function", Key([]byte("a"), []byte("b"), "g", "sensitive=false")},
		{"options", Key([]byte("a"), []byte("b"), "f", "sensitive=true")},
		{"boundary", Key([]byte("ab"), []byte(""), "f", "sensitive=false")},
		{"swapped", Key([]byte("b"), []byte("a"), "f", "sensitive=false")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.key)
		})
	}
}
