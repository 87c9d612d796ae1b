package room

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/imposter/internal/game/rng"
)

func newTestRegistry(t *testing.T, src rng.Source) *Registry {
	t.Helper()
	return NewRegistry(6, testCatalog(t), src, testOptions())
}

func TestRegistryCreateAndGet(t *testing.T) {
	g := newTestRegistry(t, rng.NewCryptoSource())
	r, err := g.Create("c1", "A")
	require.NoError(t, err)
	assert.Len(t, r.Code(), 6)

	got, err := g.Get(r.Code())
	require.NoError(t, err)
	assert.Same(t, r, got)
	assert.Equal(t, 1, g.Count())
}

func TestRegistryGetNormalizesCode(t *testing.T) {
	g := newTestRegistry(t, rng.NewCryptoSource())
	r, err := g.Create("c1", "A")
	require.NoError(t, err)

	got, err := g.Get("  " + NormalizeCode(r.Code()) + " ")
	require.NoError(t, err)
	assert.Same(t, r, got)
}

func TestRegistryGetUnknown(t *testing.T) {
	g := newTestRegistry(t, rng.NewCryptoSource())
	_, err := g.Get("NOPE42")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRegistryDestroyIdempotent(t *testing.T) {
	g := newTestRegistry(t, rng.NewCryptoSource())
	r, err := g.Create("c1", "A")
	require.NoError(t, err)

	g.Destroy(r.Code())
	assert.Equal(t, 0, g.Count())
	g.Destroy(r.Code()) // no-op

	_, err = g.Get(r.Code())
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRegistryCodeCollisionRetry(t *testing.T) {
	// A source that repeats the same code once, then differs.
	src := &seqSource{vals: []int{
		0, 0, 0, 0, 0, 0, // first room: AAAAAA
		0, 0, 0, 0, 0, 0, // second room, attempt 1: collision
		1, 1, 1, 1, 1, 1, // second room, attempt 2: BBBBBB
	}}
	g := newTestRegistry(t, src)

	r1, err := g.Create("c1", "A")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", r1.Code())

	r2, err := g.Create("c2", "B")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", r2.Code())
}

func TestRegistryCreatorIsAdmin(t *testing.T) {
	g := newTestRegistry(t, rng.NewCryptoSource())
	r, err := g.Create("c1", "A")
	require.NoError(t, err)

	views := r.Views()
	require.Len(t, views, 1)
	assert.True(t, views[0].IsAdmin)
	assert.True(t, r.IsAdmin("c1"))
}

func TestRegistryConcurrentCreate(t *testing.T) {
	g := newTestRegistry(t, rng.NewCryptoSource())

	var wg sync.WaitGroup
	const n = 50
	codes := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := g.Create("conn", "nick")
			require.NoError(t, err)
			codes[i] = r.Code()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Equal(t, n, g.Count())
}
