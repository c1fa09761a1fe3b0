package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

// fakeAudioBackend is an in-memory persistent tier with call counters.
type fakeAudioBackend struct {
	mu     sync.Mutex
	clips  map[string]*domain.AudioClip
	gets   int
	failed bool
}

func newFakeAudioBackend() *fakeAudioBackend {
	return &fakeAudioBackend{clips: make(map[string]*domain.AudioClip)}
}

func (b *fakeAudioBackend) SaveAudio(_ context.Context, key string, clip *domain.AudioClip) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failed {
		return errors.New("backend down")
	}
	b.clips[key] = clip
	return nil
}

func (b *fakeAudioBackend) GetAudio(_ context.Context, key string) (*domain.AudioClip, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	if b.failed {
		return nil, errors.New("backend down")
	}
	clip, ok := b.clips[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clip, nil
}

func (b *fakeAudioBackend) ClearAudio(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clips = make(map[string]*domain.AudioClip)
	return nil
}

func clipOf(v float32) *domain.AudioClip {
	return domain.NewClip([]float32{v})
}

func TestAudioCache_SetThenGet_MemoryHit(t *testing.T) {
	backend := newFakeAudioBackend()
	cache := NewAudioCache(backend, 10)
	ctx := context.Background()

	cache.Set(ctx, "t1", clipOf(0.5))

	clip, ok, err := cache.Get(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.5}, clip.Samples)

	// Served from tier 1, the backend was never read.
	assert.Zero(t, backend.gets)
}

func TestAudioCache_Set_PersistsToBackend(t *testing.T) {
	backend := newFakeAudioBackend()
	cache := NewAudioCache(backend, 10)

	cache.Set(context.Background(), "t1", clipOf(0.5))
	assert.Contains(t, backend.clips, "t1")
}

func TestAudioCache_Set_BackendFailureIsNonFatal(t *testing.T) {
	backend := newFakeAudioBackend()
	backend.failed = true
	cache := NewAudioCache(backend, 10)
	ctx := context.Background()

	cache.Set(ctx, "t1", clipOf(0.5))

	// The clip is still served from memory.
	clip, ok, err := cache.Get(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.5}, clip.Samples)
}

func TestAudioCache_Miss(t *testing.T) {
	cache := NewAudioCache(newFakeAudioBackend(), 10)

	clip, ok, err := cache.Get(context.Background(), "absent")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, clip)
}

func TestAudioCache_EvictionFallsThroughToBackend(t *testing.T) {
	backend := newFakeAudioBackend()
	capacity := 3
	cache := NewAudioCache(backend, capacity)
	ctx := context.Background()

	for i := 0; i <= capacity; i++ {
		cache.Set(ctx, fmt.Sprintf("t%d", i), clipOf(float32(i)))
	}

	// t0 was evicted from tier 1.
	assert.Equal(t, capacity, cache.Len())

	// But it survives in tier 2 and gets promoted back on read.
	before := backend.gets
	clip, ok, err := cache.Get(ctx, "t0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0}, clip.Samples)
	assert.Equal(t, before+1, backend.gets)

	// Promotion made it a memory hit.
	_, ok, err = cache.Get(ctx, "t0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, before+1, backend.gets)
}

func TestAudioCache_GetRefreshesRecency(t *testing.T) {
	backend := newFakeAudioBackend()
	cache := NewAudioCache(backend, 2)
	ctx := context.Background()

	cache.Set(ctx, "a", clipOf(1))
	cache.Set(ctx, "b", clipOf(2))

	// Touch "a" so "b" is now the eviction candidate.
	_, _, _ = cache.Get(ctx, "a")
	cache.Set(ctx, "c", clipOf(3))

	_, okA, _ := cache.Get(ctx, "a")
	assert.True(t, okA)

	// "b" left memory; reading it hits the backend.
	before := backend.gets
	_, okB, err := cache.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, okB)
	assert.Greater(t, backend.gets, before)
}

func TestAudioCache_Preload(t *testing.T) {
	backend := newFakeAudioBackend()
	backend.clips["t1"] = clipOf(1)
	backend.clips["t2"] = clipOf(2)
	cache := NewAudioCache(backend, 10)
	ctx := context.Background()

	cache.Set(ctx, "t1", clipOf(1)) // already resident, skipped

	warmed := cache.Preload(ctx, []string{"t1", "t2", "t-missing"})
	assert.Equal(t, 1, warmed)
	assert.Equal(t, 2, cache.Len())
}

func TestAudioCache_ClearAll(t *testing.T) {
	backend := newFakeAudioBackend()
	cache := NewAudioCache(backend, 10)
	ctx := context.Background()

	cache.Set(ctx, "t1", clipOf(1))
	require.NoError(t, cache.ClearAll(ctx))

	assert.Zero(t, cache.Len())
	assert.Empty(t, backend.clips)

	_, ok, err := cache.Get(ctx, "t1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestAudioCache_DefaultCapacity(t *testing.T) {
	cache := NewAudioCache(newFakeAudioBackend(), 0)
	assert.Equal(t, DefaultAudioCacheCapacity, cache.capacity)
}
