package services

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driving"
	"github.com/lernbegleiter/lernwelt-cli/internal/logger"
)

var _ driving.AudioCache = (*AudioCache)(nil)

// DefaultAudioCacheCapacity bounds the in-memory tier. A minute of speech is
// roughly 6 MB of float32 samples, so 50 clips keep the cache in the low
// hundreds of megabytes.
const DefaultAudioCacheCapacity = 50

// audioBackend is the persistent tier, satisfied by the catalog.
type audioBackend interface {
	SaveAudio(ctx context.Context, key string, clip *domain.AudioClip) error
	GetAudio(ctx context.Context, key string) (*domain.AudioClip, error)
	ClearAudio(ctx context.Context) error
}

type audioEntry struct {
	key  string
	clip *domain.AudioClip
}

// AudioCache is the two-tier read-through cache for synthesized speech,
// keyed by task ID. Tier 1 is a bounded in-memory LRU, tier 2 the active
// repository's audio storage.
type AudioCache struct {
	mu       sync.Mutex
	backend  audioBackend
	capacity int
	order    *list.List               // front = most recent
	entries  map[string]*list.Element // key -> element holding *audioEntry
}

// NewAudioCache creates the cache. capacity <= 0 selects the default.
func NewAudioCache(backend audioBackend, capacity int) *AudioCache {
	if capacity <= 0 {
		capacity = DefaultAudioCacheCapacity
	}
	return &AudioCache{
		backend:  backend,
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the clip from the in-memory tier, falling through to the
// persistent tier on a miss. A clip found there is promoted into memory.
// Absence is (nil, false, nil), not an error.
func (c *AudioCache) Get(ctx context.Context, key string) (*domain.AudioClip, bool, error) {
	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		clip := elem.Value.(*audioEntry).clip
		c.mu.Unlock()
		return clip, true, nil
	}
	c.mu.Unlock()

	clip, err := c.backend.GetAudio(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	c.putLocked(key, clip)
	c.mu.Unlock()
	return clip, true, nil
}

// Set writes the in-memory tier synchronously. The persistent write is best
// effort: a backend failure costs durability, not the session's audio.
func (c *AudioCache) Set(ctx context.Context, key string, clip *domain.AudioClip) {
	c.mu.Lock()
	c.putLocked(key, clip)
	c.mu.Unlock()

	if err := c.backend.SaveAudio(ctx, key, clip); err != nil {
		logger.Warn("persisting audio for %s: %v", key, err)
	}
}

// Preload warms the in-memory tier for a batch of keys, skipping keys already
// resident, and returns the count successfully warmed.
func (c *AudioCache) Preload(ctx context.Context, keys []string) int {
	warmed := 0
	for _, key := range keys {
		c.mu.Lock()
		_, resident := c.entries[key]
		c.mu.Unlock()
		if resident {
			continue
		}

		clip, err := c.backend.GetAudio(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			logger.Warn("preloading audio for %s: %v", key, err)
			continue
		}

		c.mu.Lock()
		c.putLocked(key, clip)
		c.mu.Unlock()
		warmed++
	}
	logger.Debug("preloaded %d of %d audio clips", warmed, len(keys))
	return warmed
}

// ClearAll empties the in-memory tier and requests a persistent wipe.
func (c *AudioCache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.mu.Unlock()

	return c.backend.ClearAudio(ctx)
}

// Len reports the number of resident clips. For tests.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// putLocked inserts or refreshes the entry, evicting the least recently used
// one past capacity.
func (c *AudioCache) putLocked(key string, clip *domain.AudioClip) {
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*audioEntry).clip = clip
		c.order.MoveToFront(elem)
		return
	}

	c.entries[key] = c.order.PushFront(&audioEntry{key: key, clip: clip})

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*audioEntry).key)
	}
}
