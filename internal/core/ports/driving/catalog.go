package driving

import (
	"context"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

// TaskCatalog is the only surface other layers talk to for task records.
// It owns the authoritative in-memory cache and enforces the business rules
// the storage adapters don't know about: fingerprint deduplication, display
// ID assignment, the startup integrity sweep and the one-time cold migration.
type TaskCatalog interface {
	// Load fetches all tasks from the active backend, repairs duplicate
	// fingerprints, runs the cold migration if due, and primes the cache.
	Load(ctx context.Context) ([]domain.Task, error)

	// AddTasks persists the incoming tasks, dropping fingerprint duplicates
	// with a warning and assigning display IDs to tasks lacking one.
	// It returns the updated library, newest-first.
	AddTasks(ctx context.Context, tasks []domain.Task) ([]domain.Task, error)

	// RemoveTask deletes a task and its audio. Unknown IDs are not an error.
	RemoveTask(ctx context.Context, id string) ([]domain.Task, error)

	// Clear wipes the library (or only test data) and reloads from the
	// backend so cache and store cannot diverge.
	Clear(ctx context.Context, onlyTestData bool) ([]domain.Task, error)

	// Cache-only reads. These never hit the backend.
	GetAll() []domain.Task
	GetByID(id string) (*domain.Task, bool)
	GetByFingerprint(fingerprint string) (*domain.Task, bool)
	Exists(fingerprint string) bool
	UniqueGrades() []string
	UniqueSubjects(grade string) []string
	UniqueSubSubjects(grade, subject string) []string
	FilterLocal(opts domain.FilterOptions) []domain.Task

	// Filter queries the backend for fresh data, bypassing the cache.
	Filter(ctx context.Context, opts domain.FilterOptions) ([]domain.Task, error)

	// Audio pass-through to the active repository. Both lazily trigger Load
	// if no repository is bound yet.
	SaveAudio(ctx context.Context, key string, clip *domain.AudioClip) error
	GetAudio(ctx context.Context, key string) (*domain.AudioClip, error)
}

// AudioCache is the two-tier read-through cache for synthesized speech,
// keyed by task ID.
type AudioCache interface {
	// Get returns the clip from the in-memory tier, falling through to
	// persistent storage on a miss. Absence yields (nil, false, nil).
	Get(ctx context.Context, key string) (*domain.AudioClip, bool, error)

	// Set writes the in-memory tier synchronously; the persistent write is
	// best-effort and its failure is logged only.
	Set(ctx context.Context, key string, clip *domain.AudioClip)

	// Preload warms the in-memory tier for a batch of keys, skipping keys
	// already resident, and returns the count successfully warmed.
	Preload(ctx context.Context, keys []string) int

	// ClearAll empties the in-memory tier and requests a persistent wipe.
	ClearAll(ctx context.Context) error
}
