package driven

import (
	"context"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

// TaskRepository is the common contract all storage backends implement.
// Callers never branch on which adapter is active.
//
// Failure semantics: point lookups return domain.ErrNotFound for absence,
// never an error for an empty store. Init returns domain.ErrStorageUnavailable
// (wrapped) when the underlying engine cannot be opened, so the factory can
// fall back to a less capable adapter.
type TaskRepository interface {
	// Init opens or creates the underlying store and its schema.
	// It is idempotent.
	Init(ctx context.Context) error

	// GetAll returns all tasks sorted by timestamp descending,
	// ties broken by insertion order. An empty store yields an empty slice.
	GetAll(ctx context.Context) ([]domain.Task, error)

	// GetByID retrieves a task by ID, or domain.ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Task, error)

	// Save inserts or replaces a task keyed by ID. Child rows (steps,
	// solution rows, teacher steps) are replaced as one logical transaction,
	// positions preserving array order.
	Save(ctx context.Context, task *domain.Task) error

	// SaveBatch applies Save for each task. There is no atomicity guarantee
	// across the batch; partial application must not corrupt individual tasks.
	SaveBatch(ctx context.Context, tasks []domain.Task) error

	// Delete removes the task, its child rows and its audio clip as one unit.
	// Deleting a non-existent ID is a no-op.
	Delete(ctx context.Context, id string) error

	// ClearAll wipes all tasks and audio, or only records flagged as test
	// data when onlyTestData is true.
	ClearAll(ctx context.Context, onlyTestData bool) error

	// FindByFingerprint returns the task holding the fingerprint,
	// or domain.ErrNotFound.
	FindByFingerprint(ctx context.Context, fingerprint string) (*domain.Task, error)

	// Exists reports whether any task holds the fingerprint.
	Exists(ctx context.Context, fingerprint string) (bool, error)

	// FilterByHierarchy returns tasks matching every provided filter field,
	// sorted newest-first.
	FilterByHierarchy(ctx context.Context, opts domain.FilterOptions) ([]domain.Task, error)

	// UniqueGrades returns the distinct grades, sorted.
	UniqueGrades(ctx context.Context) ([]string, error)

	// UniqueSubjects returns the distinct subjects, optionally scoped to a
	// grade. Subjects are meaningful only within a grade.
	UniqueSubjects(ctx context.Context, grade string) ([]string, error)

	// UniqueSubSubjects returns the distinct sub-subjects, optionally scoped
	// to grade and subject.
	UniqueSubSubjects(ctx context.Context, grade, subject string) ([]string, error)

	// SaveAudio persists the audio clip for a task.
	SaveAudio(ctx context.Context, key string, clip *domain.AudioClip) error

	// GetAudio retrieves the audio clip for a task, or domain.ErrNotFound.
	GetAudio(ctx context.Context, key string) (*domain.AudioClip, error)

	// DeleteAudio removes the audio clip for a task. Missing keys are a no-op.
	DeleteAudio(ctx context.Context, key string) error

	// Close releases the underlying storage handle.
	Close() error
}

// MetadataStore exposes the reserved key/value metadata area backends keep
// alongside task records (schema version, migration flag).
// All relational backends implement it; the memory backend does too so that
// migration state survives within a session.
type MetadataStore interface {
	// GetMeta returns the value for a metadata key, or domain.ErrNotFound.
	GetMeta(ctx context.Context, key string) (string, error)

	// SetMeta stores a metadata value.
	SetMeta(ctx context.Context, key, value string) error
}
