// Package services holds the core business logic between the driving surfaces
// and the storage/AI adapters.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driven"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driving"
	"github.com/lernbegleiter/lernwelt-cli/internal/logger"
)

var _ driving.TaskCatalog = (*Catalog)(nil)

// migrationDoneKey is the metadata flag marking the one-time cold migration
// as completed.
const migrationDoneKey = "migration_done"

// OpenRepo produces an initialized task repository. The catalog calls it at
// most once per process, on first use.
type OpenRepo func(ctx context.Context) (driven.TaskRepository, error)

// Catalog is the authoritative in-memory task library on top of whichever
// backend the factory selected. It owns the rules the adapters don't know
// about: fingerprint deduplication, display ID assignment, the startup
// integrity sweep and the one-time cold migration.
//
// All mutating calls are serialized; two concurrent AddTasks can never hand
// out the same display ID.
type Catalog struct {
	mu     sync.RWMutex
	open   OpenRepo
	legacy OpenRepo
	repo   driven.TaskRepository
	cache  []domain.Task
	loaded bool
}

// NewCatalog creates a catalog. legacy may be nil; when set it names the
// backend records are migrated from on first load of an empty store.
func NewCatalog(open OpenRepo, legacy OpenRepo) *Catalog {
	return &Catalog{open: open, legacy: legacy}
}

// Load fetches all tasks from the backend, repairs duplicate fingerprints,
// runs the cold migration if due, and primes the cache.
func (c *Catalog) Load(ctx context.Context) ([]domain.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return nil, err
	}
	return copyTasks(c.cache), nil
}

func (c *Catalog) loadLocked(ctx context.Context) error {
	if err := c.bindLocked(ctx); err != nil {
		return err
	}

	tasks, err := c.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}

	tasks = c.sweepDuplicates(ctx, tasks)

	if len(tasks) == 0 && c.migrateLocked(ctx) {
		tasks, err = c.repo.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("reloading after migration: %w", err)
		}
	}

	c.cache = tasks
	c.loaded = true
	logger.Info("loaded %d tasks", len(tasks))
	return nil
}

func (c *Catalog) bindLocked(ctx context.Context) error {
	if c.repo != nil {
		return nil
	}
	repo, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	c.repo = repo
	return nil
}

// ensureLoadedLocked lazily binds and loads before the first mutation.
func (c *Catalog) ensureLoadedLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	return c.loadLocked(ctx)
}

// sweepDuplicates enforces the fingerprint invariant over pre-existing data:
// when several records share a fingerprint, the first in stored order wins and
// the rest are deleted from the backend. Failed deletes are logged and the
// record kept, so the cache never hides data that is still in the store.
func (c *Catalog) sweepDuplicates(ctx context.Context, tasks []domain.Task) []domain.Task {
	seen := make(map[string]string, len(tasks))
	kept := tasks[:0]
	for i := range tasks {
		fp := tasks[i].FileFingerprint
		if fp == "" {
			kept = append(kept, tasks[i])
			continue
		}
		if firstID, dup := seen[fp]; dup {
			logger.Warn("fingerprint %s held by both %s and %s, removing %s",
				fp, firstID, tasks[i].ID, tasks[i].ID)
			if err := c.repo.Delete(ctx, tasks[i].ID); err != nil {
				logger.Warn("removing duplicate %s: %v", tasks[i].ID, err)
				kept = append(kept, tasks[i])
			}
			continue
		}
		seen[fp] = tasks[i].ID
		kept = append(kept, tasks[i])
	}
	return kept
}

// migrateLocked performs the one-time cold migration from the legacy backend
// into the empty active one. Best effort: any failure is logged and the done
// flag left unset so the next load retries. Reports whether records were
// migrated.
func (c *Catalog) migrateLocked(ctx context.Context) bool {
	if c.legacy == nil {
		return false
	}

	meta, ok := c.repo.(driven.MetadataStore)
	if !ok {
		return false
	}
	if done, err := meta.GetMeta(ctx, migrationDoneKey); err == nil && done == "true" {
		return false
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("reading migration flag: %v", err)
		return false
	}

	legacy, err := c.legacy(ctx)
	if err != nil {
		logger.Warn("opening legacy backend for migration: %v", err)
		return false
	}
	defer legacy.Close()

	tasks, err := legacy.GetAll(ctx)
	if err != nil {
		logger.Warn("reading legacy backend: %v", err)
		return false
	}

	migrated := 0
	for i := range tasks {
		if err := c.repo.Save(ctx, &tasks[i]); err != nil {
			logger.Warn("migrating task %s: %v", tasks[i].ID, err)
			return false
		}
		migrated++

		// The audio clip travels with its record. Absence is normal; any
		// other failure degrades to a record without speech, logged.
		clip, err := legacy.GetAudio(ctx, tasks[i].ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			logger.Warn("reading legacy audio for %s: %v", tasks[i].ID, err)
			continue
		}
		if err := c.repo.SaveAudio(ctx, tasks[i].ID, clip); err != nil {
			logger.Warn("migrating audio for %s: %v", tasks[i].ID, err)
		}
	}

	if err := meta.SetMeta(ctx, migrationDoneKey, "true"); err != nil {
		logger.Warn("setting migration flag: %v", err)
		return false
	}
	logger.Info("migrated %d tasks from legacy backend", migrated)
	return migrated > 0
}

// AddTasks persists the incoming tasks. Fingerprint duplicates, both within
// the batch and against the library, are dropped with a warning naming the
// task that already holds the fingerprint. Tasks without a display ID get one
// assigned against the growing library, and tasks without ID or timestamp are
// stamped. Returns the updated library, newest-first.
func (c *Catalog) AddTasks(ctx context.Context, tasks []domain.Task) ([]domain.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	holders := make(map[string]string, len(c.cache))
	for i := range c.cache {
		if fp := c.cache[i].FileFingerprint; fp != "" {
			holders[fp] = c.cache[i].ID
		}
	}

	for _, task := range tasks {
		if fp := task.FileFingerprint; fp != "" {
			if holder, dup := holders[fp]; dup {
				logger.Warn("dropping %q: fingerprint already held by %s", task.TaskTitle, holder)
				continue
			}
		}

		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		if task.Timestamp == 0 {
			task.Timestamp = time.Now().UnixMilli()
		}
		if task.DisplayID == "" {
			task.DisplayID = domain.NextDisplayID(c.cache, task.Grade, task.Subject)
		}

		if err := c.repo.Save(ctx, &task); err != nil {
			if errors.Is(err, domain.ErrDuplicateFingerprint) {
				logger.Warn("dropping %q: %v", task.TaskTitle, err)
				continue
			}
			return nil, fmt.Errorf("%w: saving task %s: %w", domain.ErrPersistenceFailure, task.ID, err)
		}

		c.cache = append(c.cache, task)
		if task.FileFingerprint != "" {
			holders[task.FileFingerprint] = task.ID
		}
		logger.Debug("added task %s (%s)", task.DisplayID, task.ID)
	}

	c.sortCache()
	return copyTasks(c.cache), nil
}

// RemoveTask deletes a task and its audio. Unknown IDs warn but don't fail.
func (c *Catalog) RemoveTask(ctx context.Context, id string) ([]domain.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	found := false
	for i := range c.cache {
		if c.cache[i].ID == id {
			c.cache = append(c.cache[:i], c.cache[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		logger.Warn("removing unknown task %s", id)
	}

	if err := c.repo.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("%w: deleting task %s: %w", domain.ErrPersistenceFailure, id, err)
	}
	return copyTasks(c.cache), nil
}

// Clear wipes the library (or only test data) and reloads from the backend so
// cache and store cannot diverge.
func (c *Catalog) Clear(ctx context.Context, onlyTestData bool) ([]domain.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bindLocked(ctx); err != nil {
		return nil, err
	}

	if err := c.repo.ClearAll(ctx, onlyTestData); err != nil {
		return nil, fmt.Errorf("%w: clearing tasks: %w", domain.ErrPersistenceFailure, err)
	}

	tasks, err := c.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reloading after clear: %w", err)
	}
	c.cache = tasks
	c.loaded = true
	return copyTasks(c.cache), nil
}

// GetAll returns the cached library, newest-first.
func (c *Catalog) GetAll() []domain.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyTasks(c.cache)
}

// GetByID looks a task up in the cache.
func (c *Catalog) GetByID(id string) (*domain.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.cache {
		if c.cache[i].ID == id {
			task := c.cache[i]
			return &task, true
		}
	}
	return nil, false
}

// GetByFingerprint looks a task up by fingerprint in the cache.
func (c *Catalog) GetByFingerprint(fingerprint string) (*domain.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if fingerprint == "" {
		return nil, false
	}
	for i := range c.cache {
		if c.cache[i].FileFingerprint == fingerprint {
			task := c.cache[i]
			return &task, true
		}
	}
	return nil, false
}

// Exists reports whether a fingerprint is held in the cache.
func (c *Catalog) Exists(fingerprint string) bool {
	_, ok := c.GetByFingerprint(fingerprint)
	return ok
}

// UniqueGrades returns the distinct grades in the cache, sorted.
func (c *Catalog) UniqueGrades() []string {
	return c.distinct(func(t *domain.Task) (string, bool) {
		return t.Grade, t.Grade != ""
	})
}

// UniqueSubjects returns the distinct subjects within a grade, sorted.
// An empty grade spans the whole library.
func (c *Catalog) UniqueSubjects(grade string) []string {
	return c.distinct(func(t *domain.Task) (string, bool) {
		return t.Subject, t.Subject != "" && (grade == "" || t.Grade == grade)
	})
}

// UniqueSubSubjects returns the distinct sub-subjects within grade+subject.
func (c *Catalog) UniqueSubSubjects(grade, subject string) []string {
	return c.distinct(func(t *domain.Task) (string, bool) {
		ok := t.SubSubject != "" &&
			(grade == "" || t.Grade == grade) &&
			(subject == "" || t.Subject == subject)
		return t.SubSubject, ok
	})
}

// FilterLocal filters the cache without touching the backend.
func (c *Catalog) FilterLocal(opts domain.FilterOptions) []domain.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []domain.Task
	for i := range c.cache {
		if opts.Matches(&c.cache[i]) {
			result = append(result, c.cache[i])
		}
	}
	return result
}

// Filter queries the backend for fresh data, bypassing the cache.
func (c *Catalog) Filter(ctx context.Context, opts domain.FilterOptions) ([]domain.Task, error) {
	c.mu.Lock()
	if err := c.bindLocked(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	repo := c.repo
	c.mu.Unlock()

	return repo.FilterByHierarchy(ctx, opts)
}

// SaveAudio persists a clip through the active repository.
func (c *Catalog) SaveAudio(ctx context.Context, key string, clip *domain.AudioClip) error {
	repo, err := c.boundRepo(ctx)
	if err != nil {
		return err
	}
	return repo.SaveAudio(ctx, key, clip)
}

// GetAudio loads a clip through the active repository.
func (c *Catalog) GetAudio(ctx context.Context, key string) (*domain.AudioClip, error) {
	repo, err := c.boundRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.GetAudio(ctx, key)
}

// ClearAudio is used by the audio cache's persistent wipe: it deletes the
// clips of every cached task.
func (c *Catalog) ClearAudio(ctx context.Context) error {
	repo, err := c.boundRepo(ctx)
	if err != nil {
		return err
	}
	for _, task := range c.GetAll() {
		if err := repo.DeleteAudio(ctx, task.ID); err != nil {
			return fmt.Errorf("deleting audio for %s: %w", task.ID, err)
		}
	}
	return nil
}

func (c *Catalog) boundRepo(ctx context.Context) (driven.TaskRepository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bindLocked(ctx); err != nil {
		return nil, err
	}
	return c.repo, nil
}

func (c *Catalog) sortCache() {
	sort.SliceStable(c.cache, func(i, j int) bool {
		return c.cache[i].Timestamp > c.cache[j].Timestamp
	})
}

func (c *Catalog) distinct(sel func(*domain.Task) (string, bool)) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var result []string
	for i := range c.cache {
		val, ok := sel(&c.cache[i])
		if ok && !seen[val] {
			seen[val] = true
			result = append(result, val)
		}
	}
	sort.Strings(result)
	return result
}

func copyTasks(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)
	return out
}
