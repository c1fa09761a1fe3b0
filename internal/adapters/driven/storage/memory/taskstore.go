// Package memory provides an in-memory implementation of the task repository.
// It plays the role the in-browser object store plays in the original product:
// always available, no durability, and therefore the terminal fallback of the
// storage factory. It is also the reference implementation service tests run
// against.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driven"
)

// Ensure TaskStore implements the interfaces.
var (
	_ driven.TaskRepository = (*TaskStore)(nil)
	_ driven.MetadataStore  = (*TaskStore)(nil)
)

// TaskStore is an in-memory implementation of driven.TaskRepository.
type TaskStore struct {
	mu           sync.RWMutex
	tasks        map[string]domain.Task
	order        map[string]int    // id -> insertion sequence, for sort ties
	fingerprints map[string]string // fingerprint -> id, the unique index
	audio        map[string]domain.AudioClip
	meta         map[string]string
	nextSeq      int
}

// NewTaskStore creates a new in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:        make(map[string]domain.Task),
		order:        make(map[string]int),
		fingerprints: make(map[string]string),
		audio:        make(map[string]domain.AudioClip),
		meta:         make(map[string]string),
	}
}

// Init is a no-op: the in-memory store is always available.
func (s *TaskStore) Init(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *TaskStore) Close() error {
	return nil
}

// GetAll returns all tasks sorted by timestamp descending, ties broken by
// insertion order.
func (s *TaskStore) GetAll(_ context.Context) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Task, 0, len(s.tasks))
	for id := range s.tasks {
		result = append(result, s.tasks[id])
	}
	s.sortTasks(result)
	return result, nil
}

// GetByID retrieves a task by ID.
func (s *TaskStore) GetByID(_ context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &task, nil
}

// Save inserts or replaces a task keyed by ID. A non-empty fingerprint held
// by a different task is rejected, mirroring the unique index of the
// relational backends.
func (s *TaskStore) Save(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(task)
}

// SaveBatch applies Save for each task. No atomicity across the batch.
func (s *TaskStore) SaveBatch(_ context.Context, tasks []domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range tasks {
		if err := s.saveLocked(&tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *TaskStore) saveLocked(task *domain.Task) error {
	if task.ID == "" {
		return domain.ErrInvalidInput
	}

	if fp := task.FileFingerprint; fp != "" {
		if holder, ok := s.fingerprints[fp]; ok && holder != task.ID {
			return fmt.Errorf("saving task %s: %w", task.ID, domain.ErrDuplicateFingerprint)
		}
	}

	if old, ok := s.tasks[task.ID]; ok {
		// Replace: the old fingerprint entry goes away with the old record.
		if old.FileFingerprint != "" {
			delete(s.fingerprints, old.FileFingerprint)
		}
	} else {
		s.order[task.ID] = s.nextSeq
		s.nextSeq++
	}

	s.tasks[task.ID] = *task
	if task.FileFingerprint != "" {
		s.fingerprints[task.FileFingerprint] = task.ID
	}
	return nil
}

// Delete removes the task and its audio clip. Missing IDs are a no-op.
func (s *TaskStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(id)
	return nil
}

func (s *TaskStore) deleteLocked(id string) {
	if task, ok := s.tasks[id]; ok && task.FileFingerprint != "" {
		delete(s.fingerprints, task.FileFingerprint)
	}
	delete(s.tasks, id)
	delete(s.order, id)
	delete(s.audio, id)
}

// ClearAll wipes all tasks and audio, or only test data.
func (s *TaskStore) ClearAll(_ context.Context, onlyTestData bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if onlyTestData {
		for id := range s.tasks {
			if s.tasks[id].IsTestData {
				s.deleteLocked(id)
			}
		}
		return nil
	}

	s.tasks = make(map[string]domain.Task)
	s.order = make(map[string]int)
	s.fingerprints = make(map[string]string)
	s.audio = make(map[string]domain.AudioClip)
	return nil
}

// FindByFingerprint returns the task holding the fingerprint.
func (s *TaskStore) FindByFingerprint(_ context.Context, fingerprint string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.fingerprints[fingerprint]
	if !ok {
		return nil, domain.ErrNotFound
	}
	task := s.tasks[id]
	return &task, nil
}

// Exists reports whether any task holds the fingerprint.
func (s *TaskStore) Exists(_ context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.fingerprints[fingerprint]
	return ok, nil
}

// FilterByHierarchy returns matching tasks, newest-first.
func (s *TaskStore) FilterByHierarchy(_ context.Context, opts domain.FilterOptions) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Task
	for id := range s.tasks {
		task := s.tasks[id]
		if opts.Matches(&task) {
			result = append(result, task)
		}
	}
	s.sortTasks(result)
	return result, nil
}

// UniqueGrades returns the distinct grades, sorted.
func (s *TaskStore) UniqueGrades(_ context.Context) ([]string, error) {
	return s.distinct(func(t *domain.Task) (string, bool) {
		return t.Grade, true
	}), nil
}

// UniqueSubjects returns the distinct subjects, optionally scoped to a grade.
func (s *TaskStore) UniqueSubjects(_ context.Context, grade string) ([]string, error) {
	return s.distinct(func(t *domain.Task) (string, bool) {
		return t.Subject, grade == "" || t.Grade == grade
	}), nil
}

// UniqueSubSubjects returns the distinct sub-subjects within grade+subject.
func (s *TaskStore) UniqueSubSubjects(_ context.Context, grade, subject string) ([]string, error) {
	return s.distinct(func(t *domain.Task) (string, bool) {
		if grade != "" && t.Grade != grade {
			return "", false
		}
		return t.SubSubject, subject == "" || t.Subject == subject
	}), nil
}

// SaveAudio stores the clip for a task.
func (s *TaskStore) SaveAudio(_ context.Context, key string, clip *domain.AudioClip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio[key] = *clip
	return nil
}

// GetAudio retrieves the clip for a task.
func (s *TaskStore) GetAudio(_ context.Context, key string) (*domain.AudioClip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clip, ok := s.audio[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &clip, nil
}

// DeleteAudio removes the clip for a task.
func (s *TaskStore) DeleteAudio(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.audio, key)
	return nil
}

// GetMeta returns a metadata value.
func (s *TaskStore) GetMeta(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.meta[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return val, nil
}

// SetMeta stores a metadata value.
func (s *TaskStore) SetMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

// sortTasks orders by timestamp descending, insertion order on ties.
// Callers must hold at least the read lock.
func (s *TaskStore) sortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Timestamp != tasks[j].Timestamp {
			return tasks[i].Timestamp > tasks[j].Timestamp
		}
		return s.order[tasks[i].ID] < s.order[tasks[j].ID]
	})
}

// distinct collects sorted unique non-empty values from tasks accepted by sel.
func (s *TaskStore) distinct(sel func(*domain.Task) (string, bool)) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for id := range s.tasks {
		task := s.tasks[id]
		val, ok := sel(&task)
		if ok && val != "" {
			seen[val] = true
		}
	}

	result := make([]string, 0, len(seen))
	for val := range seen {
		result = append(result, val)
	}
	sort.Strings(result)
	return result
}
