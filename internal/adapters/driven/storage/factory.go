// Package storage selects and caches the active task repository backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/storage/memory"
	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/storage/postgres"
	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/storage/sqlite"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driven"
	"github.com/lernbegleiter/lernwelt-cli/internal/logger"
)

// Backend type tags, most capable first. A backend that fails Init with
// domain.ErrStorageUnavailable falls back to the next one in this order.
const (
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
	TypeMemory   = "memory"
)

// fallbackChain is the fixed degradation order.
var fallbackChain = []string{TypePostgres, TypeSQLite, TypeMemory}

// Options configures backend construction.
type Options struct {
	// Type is the requested backend tag. Empty means TypeSQLite.
	Type string

	// DataDir is the sqlite data directory (empty for the default).
	DataDir string

	// PostgresDSN is the remote connection string.
	PostgresDSN string

	// Media is the optional blob store handed to the postgres backend.
	Media driven.MediaStore
}

var (
	mu              sync.Mutex
	activeRepo      driven.TaskRepository
	activeType      string
	activeRequested string
)

// Get returns the process-wide repository, creating and initializing it on
// first use. The cached instance is returned only while the requested type
// matches the one it was built for; requesting a different type, or setting
// forceNew, closes the current instance and builds a fresh one. A fallen-back
// instance still counts as a match for its original request, so re-requesting
// an unavailable backend doesn't rebuild on every call.
// The returned tag names the backend that actually came up, which may sit
// below the requested one in the fallback chain.
func Get(ctx context.Context, opts Options, forceNew bool) (driven.TaskRepository, string, error) {
	mu.Lock()
	defer mu.Unlock()

	requested := opts.Type
	if requested == "" {
		requested = TypeSQLite
	}

	if activeRepo != nil && !forceNew && requested == activeRequested {
		return activeRepo, activeType, nil
	}

	start := -1
	for i, tag := range fallbackChain {
		if tag == requested {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, "", fmt.Errorf("%w: unknown storage type %q", domain.ErrInvalidInput, requested)
	}

	if activeRepo != nil {
		if err := activeRepo.Close(); err != nil {
			logger.Warn("closing previous storage backend: %v", err)
		}
		activeRepo = nil
		activeType = ""
		activeRequested = ""
	}

	for _, tag := range fallbackChain[start:] {
		repo, err := build(tag, opts)
		if err != nil {
			return nil, "", err
		}

		err = repo.Init(ctx)
		if err == nil {
			if tag != requested {
				logger.Warn("storage backend %s unavailable, using %s", requested, tag)
			}
			activeRepo = repo
			activeType = tag
			activeRequested = requested
			return activeRepo, activeType, nil
		}
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			return nil, "", fmt.Errorf("initializing %s backend: %w", tag, err)
		}
		logger.Debug("storage backend %s unavailable: %v", tag, err)
	}

	// Unreachable: the memory backend's Init never fails.
	return nil, "", fmt.Errorf("%w: no storage backend available", domain.ErrStorageUnavailable)
}

// Reset closes and forgets the active backend. For tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if activeRepo != nil {
		_ = activeRepo.Close()
		activeRepo = nil
		activeType = ""
		activeRequested = ""
	}
}

func build(tag string, opts Options) (driven.TaskRepository, error) {
	switch tag {
	case TypePostgres:
		return postgres.NewStore(opts.PostgresDSN, opts.Media), nil
	case TypeSQLite:
		return sqlite.NewStore(opts.DataDir)
	case TypeMemory:
		return memory.NewTaskStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage type %q", domain.ErrInvalidInput, tag)
	}
}
