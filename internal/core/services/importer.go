package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driven"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driving"
	"github.com/lernbegleiter/lernwelt-cli/internal/logger"
)

// maxRateLimitRetries bounds the backoff loop when the analysis provider
// reports quota exhaustion.
const maxRateLimitRetries = 3

// ImportResult reports the outcome for one file.
type ImportResult struct {
	Path    string
	Task    *domain.Task
	Skipped bool
	Reason  string
	Err     error
}

// Importer runs the upload pipeline: fingerprint the file, reject duplicates
// before spending an analysis call, extract the task, stamp identity fields
// and hand it to the catalog.
type Importer struct {
	catalog  driving.TaskCatalog
	analysis driven.AnalysisService
	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewImporter creates the import pipeline.
func NewImporter(catalog driving.TaskCatalog, analysis driven.AnalysisService) *Importer {
	return &Importer{catalog: catalog, analysis: analysis, sleep: sleepCtx}
}

// ImportFiles processes the files one at a time, reporting each outcome via
// the optional progress callback. A failing file doesn't abort the batch.
// Returns the tasks actually added.
func (im *Importer) ImportFiles(ctx context.Context, paths []string, pageNumber int, progress func(ImportResult)) ([]domain.Task, error) {
	if _, err := im.catalog.Load(ctx); err != nil {
		return nil, err
	}

	var added []domain.Task
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		result := im.importOne(ctx, path, pageNumber)
		if progress != nil {
			progress(result)
		}
		if result.Task != nil {
			added = append(added, *result.Task)
		}
	}
	return added, nil
}

func (im *Importer) importOne(ctx context.Context, path string, pageNumber int) ImportResult {
	logger.Section("import " + filepath.Base(path))

	info, err := os.Stat(path)
	if err != nil {
		return ImportResult{Path: path, Err: fmt.Errorf("inspecting file: %w", err)}
	}

	mimeType := mimeFromExt(path)
	fingerprint := domain.Fingerprint(info.Name(), info.Size(), info.ModTime().UnixMilli(), mimeType)

	if existing, dup := im.catalog.GetByFingerprint(fingerprint); dup {
		logger.Info("skipping %s: already imported as %s", info.Name(), existing.DisplayID)
		return ImportResult{
			Path:    path,
			Skipped: true,
			Reason:  fmt.Sprintf("already imported as %s", existing.DisplayID),
		}
	}

	image, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{Path: path, Err: fmt.Errorf("reading file: %w", err)}
	}

	task, err := im.analyzeWithRetry(ctx, image, pageNumber, mimeType)
	if err != nil {
		return ImportResult{Path: path, Err: err}
	}

	task.ID = uuid.NewString()
	task.Timestamp = time.Now().UnixMilli()
	task.FileFingerprint = fingerprint
	task.ImagePreview = fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	if _, err := im.catalog.AddTasks(ctx, []domain.Task{*task}); err != nil {
		return ImportResult{Path: path, Err: err}
	}

	// AddTasks assigned the display ID; read the stored record back.
	stored, ok := im.catalog.GetByID(task.ID)
	if !ok {
		// Dropped inside AddTasks, e.g. a concurrent import won the fingerprint.
		return ImportResult{Path: path, Skipped: true, Reason: "dropped as duplicate"}
	}
	return ImportResult{Path: path, Task: stored}
}

// analyzeWithRetry retries quota rejections with exponential backoff before
// giving up. All other analysis errors are final.
func (im *Importer) analyzeWithRetry(ctx context.Context, image []byte, pageNumber int, mimeType string) (*domain.Task, error) {
	delay := 2 * time.Second
	for attempt := 0; ; attempt++ {
		task, err := im.analysis.AnalyzeTaskImage(ctx, image, pageNumber, mimeType)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, domain.ErrRateLimited) || attempt >= maxRateLimitRetries {
			return nil, err
		}

		logger.Warn("analysis rate limited, retrying in %s (%d/%d)", delay, attempt+1, maxRateLimitRetries)
		if err := im.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// mimeFromExt maps the file extension to the upload MIME type.
func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
