package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/services"
	"github.com/lernbegleiter/lernwelt-cli/internal/logger"
)

// watchSettleDelay is how long a file must stay quiet before it is imported,
// so half-copied photos are not analyzed.
const watchSettleDelay = 2 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch <directory>",
	Short: "Watch an inbox directory and import new photos",
	Long: `Watches the directory and imports every new photo file once it has
finished writing. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	analysis, err := newAnalysis()
	if err != nil {
		return err
	}
	defer analysis.Close()
	importer := services.NewImporter(catalog, analysis)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(args[0]); err != nil {
		return fmt.Errorf("watching %s: %w", args[0], err)
	}
	cmd.Printf("Watching %s for new photos...\n", args[0])

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	imports := make(chan string)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !isPhotoFile(event.Name) {
				continue
			}

			// Restart the settle timer on every write to the same file.
			mu.Lock()
			if timer, pending := timers[event.Name]; pending {
				timer.Stop()
			}
			path := event.Name
			timers[path] = time.AfterFunc(watchSettleDelay, func() {
				mu.Lock()
				delete(timers, path)
				mu.Unlock()
				enqueueImport(ctx, imports, path)
			})
			mu.Unlock()

		case path := <-imports:
			if _, err := importer.ImportFiles(ctx, []string{path}, 0, func(r services.ImportResult) {
				printImportResult(cmd, r)
			}); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error: %v", err)
		}
	}
}

// enqueueImport hands a settled path to the import loop. It gives up when the
// watcher is shutting down so the timer goroutine doesn't block forever.
func enqueueImport(ctx context.Context, imports chan<- string, path string) {
	select {
	case imports <- path:
	case <-ctx.Done():
	}
}

func isPhotoFile(path string) bool {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".jpg"),
		strings.HasSuffix(strings.ToLower(path), ".jpeg"),
		strings.HasSuffix(strings.ToLower(path), ".png"),
		strings.HasSuffix(strings.ToLower(path), ".webp"):
		return true
	}
	return false
}
