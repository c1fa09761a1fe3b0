// Package cli wires the cobra command tree to the task catalog and the AI
// adapters.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/ai"
	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/config/file"
	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/storage"
	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/storage/memory"
	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/storage/postgres"
	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/storage/sqlite"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driven"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/services"
	"github.com/lernbegleiter/lernwelt-cli/internal/logger"
)

var (
	version = "dev"

	verbose     bool
	storageType string

	configStore *file.ConfigStore
	catalog     *services.Catalog
	audioCache  *services.AudioCache
)

var rootCmd = &cobra.Command{
	Use:   "lernwelt",
	Short: "Bilingual homework task library",
	Long: `lernwelt imports photographed textbook pages, extracts the task content in
German and Vietnamese, and keeps the records in a local or remote library
with stable display IDs and duplicate detection.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)

		var err error
		configStore, err = file.NewConfigStore("")
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		catalog = services.NewCatalog(openRepository, legacyOpener())
		audioCache = services.NewAudioCache(catalog, configStore.GetInt(file.KeyAudioCacheCap))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging to stderr")
	rootCmd.PersistentFlags().StringVar(&storageType, "storage", "", "storage backend (postgres, sqlite, memory)")
}

// ExecuteContext runs the command tree. The context cancels on SIGINT so a
// running import or watch loop winds down cleanly.
func ExecuteContext(ctx context.Context, v string) error {
	if v != "" {
		version = v
	}
	return rootCmd.ExecuteContext(ctx)
}

// openRepository hands the catalog the factory-selected backend.
func openRepository(ctx context.Context) (driven.TaskRepository, error) {
	repo, tag, err := storage.Get(ctx, storageOptions(), false)
	if err != nil {
		return nil, err
	}
	logger.Debug("using %s storage backend", tag)
	return repo, nil
}

func storageOptions() storage.Options {
	backend := storageType
	if backend == "" {
		backend = configStore.GetString(file.KeyStorageType)
	}

	opts := storage.Options{
		Type:        backend,
		DataDir:     configStore.GetString(file.KeyDataDir),
		PostgresDSN: configStore.GetString(file.KeyPostgresDSN),
	}

	if connStr := configStore.GetString(file.KeyAzureConnStr); connStr != "" {
		media, err := postgres.NewBlobMedia(connStr, configStore.GetString(file.KeyAzureContainer))
		if err != nil {
			logger.Warn("media store unavailable, previews stay inline: %v", err)
		} else {
			opts.Media = media
		}
	}
	return opts
}

// legacyOpener builds the one-time migration source from config, or nil when
// none is configured. It bypasses the factory singleton on purpose: the
// legacy backend must not become the active one.
func legacyOpener() services.OpenRepo {
	legacyType := configStore.GetString(file.KeyLegacyType)
	if legacyType == "" {
		return nil
	}

	return func(ctx context.Context) (driven.TaskRepository, error) {
		var repo driven.TaskRepository
		switch legacyType {
		case storage.TypePostgres:
			repo = postgres.NewStore(configStore.GetString(file.KeyPostgresDSN), nil)
		case storage.TypeSQLite:
			store, err := sqlite.NewStore(configStore.GetString(file.KeyDataDir))
			if err != nil {
				return nil, err
			}
			repo = store
		case storage.TypeMemory:
			repo = memory.NewTaskStore()
		default:
			return nil, fmt.Errorf("unknown legacy storage type %q", legacyType)
		}
		return repo, repo.Init(ctx)
	}
}

// newAnalysis builds the vision adapter from config.
func newAnalysis() (driven.AnalysisService, error) {
	return ai.NewAnalysis(
		configStore.GetString(file.KeyOpenAIKey),
		configStore.GetString(file.KeyOpenAIBaseURL),
		configStore.GetString(file.KeyOpenAIModel),
	)
}

// newSpeech builds the TTS adapter from config.
func newSpeech() (driven.SpeechService, error) {
	return ai.NewSpeech(
		configStore.GetString(file.KeyOpenAIKey),
		configStore.GetString(file.KeyOpenAIBaseURL),
		configStore.GetString(file.KeyTTSVoice),
	)
}
