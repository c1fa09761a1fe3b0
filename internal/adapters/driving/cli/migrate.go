package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/config/file"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the one-time legacy migration",
	Long: `Loads the library, which migrates records from the configured legacy
backend into the active one if the active store is empty and the migration
has not run yet. The legacy backend is set via storage.legacy_type in the
config file.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if configStore.GetString(file.KeyLegacyType) == "" {
		return fmt.Errorf("no legacy backend configured (set %s)", file.KeyLegacyType)
	}

	tasks, err := catalog.Load(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("Library holds %d tasks.\n", len(tasks))
	return nil
}
