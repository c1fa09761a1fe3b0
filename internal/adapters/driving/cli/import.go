package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/services"
)

var (
	importPage     int
	importSimulate int
	importGrade    string
)

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import photographed textbook pages",
	Long: `Analyzes photo files and adds the extracted tasks to the library.
Files already imported (same name, size, modification time and type) are
skipped without spending an analysis call.

With --simulate N, generates N test records instead of analyzing files.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().IntVar(&importPage, "page", 0, "textbook page number for the imported files")
	importCmd.Flags().IntVar(&importSimulate, "simulate", 0, "generate N simulated test records instead of importing")
	importCmd.Flags().StringVar(&importGrade, "grade", "", "grade for simulated records (default \"Klasse 2\")")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if importSimulate > 0 {
		tasks, err := catalog.AddTasks(ctx, services.GenerateSimulatedTasks(importSimulate, importGrade))
		if err != nil {
			return fmt.Errorf("adding simulated tasks: %w", err)
		}
		cmd.Printf("Generated %d test records, library now holds %d tasks.\n", importSimulate, len(tasks))
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("nothing to import: pass photo files or --simulate N")
	}

	analysis, err := newAnalysis()
	if err != nil {
		return err
	}
	defer analysis.Close()

	importer := services.NewImporter(catalog, analysis)
	added, err := importer.ImportFiles(ctx, args, importPage, func(r services.ImportResult) {
		printImportResult(cmd, r)
	})
	if err != nil {
		return err
	}

	cmd.Printf("\nImported %d of %d files.\n", len(added), len(args))
	return nil
}

func printImportResult(cmd *cobra.Command, r services.ImportResult) {
	switch {
	case r.Err != nil:
		cmd.Printf("  %s: FAILED: %v\n", r.Path, r.Err)
	case r.Skipped:
		cmd.Printf("  %s: skipped (%s)\n", r.Path, r.Reason)
	default:
		cmd.Printf("  %s: %s %q\n", r.Path, r.Task.DisplayID, r.Task.TaskTitle)
	}
}
