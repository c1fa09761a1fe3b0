package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task and its audio",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var (
	clearTestData bool
	clearYes      bool
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the library",
	Long: `Deletes all tasks and audio from the active backend, or only generated
test records with --test-data.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVar(&clearTestData, "test-data", false, "only delete generated test records")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if _, err := catalog.Load(ctx); err != nil {
		return err
	}

	task, ok := resolveTask(args[0])
	if !ok {
		return fmt.Errorf("task %q not found", args[0])
	}

	remaining, err := catalog.RemoveTask(ctx, task.ID)
	if err != nil {
		return err
	}
	cmd.Printf("Deleted %s, %d tasks remain.\n", task.DisplayID, len(remaining))
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if !clearYes {
		what := "ALL tasks"
		if clearTestData {
			what = "all test records"
		}
		cmd.Printf("This deletes %s. Continue? [y/N] ", what)
		var answer string
		fmt.Fscanln(cmd.InOrStdin(), &answer)
		if answer != "y" && answer != "Y" {
			cmd.Println("Aborted.")
			return nil
		}
	}

	remaining, err := catalog.Clear(ctx, clearTestData)
	if err != nil {
		return err
	}
	cmd.Printf("Cleared, %d tasks remain.\n", len(remaining))
	return nil
}
