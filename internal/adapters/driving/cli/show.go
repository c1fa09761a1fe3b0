package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task in full",
	Long:  `Prints the complete bilingual task record. Accepts the display ID (K2_MAT_1) or the internal ID.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

// resolveTask accepts display IDs and internal IDs interchangeably.
func resolveTask(id string) (*domain.Task, bool) {
	if task, ok := catalog.GetByID(id); ok {
		return task, true
	}
	for _, task := range catalog.GetAll() {
		if strings.EqualFold(task.DisplayID, id) {
			t := task
			return &t, true
		}
	}
	return nil, false
}

func runShow(cmd *cobra.Command, args []string) error {
	if _, err := catalog.Load(cmd.Context()); err != nil {
		return err
	}

	task, ok := resolveTask(args[0])
	if !ok {
		return fmt.Errorf("task %q not found", args[0])
	}

	cmd.Printf("%s: %s\n", task.DisplayID, task.TaskTitle)
	cmd.Printf("%s, %s", task.Grade, subjectLabel(task))
	if task.PageNumber > 0 {
		cmd.Printf(", Seite %d", task.PageNumber)
	}
	cmd.Println()
	if task.IsTestData {
		cmd.Println("(test record)")
	}

	printBilingual(cmd, "Aufgabe", task.TaskDescriptionDE, task.TaskDescriptionVI)

	if len(task.Steps) > 0 {
		cmd.Println("\nSchritte:")
		for i, step := range task.Steps {
			cmd.Printf("  %d. %s / %s\n", i+1, step.TitleDE, step.TitleVI)
			if step.DescriptionDE != "" {
				cmd.Printf("     %s\n", step.DescriptionDE)
			}
			if step.DescriptionVI != "" {
				cmd.Printf("     %s\n", step.DescriptionVI)
			}
		}
	}

	if len(task.SolutionTable) > 0 {
		cmd.Println("\nLösungstabelle:")
		for _, row := range task.SolutionTable {
			cmd.Printf("  %s: %s = %s (%s = %s)\n",
				row.TaskNumber, row.LabelDE, row.ValueDE, row.LabelVI, row.ValueVI)
		}
	}

	printBilingual(cmd, "Lösung", task.FinalSolutionDE, task.FinalSolutionVI)

	ts := task.TeacherSection
	if ts.LearningGoalDE != "" || ts.ExplanationDE != "" || len(ts.StudentStepsDE) > 0 {
		cmd.Println("\nFür Lehrende:")
		if ts.LearningGoalDE != "" {
			cmd.Printf("  Lernziel: %s\n", ts.LearningGoalDE)
		}
		for _, step := range ts.StudentStepsDE {
			cmd.Printf("  - %s\n", step)
		}
		if ts.ExplanationDE != "" {
			cmd.Printf("  %s\n", ts.ExplanationDE)
		}
		if ts.SummaryDE != "" {
			cmd.Printf("  Zusammenfassung: %s\n", ts.SummaryDE)
		}
	}

	cmd.Printf("\nInterne ID: %s\n", task.ID)
	return nil
}

func printBilingual(cmd *cobra.Command, label, de, vi string) {
	if de == "" && vi == "" {
		return
	}
	cmd.Printf("\n%s:\n", label)
	if de != "" {
		cmd.Printf("  DE: %s\n", de)
	}
	if vi != "" {
		cmd.Printf("  VI: %s\n", vi)
	}
}
