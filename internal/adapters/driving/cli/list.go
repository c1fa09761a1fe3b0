package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

var (
	listGrade      string
	listSubject    string
	listSubSubject string
	listRemote     bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in the library",
	Long: `Lists the library newest-first, optionally filtered along the
grade/subject/sub-subject hierarchy. --remote queries the backend directly
instead of the in-memory cache.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listGrade, "grade", "", "filter by grade")
	listCmd.Flags().StringVar(&listSubject, "subject", "", "filter by subject")
	listCmd.Flags().StringVar(&listSubSubject, "sub-subject", "", "filter by sub-subject")
	listCmd.Flags().BoolVar(&listRemote, "remote", false, "query the backend, bypassing the cache")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if _, err := catalog.Load(ctx); err != nil {
		return err
	}

	opts := domain.FilterOptions{
		Grade:      listGrade,
		Subject:    listSubject,
		SubSubject: listSubSubject,
	}

	var tasks []domain.Task
	if listRemote {
		var err error
		tasks, err = catalog.Filter(ctx, opts)
		if err != nil {
			return fmt.Errorf("querying backend: %w", err)
		}
	} else {
		tasks = catalog.FilterLocal(opts)
	}

	if len(tasks) == 0 {
		cmd.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGRADE\tSUBJECT\tPAGE\tTITLE\tIMPORTED")
	for i := range tasks {
		t := &tasks[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			t.DisplayID, t.Grade, subjectLabel(t), t.PageNumber, t.TaskTitle,
			time.UnixMilli(t.Timestamp).Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func subjectLabel(t *domain.Task) string {
	if t.SubSubject != "" {
		return t.Subject + "/" + t.SubSubject
	}
	return t.Subject
}
