// Package sessions implements the sessions command, which displays crawl
// sessions in a formatted table.
package sessions

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/cmd/common"
	"github.com/quarryhq/quarry/internal/domain"
)

const defaultListLimit = 20

// Command returns the sessions command for use in the root command.
func Command() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List crawl sessions",
		Long:  `List crawl sessions with their status and progress counters, newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}
			defer deps.Close()

			engine := common.BuildEngine(deps)

			sessions, listErr := engine.Sessions.List(cmd.Context(), limit, offset)
			if listErr != nil {
				return fmt.Errorf("failed to list sessions: %w", listErr)
			}

			if len(sessions) == 0 {
				fmt.Println("No crawl sessions found")
				return nil
			}

			renderTable(sessions)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "maximum number of sessions to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of sessions to skip")

	return cmd
}

// renderTable formats and displays the sessions in a table format.
func renderTable(sessions []*domain.CrawlSession) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "Start URL", "Status", "Pages", "Errors", "Started", "Completed"})

	for _, sess := range sessions {
		completed := ""
		if sess.CompletedAt != nil {
			completed = sess.CompletedAt.Format(time.RFC3339)
		}

		t.AppendRow(table.Row{
			sess.ID,
			sess.StartURL,
			sess.Status,
			sess.PagesCrawled,
			sess.ErrorsEncountered,
			sess.StartedAt.Format(time.RFC3339),
			completed,
		})
	}

	t.Render()
}
