// Package crawl implements the crawl command, which runs a crawl session to
// completion.
package crawl

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/cmd/common"
	"github.com/quarryhq/quarry/internal/database"
)

// Command returns the crawl command for use in the root command.
func Command() *cobra.Command {
	var resumeID string

	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a website starting from the given URL",
		Long: `Start a new crawl session seeded with the given URL and run it until the
URL frontier drains. Use --resume with a session ID to pick up an interrupted
session instead of starting a new one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if resumeID == "" && len(args) == 0 {
				return fmt.Errorf("either a start URL or --resume is required")
			}
			if resumeID != "" && len(args) > 0 {
				return fmt.Errorf("--resume and a start URL are mutually exclusive")
			}

			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}
			defer deps.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if schemaErr := database.EnsureSchema(ctx, deps.DB); schemaErr != nil {
				return fmt.Errorf("failed to ensure schema: %w", schemaErr)
			}

			engine := common.BuildEngine(deps)

			sessionID := resumeID
			if resumeID != "" {
				if _, recoverErr := engine.Sessions.Recover(ctx, resumeID); recoverErr != nil {
					return recoverErr
				}
			} else {
				sess, startErr := engine.Sessions.Start(ctx, args[0])
				if startErr != nil {
					return startErr
				}
				sessionID = sess.ID
				deps.Logger.Info("crawl session started", "session_id", sess.ID, "start_url", sess.StartURL)
			}

			return engine.Scheduler.Run(ctx, sessionID)
		},
	}

	cmd.Flags().StringVar(&resumeID, "resume", "", "resume an interrupted session by ID")

	return cmd
}
