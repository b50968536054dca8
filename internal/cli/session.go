package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/internal/summarizer"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var (
	sessionTitle           string
	sessionSummary         string
	sessionAutoSummary     bool
	sessionAutoConsolidate bool
	sessionLimit           int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Track working sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start [id]",
	Short: "Start a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			s, err := e.StartSession(cmd.Context(), id, sessionTitle)
			if err != nil {
				return err
			}
			fmt.Printf("session %s started\n", s.ID)
			return nil
		})
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <id>",
	Short: "End a session",
	Long: `End a session, optionally storing a summary. --auto-summary asks the
configured model to write one from the memories accessed during the session;
--auto-consolidate runs a sleep cycle afterwards if one is due.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, cfg *config.Config) error {
			ctx := cmd.Context()
			id := args[0]
			summary := sessionSummary

			if sessionAutoSummary && summary == "" {
				session, accessed, err := e.SessionContext(ctx, id)
				if err != nil {
					return err
				}
				sum, err := summarizer.New(cfg.Summarizer.APIKey, cfg.Summarizer.Model)
				if err != nil {
					return err
				}
				memories := make([]summarizer.SessionMemory, 0, len(accessed))
				for _, m := range accessed {
					memories = append(memories, summarizer.SessionMemory{
						Type:    string(m.Type),
						Title:   m.Title,
						Content: m.Content,
					})
				}
				summary, err = sum.Summarize(ctx, session.Title, memories)
				if err != nil {
					return err
				}
			}

			ok, err := e.EndSession(ctx, id, summary)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("session %s not found", id)
			}
			fmt.Printf("session %s ended\n", id)

			if sessionAutoConsolidate {
				due, err := e.ShouldConsolidate(cfg.Consolidation.IntervalDays)
				if err != nil {
					return err
				}
				if due {
					report, err := e.RunConsolidation(ctx, consolidationOptions(cfg))
					if err != nil {
						return err
					}
					printConsolidation(report)
				}
			}
			return nil
		})
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			sessions, err := e.ListSessions(cmd.Context(), engram.SessionListOptions{Limit: sessionLimit})
			if err != nil {
				return err
			}
			for _, s := range sessions {
				state := "open"
				if s.EndedAt != nil {
					state = "ended"
				}
				fmt.Printf("%s\t%s\t%s\t%s\n", s.ID, state, s.StartedAt.Format("2006-01-02 15:04"), s.Title)
			}
			return nil
		})
	},
}

func init() {
	sessionStartCmd.Flags().StringVarP(&sessionTitle, "title", "t", "", "session title")
	sessionEndCmd.Flags().StringVarP(&sessionSummary, "summary", "s", "", "session summary")
	sessionEndCmd.Flags().BoolVar(&sessionAutoSummary, "auto-summary", false, "generate the summary from accessed memories")
	sessionEndCmd.Flags().BoolVar(&sessionAutoConsolidate, "auto-consolidate", false, "run sleep consolidation if due")
	sessionListCmd.Flags().IntVarP(&sessionLimit, "limit", "n", 20, "number of sessions")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionListCmd)
	rootCmd.AddCommand(sessionCmd)
}
