package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var markRemove bool

var markCmd = &cobra.Command{
	Use:   "mark <id>",
	Short: "Toggle the permanent flag on a memory",
	Long:  `Mark a memory permanent so sleep consolidation never decays or prunes it.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if _, ok, err := e.Get(cmd.Context(), id); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("memory %d not found", id)
			}

			if err := e.MarkPermanent(cmd.Context(), id, !markRemove); err != nil {
				return err
			}
			if markRemove {
				fmt.Printf("memory %d is no longer permanent\n", id)
			} else {
				fmt.Printf("memory %d marked permanent\n", id)
			}
			return nil
		})
	},
}

func init() {
	markCmd.Flags().BoolVar(&markRemove, "remove", false, "remove the permanent flag")
	rootCmd.AddCommand(markCmd)
}
