package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var (
	recallBudget  int
	recallType    string
	recallSession string
	recallShort   bool
	recallK       int
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Assemble task-relevant context inside a token budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			result, err := e.Recall(cmd.Context(), args[0], engram.RecallOptions{
				K:         recallK,
				Budget:    recallBudget,
				Type:      engram.MemoryType(recallType),
				SessionID: recallSession,
			})
			if err != nil {
				return err
			}

			if recallShort {
				for _, m := range result.Memories {
					fmt.Printf("%d\t[%s] %s (%.3f)\n", m.ID, m.Type, m.Title, m.Composite)
				}
				fmt.Printf("%d memories | ~%d tokens\n", len(result.Memories), result.TotalTokensEstimate)
				return nil
			}

			fmt.Print(engram.RenderRecall(result))
			return nil
		})
	},
}

func init() {
	recallCmd.Flags().IntVarP(&recallBudget, "budget", "b", 4000, "token budget")
	recallCmd.Flags().StringVarP(&recallType, "type", "t", "", "restrict to a memory type")
	recallCmd.Flags().StringVarP(&recallSession, "session", "s", "", "session id for context and access logging")
	recallCmd.Flags().BoolVar(&recallShort, "short", false, "one line per memory")
	recallCmd.Flags().IntVarP(&recallK, "k", "k", 10, "candidate pool size")
	rootCmd.AddCommand(recallCmd)
}
