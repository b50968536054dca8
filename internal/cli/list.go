package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var (
	listType     string
	listLimit    int
	listArchived bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			memories, err := e.List(cmd.Context(), engram.ListOptions{
				Type:            engram.MemoryType(listType),
				IncludeArchived: listArchived,
				Limit:           listLimit,
			})
			if err != nil {
				return err
			}
			for _, m := range memories {
				flag := ""
				if m.Archived {
					flag = "\tarchived"
				}
				fmt.Printf("%d\t[%s] %s\ts=%.2f i=%.2f a=%d%s\n",
					m.ID, m.Type, m.Title, m.Strength, m.Importance, m.AccessCount, flag)
			}
			return nil
		})
	},
}

func init() {
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "restrict to a memory type")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "number of memories")
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "include archived memories")
	rootCmd.AddCommand(listCmd)
}
