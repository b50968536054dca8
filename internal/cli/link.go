package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var linkRelation string

var linkCmd = &cobra.Command{
	Use:   "link <source-id> <target-id>",
	Short: "Link two memories",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			src, err := parseID(args[0])
			if err != nil {
				return err
			}
			dst, err := parseID(args[1])
			if err != nil {
				return err
			}

			if err := e.LinkMemories(cmd.Context(), src, dst, engram.Relation(linkRelation), 0.5); err != nil {
				return err
			}
			fmt.Printf("linked %d %s %d\n", src, linkRelation, dst)
			return nil
		})
	},
}

func init() {
	linkCmd.Flags().StringVarP(&linkRelation, "relation", "r", string(engram.RelRelatedTo),
		"relation: related_to, caused_by, evolved_from, contradicts, supersedes")
	rootCmd.AddCommand(linkCmd)
}
