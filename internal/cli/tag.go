package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagAddCmd = &cobra.Command{
	Use:   "add <id> <tag>...",
	Short: "Attach tags to a memory",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := e.Tag(cmd.Context(), id, args[1:]...); err != nil {
				return err
			}
			fmt.Printf("tagged memory %d\n", id)
			return nil
		})
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:   "remove <id> <tag>...",
	Short: "Detach tags from a memory",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := e.Untag(cmd.Context(), id, args[1:]...); err != nil {
				return err
			}
			fmt.Printf("untagged memory %d\n", id)
			return nil
		})
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags with usage counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			tags, err := e.ListTags(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tags {
				fmt.Printf("%s\t%d\n", t.Name, t.Count)
			}
			return nil
		})
	},
}

func init() {
	tagCmd.AddCommand(tagAddCmd)
	tagCmd.AddCommand(tagRemoveCmd)
	tagCmd.AddCommand(tagListCmd)
	rootCmd.AddCommand(tagCmd)
}
