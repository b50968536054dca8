package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("memory id %q is not a number", arg)
	}
	return id, nil
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			m, ok, err := e.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("memory %d not found", id)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		})
	},
}

var (
	updateTitle      string
	updateContent    string
	updateImportance float64
	updateStrength   float64
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Patch a memory",
	Long:  `Patch a memory's fields. Changing title or content re-embeds it.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var in engram.UpdateInput
			if cmd.Flags().Changed("title") {
				in.Title = &updateTitle
			}
			if cmd.Flags().Changed("content") {
				in.Content = &updateContent
			}
			if cmd.Flags().Changed("importance") {
				in.Importance = &updateImportance
			}
			if cmd.Flags().Changed("strength") {
				in.Strength = &updateStrength
			}

			ok, err := e.Update(cmd.Context(), id, in)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("memory %d not found", id)
			}
			fmt.Printf("updated memory %d\n", id)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Hard-delete a memory and everything attached to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ok, err := e.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("memory %d not found", id)
			}
			fmt.Printf("deleted memory %d\n", id)
			return nil
		})
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	updateCmd.Flags().StringVarP(&updateContent, "content", "c", "", "new content")
	updateCmd.Flags().Float64VarP(&updateImportance, "importance", "i", 0.5, "new importance in [0,1]")
	updateCmd.Flags().Float64Var(&updateStrength, "strength", 1.0, "new strength in [0,1]")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
}
