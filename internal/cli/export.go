package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var (
	exportFormat   string
	exportOut      string
	exportArchived bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump memories, links, and sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			dump, err := e.Dump(cmd.Context(), exportArchived)
			if err != nil {
				return err
			}

			var data []byte
			switch exportFormat {
			case "json":
				data, err = engram.ExportJSON(dump)
				if err != nil {
					return err
				}
			case "md":
				data = []byte(engram.ExportMarkdown(dump))
			default:
				return fmt.Errorf("unknown export format %q: want json or md", exportFormat)
			}

			if exportOut == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(exportOut, data, 0644); err != nil {
				return err
			}
			fmt.Printf("exported %d memories to %s\n", len(dump.Memories), exportOut)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format: json or md")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().BoolVar(&exportArchived, "archived", false, "include archived memories")
	rootCmd.AddCommand(exportCmd)
}
