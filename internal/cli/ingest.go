package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/internal/ingest"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var (
	ingestFile       string
	ingestRemoveFile bool
	ingestWatchDir   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [json]",
	Short: "Batch-store memories from JSON",
	Long: `Ingest a JSON array of memories from an inline argument, a file, standard
input, or a watched drop directory. The command fails unless every item
succeeds; --remove-file deletes the input file only on full success.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			ctx := cmd.Context()
			logger := e.Logger()

			if ingestWatchDir != "" {
				return ingest.Watch(ctx, e, ingestWatchDir, logger)
			}

			var report ingest.Report
			var err error
			switch {
			case ingestFile != "":
				report, err = ingest.File(ctx, e, ingestFile, ingestRemoveFile, logger)
			case len(args) == 1:
				report, err = ingest.Bytes(ctx, e, []byte(args[0]), logger)
			default:
				data, readErr := io.ReadAll(os.Stdin)
				if readErr != nil {
					return readErr
				}
				report, err = ingest.Bytes(ctx, e, data, logger)
			}
			if err != nil {
				return err
			}

			fmt.Printf("ingested %d/%d memories\n", report.Succeeded, report.Total)
			if !report.OK() {
				for _, item := range report.Items {
					if item.Err != "" {
						fmt.Fprintf(os.Stderr, "item %d (%s): %s\n", item.Index, item.Title, item.Err)
					}
				}
				return fmt.Errorf("%d of %d items failed", report.Failed, report.Total)
			}
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "JSON batch file")
	ingestCmd.Flags().BoolVar(&ingestRemoveFile, "remove-file", false, "delete the batch file when every item succeeds")
	ingestCmd.Flags().StringVar(&ingestWatchDir, "watch", "", "watch a drop directory for *.json batches")
	rootCmd.AddCommand(ingestCmd)
}
