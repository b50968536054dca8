package cli

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var (
	sleepDryRun    bool
	sleepDecayRate float64
	sleepPrune     float64
	sleepMerge     float64
	sleepEvery     string
	sleepPreview   bool
)

var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Run the consolidation cycle: decay, prune, merge, boost",
	Long: `Run sleep consolidation once, preview it, or keep it running on a cron
schedule with --every (e.g. --every @daily). Scheduled runs are skipped while
the consolidation interval has not elapsed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, cfg *config.Config) error {
			ctx := cmd.Context()

			opts := consolidationOptions(cfg)
			opts.DryRun = sleepDryRun
			if cmd.Flags().Changed("decay-rate") {
				opts.DecayRate = sleepDecayRate
			}
			if cmd.Flags().Changed("prune") {
				opts.PruneThreshold = sleepPrune
			}
			if cmd.Flags().Changed("merge") {
				opts.MergeThreshold = sleepMerge
			}

			if sleepPreview {
				preview, err := e.Preview(ctx, opts)
				if err != nil {
					return err
				}
				fmt.Printf("%d merge candidates\n", preview.MergeCandidates)
				fmt.Println("weakest memories:")
				for _, m := range preview.Weakest {
					fmt.Printf("  %d\t%.3f\t[%s] %s\n", m.ID, m.Strength, m.Type, m.Title)
				}
				return nil
			}

			if sleepEvery != "" {
				runner := cron.New()
				_, err := runner.AddFunc(sleepEvery, func() {
					due, err := e.ShouldConsolidate(cfg.Consolidation.IntervalDays)
					if err != nil || !due {
						return
					}
					if report, err := e.RunConsolidation(ctx, opts); err == nil {
						printConsolidation(report)
					} else {
						fmt.Println(err)
					}
				})
				if err != nil {
					return fmt.Errorf("invalid --every schedule: %w", err)
				}
				runner.Start()
				defer runner.Stop()
				fmt.Printf("sleeping on schedule %q\n", sleepEvery)
				<-ctx.Done()
				return nil
			}

			report, err := e.RunConsolidation(ctx, opts)
			if err != nil {
				return err
			}
			printConsolidation(report)
			return nil
		})
	},
}

func consolidationOptions(cfg *config.Config) engram.ConsolidationOptions {
	return engram.ConsolidationOptions{
		DecayRate:      cfg.Consolidation.DecayRate,
		PruneThreshold: cfg.Consolidation.PruneThreshold,
		MergeThreshold: cfg.Consolidation.MergeThreshold,
		BoostFactor:    cfg.Consolidation.BoostFactor,
		BoostMinAccess: cfg.Consolidation.BoostMinAccess,
	}
}

func printConsolidation(r engram.ConsolidationReport) {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Printf("consolidated%s: %d decayed, %d pruned, %d merged, %d boosted in %s\n",
		mode, r.Decayed, r.Pruned, r.Merged, r.Boosted, r.Elapsed.Round(time.Millisecond))
}

func init() {
	sleepCmd.Flags().BoolVar(&sleepDryRun, "dry-run", false, "report without mutating")
	sleepCmd.Flags().Float64Var(&sleepDecayRate, "decay-rate", 0.95, "per-day strength multiplier")
	sleepCmd.Flags().Float64Var(&sleepPrune, "prune", 0.05, "archive below this strength")
	sleepCmd.Flags().Float64Var(&sleepMerge, "merge", 0.92, "merge similarity threshold")
	sleepCmd.Flags().StringVar(&sleepEvery, "every", "", "cron schedule for recurring sleep (e.g. @daily)")
	sleepCmd.Flags().BoolVar(&sleepPreview, "preview", false, "show weakest memories and merge candidates")
	rootCmd.AddCommand(sleepCmd)
}
