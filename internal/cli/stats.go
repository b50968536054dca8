package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/internal/observability"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var (
	diagLimit        int
	diagDupThreshold float64
	diagServe        bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			s, err := e.CollectStats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("memories: %d active, %d archived\n", s.TotalMemories, s.ArchivedMemories)
			for _, t := range engram.MemoryTypes {
				if n := s.ByType[t]; n > 0 {
					fmt.Printf("  %-16s %d\n", t, n)
				}
			}
			fmt.Printf("links: %d | tags: %d | sessions: %d\n", s.TotalLinks, s.TotalTags, s.TotalSessions)
			if s.TotalMemories > 0 {
				fmt.Printf("avg importance %.2f | avg strength %.2f\n", s.AvgImportance, s.AvgStrength)
			}
			if s.LastConsolidation != nil {
				fmt.Printf("last consolidation: %s\n", s.LastConsolidation.Format("2006-01-02 15:04"))
			} else {
				fmt.Println("last consolidation: never")
			}
			if s.BruteForceVectors {
				fmt.Println("vector index: unavailable (exact scan fallback)")
			}
			return nil
		})
	},
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Report near-duplicate memories and engine health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, cfg *config.Config) error {
			pairs, err := e.FindDuplicates(cmd.Context(), diagDupThreshold, diagLimit)
			if err != nil {
				return err
			}

			if len(pairs) == 0 {
				fmt.Println("no near-duplicates above threshold")
			}
			for _, p := range pairs {
				fmt.Printf("%.3f\t%d %q <-> %d %q\n",
					p.Similarity, p.A.ID, p.A.Title, p.B.ID, p.B.Title)
			}

			if diagServe || cfg.Metrics.Enabled {
				fmt.Printf("serving metrics on %s/metrics\n", cfg.Metrics.Listen)
				return http.ListenAndServe(cfg.Metrics.Listen, observability.MetricsHandler())
			}
			return nil
		})
	},
}

func init() {
	diagnosticsCmd.Flags().IntVarP(&diagLimit, "limit", "n", 20, "max pairs to report")
	diagnosticsCmd.Flags().Float64Var(&diagDupThreshold, "dup-threshold", 0.85, "similarity threshold")
	diagnosticsCmd.Flags().BoolVar(&diagServe, "serve", false, "serve Prometheus metrics")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(diagnosticsCmd)
}
