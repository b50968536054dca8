package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var (
	searchMode   string
	searchK      int
	searchType   string
	searchRerank bool
	searchSince  string
	searchHops   int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories",
	Long: `Search memories semantically, lexically, or with hybrid rank fusion.
Hybrid mode supports cross-encoder reranking and link-graph expansion.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			ctx := cmd.Context()
			query := args[0]
			memType := engram.MemoryType(searchType)

			var results []engram.SearchResult
			var err error
			switch searchMode {
			case "semantic":
				results, err = e.SearchSemantic(ctx, query, engram.SemanticOptions{
					K: searchK, Type: memType, Since: searchSince,
				})
			case "fts":
				results, err = e.SearchFTS(ctx, query, engram.FTSOptions{
					K: searchK, Type: memType, Since: searchSince,
				})
			case "hybrid":
				results, err = e.SearchHybrid(ctx, query, engram.HybridOptions{
					K: searchK, Type: memType, Since: searchSince,
					Rerank: searchRerank, Hops: searchHops,
				})
			default:
				return fmt.Errorf("unknown search mode %q: want hybrid, semantic, or fts", searchMode)
			}
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for _, r := range results {
				score := fmt.Sprintf("%.3f", r.Score)
				if r.Score == engram.GraphScore {
					score = "graph"
				}
				fmt.Printf("%d\t%s\t[%s] %s\n", r.Memory.ID, score, r.Memory.Type, r.Memory.Title)
			}
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "hybrid", "search mode: hybrid, semantic, fts")
	searchCmd.Flags().IntVarP(&searchK, "k", "k", 10, "number of results")
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "", "restrict to a memory type")
	searchCmd.Flags().BoolVar(&searchRerank, "rerank", false, "cross-encode the top candidates")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "recency window, e.g. 2h, 7d, 2w, 1m")
	searchCmd.Flags().IntVar(&searchHops, "hops", 0, "link-graph expansion depth")
	rootCmd.AddCommand(searchCmd)
}
