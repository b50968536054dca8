package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

var (
	addContent    string
	addTags       string
	addImportance float64
	addPermanent  bool
	addNoAutoLink bool
	addSource     string
)

var addCmd = &cobra.Command{
	Use:   "add <type> <title>",
	Short: "Store a memory",
	Long: `Store a memory of the given type. Near-duplicates of the same type are
merged instead of inserted; exact type+title repeats only bump the access count.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *engram.Engine, _ *config.Config) error {
			in := engram.AddInput{
				Type:                 engram.MemoryType(args[0]),
				Title:                args[1],
				Content:              addContent,
				Permanent:            addPermanent,
				NoAutoLink:           addNoAutoLink,
				SourceConversationID: addSource,
			}
			if cmd.Flags().Changed("importance") {
				in.Importance = &addImportance
			}
			if addTags != "" {
				for _, tag := range strings.Split(addTags, ",") {
					in.Tags = append(in.Tags, strings.TrimSpace(tag))
				}
			}

			res, err := e.Add(cmd.Context(), in)
			if err != nil {
				return err
			}

			switch res.Status {
			case engram.StatusDuplicate:
				fmt.Printf("duplicate of memory %d (access bumped)\n", res.ID)
			case engram.StatusMerged:
				fmt.Printf("merged into memory %d\n", res.MergedInto)
			default:
				fmt.Printf("created memory %d\n", res.ID)
			}
			return nil
		})
	},
}

func init() {
	addCmd.Flags().StringVarP(&addContent, "content", "c", "", "memory content")
	addCmd.Flags().StringVarP(&addTags, "tags", "t", "", "comma-separated tags")
	addCmd.Flags().Float64VarP(&addImportance, "importance", "i", 0.5, "importance in [0,1]")
	addCmd.Flags().BoolVar(&addPermanent, "permanent", false, "exempt from decay and prune")
	addCmd.Flags().BoolVar(&addNoAutoLink, "no-auto-link", false, "skip automatic linking to neighbours")
	addCmd.Flags().StringVar(&addSource, "conversation", "", "source conversation id")
	rootCmd.AddCommand(addCmd)
}
