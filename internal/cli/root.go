package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foramoment/engram-ai-memory/internal/config"
	"github.com/foramoment/engram-ai-memory/internal/logger"
	"github.com/foramoment/engram-ai-memory/internal/tracing"
	"github.com/foramoment/engram-ai-memory/pkg/embed"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

const version = "0.1.0"

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Engram - cognitive memory engine for AI agents",
	Long: `Engram persists typed memories with semantic embeddings and lexical
indices, and reconstructs task-relevant context inside a token budget:
add, recall, search, link, session tracking, and sleep consolidation.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.engram/engram.json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is <data_dir>/data/engram.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig resolves configuration with CLI flag overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// buildService wires the embedding service singleton for the configured
// provider.
func buildService(cfg *config.Config) (*embed.Service, error) {
	embed.Configure(func() (*embed.Service, error) {
		switch cfg.Embedding.Provider {
		case "mock":
			return embed.NewService(embed.NewMockProvider(embed.EncoderDimension), embed.NewMockReranker()), nil
		case "openai":
			provider := embed.NewOpenAIProvider(
				cfg.Embedding.OpenAIAPIKey,
				cfg.Embedding.OpenAIModel,
				cfg.Embedding.OpenAIBaseURL,
			)
			// No remote cross-encoder; rerank requests fall back to fused order.
			return embed.NewService(provider, nil), nil
		default:
			provider, err := embed.NewLocalProvider(embed.LocalConfig{
				CacheDir:       cfg.ResolvedModelCacheDir(),
				EncoderRepo:    cfg.Embedding.EncoderRepo,
				RerankerRepo:   cfg.Embedding.RerankerRepo,
				OrtLibraryPath: cfg.Embedding.OrtLibraryPath,
			})
			if err != nil {
				return nil, err
			}
			return embed.NewService(provider, provider), nil
		}
	})
	return embed.Get()
}

// withEngine loads config, opens the store, and hands a ready engine to fn.
func withEngine(cmd *cobra.Command, fn func(e *engram.Engine, cfg *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	appLog, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return err
	}
	defer appLog.Close()

	if err := tracing.InitOpenTelemetry("engram"); err != nil {
		appLog.Warn().Err(err).Msg("Tracing init failed")
	}

	svc, err := buildService(cfg)
	if err != nil {
		return fmt.Errorf("embedding service: %w", err)
	}

	store, err := engram.OpenStore(engram.StoreConfig{
		Path:      cfg.ResolvedDBPath(),
		Dimension: svc.Dimension(),
		Logger:    appLog.Zerolog(),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	e := engram.New(store, svc, appLog.Zerolog(), engram.Options{
		MergeThreshold:    cfg.Write.MergeThreshold,
		AutoLinkThreshold: cfg.Write.AutoLinkThreshold,
		MaxAutoLinks:      cfg.Write.MaxAutoLinks,
	})
	return fn(e, cfg)
}
