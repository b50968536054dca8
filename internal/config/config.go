package config

import (
	"fmt"
	"path/filepath"
)

// Config represents the main Engram configuration
type Config struct {
	// Data directory; the database and model cache live under it
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Database file path; defaults to <data_dir>/data/engram.db
	DBPath string `json:"db_path" mapstructure:"db_path"`

	// Embedding configuration
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Write-path tuning
	Write WriteConfig `json:"write" mapstructure:"write"`

	// Consolidation defaults
	Consolidation ConsolidationConfig `json:"consolidation" mapstructure:"consolidation"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics listener
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Summarizer (session end --auto-summary)
	Summarizer SummarizerConfig `json:"summarizer" mapstructure:"summarizer"`
}

// EmbeddingConfig selects and tunes the encoder and cross-encoder
type EmbeddingConfig struct {
	Provider       string `json:"provider" mapstructure:"provider"` // local, openai, mock
	EncoderRepo    string `json:"encoder_repo" mapstructure:"encoder_repo"`
	RerankerRepo   string `json:"reranker_repo" mapstructure:"reranker_repo"`
	ModelCacheDir  string `json:"model_cache_dir" mapstructure:"model_cache_dir"`
	OrtLibraryPath string `json:"ort_library_path" mapstructure:"ort_library_path"`
	OpenAIModel    string `json:"openai_model" mapstructure:"openai_model"`
	OpenAIBaseURL  string `json:"openai_base_url" mapstructure:"openai_base_url"`
	OpenAIAPIKey   string `json:"openai_api_key" mapstructure:"openai_api_key"`
}

// WriteConfig tunes the write-path pipeline
type WriteConfig struct {
	MergeThreshold    float64 `json:"merge_threshold" mapstructure:"merge_threshold"`
	AutoLinkThreshold float64 `json:"auto_link_threshold" mapstructure:"auto_link_threshold"`
	MaxAutoLinks      int     `json:"max_auto_links" mapstructure:"max_auto_links"`
}

// ConsolidationConfig holds sleep-cycle defaults
type ConsolidationConfig struct {
	DecayRate      float64 `json:"decay_rate" mapstructure:"decay_rate"`
	PruneThreshold float64 `json:"prune_threshold" mapstructure:"prune_threshold"`
	MergeThreshold float64 `json:"merge_threshold" mapstructure:"merge_threshold"`
	BoostFactor    float64 `json:"boost_factor" mapstructure:"boost_factor"`
	BoostMinAccess int     `json:"boost_min_access" mapstructure:"boost_min_access"`
	IntervalDays   int     `json:"interval_days" mapstructure:"interval_days"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig controls the optional Prometheus listener
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// SummarizerConfig configures the Anthropic-backed session summarizer
type SummarizerConfig struct {
	APIKey string `json:"api_key" mapstructure:"api_key"`
	Model  string `json:"model" mapstructure:"model"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider: "local",
		},
		Write: WriteConfig{
			MergeThreshold:    0.92,
			AutoLinkThreshold: 0.7,
			MaxAutoLinks:      3,
		},
		Consolidation: ConsolidationConfig{
			DecayRate:      0.95,
			PruneThreshold: 0.05,
			MergeThreshold: 0.92,
			BoostFactor:    1.1,
			BoostMinAccess: 3,
			IntervalDays:   3,
		},
		Logging: LoggingConfig{
			Level:     "warn",
			Console:   true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9477",
		},
	}
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "local", "openai", "mock":
	default:
		return fmt.Errorf("embedding provider %q: want local, openai, or mock", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.OpenAIAPIKey == "" {
		return fmt.Errorf("embedding provider openai requires openai_api_key")
	}
	if c.Write.MergeThreshold < 0 || c.Write.MergeThreshold > 1 {
		return fmt.Errorf("write merge_threshold %v out of range [0,1]", c.Write.MergeThreshold)
	}
	if c.Write.AutoLinkThreshold < 0 || c.Write.AutoLinkThreshold > 1 {
		return fmt.Errorf("write auto_link_threshold %v out of range [0,1]", c.Write.AutoLinkThreshold)
	}
	if c.Consolidation.DecayRate <= 0 || c.Consolidation.DecayRate > 1 {
		return fmt.Errorf("consolidation decay_rate %v out of range (0,1]", c.Consolidation.DecayRate)
	}
	return nil
}

// ResolvedDBPath returns the database path, defaulting under the data dir
func (c *Config) ResolvedDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "data", "engram.db")
}

// ResolvedModelCacheDir returns the model cache dir, defaulting under the data dir
func (c *Config) ResolvedModelCacheDir() string {
	if c.Embedding.ModelCacheDir != "" {
		return c.Embedding.ModelCacheDir
	}
	return filepath.Join(c.DataDir, "models")
}
