package hmochat

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the chat engine.
type Config struct {
	// KBDir is the root directory scanned for benefits HTML files.
	KBDir string `json:"kb_dir" yaml:"kb_dir"`

	// CacheDir holds fingerprinted KB build caches.
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// StorePath, when set, enables the SQLite turn/query audit log.
	StorePath string `json:"store_path" yaml:"store_path"`

	// Azure OpenAI endpoint and deployments.
	Azure AzureConfig `json:"azure" yaml:"azure"`

	// Retrieval knobs.
	TopK            int     `json:"top_k" yaml:"top_k"`
	MaxContextChars int     `json:"max_context_chars" yaml:"max_context_chars"`
	MaxHistoryChars int     `json:"max_history_chars" yaml:"max_history_chars"`
	HMOMismatchBias float64 `json:"hmo_mismatch_bias" yaml:"hmo_mismatch_bias"`
	TierMatchBias   float64 `json:"tier_match_bias" yaml:"tier_match_bias"`
	EmbedBatchSize  int     `json:"embed_batch_size" yaml:"embed_batch_size"`

	// EmbeddingDim sizes the audit store's vector table. Must match the
	// embeddings deployment. Only used when StorePath is set.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// AzureConfig configures the Azure OpenAI adapter.
type AzureConfig struct {
	Endpoint             string  `json:"endpoint" yaml:"endpoint"`
	APIKey               string  `json:"api_key" yaml:"api_key"`
	APIVersion           string  `json:"api_version" yaml:"api_version"`
	ChatDeployment       string  `json:"chat_deployment" yaml:"chat_deployment"`
	EmbeddingsDeployment string  `json:"embeddings_deployment" yaml:"embeddings_deployment"`
	RequestTimeoutS      float64 `json:"request_timeout_s" yaml:"request_timeout_s"`
	MaxRetries           int     `json:"max_retries" yaml:"max_retries"`
	BackoffBaseS         float64 `json:"backoff_base_s" yaml:"backoff_base_s"`
}

// RequestTimeout returns the per-call timeout as a duration.
func (a AzureConfig) RequestTimeout() time.Duration {
	return time.Duration(a.RequestTimeoutS * float64(time.Second))
}

// BackoffBase returns the retry backoff base as a duration.
func (a AzureConfig) BackoffBase() time.Duration {
	return time.Duration(a.BackoffBaseS * float64(time.Second))
}

// DefaultConfig returns a Config with the standard retrieval knobs.
func DefaultConfig() Config {
	return Config{
		KBDir:    "kb_data",
		CacheDir: ".kb_cache",
		Azure: AzureConfig{
			APIVersion:      "2024-10-21",
			RequestTimeoutS: 30,
			MaxRetries:      3,
			BackoffBaseS:    0.6,
		},
		TopK:            6,
		MaxContextChars: 12000,
		MaxHistoryChars: 42000,
		HMOMismatchBias: 0.75,
		TierMatchBias:   1.08,
		EmbedBatchSize:  64,
		EmbeddingDim:    1536,
	}
}

// LoadConfig reads a YAML config file into DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides config fields from the environment.
func (c *Config) ApplyEnv() {
	setStr(&c.KBDir, "KB_DIR")
	setStr(&c.CacheDir, "CACHE_DIR")
	setStr(&c.StorePath, "STORE_PATH")
	setStr(&c.Azure.Endpoint, "AZURE_OPENAI_ENDPOINT")
	setStr(&c.Azure.APIKey, "AZURE_OPENAI_API_KEY")
	setStr(&c.Azure.APIVersion, "AZURE_OPENAI_API_VERSION")
	setStr(&c.Azure.ChatDeployment, "CHAT_DEPLOYMENT")
	setStr(&c.Azure.EmbeddingsDeployment, "EMBEDDINGS_DEPLOYMENT")
	setFloat(&c.Azure.RequestTimeoutS, "REQUEST_TIMEOUT_S")
	setInt(&c.Azure.MaxRetries, "MAX_RETRIES")
	setFloat(&c.Azure.BackoffBaseS, "BACKOFF_BASE_S")
	setInt(&c.TopK, "TOP_K")
	setInt(&c.MaxContextChars, "MAX_CONTEXT_CHARS")
	setInt(&c.MaxHistoryChars, "MAX_HISTORY_CHARS")
	setInt(&c.EmbeddingDim, "EMBEDDING_DIM")
}

// Validate checks the fields the engine cannot run without.
func (c Config) Validate() error {
	if c.Azure.Endpoint == "" {
		return fmt.Errorf("%w: azure endpoint not set", ErrInvalidConfig)
	}
	if c.Azure.ChatDeployment == "" {
		return fmt.Errorf("%w: chat deployment not set", ErrInvalidConfig)
	}
	if c.Azure.EmbeddingsDeployment == "" {
		return fmt.Errorf("%w: embeddings deployment not set", ErrInvalidConfig)
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
