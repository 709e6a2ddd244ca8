package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	Ollama struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"ollama"`
	Embeddings struct {
		TextModel string `yaml:"text_model"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"embeddings"`
	Search struct {
		MaxResults            int           `yaml:"max_results"`
		MinSimilarity         float64       `yaml:"min_similarity"`
		VectorWeight          float64       `yaml:"vector_weight"`
		KeywordWeight         float64       `yaml:"keyword_weight"`
		Timeout               time.Duration `yaml:"timeout"`
		MinLanguageConfidence float64       `yaml:"min_language_confidence"`
	} `yaml:"search"`
	Processing struct {
		ChunkSize         int           `yaml:"chunk_size"`
		ChunkOverlap      int           `yaml:"chunk_overlap"`
		MaxRetries        int           `yaml:"max_retries"`
		RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
		BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	} `yaml:"processing"`
	Notifications struct {
		OnProgress bool `yaml:"on_progress"`
		OnComplete bool `yaml:"on_complete"`
		OnError    bool `yaml:"on_error"`
		HistoryCap int  `yaml:"history_cap"`
	} `yaml:"notifications"`
	Paths struct {
		DocumentsDir string `yaml:"documents_dir"`
	} `yaml:"paths"`
}

// Load loads configuration from file or returns defaults. Environment
// variables (optionally from a .env file) override file values.
func Load() (*Config, error) {
	cfg := Default()

	configPath := filepath.Join(os.Getenv("HOME"), ".docsearch", "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.ConnectionString = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embeddings.TextModel = v
	}

	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save() error {
	configDir := filepath.Join(os.Getenv("HOME"), ".docsearch")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Database.ConnectionString = "postgres://postgres@localhost/postgres?sslmode=disable"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Embeddings.TextModel = "nomic-embed-text"
	cfg.Embeddings.Dimension = 768

	cfg.Search.MaxResults = 10
	cfg.Search.MinSimilarity = 0.3
	cfg.Search.VectorWeight = 0.7
	cfg.Search.KeywordWeight = 0.3
	cfg.Search.Timeout = 30 * time.Second
	cfg.Search.MinLanguageConfidence = 0.5

	cfg.Processing.ChunkSize = 512
	cfg.Processing.ChunkOverlap = 50
	cfg.Processing.MaxRetries = 3
	cfg.Processing.RetryBaseDelay = 2 * time.Second
	cfg.Processing.BackoffMultiplier = 2

	cfg.Notifications.OnProgress = false
	cfg.Notifications.OnComplete = true
	cfg.Notifications.OnError = true
	cfg.Notifications.HistoryCap = 100

	cfg.Paths.DocumentsDir = filepath.Join(os.Getenv("HOME"), "documents")

	return cfg
}
