// Package config loads persistent settings from a JSON file and the
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the persistent configuration for the retrieval engine.
type Config struct {
	DocsDir        string `json:"docs_dir,omitempty"`        // Documentation root to ingest
	DataDir        string `json:"data_dir,omitempty"`        // Where the chunk store and graph snapshot live
	EmbeddingKey   string `json:"embedding_key,omitempty"`   // OpenAI API key for embeddings
	EmbeddingModel string `json:"embedding_model,omitempty"` // Embedding model name
	BaseURL        string `json:"base_url,omitempty"`        // Optional override for the embeddings API base URL
	Language       string `json:"language,omitempty"`        // Documentation code language tag
	Watch          bool   `json:"watch"`                     // Re-index documentation files as they change

	MaxChunkSize int `json:"max_chunk_size,omitempty"`
	MinChunkSize int `json:"min_chunk_size,omitempty"`

	InitialK       int     `json:"initial_k,omitempty"`
	MaxTotalChunks int     `json:"max_total_chunks,omitempty"`
	GraphDistance  int     `json:"graph_distance,omitempty"`
	Threshold      float64 `json:"threshold,omitempty"`
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a configuration manager rooted at the user's
// config directory.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{configDir: filepath.Join(configDir, "docrag")}, nil
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk. A missing file yields an
// empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to disk with restricted permissions,
// since it can carry an API key.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}

// LoadWithEnv loads the saved config and layers environment variables
// on top. A .env file in the working directory is read first when
// present; explicit environment variables win over it.
func (m *Manager) LoadWithEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := m.Load()
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DOCRAG_DOCS_DIR"); v != "" {
		cfg.DocsDir = v
	}
	if v := os.Getenv("DOCRAG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.EmbeddingKey = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("DOCRAG_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("DOCRAG_WATCH"); v != "" {
		if watch, err := strconv.ParseBool(v); err == nil {
			cfg.Watch = watch
		}
	}
}
