package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // hash | openai
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
	Dim      int    `yaml:"dim"` // hash provider only
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai | local
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	LocalURL    string  `yaml:"local_url"`
	LocalModel  string  `yaml:"local_model"`
}

type RAGConfig struct {
	MaxTokens      int     `yaml:"max_tokens"`
	OverlapTokens  int     `yaml:"overlap_tokens"`
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	PromptName     string  `yaml:"prompt_name"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is built once at startup and treated as read-only afterwards.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Store     string          `yaml:"store"` // postgres | memory
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	RAG       RAGConfig       `yaml:"rag"`
}

func LoadConfig(path string) (*Config, error) {
	// .env is optional; credentials may come from the environment instead
	// of the YAML file.
	_ = godotenv.Load()

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Store:  "postgres",
		Embedding: EmbeddingConfig{
			Provider: "hash",
			Model:    "text-embedding-3-small",
			Dim:      128,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   1024,
			LocalURL:    "http://localhost:11434",
			LocalModel:  "llama3",
		},
		RAG: RAGConfig{
			MaxTokens:      400,
			OverlapTokens:  80,
			TopK:           5,
			ScoreThreshold: 0.95,
			PromptName:     "default",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.Key == "" {
			cfg.Embedding.Key = v
		}
		if cfg.LLM.Key == "" {
			cfg.LLM.Key = v
		}
	}
}
