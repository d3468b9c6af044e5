package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "store: memory\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 0.95, cfg.RAG.ScoreThreshold)
	assert.Equal(t, "default", cfg.RAG.PromptName)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
rag:
  top_k: 3
  score_threshold: 0.5
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, 0.5, cfg.RAG.ScoreThreshold)
	// untouched sections keep their defaults
	assert.Equal(t, 400, cfg.RAG.MaxTokens)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-host:5432/envdb")
	t.Setenv("DATABASE_PASSWORD", "env-secret")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	path := writeConfig(t, "store: postgres\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env-host:5432/envdb", cfg.Database.URL)
	assert.Equal(t, "env-secret", cfg.Database.Password)
	assert.Equal(t, "sk-env", cfg.Embedding.Key)
	assert.Equal(t, "sk-env", cfg.LLM.Key)
}

func TestLoadConfigKeyInFileWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	path := writeConfig(t, `
llm:
  key: sk-file
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.LLM.Key)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
