package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigRequiresLoad(t *testing.T) {
	SetConfigForTesting(nil)
	_, err := GetConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestLoadConfigCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Cleanup(func() { SetConfigForTesting(nil) })

	require.NoError(t, LoadConfig(path))

	// File should now exist on disk
	_, err := os.Stat(path)
	require.NoError(t, err)

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.InDelta(t, DefaultQualityThreshold, cfg.Reflection.QualityThreshold, 0.001)
	assert.Equal(t, DefaultMaxReflectionCycles, cfg.Reflection.MaxCycles)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Cleanup(func() { SetConfigForTesting(nil) })

	yaml := `
model:
  provider: openai
  name: gpt-4o
  api_key_env: OPENAI_API_KEY
reflection:
  quality_threshold: 7.5
  max_cycles: 2
server:
  addr: ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	require.NoError(t, LoadConfig(path))

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.InDelta(t, 7.5, cfg.Reflection.QualityThreshold, 0.001)
	assert.Equal(t, 2, cfg.Reflection.MaxCycles)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	// Defaults applied to omitted fields
	assert.Equal(t, 4096, cfg.Model.MaxTokens)
	assert.Equal(t, "messagecraft.db", cfg.Database.Path)
}

func TestLoadConfigRejectsBadProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Cleanup(func() { SetConfigForTesting(nil) })

	yaml := `
model:
  provider: watson
  name: some-model
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestLoadConfigRejectsBadThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Cleanup(func() { SetConfigForTesting(nil) })

	yaml := `
model:
  provider: anthropic
  name: claude-sonnet-4-5
reflection:
  quality_threshold: 11
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality_threshold")
}

func TestAPIKeyResolution(t *testing.T) {
	m := ModelCfg{Provider: ProviderAnthropic, Name: "m", APIKeyEnv: "TEST_MC_KEY"}

	_, err := m.APIKey()
	require.Error(t, err)

	t.Setenv("TEST_MC_KEY", "sk-test")
	key, err := m.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	ollama := ModelCfg{Provider: ProviderOllama, Name: "llama3"}
	key, err = ollama.APIKey()
	require.NoError(t, err)
	assert.Empty(t, key)
}
