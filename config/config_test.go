package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")

	content := `# This is a comment
OPENAI_API_KEY=sk-test123

SOME_VAR="quoted_value"
SINGLE_QUOTED='single'
EMPTY=
`
	os.WriteFile(envPath, []byte(content), 0644)

	// Clear env vars first
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("SOME_VAR")
	os.Unsetenv("SINGLE_QUOTED")
	os.Unsetenv("EMPTY")

	loadEnvFile(envPath)

	tests := []struct {
		key  string
		want string
	}{
		{"OPENAI_API_KEY", "sk-test123"},
		{"SOME_VAR", "quoted_value"},
		{"SINGLE_QUOTED", "single"},
		{"EMPTY", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, os.Getenv(tt.key))
		})
	}

	// Clean up
	for _, tt := range tests {
		os.Unsetenv(tt.key)
	}
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")

	os.WriteFile(envPath, []byte("MY_VAR=from_file\n"), 0644)
	os.Setenv("MY_VAR", "from_env")
	defer os.Unsetenv("MY_VAR")

	loadEnvFile(envPath)

	assert.Equal(t, "from_env", os.Getenv("MY_VAR"))
}

func TestLoadEnvFileMissing(t *testing.T) {
	// Should not panic on missing file
	loadEnvFile("/nonexistent/path/.env")
}

func TestConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	original := os.Getenv("XDG_CONFIG_HOME")
	defer os.Setenv("XDG_CONFIG_HOME", original)

	dir := t.TempDir()
	os.Setenv("XDG_CONFIG_HOME", dir)

	configDir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pilot"), configDir)
}

func TestConfigDirDefault(t *testing.T) {
	original := os.Getenv("XDG_CONFIG_HOME")
	os.Unsetenv("XDG_CONFIG_HOME")
	defer os.Setenv("XDG_CONFIG_HOME", original)

	configDir, err := ConfigDir()
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".config", "pilot"), configDir)
}

func TestLoadUsesFlagOverEnvOverDefault(t *testing.T) {
	os.Setenv("OPENAI_API_KEY", "sk-from-env")
	defer os.Unsetenv("OPENAI_API_KEY")

	v := viper.New()
	v.Set("model", "gpt-5.2-codex")
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "sk-from-env", cfg.APIKey)
	assert.Equal(t, "gpt-5.2-codex", cfg.Model)

	v2 := viper.New()
	v2.Set("model", "gpt-5.2-codex")
	v2.Set("api-key", "sk-from-flag")
	cfg2, err := Load(v2)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-flag", cfg2.APIKey, "explicit flag must win over the environment variable")
}

func TestLoadContextWindowOverride(t *testing.T) {
	os.Setenv("OPENAI_API_KEY", "sk-from-env")
	defer os.Unsetenv("OPENAI_API_KEY")

	v := viper.New()
	v.Set("context-window", 42000)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 42000, cfg.ContextWindow)
}

func TestLoadAnthropicProvider(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	v := viper.New()
	v.Set("provider", "anthropic")
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Model)
	assert.Equal(t, 200000, cfg.ContextWindow)
}
