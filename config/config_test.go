package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedVars = []string{
	"SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY",
	"SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY", "AI_PROVIDER", "AI_BASE_URL",
	"OPENAI_BASE_URL", "OPENAI_API_KEY", "AI_API_KEY", "EMBEDDING_MODEL", "CHAT_MODEL",
	"AI_TIMEOUT", "AI_RETRY", "LOG_LEVEL", "LOG_FORMAT", "MIRROR_DIR",
}

func clearEnv(t *testing.T) {
	for _, k := range managedVars {
		t.Setenv(k, "")
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "https://api.openai.com", cfg.AI.BaseURL)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.EmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.ChatModel)
	assert.Equal(t, time.Minute, cfg.AI.Timeout)
	assert.False(t, cfg.AI.Retry)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, ".", cfg.Mirror.Dir)
	assert.Empty(t, cfg.Backend.URL)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEXT_PUBLIC_SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service")
	t.Setenv("NEXT_PUBLIC_SUPABASE_ANON_KEY", "anon")
	t.Setenv("AI_PROVIDER", "Ollama")
	t.Setenv("AI_TIMEOUT", "15s")
	t.Setenv("AI_RETRY", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "https://abc.supabase.co", cfg.Backend.URL)
	assert.Equal(t, "service", cfg.BackendKey(true))
	assert.Equal(t, "anon", cfg.BackendKey(false))
	assert.Equal(t, "ollama", cfg.AI.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.AI.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.AI.Timeout)
	assert.True(t, cfg.AI.Retry)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv only fills variables that are absent from the environment
	require.NoError(t, os.Unsetenv("MIRROR_DIR"))
	t.Cleanup(func() { _ = os.Unsetenv("MIRROR_DIR") })

	path := filepath.Join(t.TempDir(), ".env.local")
	require.NoError(t, os.WriteFile(path, []byte("MIRROR_DIR=/tmp/mirrors\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/mirrors", cfg.Mirror.Dir)
}

func TestLoad_UnsupportedProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_PROVIDER", "carrier-pigeon")

	_, err := Load(noEnvFile(t))
	assert.Error(t, err)
}

func TestRequire(t *testing.T) {
	testCases := []struct {
		name        string
		cfg         Config
		serviceRole bool
		backendErr  bool
		aiErr       bool
	}{
		{
			name:        "everything present",
			cfg:         Config{Backend: BackendConfig{URL: "u", ServiceRoleKey: "s", AnonKey: "a"}, AI: AIConfig{Provider: "openai", APIKey: "k"}},
			serviceRole: true,
		},
		{
			name:        "missing url",
			cfg:         Config{Backend: BackendConfig{ServiceRoleKey: "s"}, AI: AIConfig{Provider: "openai", APIKey: "k"}},
			serviceRole: true,
			backendErr:  true,
		},
		{
			name:       "anon key required for public access",
			cfg:        Config{Backend: BackendConfig{URL: "u", ServiceRoleKey: "s"}, AI: AIConfig{Provider: "openai"}},
			backendErr: true,
			aiErr:      true,
		},
		{
			name: "ollama needs no key",
			cfg:  Config{Backend: BackendConfig{URL: "u", AnonKey: "a"}, AI: AIConfig{Provider: "ollama"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.RequireBackend(tc.serviceRole)
			if tc.backendErr {
				assert.ErrorIs(t, err, ErrMissingVariable)
			} else {
				assert.NoError(t, err)
			}

			err = tc.cfg.RequireAI()
			if tc.aiErr {
				assert.ErrorIs(t, err, ErrMissingVariable)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
