package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingVariable is returned when a required environment variable is unset.
var ErrMissingVariable = errors.New("missing required environment variable")

// DefaultEnvFiles are loaded in order; values already in the environment win.
var DefaultEnvFiles = []string{".env.local", ".env"}

// Config holds everything the commands read from the process environment.
type Config struct {
	Backend BackendConfig
	AI      AIConfig
	Log     LogConfig
	Mirror  MirrorConfig
}

// BackendConfig holds the hosted data service endpoint and keys.
type BackendConfig struct {
	URL            string
	ServiceRoleKey string
	AnonKey        string
}

// AIConfig holds the embeddings / chat-completion service settings.
type AIConfig struct {
	Provider       string // openai, litellm, ollama
	BaseURL        string
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	Timeout        time.Duration
	Retry          bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // console, json
}

// MirrorConfig holds the local vector mirror location.
type MirrorConfig struct {
	Dir string
}

var defaultBaseURLs = map[string]string{
	"openai":  "https://api.openai.com",
	"litellm": "http://localhost:4000",
	"ollama":  "http://localhost:11434",
}

// Load reads dotenv files (missing ones are skipped) and then the environment.
// Priority (highest to lowest):
// 1. Process environment
// 2. The first env file that defines the variable
// 3. Built-in defaults
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading env file %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string][]string{
		"backend.url":              {"SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL"},
		"backend.service_role_key": {"SUPABASE_SERVICE_ROLE_KEY"},
		"backend.anon_key":         {"SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY"},
		"ai.provider":              {"AI_PROVIDER"},
		"ai.base_url":              {"AI_BASE_URL", "OPENAI_BASE_URL"},
		"ai.api_key":               {"OPENAI_API_KEY", "AI_API_KEY"},
		"ai.embedding_model":       {"EMBEDDING_MODEL"},
		"ai.chat_model":            {"CHAT_MODEL"},
		"ai.timeout":               {"AI_TIMEOUT"},
		"ai.retry":                 {"AI_RETRY"},
		"log.level":                {"LOG_LEVEL"},
		"log.format":               {"LOG_FORMAT"},
		"mirror.dir":               {"MIRROR_DIR"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.embedding_model", "text-embedding-3-small")
	v.SetDefault("ai.chat_model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", time.Minute)
	v.SetDefault("ai.retry", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("mirror.dir", ".")

	cfg := &Config{
		Backend: BackendConfig{
			URL:            strings.TrimRight(v.GetString("backend.url"), "/"),
			ServiceRoleKey: v.GetString("backend.service_role_key"),
			AnonKey:        v.GetString("backend.anon_key"),
		},
		AI: AIConfig{
			Provider:       strings.ToLower(v.GetString("ai.provider")),
			BaseURL:        strings.TrimRight(v.GetString("ai.base_url"), "/"),
			APIKey:         v.GetString("ai.api_key"),
			EmbeddingModel: v.GetString("ai.embedding_model"),
			ChatModel:      v.GetString("ai.chat_model"),
			Timeout:        v.GetDuration("ai.timeout"),
			Retry:          v.GetBool("ai.retry"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Mirror: MirrorConfig{
			Dir: v.GetString("mirror.dir"),
		},
	}

	if _, ok := defaultBaseURLs[cfg.AI.Provider]; !ok {
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q (expected openai, litellm or ollama)", cfg.AI.Provider)
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = defaultBaseURLs[cfg.AI.Provider]
	}

	return cfg, nil
}

// BackendKey picks the service-role key when asked for it, the anon key otherwise.
func (c *Config) BackendKey(serviceRole bool) string {
	if serviceRole {
		return c.Backend.ServiceRoleKey
	}
	return c.Backend.AnonKey
}

// RequireBackend checks the variables needed to talk to the data service.
func (c *Config) RequireBackend(serviceRole bool) error {
	var missing []string
	if c.Backend.URL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if serviceRole && c.Backend.ServiceRoleKey == "" {
		missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
	}
	if !serviceRole && c.Backend.AnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	return missingError(missing)
}

// RequireAI checks the variables needed to call the embeddings / chat service.
// Ollama runs without a key.
func (c *Config) RequireAI() error {
	var missing []string
	if c.AI.APIKey == "" && c.AI.Provider != "ollama" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	return missingError(missing)
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
}
