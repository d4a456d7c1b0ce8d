// Package config provides configuration loading and validation for the server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/letterlab/internal/llm"
)

// Storage backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the service configuration. Values come from the environment and,
// when a config file is given, from JSON used as defaults for anything unset.
type Config struct {
	Port        string `json:"port,omitempty"`
	Env         string `json:"env,omitempty"` // "development" or "production"
	DatabaseURL string `json:"database_url,omitempty"`
	Store       string `json:"store,omitempty"` // postgres or memory
	LogFile     string `json:"log_file,omitempty"`
	LogLevel    string `json:"log_level,omitempty"`

	// LLM
	LLMProvider       string  `json:"llm_provider,omitempty"`
	LLMModel          string  `json:"llm_model,omitempty"`
	LLMTemperature    float32 `json:"llm_temperature,omitempty"`
	GeminiAPIKey      string  `json:"gemini_api_key,omitempty"`
	OpenAIAPIKey      string  `json:"openai_api_key,omitempty"`
	OpenAIBaseURL     string  `json:"openai_base_url,omitempty"`
	AzureEndpoint     string  `json:"azure_openai_endpoint,omitempty"`
	AzureAPIKey       string  `json:"azure_openai_key,omitempty"`
	AzureDeployment   string  `json:"azure_openai_deployment,omitempty"`
	AzureAPIVersion   string  `json:"azure_openai_api_version,omitempty"`
	LLMTimeoutSeconds int     `json:"llm_timeout_seconds,omitempty"`
	LLMMaxAttempts    int     `json:"llm_max_attempts,omitempty"`
	LLMRetryDelayMS   int     `json:"llm_retry_delay_ms,omitempty"`

	// HTTP
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	CookieSecure   bool     `json:"cookie_secure,omitempty"`

	// Admin
	AdminUsername string `json:"admin_username,omitempty"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Port:              "8080",
		Env:               "development",
		Store:             StorePostgres,
		LLMProvider:       "gemini",
		LLMTemperature:    0.7,
		LLMTimeoutSeconds: 60,
		LLMMaxAttempts:    3,
		LLMRetryDelayMS:   1000,
		AllowedOrigins:    []string{"http://localhost:5173"},
		AdminUsername:     "admin",
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv reads the configuration from environment variables. Unset variables
// leave the zero value so the result can be merged with defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:            os.Getenv("PORT"),
		Env:             os.Getenv("APP_ENV"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Store:           os.Getenv("STORE"),
		LogFile:         os.Getenv("LOG_FILE"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		LLMProvider:     os.Getenv("LLM_PROVIDER"),
		LLMModel:        os.Getenv("LLM_MODEL"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		AzureEndpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureAPIKey:     os.Getenv("AZURE_OPENAI_KEY"),
		AzureDeployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
		AzureAPIVersion: os.Getenv("AZURE_OPENAI_API_VERSION"),
		AdminUsername:   os.Getenv("ADMIN_USERNAME"),
	}

	var err error
	if cfg.LLMMaxAttempts, err = envInt("LLM_MAX_ATTEMPTS"); err != nil {
		return nil, err
	}
	timeout, err := envDuration("LLM_TIMEOUT")
	if err != nil {
		return nil, err
	}
	cfg.LLMTimeoutSeconds = int(timeout / time.Second)
	delay, err := envDuration("LLM_RETRY_DELAY")
	if err != nil {
		return nil, err
	}
	cfg.LLMRetryDelayMS = int(delay / time.Millisecond)
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid LLM_TEMPERATURE: %v", err)
		}
		cfg.LLMTemperature = float32(f)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		cfg.CookieSecure, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COOKIE_SECURE: %v", err)
		}
	}

	return cfg, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

// envDuration parses a Go duration such as "45s"
func envDuration(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return d, nil
}

// Load merges environment, an optional config file and the built-in defaults,
// in that order of precedence, and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if path != "" {
		file, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		merged := cfg.MergeWithDefaults(*file)
		cfg = &merged
	}

	merged := cfg.MergeWithDefaults(Defaults())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: 'database_url' is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config error: unknown store %q", c.Store)
	}

	switch llm.Provider(c.LLMProvider) {
	case llm.ProviderGemini, llm.ProviderOpenAI, llm.ProviderAzure:
	default:
		return fmt.Errorf("config error: unknown llm provider %q", c.LLMProvider)
	}

	if c.LLMTimeoutSeconds < 0 || c.LLMMaxAttempts < 0 || c.LLMRetryDelayMS < 0 {
		return fmt.Errorf("config error: llm timeout, attempts and delay must be non-negative")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("config error: 'llm_temperature' must be between 0 and 2")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	mergeString(&result.Port, defaults.Port)
	mergeString(&result.Env, defaults.Env)
	mergeString(&result.DatabaseURL, defaults.DatabaseURL)
	mergeString(&result.Store, defaults.Store)
	mergeString(&result.LogFile, defaults.LogFile)
	mergeString(&result.LogLevel, defaults.LogLevel)
	mergeString(&result.LLMProvider, defaults.LLMProvider)
	mergeString(&result.LLMModel, defaults.LLMModel)
	mergeString(&result.GeminiAPIKey, defaults.GeminiAPIKey)
	mergeString(&result.OpenAIAPIKey, defaults.OpenAIAPIKey)
	mergeString(&result.OpenAIBaseURL, defaults.OpenAIBaseURL)
	mergeString(&result.AzureEndpoint, defaults.AzureEndpoint)
	mergeString(&result.AzureAPIKey, defaults.AzureAPIKey)
	mergeString(&result.AzureDeployment, defaults.AzureDeployment)
	mergeString(&result.AzureAPIVersion, defaults.AzureAPIVersion)
	mergeString(&result.AdminUsername, defaults.AdminUsername)

	// Numeric fields: use default if zero
	if result.LLMTemperature == 0 {
		result.LLMTemperature = defaults.LLMTemperature
	}
	if result.LLMTimeoutSeconds == 0 {
		result.LLMTimeoutSeconds = defaults.LLMTimeoutSeconds
	}
	if result.LLMMaxAttempts == 0 {
		result.LLMMaxAttempts = defaults.LLMMaxAttempts
	}
	if result.LLMRetryDelayMS == 0 {
		result.LLMRetryDelayMS = defaults.LLMRetryDelayMS
	}

	if len(result.AllowedOrigins) == 0 {
		result.AllowedOrigins = defaults.AllowedOrigins
	}

	// Bools cannot distinguish unset from false; a true default wins
	result.CookieSecure = result.CookieSecure || defaults.CookieSecure

	return result
}

func mergeString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// Production reports whether the service runs in production mode
func (c *Config) Production() bool {
	return c.Env == "production"
}

// LLMTimeout is the per-call generation timeout
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// RetryDelay is the pause between generation attempts
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.LLMRetryDelayMS) * time.Millisecond
}

// LLM builds the generation client configuration. The model falls back to the
// provider's default when unset.
func (c *Config) LLM() *llm.Config {
	var out *llm.Config
	switch llm.Provider(c.LLMProvider) {
	case llm.ProviderOpenAI:
		out = llm.DefaultOpenAIConfig()
		out.APIKey = c.OpenAIAPIKey
		if c.OpenAIBaseURL != "" {
			out.BaseURL = c.OpenAIBaseURL
		}
	case llm.ProviderAzure:
		out = llm.DefaultOpenAIConfig()
		out.Provider = llm.ProviderAzure
		out.APIKey = c.AzureAPIKey
		out.Endpoint = c.AzureEndpoint
		out.Deployment = c.AzureDeployment
		out.APIVersion = c.AzureAPIVersion
	default:
		out = llm.DefaultConfig()
		out.Provider = llm.Provider(c.LLMProvider)
		out.APIKey = c.GeminiAPIKey
	}

	if c.LLMModel != "" {
		out.Model = c.LLMModel
	}
	if c.LLMTemperature != 0 {
		out.Temperature = c.LLMTemperature
	}
	if c.LLMTimeoutSeconds > 0 {
		out.Timeout = c.LLMTimeout()
	}
	return out
}

// Retry builds the generation retry policy
func (c *Config) Retry() llm.RetryPolicy {
	policy := llm.DefaultRetryPolicy()
	if c.LLMMaxAttempts > 0 {
		policy.MaxAttempts = c.LLMMaxAttempts
	}
	if c.LLMRetryDelayMS > 0 {
		policy.Delay = c.RetryDelay()
	}
	return policy
}
