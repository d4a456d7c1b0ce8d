// Package llm provides the generation client used by the workflow, its provider
// implementations and the retry wrapper that validates model output.
package llm

import "time"

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is any OpenAI-compatible chat completions endpoint
	ProviderOpenAI Provider = "openai"
	// ProviderAzure is an Azure OpenAI deployment
	ProviderAzure Provider = "azure"
)

// DefaultTimeout bounds a single generation round trip.
const DefaultTimeout = 60 * time.Second

// Config holds the model configuration for the application
type Config struct {
	Provider    Provider
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration

	// OpenAI-compatible settings. BaseURL defaults to the public OpenAI API.
	BaseURL string

	// Azure settings. Endpoint is the resource URL, Deployment replaces Model.
	Endpoint   string
	Deployment string
	APIVersion string
}

// DefaultConfig returns the default configuration (Gemini)
func DefaultConfig() *Config {
	return &Config{
		Provider:    ProviderGemini,
		Model:       "gemini-2.5-flash",
		Temperature: 0.7,
		Timeout:     DefaultTimeout,
	}
}

// DefaultOpenAIConfig returns defaults for an OpenAI-compatible provider
func DefaultOpenAIConfig() *Config {
	return &Config{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o",
		Temperature: 0.7,
		Timeout:     DefaultTimeout,
		BaseURL:     "https://api.openai.com/v1",
	}
}

// timeout returns the configured per-call timeout or the default.
func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
