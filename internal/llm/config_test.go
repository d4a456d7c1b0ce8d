package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash", config.Model)
	assert.Equal(t, DefaultTimeout, config.Timeout)
}

func TestDefaultOpenAIConfig(t *testing.T) {
	config := DefaultOpenAIConfig()

	assert.Equal(t, ProviderOpenAI, config.Provider)
	assert.Equal(t, "https://api.openai.com/v1", config.BaseURL)
}

func TestConfigTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, (&Config{}).timeout())
	assert.Equal(t, 5*time.Second, (&Config{Timeout: 5 * time.Second}).timeout())
}

func TestNewClient_Providers(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{Provider: "anthropic", APIKey: "k"})
	assert.Error(t, err)

	_, err = NewClient(context.Background(), &Config{Provider: ProviderGemini})
	assert.Error(t, err, "gemini requires an API key")

	client, err := NewClient(context.Background(), &Config{Provider: ProviderOpenAI, APIKey: "k"})
	require.NoError(t, err)
	_, ok := client.(*OpenAIClient)
	assert.True(t, ok)
	assert.NoError(t, client.Close())
}

func TestProviderConstants(t *testing.T) {
	assert.Equal(t, Provider("gemini"), ProviderGemini)
	assert.Equal(t, Provider("openai"), ProviderOpenAI)
	assert.Equal(t, Provider("azure"), ProviderAzure)
}
