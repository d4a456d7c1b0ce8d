package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultAzureAPIVersion = "2024-02-01"

// OpenAIClient implements Client for OpenAI-compatible chat completions,
// including Azure OpenAI deployments.
type OpenAIClient struct {
	config     *Config
	endpoint   string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a client for the OpenAI or Azure provider
func NewOpenAIClient(config *Config) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	endpoint, err := chatEndpoint(config)
	if err != nil {
		return nil, err
	}

	return &OpenAIClient{
		config:     config,
		endpoint:   endpoint,
		httpClient: &http.Client{},
	}, nil
}

func chatEndpoint(config *Config) (string, error) {
	if config.Provider == ProviderAzure {
		if config.Endpoint == "" || config.Deployment == "" {
			return "", fmt.Errorf("azure endpoint and deployment are required")
		}
		version := config.APIVersion
		if version == "" {
			version = defaultAzureAPIVersion
		}
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(config.Endpoint, "/"), url.PathEscape(config.Deployment), url.QueryEscape(version)), nil
	}

	base := config.BaseURL
	if base == "" {
		base = DefaultOpenAIConfig().BaseURL
	}
	return strings.TrimRight(base, "/") + "/chat/completions", nil
}

// Generate runs one chat completion with the prompt as the only user message
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.modelField(),
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return "", &GenerationError{Message: "marshaling request", Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &GenerationError{Message: "creating request", Cause: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &GenerationError{Message: "executing request", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &GenerationError{Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(respBody))}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &GenerationError{Message: "decoding response", Cause: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &GenerationError{Message: "no choices in response"}
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Close is a no-op; the HTTP client holds no per-client resources.
func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) modelField() string {
	// Azure selects the model through the deployment path
	if c.config.Provider == ProviderAzure {
		return ""
	}
	return c.config.Model
}

func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.config.Provider == ProviderAzure {
		req.Header.Set("api-key", c.config.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
}
