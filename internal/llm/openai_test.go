package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hello", req.Messages[0].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  hi there \n"}}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(&Config{Provider: ProviderOpenAI, Model: "gpt-test", APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestOpenAIClient_Azure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/letters/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(&Config{
		Provider:   ProviderAzure,
		APIKey:     "azure-key",
		Endpoint:   srv.URL + "/",
		Deployment: "letters",
		APIVersion: "2024-06-01",
	})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		timeout time.Duration
		delay   time.Duration
	}{
		{name: "non-200", status: http.StatusInternalServerError, body: `oops`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "bad json", status: http.StatusOK, body: `{`},
		{name: "timeout", status: http.StatusOK, body: `{"choices":[{"message":{"content":"late"}}]}`, timeout: 10 * time.Millisecond, delay: 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := NewOpenAIClient(&Config{Provider: ProviderOpenAI, APIKey: "k", BaseURL: srv.URL, Timeout: tt.timeout})
			require.NoError(t, err)

			_, err = client.Generate(context.Background(), "x")
			require.Error(t, err)
			var genErr *GenerationError
			assert.True(t, errors.As(err, &genErr))
		})
	}
}

func TestNewOpenAIClient_Validation(t *testing.T) {
	_, err := NewOpenAIClient(&Config{Provider: ProviderOpenAI})
	assert.Error(t, err)

	_, err = NewOpenAIClient(&Config{Provider: ProviderAzure, APIKey: "k"})
	assert.Error(t, err)
}
