package llm

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/openagent/openai"
	"github.com/i2y/openagent/retry"
)

func TestNewOptions_Defaults(t *testing.T) {
	o, err := NewOptions(WithModel("qwen2.5"), WithBaseURL("http://localhost:1234/v1"))
	require.NoError(t, err)

	assert.Equal(t, "qwen2.5", o.Model)
	assert.Equal(t, "http://localhost:1234/v1", o.BaseURL)
	assert.Equal(t, DefaultAPIKey, o.APIKey)
	assert.Equal(t, DefaultTemperature, o.Temperature)
	assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
	assert.Equal(t, DefaultTimeout, o.Timeout)
	assert.Equal(t, DefaultMaxToolIterations, o.MaxToolIterations)
	assert.False(t, o.AutoExecute)
	assert.Equal(t, retry.None(), o.Retry)
	assert.NotNil(t, o.Logger)
	assert.Nil(t, o.Hooks)
}

func TestNewOptions_AllOptions(t *testing.T) {
	hooks := NewHooks()
	httpClient := &http.Client{}
	logger := slog.Default()
	tool := MustNewTool("noop", "does nothing", func(ctx context.Context, in addInput) (string, error) { return "", nil })

	o, err := NewOptions(
		WithModel("llama3.1"),
		WithBaseURL("https://gpu.internal/v1"),
		WithAPIKey("sk-local"),
		WithSystemPrompt("Be brief."),
		WithTemperature(1.5),
		WithMaxTokens(1000),
		WithTimeout(2*time.Minute),
		WithTools(tool),
		WithHooks(hooks),
		WithAutoExecute(true),
		WithMaxToolIterations(10),
		WithHTTPClient(httpClient),
		WithRetry(retry.Default()),
		WithRateLimit(5, 1),
		WithLogger(logger),
	)
	require.NoError(t, err)

	assert.Equal(t, "sk-local", o.APIKey)
	assert.Equal(t, "Be brief.", o.SystemPrompt)
	assert.Equal(t, 1.5, o.Temperature)
	assert.Equal(t, 1000, o.MaxTokens)
	assert.Equal(t, 2*time.Minute, o.Timeout)
	assert.Len(t, o.Tools, 1)
	assert.Same(t, hooks, o.Hooks)
	assert.True(t, o.AutoExecute)
	assert.Equal(t, 10, o.MaxToolIterations)
	assert.Same(t, httpClient, o.HTTPClient)
	assert.Equal(t, retry.Default(), o.Retry)
	require.NotNil(t, o.RateLimiter)
	assert.Equal(t, 1, o.RateLimiter.Burst())
	assert.Same(t, logger, o.Logger)
}

func TestNewOptions_Validation(t *testing.T) {
	base := []Option{WithModel("m"), WithBaseURL("http://localhost:1234/v1")}
	dup := MustNewTool("dup", "", func(ctx context.Context, in addInput) (string, error) { return "", nil })

	tests := []struct {
		name  string
		opts  []Option
		field string
	}{
		{"missing model", []Option{WithBaseURL("http://localhost:1234/v1")}, "model"},
		{"blank model", []Option{WithModel("   "), WithBaseURL("http://localhost:1234/v1")}, "model"},
		{"missing base url", []Option{WithModel("m")}, "base_url"},
		{"base url without scheme", []Option{WithModel("m"), WithBaseURL("localhost:1234/v1")}, "base_url"},
		{"base url with other scheme", []Option{WithModel("m"), WithBaseURL("ftp://host/v1")}, "base_url"},
		{"temperature too low", append(base, WithTemperature(-0.1)), "temperature"},
		{"temperature too high", append(base, WithTemperature(2.1)), "temperature"},
		{"temperature NaN", append(base, WithTemperature(math.NaN())), "temperature"},
		{"zero max tokens", append(base, WithMaxTokens(0)), "max_tokens"},
		{"negative timeout", append(base, WithTimeout(-time.Second)), "timeout"},
		{"zero iterations", append(base, WithMaxToolIterations(0)), "max_tool_iterations"},
		{"unknown server", []Option{WithModel("m"), WithServer("textgen")}, "server"},
		{"duplicate tools", append(base, WithTools(dup, dup)), "tools"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOptions(tt.opts...)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestNewOptions_Boundaries(t *testing.T) {
	for _, temp := range []float64{0, 2} {
		_, err := NewOptions(WithModel("m"), WithBaseURL("http://x/v1"), WithTemperature(temp))
		assert.NoError(t, err, "temperature %v", temp)
	}

	_, err := NewOptions(WithModel("m"), WithBaseURL("http://x/v1"), WithMaxToolIterations(1), WithMaxTokens(1))
	assert.NoError(t, err)
}

func TestNewOptions_ServerPreset(t *testing.T) {
	tests := []struct {
		server     string
		baseURL    string
		wantServer string
		wantURL    string
	}{
		{"ollama", "", openai.ServerOllama, "http://localhost:11434/v1"},
		{"LM-Studio", "", openai.ServerLMStudio, "http://localhost:1234/v1"},
		{"llama.cpp", "", openai.ServerLlamaCpp, "http://localhost:8080/v1"},
		{"vllm", "http://gpu-box:8000/v1", openai.ServerVLLM, "http://gpu-box:8000/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			opts := []Option{WithModel("m"), WithServer(tt.server)}
			if tt.baseURL != "" {
				opts = append(opts, WithBaseURL(tt.baseURL))
			}

			o, err := NewOptions(opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantServer, o.Server)
			assert.Equal(t, tt.wantURL, o.BaseURL)

			p, err := o.newProvider()
			require.NoError(t, err)
			assert.Equal(t, tt.wantServer, p.Name())
			assert.Equal(t, tt.wantURL, p.(*openai.Provider).BaseURL())
		})
	}
}

func TestNewOptions_DefaultProvider(t *testing.T) {
	o, err := NewOptions(WithModel("m"), WithBaseURL("http://localhost:9999/v1"))
	require.NoError(t, err)

	p, err := o.newProvider()
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestNewOptions_InjectedProvider(t *testing.T) {
	fake := &fakeProvider{}
	o, err := NewOptions(WithModel("m"), WithProvider(fake))
	require.NoError(t, err)

	p, err := o.newProvider()
	require.NoError(t, err)
	assert.Same(t, fake, p)
}

func TestAgentOptions_Request(t *testing.T) {
	tool := NewFuncTool("ping", "Ping", nil, nil)
	o, err := NewOptions(WithModel("m"), WithProvider(&fakeProvider{}), WithTools(tool), WithTemperature(0))
	require.NoError(t, err)

	req, err := o.request([]Message{UserMessage("hi")})
	require.NoError(t, err)

	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.0, *req.Temperature)
	require.Len(t, req.Tools, 1)
	assert.Nil(t, req.Tools[0].Parameters)
}
