package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/openagent/provider"
	"github.com/i2y/openagent/retry"
)

func sseServer(t *testing.T, handler func(t *testing.T, body map[string]any, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		handler(t, body, w)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeSSE(w http.ResponseWriter, payloads ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, p := range payloads {
		_, _ = fmt.Fprintf(w, "data: %s\n\n", p)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func drain(t *testing.T, s provider.Stream) ([]provider.ContentBlock, error) {
	t.Helper()
	defer func() { _ = s.Close() }()

	var blocks []provider.ContentBlock
	for {
		b, err := s.Next()
		if errors.Is(err, io.EOF) {
			return blocks, nil
		}
		if err != nil {
			return blocks, err
		}
		blocks = append(blocks, b)
	}
}

func userRequest(text string) *provider.Request {
	return &provider.Request{
		Model: "test-model",
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: []provider.ContentBlock{provider.TextBlock{Text: text}}},
		},
	}
}

func TestProvider_StreamText(t *testing.T) {
	srv := sseServer(t, func(t *testing.T, body map[string]any, w http.ResponseWriter) {
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, true, body["stream"])
		writeSSE(w,
			`{"choices":[{"index":0,"delta":{"role":"assistant","content":"Hello"},"finish_reason":null}]}`,
			`{"choices":[{"index":0,"delta":{"content":", world"},"finish_reason":null}]}`,
			`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			"[DONE]",
		)
	})

	p, err := New(WithBaseURL(srv.URL + "/v1"))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userRequest("hi"))
	require.NoError(t, err)

	blocks, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, provider.TextBlock{Text: "Hello, world"}, blocks[0])
}

func TestProvider_StreamToolCall(t *testing.T) {
	srv := sseServer(t, func(t *testing.T, body map[string]any, w http.ResponseWriter) {
		tools, ok := body["tools"].([]any)
		require.True(t, ok)
		require.Len(t, tools, 1)

		writeSSE(w,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"add","arguments":""}}]},"finish_reason":null}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"a\": 2,"}}]},"finish_reason":null}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":" \"b\": 3}"}}]},"finish_reason":null}]}`,
			`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			"[DONE]",
		)
	})

	p, err := New(WithBaseURL(srv.URL + "/v1"))
	require.NoError(t, err)

	req := userRequest("add 2 and 3")
	req.Tools = []provider.ToolDef{{Name: "add", Description: "Add two numbers"}}

	stream, err := p.Stream(context.Background(), req)
	require.NoError(t, err)

	blocks, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	tool := blocks[0].(provider.ToolUseBlock)
	assert.Equal(t, "call_1", tool.ID)
	assert.Equal(t, "add", tool.Name)
	assert.JSONEq(t, `{"a":2,"b":3}`, string(tool.Input))
}

func TestProvider_StreamWithoutFinishReason(t *testing.T) {
	srv := sseServer(t, func(t *testing.T, _ map[string]any, w http.ResponseWriter) {
		writeSSE(w, `{"choices":[{"index":0,"delta":{"content":"cut short"},"finish_reason":null}]}`)
	})

	p, err := New(WithBaseURL(srv.URL + "/v1"))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userRequest("hi"))
	require.NoError(t, err)

	blocks, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "cut short", blocks[0].(provider.TextBlock).Text)
}

func TestProvider_MalformedChunkIsSticky(t *testing.T) {
	srv := sseServer(t, func(t *testing.T, _ map[string]any, w http.ResponseWriter) {
		writeSSE(w, `{"choices": [`)
	})

	p, err := New(WithBaseURL(srv.URL + "/v1"))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	_, err = stream.Next()
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)

	_, again := stream.Next()
	assert.Equal(t, err, again)
}

func TestProvider_ErrorSentMidStream(t *testing.T) {
	srv := sseServer(t, func(t *testing.T, _ map[string]any, w http.ResponseWriter) {
		writeSSE(w,
			`{"id":"1","choices":[{"index":0,"delta":{"content":"Partial ans"},"finish_reason":null}]}`,
			`{"error":{"message":"context length exceeded","type":"invalid_request_error","code":400}}`,
			"[DONE]",
		)
	})

	p, err := New(WithBaseURL(srv.URL + "/v1"))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userRequest("hi"))
	require.NoError(t, err)

	blocks, err := drain(t, stream)
	assert.Empty(t, blocks)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "context length exceeded", apiErr.Message)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
	assert.Equal(t, "400", apiErr.Code)
	assert.Equal(t, http.StatusOK, apiErr.HTTPStatus())
}

func TestProvider_Headers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		writeSSE(w, "[DONE]")
	}))
	defer srv.Close()

	p, err := New(WithBaseURL(srv.URL+"/v1/"), WithAPIKey("sk-test"))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	blocks, err := drain(t, stream)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"model not loaded","type":"invalid_request_error","code":"model_not_found"}}`)
	}))
	defer srv.Close()

	p, err := New(WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Stream(context.Background(), userRequest("hi"))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "model not loaded", apiErr.Message)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
	assert.Equal(t, "model_not_found", apiErr.Code)
	assert.Contains(t, apiErr.Body, "model not loaded")
}

func TestProvider_APIErrorPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such route", http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := New(WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Stream(context.Background(), userRequest("hi"))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus())
	assert.Contains(t, apiErr.Message, "no such route")
}

func TestProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeSSE(w,
			`{"choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":"stop"}]}`,
			"[DONE]",
		)
	}))
	defer srv.Close()

	p, err := New(
		WithBaseURL(srv.URL),
		WithRetry(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffMultiplier: 2}),
	)
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	blocks, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestProvider_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New(
		WithBaseURL(srv.URL),
		WithRetry(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}),
	)
	require.NoError(t, err)

	_, err = p.Stream(context.Background(), userRequest("hi"))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestProvider_ContextCancelled(t *testing.T) {
	srv := sseServer(t, func(t *testing.T, _ map[string]any, w http.ResponseWriter) {
		writeSSE(w, "[DONE]")
	})

	p, err := New(WithBaseURL(srv.URL + "/v1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Stream(ctx, userRequest("hi"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL")
}

func TestNew_APIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	p, err := New(WithBaseURL("http://localhost:1234/v1"))
	require.NoError(t, err)
	assert.Equal(t, defaultAPIKey, p.client.apiKey)

	t.Setenv("OPENAI_API_KEY", "from-env")
	p, err = New(WithBaseURL("http://localhost:1234/v1"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.client.apiKey)
}

func TestPresetsRegistered(t *testing.T) {
	for _, name := range append(Servers(), "openai") {
		assert.True(t, provider.IsRegistered(name), name)
	}

	p, err := provider.Get(ServerOllama, provider.Config{})
	require.NoError(t, err)
	assert.Equal(t, ServerOllama, p.Name())
	assert.Equal(t, "http://localhost:11434/v1", p.(*Provider).BaseURL())

	p, err = provider.Get(ServerOllama, provider.Config{BaseURL: "http://gpu-box:11434/v1"})
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434/v1", p.(*Provider).BaseURL())

	_, err = provider.Get("openai", provider.Config{})
	assert.Error(t, err)
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"lmstudio", "http://localhost:1234/v1", false},
		{"LM-Studio", "http://localhost:1234/v1", false},
		{"lm_studio", "http://localhost:1234/v1", false},
		{"ollama", "http://localhost:11434/v1", false},
		{"llama.cpp", "http://localhost:8080/v1", false},
		{"llama_cpp", "http://localhost:8080/v1", false},
		{"vllm", "http://localhost:8000/v1", false},
		{"textgen", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ServerURL(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpointTrailingSlash(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		writeSSE(w, "[DONE]")
	}))
	defer srv.Close()

	p, err := New(WithBaseURL(srv.URL + "/v1///"))
	require.NoError(t, err)
	stream, err := p.Stream(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	_ = stream.Close()

	assert.True(t, strings.HasSuffix(path.Load().(string), "/v1/chat/completions"))
}
