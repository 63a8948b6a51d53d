package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/i2y/openagent/openai"
	"github.com/i2y/openagent/provider"
	"github.com/i2y/openagent/retry"
)

// Defaults applied by NewOptions.
const (
	DefaultAPIKey            = "not-needed"
	DefaultTemperature       = 0.7
	DefaultMaxTokens         = 4096
	DefaultTimeout           = 60 * time.Second
	DefaultMaxToolIterations = 5
)

// AgentOptions is the validated configuration shared by a Client and its
// auto-execution loop. Build it with NewOptions.
type AgentOptions struct {
	Model             string
	BaseURL           string
	APIKey            string
	SystemPrompt      string
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration // Whole-request lifetime, including the streamed body
	Tools             []Tool
	Hooks             *Hooks
	AutoExecute       bool
	MaxToolIterations int

	// Server names a local server preset (lmstudio, ollama, llamacpp, vllm).
	// Its URL is used when BaseURL is empty.
	Server string

	// Provider replaces the built-in OpenAI-compatible provider.
	Provider provider.Provider

	HTTPClient  *http.Client
	Retry       retry.Config
	RateLimiter *rate.Limiter
	Logger      *slog.Logger
}

// Option configures AgentOptions.
type Option func(*AgentOptions)

// NewOptions applies opts over the defaults and validates the result.
//
// Example:
//
//	opts, err := llm.NewOptions(
//	    llm.WithModel("qwen2.5-32b-instruct"),
//	    llm.WithServer("lmstudio"),
//	    llm.WithSystemPrompt("You are a helpful assistant."),
//	)
func NewOptions(opts ...Option) (*AgentOptions, error) {
	o := &AgentOptions{
		APIKey:            DefaultAPIKey,
		Temperature:       DefaultTemperature,
		MaxTokens:         DefaultMaxTokens,
		Timeout:           DefaultTimeout,
		MaxToolIterations: DefaultMaxToolIterations,
		Retry:             retry.None(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o, nil
}

func (o *AgentOptions) validate() error {
	if strings.TrimSpace(o.Model) == "" {
		return &ConfigError{Field: "model", Reason: "required"}
	}

	if o.Server != "" {
		server, err := openai.CanonicalServer(o.Server)
		if err != nil {
			return &ConfigError{Field: "server", Reason: err.Error()}
		}
		o.Server = server
		if o.BaseURL == "" {
			o.BaseURL, _ = openai.ServerURL(server)
		}
	}

	if o.Provider == nil {
		if o.BaseURL == "" {
			return &ConfigError{Field: "base_url", Reason: "required unless a server preset or provider is set"}
		}
		if !strings.HasPrefix(o.BaseURL, "http://") && !strings.HasPrefix(o.BaseURL, "https://") {
			return &ConfigError{Field: "base_url", Reason: fmt.Sprintf("must start with http:// or https://, got %q", o.BaseURL)}
		}
	}

	if math.IsNaN(o.Temperature) || o.Temperature < 0 || o.Temperature > 2 {
		return &ConfigError{Field: "temperature", Reason: fmt.Sprintf("must be between 0.0 and 2.0, got %v", o.Temperature)}
	}
	if o.MaxTokens <= 0 {
		return &ConfigError{Field: "max_tokens", Reason: fmt.Sprintf("must be greater than 0, got %d", o.MaxTokens)}
	}
	if o.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: fmt.Sprintf("must be positive, got %s", o.Timeout)}
	}
	if o.MaxToolIterations < 1 {
		return &ConfigError{Field: "max_tool_iterations", Reason: fmt.Sprintf("must be at least 1, got %d", o.MaxToolIterations)}
	}

	seen := make(map[string]bool, len(o.Tools))
	for _, t := range o.Tools {
		if t == nil || t.Name() == "" {
			return &ConfigError{Field: "tools", Reason: "tool with empty name"}
		}
		if seen[t.Name()] {
			return &ConfigError{Field: "tools", Reason: fmt.Sprintf("duplicate tool %q", t.Name())}
		}
		seen[t.Name()] = true
	}
	return nil
}

// WithModel sets the model name (required).
func WithModel(name string) Option {
	return func(o *AgentOptions) {
		o.Model = name
	}
}

// WithBaseURL sets the server base URL, e.g. http://localhost:1234/v1.
func WithBaseURL(url string) Option {
	return func(o *AgentOptions) {
		o.BaseURL = url
	}
}

// WithServer selects a local server preset. An explicit WithBaseURL wins.
func WithServer(name string) Option {
	return func(o *AgentOptions) {
		o.Server = name
	}
}

// WithAPIKey sets the API key. Most local servers ignore it.
func WithAPIKey(key string) Option {
	return func(o *AgentOptions) {
		o.APIKey = key
	}
}

// WithSystemPrompt sets the system prompt sent ahead of the history.
func WithSystemPrompt(prompt string) Option {
	return func(o *AgentOptions) {
		o.SystemPrompt = prompt
	}
}

// WithTemperature sets the sampling temperature (0.0 to 2.0).
func WithTemperature(t float64) Option {
	return func(o *AgentOptions) {
		o.Temperature = t
	}
}

// WithMaxTokens sets the maximum tokens in a response.
func WithMaxTokens(n int) Option {
	return func(o *AgentOptions) {
		o.MaxTokens = n
	}
}

// WithTimeout bounds each request, including reading its stream.
func WithTimeout(d time.Duration) Option {
	return func(o *AgentOptions) {
		o.Timeout = d
	}
}

// WithTools adds tools the model can use.
func WithTools(tools ...Tool) Option {
	return func(o *AgentOptions) {
		o.Tools = append(o.Tools, tools...)
	}
}

// WithHooks sets the hook registry.
func WithHooks(h *Hooks) Option {
	return func(o *AgentOptions) {
		o.Hooks = h
	}
}

// WithAutoExecute enables the auto-execution loop: tool calls are run by the
// client and Receive only yields the final text.
func WithAutoExecute(enabled bool) Option {
	return func(o *AgentOptions) {
		o.AutoExecute = enabled
	}
}

// WithMaxToolIterations caps the number of tool rounds per Send.
func WithMaxToolIterations(n int) Option {
	return func(o *AgentOptions) {
		o.MaxToolIterations = n
	}
}

// WithProvider replaces the built-in provider, e.g. with a test double.
func WithProvider(p provider.Provider) Option {
	return func(o *AgentOptions) {
		o.Provider = p
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *AgentOptions) {
		o.HTTPClient = c
	}
}

// WithRetry sets the retry policy used before a stream starts.
// Requests are not retried by default.
func WithRetry(cfg retry.Config) Option {
	return func(o *AgentOptions) {
		o.Retry = cfg
	}
}

// WithRateLimit limits outgoing requests to r per second with the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(o *AgentOptions) {
		o.RateLimiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the logger. Logging is discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *AgentOptions) {
		o.Logger = logger
	}
}

// newProvider returns the injected provider or builds the registered one.
func (o *AgentOptions) newProvider() (provider.Provider, error) {
	if o.Provider != nil {
		return o.Provider, nil
	}

	name := "openai"
	if o.Server != "" {
		name = o.Server
	}

	p, err := provider.Get(name, provider.Config{
		BaseURL:    o.BaseURL,
		APIKey:     o.APIKey,
		Timeout:    o.Timeout,
		HTTPClient: o.HTTPClient,
		Retry:      o.Retry,
		Limiter:    o.RateLimiter,
		Logger:     o.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("getting provider: %w", err)
	}
	return p, nil
}

// request builds a provider request for the given history.
func (o *AgentOptions) request(history []Message) (*provider.Request, error) {
	temperature := o.Temperature
	maxTokens := o.MaxTokens

	req := &provider.Request{
		Model:       o.Model,
		System:      o.SystemPrompt,
		Messages:    history,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	for _, tool := range o.Tools {
		var params json.RawMessage
		if s := tool.Parameters(); s != nil {
			raw, err := json.Marshal(s)
			if err != nil {
				return nil, fmt.Errorf("marshaling parameters of tool %q: %w", tool.Name(), err)
			}
			params = raw
		}
		req.Tools = append(req.Tools, provider.ToolDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  params,
		})
	}

	return req, nil
}
