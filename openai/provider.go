// Package openai provides a provider for OpenAI-compatible chat completion
// servers such as LM Studio, Ollama, llama.cpp and vLLM.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/i2y/openagent/provider"
	"github.com/i2y/openagent/retry"
)

const defaultAPIKey = "not-needed"

func init() {
	provider.Register("openai", func(cfg provider.Config) (provider.Provider, error) {
		return New(fromConfig("openai", cfg)...)
	})

	for _, name := range Servers() {
		server := name
		provider.Register(server, func(cfg provider.Config) (provider.Provider, error) {
			if cfg.BaseURL == "" {
				cfg.BaseURL = serverURLs[server]
			}
			return New(fromConfig(server, cfg)...)
		})
	}
}

// Provider implements provider.Provider for OpenAI-compatible servers.
type Provider struct {
	name   string
	client *client
	logger *slog.Logger
}

// Option configures the provider.
type Option func(*providerConfig)

type providerConfig struct {
	name       string
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	retry      retry.Config
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *providerConfig) {
		c.apiKey = key
	}
}

// WithBaseURL sets the server base URL, e.g. http://localhost:1234/v1.
func WithBaseURL(url string) Option {
	return func(c *providerConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client. Its own timeout is left untouched.
func WithHTTPClient(client *http.Client) Option {
	return func(c *providerConfig) {
		c.httpClient = client
	}
}

// WithTimeout bounds the whole request, including reading the stream.
func WithTimeout(d time.Duration) Option {
	return func(c *providerConfig) {
		c.timeout = d
	}
}

// WithRetry sets the retry policy applied before streaming starts.
func WithRetry(cfg retry.Config) Option {
	return func(c *providerConfig) {
		c.retry = cfg
	}
}

// WithRateLimit limits outgoing requests.
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(c *providerConfig) {
		c.limiter = limiter
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *providerConfig) {
		c.logger = logger
	}
}

// WithName overrides the provider name reported by Name.
func WithName(name string) Option {
	return func(c *providerConfig) {
		c.name = name
	}
}

func fromConfig(name string, cfg provider.Config) []Option {
	return []Option{
		WithName(name),
		WithBaseURL(cfg.BaseURL),
		WithAPIKey(cfg.APIKey),
		WithTimeout(cfg.Timeout),
		WithHTTPClient(cfg.HTTPClient),
		WithRetry(cfg.Retry),
		WithRateLimit(cfg.Limiter),
		WithLogger(cfg.Logger),
	}
}

// New creates a provider. A base URL is required.
func New(opts ...Option) (*Provider, error) {
	cfg := &providerConfig{
		name:  "openai",
		retry: retry.None(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.baseURL == "" {
		return nil, errors.New("openai: base URL required: use WithBaseURL or a server preset")
	}

	// Fall back to environment variable
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.apiKey == "" {
		cfg.apiKey = defaultAPIKey
	}

	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Provider{
		name:   cfg.name,
		logger: cfg.logger,
		client: &client{
			apiKey:     cfg.apiKey,
			baseURL:    cfg.baseURL,
			httpClient: cfg.httpClient,
			retry:      cfg.retry,
			limiter:    cfg.limiter,
			logger:     cfg.logger,
		},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// BaseURL returns the server base URL.
func (p *Provider) BaseURL() string {
	return p.client.baseURL
}

// Stream implements provider.Provider. It returns once the server has
// accepted the request; blocks are decoded lazily as the caller pulls them.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (provider.Stream, error) {
	apiReq, err := buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	body, err := p.client.chatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	return newBlockStream(body, p.logger), nil
}

// blockStream wires the SSE decoder into the aggregator and hands out
// completed blocks one at a time.
type blockStream struct {
	body    io.ReadCloser
	dec     *sseDecoder
	agg     *aggregator
	logger  *slog.Logger
	pending []provider.ContentBlock
	done    bool
	err     error
	once    sync.Once
}

func newBlockStream(body io.ReadCloser, logger *slog.Logger) *blockStream {
	return &blockStream{
		body:   body,
		dec:    newSSEDecoder(body),
		agg:    newAggregator(),
		logger: logger,
	}
}

// Next returns the next completed block, or io.EOF once the turn is over.
// Errors are sticky: after the first one every call returns it again.
func (s *blockStream) Next() (provider.ContentBlock, error) {
	for {
		if len(s.pending) > 0 {
			block := s.pending[0]
			s.pending = s.pending[1:]
			return block, nil
		}
		if s.err != nil {
			return nil, s.err
		}
		if s.done {
			return nil, io.EOF
		}

		chunk, err := s.dec.next()
		if errors.Is(err, io.EOF) {
			// Some servers end the body without a finish reason.
			s.done = true
			s.pending, s.err = s.agg.flush()
			_ = s.Close()
			s.logger.Debug("chat completion stream finished")
			continue
		}
		if err != nil {
			s.fail(err)
			continue
		}

		blocks, err := s.agg.process(chunk)
		if err != nil {
			s.fail(err)
			continue
		}
		s.pending = append(s.pending, blocks...)
	}
}

func (s *blockStream) fail(err error) {
	s.err = err
	_ = s.Close()
	s.logger.Debug("chat completion stream failed", "err", err)
}

// Close releases the response body. It is safe to call more than once.
func (s *blockStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.body.Close()
	})
	return err
}
