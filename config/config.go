// Package config loads agent settings from YAML or TOML files, with
// environment variable overrides, and turns them into llm options.
//
// A YAML file looks like:
//
//	model: qwen2.5-32b-instruct
//	server: lmstudio
//	system_prompt: You are a helpful assistant.
//	temperature: 0.2
//	max_tokens: 2048
//	timeout: 90s
//	auto_execute: true
//	max_tool_iterations: 8
//	retry:
//	  max_attempts: 3
//	  initial_delay: 500ms
//	  max_delay: 10s
//	rate_limit:
//	  requests_per_second: 2
//	  burst: 4
//
// TOML files use the same keys.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/i2y/openagent/llm"
	"github.com/i2y/openagent/openai"
	"github.com/i2y/openagent/retry"
)

// Environment variables consulted by ApplyEnv, BaseURL and Model.
const (
	EnvBaseURL = "OPEN_AGENT_BASE_URL"
	EnvModel   = "OPEN_AGENT_MODEL"
	EnvAPIKey  = "OPEN_AGENT_API_KEY"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// File is the on-disk configuration. Unset fields keep the llm defaults.
type File struct {
	Model             string     `yaml:"model" toml:"model"`
	BaseURL           string     `yaml:"base_url" toml:"base_url"`
	Server            string     `yaml:"server" toml:"server"`
	APIKey            string     `yaml:"api_key" toml:"api_key"`
	SystemPrompt      string     `yaml:"system_prompt" toml:"system_prompt"`
	Temperature       *float64   `yaml:"temperature" toml:"temperature"`
	MaxTokens         *int       `yaml:"max_tokens" toml:"max_tokens"`
	Timeout           string     `yaml:"timeout" toml:"timeout"`
	AutoExecute       *bool      `yaml:"auto_execute" toml:"auto_execute"`
	MaxToolIterations *int       `yaml:"max_tool_iterations" toml:"max_tool_iterations"`
	Retry             *Retry     `yaml:"retry" toml:"retry"`
	RateLimit         *RateLimit `yaml:"rate_limit" toml:"rate_limit"`
}

// Retry configures request retries. Durations use time.ParseDuration syntax.
type Retry struct {
	MaxAttempts  int    `yaml:"max_attempts" toml:"max_attempts"`
	InitialDelay string `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     string `yaml:"max_delay" toml:"max_delay"`
}

// RateLimit configures the client-side request limiter.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// Load reads the file at path, applies environment overrides and returns
// the resulting options. The format is chosen by extension: .yaml, .yml
// or .toml.
func Load(path string) ([]llm.Option, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	f.ApplyEnv()
	return f.Options()
}

// LoadFile reads and decodes the file at path without applying
// environment overrides.
func LoadFile(path string) (*File, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes data in the given format. Unknown keys are rejected.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding YAML: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("decoding TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("decoding TOML: unknown key %q", undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	return &f, nil
}

func formatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported config file extension: %q", filepath.Ext(path))
	}
}

// ApplyEnv overrides the base URL, model and API key from the environment.
func (f *File) ApplyEnv() {
	if url := os.Getenv(EnvBaseURL); url != "" {
		f.BaseURL = url
	}
	if model := os.Getenv(EnvModel); model != "" {
		f.Model = model
	}
	if key := os.Getenv(EnvAPIKey); key != "" {
		f.APIKey = key
	}
}

// Options converts the file into llm options. Values are validated later
// by llm.NewOptions; only durations are checked here.
func (f *File) Options() ([]llm.Option, error) {
	var opts []llm.Option

	if f.Model != "" {
		opts = append(opts, llm.WithModel(f.Model))
	}
	if f.Server != "" {
		opts = append(opts, llm.WithServer(f.Server))
	}
	if f.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(f.BaseURL))
	}
	if f.APIKey != "" {
		opts = append(opts, llm.WithAPIKey(f.APIKey))
	}
	if f.SystemPrompt != "" {
		opts = append(opts, llm.WithSystemPrompt(f.SystemPrompt))
	}
	if f.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*f.Temperature))
	}
	if f.MaxTokens != nil {
		opts = append(opts, llm.WithMaxTokens(*f.MaxTokens))
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		opts = append(opts, llm.WithTimeout(d))
	}
	if f.AutoExecute != nil {
		opts = append(opts, llm.WithAutoExecute(*f.AutoExecute))
	}
	if f.MaxToolIterations != nil {
		opts = append(opts, llm.WithMaxToolIterations(*f.MaxToolIterations))
	}
	if f.Retry != nil {
		cfg, err := f.Retry.config()
		if err != nil {
			return nil, err
		}
		opts = append(opts, llm.WithRetry(cfg))
	}
	if f.RateLimit != nil && f.RateLimit.RequestsPerSecond > 0 {
		opts = append(opts, llm.WithRateLimit(f.RateLimit.RequestsPerSecond, max(f.RateLimit.Burst, 1)))
	}

	return opts, nil
}

func (r *Retry) config() (retry.Config, error) {
	cfg := retry.Default()
	if r.MaxAttempts > 0 {
		cfg.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelay != "" {
		d, err := time.ParseDuration(r.InitialDelay)
		if err != nil {
			return retry.Config{}, fmt.Errorf("retry.initial_delay: %w", err)
		}
		cfg.InitialDelay = d
	}
	if r.MaxDelay != "" {
		d, err := time.ParseDuration(r.MaxDelay)
		if err != nil {
			return retry.Config{}, fmt.Errorf("retry.max_delay: %w", err)
		}
		cfg.MaxDelay = d
	}
	return cfg, nil
}

// BaseURL resolves a base URL: OPEN_AGENT_BASE_URL first, then the preset
// of server, then fallback, then the LM Studio default.
func BaseURL(server, fallback string) string {
	if url := os.Getenv(EnvBaseURL); url != "" {
		return url
	}
	if server != "" {
		if url, err := openai.ServerURL(server); err == nil {
			return url
		}
	}
	if fallback != "" {
		return fallback
	}
	url, _ := openai.ServerURL(openai.ServerLMStudio)
	return url
}

// Model resolves a model name. With preferEnv, OPEN_AGENT_MODEL takes
// precedence over fallback. The result is empty when neither is set.
func Model(fallback string, preferEnv bool) string {
	if preferEnv {
		if model := os.Getenv(EnvModel); model != "" {
			return model
		}
	}
	return fallback
}
