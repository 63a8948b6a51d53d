package openai

import (
	"fmt"
	"strings"
)

// Local OpenAI-compatible servers and their default endpoints.
const (
	ServerLMStudio = "lmstudio"
	ServerOllama   = "ollama"
	ServerLlamaCpp = "llamacpp"
	ServerVLLM     = "vllm"
)

var serverURLs = map[string]string{
	ServerLMStudio: "http://localhost:1234/v1",
	ServerOllama:   "http://localhost:11434/v1",
	ServerLlamaCpp: "http://localhost:8080/v1",
	ServerVLLM:     "http://localhost:8000/v1",
}

var serverAliases = map[string]string{
	"lm-studio": ServerLMStudio,
	"lm_studio": ServerLMStudio,
	"llama-cpp": ServerLlamaCpp,
	"llama_cpp": ServerLlamaCpp,
	"llama.cpp": ServerLlamaCpp,
}

// CanonicalServer resolves a server name or alias, case-insensitively.
func CanonicalServer(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := serverAliases[n]; ok {
		n = alias
	}
	if _, ok := serverURLs[n]; !ok {
		return "", fmt.Errorf("unknown server: %q", name)
	}
	return n, nil
}

// ServerURL returns the default base URL of a known local server.
func ServerURL(name string) (string, error) {
	n, err := CanonicalServer(name)
	if err != nil {
		return "", err
	}
	return serverURLs[n], nil
}

// Servers returns the canonical names of the known local servers.
func Servers() []string {
	return []string{ServerLMStudio, ServerOllama, ServerLlamaCpp, ServerVLLM}
}
