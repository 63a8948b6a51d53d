package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds a provider from connection settings.
type Factory func(cfg Config) (Provider, error)

var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

// Register adds a provider factory to the registry under a case-insensitive name.
// This is typically called from a provider package's init() function.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// Get builds the provider registered under name.
// Returns an error if the provider is not registered.
func Get(name string, cfg Config) (Provider, error) {
	mu.RLock()
	factory, ok := registry[strings.ToLower(name)]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %q (available: %v)", name, Available())
	}

	return factory(cfg)
}

// Available returns the sorted names of all registered providers.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a provider is registered.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[strings.ToLower(name)]
	return ok
}
