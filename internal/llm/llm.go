// Package llm abstracts the text-judgment service behind a provider
// interface. Providers are stateless: each call carries its full
// configuration.
package llm

import (
	"context"
	"fmt"
)

// Config represents the configuration for one completion call.
type Config struct {
	Model       string
	Temperature float64
	System      string
	Prompt      string
}

// Provider defines the interface for a text-completion provider.
type Provider interface {
	Complete(ctx context.Context, config Config) (string, error)
}

// New returns the provider registered under the given name.
func New(name string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAI()
	case "gemini":
		return NewGemini()
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
