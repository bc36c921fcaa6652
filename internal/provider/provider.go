// Package provider defines the uniform capability interface over external
// LLM APIs and the registry that constructs concrete clients lazily.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Name identifies a supported provider. The set is closed; anything else is
// rejected at the edge.
type Name string

const (
	OpenAI    Name = "openai"
	Anthropic Name = "anthropic"
	Gemini    Name = "gemini"
)

// Names lists all supported providers in display order.
func Names() []Name {
	return []Name{OpenAI, Anthropic, Gemini}
}

// ParseName validates a provider name string.
func ParseName(s string) (Name, error) {
	switch Name(strings.ToLower(strings.TrimSpace(s))) {
	case OpenAI:
		return OpenAI, nil
	case Anthropic:
		return Anthropic, nil
	case Gemini:
		return Gemini, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Request is one uniform generation request.
type Request struct {
	Prompt       string
	Model        string
	MaxTokens    int    // 0 means provider default
	SystemPrompt string // optional
}

// Result carries the generated text plus exact token counts. Token counts
// drive billing, so concrete providers must report the API's own usage
// numbers whenever the API returns them.
type Result struct {
	Content      string
	TokensInput  int
	TokensOutput int
	Model        string
}

// Executor is the single capability each concrete provider satisfies.
// Calls are stateless; any transport or provider-side error propagates
// unmodified with no retry at this layer.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

var defaultModels = map[Name]string{
	OpenAI:    "gpt-5.1",
	Anthropic: "claude-sonnet-4.5",
	Gemini:    "gemini-3",
}

var availableModels = map[Name][]string{
	OpenAI: {
		"gpt-5.1",
		"gpt-5.1-thinking",
		"gpt-5.1-instant",
		"gpt-5.1-codex",
		"gpt-5",
		"gpt-4o",
		"gpt-4o-mini",
		"o3-mini",
	},
	Anthropic: {
		"claude-opus-4.5",
		"claude-sonnet-4.5",
		"claude-haiku-4.5",
		"claude-sonnet-4-20250514",
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
	},
	Gemini: {
		"gemini-3",
		"gemini-3-thinking",
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.5-flash-thinking",
		"gemini-2.0-flash",
		"gemini-1.5-pro",
		"gemini-1.5-flash",
	},
}

// DefaultModel returns the flagship model used when the caller omits one.
func DefaultModel(name Name) string {
	return defaultModels[name]
}

// Models returns the known model list for a provider.
func Models(name Name) []string {
	return availableModels[name]
}

// ValidModel reports whether the model belongs to the provider's known list.
func ValidModel(name Name, model string) bool {
	for _, m := range availableModels[name] {
		if m == model {
			return true
		}
	}
	return false
}

// Catalogue returns provider name -> model list for the models endpoint.
func Catalogue() map[string][]string {
	out := make(map[string][]string, len(availableModels))
	for name, models := range availableModels {
		out[string(name)] = append([]string(nil), models...)
	}
	return out
}
