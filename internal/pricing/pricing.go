// Package pricing converts token usage into credit costs. All functions are
// pure; the rate table is static apart from an optional YAML override file
// loaded at startup.
package pricing

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Rate holds per-model credit rates per 1K tokens.
// 1 credit is roughly $0.001 USD of inference cost.
type Rate struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// DefaultMaxOutputTokens is the worst-case output length assumed by
// pre-flight estimates when the caller does not cap output.
const DefaultMaxOutputTokens = 1000

// fallbackRatePer1K is charged on input+output for models missing from the
// rate table. Deliberately moderate so unknown models are never free.
const fallbackRatePer1K = 2

var ratePer1K = map[string]Rate{
	// OpenAI GPT-5 series
	"gpt-5":            {InputPer1K: 5, OutputPer1K: 20},
	"gpt-5.1":          {InputPer1K: 6, OutputPer1K: 24},
	"gpt-5.1-instant":  {InputPer1K: 2, OutputPer1K: 8},
	"gpt-5.1-thinking": {InputPer1K: 12, OutputPer1K: 48},
	"gpt-5.1-codex":    {InputPer1K: 6, OutputPer1K: 24},
	// OpenAI legacy
	"gpt-4o":      {InputPer1K: 2.5, OutputPer1K: 10},
	"gpt-4o-mini": {InputPer1K: 0.15, OutputPer1K: 0.6},
	"o3-mini":     {InputPer1K: 1.1, OutputPer1K: 4.4},

	// Anthropic Claude 4.5 series
	"claude-opus-4.5":   {InputPer1K: 20, OutputPer1K: 80},
	"claude-sonnet-4.5": {InputPer1K: 4, OutputPer1K: 16},
	"claude-haiku-4.5":  {InputPer1K: 1, OutputPer1K: 4},
	// Anthropic legacy
	"claude-sonnet-4-20250514":   {InputPer1K: 3, OutputPer1K: 15},
	"claude-3-5-sonnet-20241022": {InputPer1K: 3, OutputPer1K: 15},
	"claude-3-5-haiku-20241022":  {InputPer1K: 0.8, OutputPer1K: 4},

	// Google Gemini 3 series
	"gemini-3":          {InputPer1K: 3, OutputPer1K: 12},
	"gemini-3-thinking": {InputPer1K: 8, OutputPer1K: 32},
	// Google Gemini 2.5 series
	"gemini-2.5-pro":            {InputPer1K: 2, OutputPer1K: 8},
	"gemini-2.5-flash":          {InputPer1K: 0.15, OutputPer1K: 0.6},
	"gemini-2.5-flash-thinking": {InputPer1K: 0.5, OutputPer1K: 2},
	// Google legacy
	"gemini-2.0-flash": {InputPer1K: 0.1, OutputPer1K: 0.4},
	"gemini-1.5-pro":   {InputPer1K: 1.25, OutputPer1K: 5},
	"gemini-1.5-flash": {InputPer1K: 0.075, OutputPer1K: 0.3},
}

// EstimateTokens approximates the token count of a text. Roughly four
// characters per token for English; used only for pre-flight estimation,
// never for billing truth.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4))
}

// Cost returns the credit cost for actual token usage. Rounds up so the
// operator never undercharges relative to the linear rate.
func Cost(model string, inputTokens, outputTokens int) int {
	rate, ok := ratePer1K[model]
	if !ok {
		return int(math.Ceil(float64(inputTokens+outputTokens) / 1000 * fallbackRatePer1K))
	}
	inputCost := float64(inputTokens) / 1000 * rate.InputPer1K
	outputCost := float64(outputTokens) / 1000 * rate.OutputPer1K
	return int(math.Ceil(inputCost + outputCost))
}

// Estimate returns a conservative pre-execution cost assuming the output
// runs to maxOutputTokens. Pass 0 to assume DefaultMaxOutputTokens.
func Estimate(model string, promptTokens, maxOutputTokens int) int {
	if maxOutputTokens <= 0 {
		maxOutputTokens = DefaultMaxOutputTokens
	}
	return Cost(model, promptTokens, maxOutputTokens)
}

// RateFor returns the rate table entry for a model, if present.
func RateFor(model string) (Rate, bool) {
	rate, ok := ratePer1K[model]
	return rate, ok
}

// LoadRateOverrides merges per-model rates from a YAML file into the rate
// table. Entries with non-positive rates are rejected.
//
// File shape:
//
//	gpt-4o:
//	  input_per_1k: 2.5
//	  output_per_1k: 10
func LoadRateOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("pricing: read overrides: %w", err)
	}
	overrides := map[string]Rate{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("pricing: parse overrides: %w", err)
	}
	for model, rate := range overrides {
		if model == "" {
			continue
		}
		if rate.InputPer1K <= 0 || rate.OutputPer1K <= 0 {
			return fmt.Errorf("pricing: invalid override for %q: rates must be positive", model)
		}
		ratePer1K[model] = rate
	}
	return nil
}
