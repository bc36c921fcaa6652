package pricing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 4000), 1000},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.text); got != c.want {
			t.Fatalf("EstimateTokens(%d chars): expected %d, got %d", len(c.text), c.want, got)
		}
	}
}

func TestCostKnownModel(t *testing.T) {
	// claude-haiku-4.5 rates: 1 in / 4 out per 1K.
	// ceil(500/1000*1 + 200/1000*4) = ceil(0.5+0.8) = 2.
	if got := Cost("claude-haiku-4.5", 500, 200); got != 2 {
		t.Fatalf("expected cost 2, got %d", got)
	}
}

func TestCostUnknownModelFallback(t *testing.T) {
	// ceil((600+600)/1000 * 2) = 3
	if got := Cost("some-future-model", 600, 600); got != 3 {
		t.Fatalf("expected fallback cost 3, got %d", got)
	}
}

func TestCostRoundsUp(t *testing.T) {
	// gpt-4o-mini: 0.15/0.6 per 1K. 100 in + 100 out => 0.015+0.06 = 0.075 -> 1.
	if got := Cost("gpt-4o-mini", 100, 100); got != 1 {
		t.Fatalf("expected cost rounded up to 1, got %d", got)
	}
	if got := Cost("gpt-4o-mini", 0, 0); got != 0 {
		t.Fatalf("expected zero cost for zero tokens, got %d", got)
	}
}

func TestCostMonotonic(t *testing.T) {
	models := []string{"gpt-5.1", "claude-sonnet-4.5", "gemini-3", "unknown-model"}
	for _, model := range models {
		prev := -1
		for tokens := 0; tokens <= 5000; tokens += 250 {
			c := Cost(model, tokens, 1000)
			if c < prev {
				t.Fatalf("%s: cost decreased in input tokens at %d (%d < %d)", model, tokens, c, prev)
			}
			prev = c
		}
		prev = -1
		for tokens := 0; tokens <= 5000; tokens += 250 {
			c := Cost(model, 1000, tokens)
			if c < prev {
				t.Fatalf("%s: cost decreased in output tokens at %d (%d < %d)", model, tokens, c, prev)
			}
			prev = c
		}
	}
}

func TestEstimateDefaultsOutputTokens(t *testing.T) {
	if Estimate("gpt-5.1", 100, 0) != Cost("gpt-5.1", 100, DefaultMaxOutputTokens) {
		t.Fatalf("expected Estimate to assume %d output tokens", DefaultMaxOutputTokens)
	}
	if Estimate("gpt-5.1", 100, 50) != Cost("gpt-5.1", 100, 50) {
		t.Fatalf("expected Estimate to honour explicit max output tokens")
	}
}

func TestLoadRateOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.yaml")
	content := "custom-model:\n  input_per_1k: 10\n  output_per_1k: 40\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write overrides: %v", err)
	}
	if err := LoadRateOverrides(path); err != nil {
		t.Fatalf("LoadRateOverrides: %v", err)
	}
	rate, ok := RateFor("custom-model")
	if !ok {
		t.Fatalf("expected override to register custom-model")
	}
	if rate.InputPer1K != 10 || rate.OutputPer1K != 40 {
		t.Fatalf("unexpected rate %+v", rate)
	}
	// ceil(1000/1000*10 + 500/1000*40) = 30
	if got := Cost("custom-model", 1000, 500); got != 30 {
		t.Fatalf("expected cost 30 for overridden model, got %d", got)
	}
}

func TestLoadRateOverridesRejectsNonPositive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.yaml")
	if err := os.WriteFile(path, []byte("bad:\n  input_per_1k: 0\n  output_per_1k: 4\n"), 0o644); err != nil {
		t.Fatalf("write overrides: %v", err)
	}
	if err := LoadRateOverrides(path); err == nil {
		t.Fatalf("expected error for non-positive rate")
	}
}
