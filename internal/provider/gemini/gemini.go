package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paylessai/payless-gateway/internal/pricing"
	"github.com/paylessai/payless-gateway/internal/provider"
)

// Ensure Client implements provider.Executor.
var _ provider.Executor = (*Client)(nil)

// Client sends generateContent requests to the Google Gemini API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the Gemini client.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://generativelanguage.googleapis.com
	RequestTimeout time.Duration
}

// New creates a Gemini client instance.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = provider.GeminiRequestTimeout
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Execute sends one generateContent request. Gemini does not always report
// token counts, so missing counts fall back to the pricing estimator.
func (c *Client) Execute(ctx context.Context, req provider.Request) (provider.Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.Result{}, errors.New("gemini: prompt required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return provider.Result{}, errors.New("gemini: model name required")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": req.Prompt}},
			},
		},
		"generationConfig": map[string]interface{}{
			"maxOutputTokens": maxTokens,
		},
	}
	if req.SystemPrompt != "" {
		payload["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": req.SystemPrompt}},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Result{}, fmt.Errorf("gemini: marshal request: %w", err)
	}

	// Build URL: /v1beta/{model=models/*}:generateContent
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, req.Model, c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return provider.Result{}, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return provider.Result{}, fmt.Errorf("gemini: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return provider.Result{}, fmt.Errorf("gemini: %s (code=%d, status=%s)", errResp.Error.Message, errResp.Error.Code, errResp.Error.Status)
		}
		return provider.Result{}, fmt.Errorf("gemini: http %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return provider.Result{}, fmt.Errorf("gemini: unmarshal response: %w", err)
	}

	var content strings.Builder
	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			content.WriteString(part.Text)
		}
	}
	text := content.String()

	tokensInput := parsed.UsageMetadata.PromptTokenCount
	if tokensInput == 0 {
		tokensInput = pricing.EstimateTokens(req.Prompt)
	}
	tokensOutput := parsed.UsageMetadata.CandidatesTokenCount
	if tokensOutput == 0 && text != "" {
		tokensOutput = pricing.EstimateTokens(text)
	}

	return provider.Result{
		Content:      text,
		TokensInput:  tokensInput,
		TokensOutput: tokensOutput,
		Model:        req.Model,
	}, nil
}
