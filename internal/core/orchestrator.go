// Package core implements the execution orchestrator: it validates a
// generation request, checks funds, runs the provider call, and settles the
// actual cost against the ledger.
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paylessai/payless-gateway/internal/ledger"
	"github.com/paylessai/payless-gateway/internal/pricing"
	"github.com/paylessai/payless-gateway/internal/provider"
	"github.com/paylessai/payless-gateway/internal/usage"
)

// Error codes surfaced to the transport layer.
const (
	CodeInvalidProvider     = "INVALID_PROVIDER"
	CodeInvalidModel        = "INVALID_MODEL"
	CodeInvalidPrompt       = "INVALID_PROMPT"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeProviderError       = "PROVIDER_ERROR"
	CodeLedgerError         = "LEDGER_ERROR"
)

// Error is a coded orchestrator failure. The transport layer maps codes to
// HTTP statuses without parsing messages.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the orchestrator error code, if any.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// EstimateInput is a pre-flight cost query.
type EstimateInput struct {
	Provider  string
	Model     string
	Prompt    string
	MaxTokens int
}

// EstimateResult reports the conservative upper-bound cost.
type EstimateResult struct {
	EstimatedCredits int    `json:"estimated_credits"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
}

// ExecuteInput is one billed generation request.
type ExecuteInput struct {
	UserID       string
	Provider     string
	Model        string
	Prompt       string
	SystemPrompt string
	MaxTokens    int
}

// ExecuteResult is the settled outcome of a generation.
type ExecuteResult struct {
	RequestID    string  `json:"request_id"`
	Response     string  `json:"response"`
	CreditsSpent int     `json:"credits_spent"`
	TokensInput  int     `json:"tokens_input"`
	TokensOutput int     `json:"tokens_output"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	NewBalance   float64 `json:"new_balance"`
}

// Orchestrator wires validation, pricing, providers, the ledger, and the
// usage audit trail into the execute operation.
type Orchestrator struct {
	providers *provider.Registry
	entries   ledger.Store
	records   usage.Store
	logger    *log.Logger
}

// New creates an Orchestrator. The usage store may be nil when auditing is
// disabled.
func New(providers *provider.Registry, entries ledger.Store, records usage.Store) *Orchestrator {
	return &Orchestrator{providers: providers, entries: entries, records: records}
}

// SetLogger attaches a logger for execution diagnostics.
func (o *Orchestrator) SetLogger(l *log.Logger) { o.logger = l }

type validated struct {
	name   provider.Name
	model  string
	prompt string
}

func (o *Orchestrator) validate(providerName, model, prompt string) (validated, error) {
	name, err := provider.ParseName(providerName)
	if err != nil {
		return validated{}, &Error{Code: CodeInvalidProvider, Message: "invalid provider, use: openai, anthropic, or gemini"}
	}
	selected := model
	if selected == "" {
		selected = provider.DefaultModel(name)
	} else if !provider.ValidModel(name, selected) {
		return validated{}, &Error{
			Code:    CodeInvalidModel,
			Message: fmt.Sprintf("invalid model for %s, available: %s", name, strings.Join(provider.Models(name), ", ")),
		}
	}
	if strings.TrimSpace(prompt) == "" {
		return validated{}, &Error{Code: CodeInvalidPrompt, Message: "prompt is required"}
	}
	return validated{name: name, model: selected, prompt: prompt}, nil
}

// Estimate computes the conservative credit cost of a request without
// touching the ledger.
func (o *Orchestrator) Estimate(in EstimateInput) (*EstimateResult, error) {
	v, err := o.validate(in.Provider, in.Model, in.Prompt)
	if err != nil {
		return nil, err
	}
	promptTokens := pricing.EstimateTokens(v.prompt)
	return &EstimateResult{
		EstimatedCredits: pricing.Estimate(v.model, promptTokens, in.MaxTokens),
		Provider:         string(v.name),
		Model:            v.model,
	}, nil
}

// Execute runs one billed generation:
//
//  1. validate provider, model, and prompt;
//  2. reject up front when the balance cannot cover the estimated cost;
//  3. call the provider; a failure here leaves the ledger untouched;
//  4. settle the actual token cost through the ledger's conditional spend;
//  5. queue the usage audit record.
//
// A spend that fails after a successful generation is reported as
// insufficient credits; the generation itself is the operator's loss.
func (o *Orchestrator) Execute(ctx context.Context, in ExecuteInput) (*ExecuteResult, error) {
	if in.UserID == "" {
		return nil, &Error{Code: CodeInvalidPrompt, Message: "user id required"}
	}
	v, err := o.validate(in.Provider, in.Model, in.Prompt)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()

	promptTokens := pricing.EstimateTokens(v.prompt)
	estimated := pricing.Estimate(v.model, promptTokens, in.MaxTokens)

	balance, err := o.entries.Balance(ctx, in.UserID)
	if err != nil {
		return nil, &Error{Code: CodeLedgerError, Message: "read balance", cause: err}
	}
	if balance < float64(estimated) {
		return nil, &Error{
			Code:    CodeInsufficientCredits,
			Message: fmt.Sprintf("insufficient credits: need %d, have %g", estimated, balance),
		}
	}

	exec, err := o.providers.Get(v.name)
	if err != nil {
		return nil, &Error{Code: CodeInvalidProvider, Message: fmt.Sprintf("provider %s unavailable", v.name), cause: err}
	}
	result, err := exec.Execute(ctx, provider.Request{
		Prompt:       v.prompt,
		Model:        v.model,
		MaxTokens:    in.MaxTokens,
		SystemPrompt: in.SystemPrompt,
	})
	if err != nil {
		o.logf("execute failed request=%s provider=%s model=%s err=%v", requestID, v.name, v.model, err)
		return nil, &Error{Code: CodeProviderError, Message: "provider call failed", cause: err}
	}

	actual := pricing.Cost(v.model, result.TokensInput, result.TokensOutput)
	spend, err := o.entries.Spend(ctx, in.UserID, float64(actual),
		fmt.Sprintf("%s/%s: %d+%d tokens", v.name, v.model, result.TokensInput, result.TokensOutput))
	if err != nil {
		return nil, &Error{Code: CodeLedgerError, Message: "spend credits", cause: err}
	}
	if !spend.Success {
		// The generation already happened; the uncollected cost is accepted
		// operator loss rather than a negative balance.
		o.logf("unbillable generation request=%s user=%s credits=%d balance=%g", requestID, in.UserID, actual, spend.NewBalance)
		return nil, &Error{Code: CodeInsufficientCredits, Message: "failed to deduct credits"}
	}

	if o.records != nil {
		rec := usage.Record{
			RequestID:    requestID,
			UserID:       in.UserID,
			Provider:     string(v.name),
			Model:        v.model,
			CreditsSpent: float64(actual),
			TokensInput:  result.TokensInput,
			TokensOutput: result.TokensOutput,
			CreatedAt:    time.Now().UTC(),
		}
		if err := o.records.Record(ctx, rec); err != nil {
			// Audit trail only; the billing outcome stands.
			o.logf("usage record failed request=%s err=%v", requestID, err)
		}
	}

	o.logf("execute ok request=%s provider=%s model=%s tokens=%d+%d credits=%d",
		requestID, v.name, v.model, result.TokensInput, result.TokensOutput, actual)
	return &ExecuteResult{
		RequestID:    requestID,
		Response:     result.Content,
		CreditsSpent: actual,
		TokensInput:  result.TokensInput,
		TokensOutput: result.TokensOutput,
		Provider:     string(v.name),
		Model:        result.Model,
		NewBalance:   spend.NewBalance,
	}, nil
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}
