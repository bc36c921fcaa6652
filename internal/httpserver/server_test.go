package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paylessai/payless-gateway/internal/auth"
	"github.com/paylessai/payless-gateway/internal/core"
	"github.com/paylessai/payless-gateway/internal/engagement"
	"github.com/paylessai/payless-gateway/internal/ledger"
	"github.com/paylessai/payless-gateway/internal/provider"
	"github.com/paylessai/payless-gateway/internal/ratelimit"
	"github.com/paylessai/payless-gateway/internal/reconciler"
	"github.com/paylessai/payless-gateway/internal/usage"
	"github.com/paylessai/payless-gateway/internal/userstore"
)

type fakeLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
	refs    map[string]bool
	nextID  int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{refs: make(map[string]bool)}
}

func (f *fakeLedger) append(userID string, delta float64, reason ledger.Reason, description, ref string) ledger.Entry {
	f.nextID++
	e := ledger.Entry{
		ID:          f.nextID,
		UserID:      userID,
		Delta:       delta,
		Reason:      reason,
		Description: description,
		ExternalRef: ref,
		CreatedAt:   time.Now().UTC(),
	}
	f.entries = append(f.entries, e)
	return e
}

func (f *fakeLedger) Append(_ context.Context, userID string, delta float64, reason ledger.Reason, description string) (ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.append(userID, delta, reason, description, ""), nil
}

func (f *fakeLedger) AppendWithRef(_ context.Context, userID string, delta float64, reason ledger.Reason, description, externalRef string) (ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs[externalRef] {
		return ledger.Entry{}, ledger.ErrDuplicateReference
	}
	f.refs[externalRef] = true
	return f.append(userID, delta, reason, description, externalRef), nil
}

func (f *fakeLedger) Balance(_ context.Context, userID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balanceLocked(userID), nil
}

func (f *fakeLedger) balanceLocked(userID string) float64 {
	var total float64
	for _, e := range f.entries {
		if e.UserID == userID {
			total += e.Delta
		}
	}
	return total
}

func (f *fakeLedger) Spend(_ context.Context, userID string, amount float64, description string) (ledger.SpendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance := f.balanceLocked(userID)
	if balance < amount {
		return ledger.SpendResult{Success: false, NewBalance: balance}, nil
	}
	f.append(userID, -amount, ledger.ReasonSpend, description, "")
	return ledger.SpendResult{Success: true, NewBalance: balance - amount}, nil
}

func (f *fakeLedger) ListRecent(_ context.Context, userID string, limit int) ([]ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Entry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].UserID == userID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) EarnStatsFor(_ context.Context, userID string) (ledger.EarnStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats ledger.EarnStats
	for _, e := range f.entries {
		if e.UserID == userID && (e.Reason == ledger.ReasonEngagementEarn || e.Reason == ledger.ReasonSurveyComplete) {
			stats.TotalEarned += e.Delta
			stats.EarnedToday += e.Delta
		}
	}
	return stats, nil
}

func (f *fakeLedger) Close() error { return nil }

func (f *fakeLedger) count(reason ledger.Reason) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.Reason == reason {
			n++
		}
	}
	return n
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*userstore.User
}

func (f *fakeUsers) EnsureUser(_ context.Context, id, email, displayName, avatarURL string) (*userstore.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users == nil {
		f.users = make(map[string]*userstore.User)
	}
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	u := &userstore.User{ID: id, Email: email, DisplayName: displayName, AvatarURL: avatarURL, CreatedAt: time.Now().UTC()}
	f.users[id] = u
	return u, nil
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*userstore.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeUsers) Close() error { return nil }

type fakeUsage struct {
	mu      sync.Mutex
	records []usage.Record
}

func (f *fakeUsage) Record(_ context.Context, rec usage.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeUsage) ListRecent(_ context.Context, userID string, limit int) ([]usage.Record, error) {
	return nil, nil
}

func (f *fakeUsage) Close() error { return nil }

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*engagement.Session
}

func (f *fakeSessions) ActiveSession(_ context.Context, userID string) (*engagement.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) StartSession(_ context.Context, session *engagement.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions == nil {
		f.sessions = make(map[string]*engagement.Session)
	}
	for _, s := range f.sessions {
		if s.UserID == session.UserID {
			s.IsActive = false
		}
	}
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessions) RecordHeartbeat(_ context.Context, sessionID string, at time.Time, addSeconds int64, addCredits float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return fmt.Errorf("no session %s", sessionID)
	}
	s.LastHeartbeat = at
	s.TotalSeconds += addSeconds
	s.CreditsEarned += addCredits
	return nil
}

func (f *fakeSessions) EndSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.IsActive = false
	}
	return nil
}

func (f *fakeSessions) Close() error { return nil }

type stubExecutor struct {
	result provider.Result
	err    error
}

func (s *stubExecutor) Execute(_ context.Context, _ provider.Request) (provider.Result, error) {
	return s.result, s.err
}

const (
	testSecret      = "test-secret"
	testAdminKey    = "admin-key"
	testRewardsKey  = "cpx-secret"
	testCreditsRate = 100.0
)

type testEnv struct {
	server *Server
	ledger *fakeLedger
	usage  *fakeUsage
	auth   *auth.Manager
	ts     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	entries := newFakeLedger()
	records := &fakeUsage{}

	registry := provider.NewRegistry()
	registry.Register(provider.OpenAI, func() (provider.Executor, error) {
		return &stubExecutor{result: provider.Result{
			Content:      "pong",
			TokensInput:  500,
			TokensOutput: 200,
			Model:        "gpt-5.1",
		}}, nil
	})

	mgr := auth.NewManager(testSecret, time.Hour)
	tracker := engagement.NewTracker(&fakeSessions{}, entries, 10)
	limiter := ratelimit.NewLimiter(ratelimit.Config{Store: ratelimit.NewMemoryStore(), MinInterval: 25 * time.Second})

	srv := New(Config{
		Orchestrator: core.New(registry, entries, records),
		Ledger:       entries,
		Identity:     &fakeUsers{},
		Usage:        records,
		Auth:         mgr,
		Tracker:      tracker,
		Limiter:      limiter,
		Reconciler:   reconciler.New(entries, testRewardsKey, testCreditsRate),
		AdminKey:     testAdminKey,
	})

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = limiter.Close() })

	return &testEnv{server: srv, ledger: entries, usage: records, auth: mgr, ts: ts}
}

func (env *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := env.auth.IssueToken(userID, userID+"@example.com")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, env.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/credits/balance", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED code, got %v", body["code"])
	}
}

func TestAuthRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/credits/balance", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestBalanceAndHistory(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.Append(context.Background(), "u1", 50, ledger.ReasonMint, "seed")
	token := env.token(t, "u1")

	resp, body := env.do(t, http.MethodGet, "/credits/balance", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["credit_balance"].(float64) != 50 {
		t.Fatalf("expected balance 50, got %v", body["credit_balance"])
	}

	resp, body = env.do(t, http.MethodGet, "/credits/history", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["count"].(float64) != 1 {
		t.Fatalf("expected 1 entry, got %v", body["count"])
	}

	resp, _ = env.do(t, http.MethodGet, "/credits/history?limit=0", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", resp.StatusCode)
	}
}

func TestModelsIsPublic(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/llm/models", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	providers, ok := body["providers"].(map[string]any)
	if !ok {
		t.Fatalf("expected providers map, got %T", body["providers"])
	}
	if _, ok := providers["openai"]; !ok {
		t.Fatalf("expected openai in catalogue")
	}
}

func TestExecuteSpendsCredits(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.Append(context.Background(), "u1", 100, ledger.ReasonMint, "seed")
	token := env.token(t, "u1")

	resp, body := env.do(t, http.MethodPost, "/llm/execute", token, map[string]any{
		"provider": "openai",
		"prompt":   "ping",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["response"] != "pong" {
		t.Fatalf("expected response pong, got %v", body["response"])
	}
	if body["credits_spent"].(float64) <= 0 {
		t.Fatalf("expected positive spend, got %v", body["credits_spent"])
	}
	if env.ledger.count(ledger.ReasonSpend) != 1 {
		t.Fatalf("expected one spend entry, got %d", env.ledger.count(ledger.ReasonSpend))
	}
	env.usage.mu.Lock()
	defer env.usage.mu.Unlock()
	if len(env.usage.records) != 1 {
		t.Fatalf("expected one usage record, got %d", len(env.usage.records))
	}
}

func TestExecuteInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "broke")

	resp, body := env.do(t, http.MethodPost, "/llm/execute", token, map[string]any{
		"provider": "openai",
		"prompt":   "ping",
	})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.StatusCode)
	}
	if body["code"] != core.CodeInsufficientCredits {
		t.Fatalf("expected INSUFFICIENT_CREDITS, got %v", body["code"])
	}
	if env.ledger.count(ledger.ReasonSpend) != 0 {
		t.Fatalf("ledger should be untouched")
	}
}

func TestExecuteRejectsUnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "u1")

	resp, body := env.do(t, http.MethodPost, "/llm/execute", token, map[string]any{
		"provider": "grok",
		"prompt":   "ping",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["code"] != core.CodeInvalidProvider {
		t.Fatalf("expected INVALID_PROVIDER, got %v", body["code"])
	}
}

func TestEstimate(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "u1")

	resp, body := env.do(t, http.MethodPost, "/llm/estimate", token, map[string]any{
		"provider": "anthropic",
		"prompt":   strings.Repeat("a", 400),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["estimated_credits"].(float64) <= 0 {
		t.Fatalf("expected positive estimate, got %v", body["estimated_credits"])
	}
}

func TestHeartbeatRateLimited(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "u1")

	resp, body := env.do(t, http.MethodPost, "/earn/heartbeat", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first heartbeat: expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["credits_earned"].(float64) != 0 {
		t.Fatalf("first heartbeat should earn nothing, got %v", body["credits_earned"])
	}

	resp, body = env.do(t, http.MethodPost, "/earn/heartbeat", token, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second heartbeat: expected 429, got %d", resp.StatusCode)
	}
	if body["code"] != "RATE_LIMITED" {
		t.Fatalf("expected RATE_LIMITED, got %v", body["code"])
	}
	if body["retry_after"].(float64) <= 0 {
		t.Fatalf("expected positive retry_after, got %v", body["retry_after"])
	}
}

func TestEarnEndClosesSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "u1")

	resp, body := env.do(t, http.MethodPost, "/earn/heartbeat", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("heartbeat: expected 200, got %d: %v", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, "/earn/end", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end session: expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["ended"] != true {
		t.Fatalf("expected ended=true, got %v", body)
	}

	// Ending with no active session is still a 200 no-op.
	resp, body = env.do(t, http.MethodPost, "/earn/end", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end idle session: expected 200, got %d: %v", resp.StatusCode, body)
	}
}

func TestEarnConfigIsPublic(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/earn/config", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["credits_per_minute"].(float64) != 10 {
		t.Fatalf("expected credits_per_minute 10, got %v", body["credits_per_minute"])
	}
	if body["heartbeat_interval_seconds"].(float64) != 25 {
		t.Fatalf("expected interval 25, got %v", body["heartbeat_interval_seconds"])
	}
}

func TestPostbackAwardsAndDeduplicates(t *testing.T) {
	env := newTestEnv(t)

	hash := reconciler.SignTransaction("tx-1", testRewardsKey)
	q := url.Values{}
	q.Set("trans_id", "tx-1")
	q.Set("user_id", "u1")
	q.Set("status", "1")
	q.Set("amount_usd", "0.50")
	q.Set("hash", hash)
	path := "/rewards/postback?" + q.Encode()

	resp, body := env.do(t, http.MethodGet, path, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["credits_awarded"].(float64) != 50 {
		t.Fatalf("expected 50 credits, got %v", body["credits_awarded"])
	}

	resp, body = env.do(t, http.MethodGet, path, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redelivery: expected 200, got %d", resp.StatusCode)
	}
	if body["duplicate"] != true {
		t.Fatalf("expected duplicate flag on redelivery")
	}
	if env.ledger.count(ledger.ReasonSurveyComplete) != 1 {
		t.Fatalf("expected a single survey entry, got %d", env.ledger.count(ledger.ReasonSurveyComplete))
	}
}

func TestPostbackRejectsBadHash(t *testing.T) {
	env := newTestEnv(t)

	q := url.Values{}
	q.Set("trans_id", "tx-2")
	q.Set("user_id", "u1")
	q.Set("status", "1")
	q.Set("amount_usd", "1.00")
	q.Set("hash", "deadbeef")

	resp, body := env.do(t, http.MethodGet, "/rewards/postback?"+q.Encode(), "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if body["code"] != "INVALID_HASH" {
		t.Fatalf("expected INVALID_HASH, got %v", body["code"])
	}
	if len(env.ledger.entries) != 0 {
		t.Fatalf("ledger should be empty")
	}
}

func TestSurveysUnconfigured(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "u1")

	resp, body := env.do(t, http.MethodGet, "/rewards/surveys", token, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if body["code"] != "CPX_NOT_CONFIGURED" {
		t.Fatalf("expected CPX_NOT_CONFIGURED, got %v", body["code"])
	}
}

func TestAdminRequiresKey(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/admin/credits/mint", strings.NewReader(`{"user_id":"u1","amount":10}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without key, got %d", resp.StatusCode)
	}
}

func TestAdminMintAndAdjust(t *testing.T) {
	env := newTestEnv(t)

	doAdmin := func(path string, payload map[string]any) (*http.Response, map[string]any) {
		raw, _ := json.Marshal(payload)
		req, _ := http.NewRequest(http.MethodPost, env.ts.URL+path, bytes.NewReader(raw))
		req.Header.Set("X-Admin-Key", testAdminKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		defer resp.Body.Close()
		var decoded map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp, decoded
	}

	resp, body := doAdmin("/admin/credits/mint", map[string]any{"user_id": "u1", "amount": 100.0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mint: expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["new_balance"].(float64) != 100 {
		t.Fatalf("expected balance 100, got %v", body["new_balance"])
	}

	resp, _ = doAdmin("/admin/credits/mint", map[string]any{"user_id": "u1", "amount": -10.0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative mint: expected 400, got %d", resp.StatusCode)
	}

	resp, body = doAdmin("/admin/credits/adjust", map[string]any{"user_id": "u1", "amount": -25.0, "description": "support refund"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("adjust: expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["new_balance"].(float64) != 75 {
		t.Fatalf("expected balance 75, got %v", body["new_balance"])
	}
}

func TestHealthWithoutChecker(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected healthy, got %v", body["status"])
	}
}

func TestMeGrantsWelcomeCreditsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.server.welcomeCredits = 25
	token := env.token(t, "newbie")

	resp, body := env.do(t, http.MethodGet, "/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["credit_balance"].(float64) != 25 {
		t.Fatalf("expected welcome balance 25, got %v", body["credit_balance"])
	}

	_, body = env.do(t, http.MethodGet, "/me", token, nil)
	if body["credit_balance"].(float64) != 25 {
		t.Fatalf("welcome grant repeated: %v", body["credit_balance"])
	}
	if env.ledger.count(ledger.ReasonMint) != 1 {
		t.Fatalf("expected single mint entry, got %d", env.ledger.count(ledger.ReasonMint))
	}
}

func TestAuthDisabledUsesHeader(t *testing.T) {
	env := newTestEnv(t)
	env.server.SetAuthDisabled(true)
	env.ledger.Append(context.Background(), "header-user", 12, ledger.ReasonMint, "seed")

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/credits/balance", nil)
	req.Header.Set("X-User-ID", "header-user")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["credit_balance"].(float64) != 12 {
		t.Fatalf("expected balance 12, got %v", body["credit_balance"])
	}
}
