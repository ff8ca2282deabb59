package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AOZdotAG/aoz-explorer/internal/ai"
	"github.com/AOZdotAG/aoz-explorer/internal/config"
	aozerrors "github.com/AOZdotAG/aoz-explorer/internal/errors"
	"github.com/AOZdotAG/aoz-explorer/internal/observability"
	"github.com/AOZdotAG/aoz-explorer/internal/registry"
	"github.com/AOZdotAG/aoz-explorer/internal/x402"
)

const testWallet = "3Q9ZqJ8VEkpJ3wKG7xdM2VxH8c9QKyNbC1rW4sD5tPu8"

type stubLLM struct {
	resp *ai.CompletionResponse
	err  error
}

func (s *stubLLM) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubLLM) Model() string { return "stub-model" }

type testEnv struct {
	handler http.Handler
	store   *registry.MemStore
	ledger  *x402.Ledger
}

func newTestEnv(t *testing.T, cfg config.RuntimeConfig, llm ai.Client, facilitatorURL string, verifyTimeout time.Duration) *testEnv {
	t.Helper()

	store := registry.NewMemStore()
	ledger := x402.NewLedger()
	facilitator := x402.NewFacilitator(x402.FacilitatorConfig{
		BaseURL:       facilitatorURL,
		VerifyTimeout: verifyTimeout,
	})
	metrics, err := observability.NewMetrics(observability.Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	apiHandler := NewAPIHandler(store, ai.NewExecutor(llm), ledger, facilitator, cfg, metrics)
	handler := NewRouter(apiHandler, metrics, RouterConfig{
		Environment:    cfg.Environment,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	return &testEnv{handler: handler, store: store, ledger: ledger}
}

func gateDisabledConfig() config.RuntimeConfig {
	return config.RuntimeConfig{
		Environment:        "test",
		Network:            config.NetworkMainnet,
		AgentCreationPrice: config.DefaultAgentCreationPrice,
		TreasuryAddress:    config.DefaultTreasuryAddress,
	}
}

func gateEnabledConfig() config.RuntimeConfig {
	cfg := gateDisabledConfig()
	cfg.X402Enabled = true
	return cfg
}

func validAgentBody() map[string]any {
	return map[string]any{
		"agentName":              "TestAgent",
		"agentType":              "LOAN",
		"description":            "Automated micro-lending agent for DeFi protocols",
		"settlementAddress":      "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
		"oathDescription":        "Provide instant loans against verified collateral",
		"fulfillmentDescription": "Keep the lending pool solvent at all times",
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal body failed: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func paymentHeaderValue() string {
	return base64.StdEncoding.EncodeToString([]byte(`{"signature":"test-payment"}`))
}

func TestListAgentsReturnsSeeds(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)
	env.store.SeedDemoAgents()

	rec := doJSON(t, env.handler, http.MethodGet, "/api/agents", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var agents []registry.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &agents); err != nil {
		t.Fatalf("Decode response failed: %v", err)
	}
	if len(agents) != 4 {
		t.Fatalf("Expected 4 agents, got %d", len(agents))
	}
	for i := 1; i < len(agents); i++ {
		if agents[i-1].ID <= agents[i].ID {
			t.Errorf("Agents not newest first: %d before %d", agents[i-1].ID, agents[i].ID)
		}
	}
}

func TestCreateAgentGateDisabled(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/agents", validAgentBody(), map[string]string{
		WalletHeader: testWallet,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var agent registry.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &agent); err != nil {
		t.Fatalf("Decode response failed: %v", err)
	}
	if agent.ID != 1 {
		t.Errorf("Expected id 1, got %d", agent.ID)
	}
	if agent.Verified != "false" {
		t.Errorf("Unverified wallet should yield verified=false, got %q", agent.Verified)
	}
	if agent.WalletAddress != testWallet {
		t.Errorf("Unexpected wallet %q", agent.WalletAddress)
	}
}

func TestCreateAgentVerifiedWallet(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/agents", validAgentBody(), map[string]string{
		WalletHeader: registry.VerifiedAddress,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var agent registry.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &agent); err != nil {
		t.Fatalf("Decode response failed: %v", err)
	}
	if agent.Verified != "true" {
		t.Errorf("Verified wallet should yield verified=true, got %q", agent.Verified)
	}
}

func TestCreateAgentRequiresWallet(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/agents", validAgentBody(), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAgentValidation(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)

	body := validAgentBody()
	body["description"] = "too short"
	rec := doJSON(t, env.handler, http.MethodPost, "/api/agents", body, map[string]string{
		WalletHeader: testWallet,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for short description, got %d", rec.Code)
	}

	body = validAgentBody()
	body["settlementAddress"] = "not-a-solana-address-0OIl"
	rec = doJSON(t, env.handler, http.MethodPost, "/api/agents", body, map[string]string{
		WalletHeader: testWallet,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid settlement address, got %d", rec.Code)
	}

	body = validAgentBody()
	body["agentType"] = "UNKNOWN"
	rec = doJSON(t, env.handler, http.MethodPost, "/api/agents", body, map[string]string{
		WalletHeader: testWallet,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown agent type, got %d", rec.Code)
	}
}

func TestCreateAgentGateEnabledChallenge(t *testing.T) {
	env := newTestEnv(t, gateEnabledConfig(), &stubLLM{}, "http://unused", 0)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/agents", validAgentBody(), map[string]string{
		WalletHeader: testWallet,
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d: %s", rec.Code, rec.Body.String())
	}

	var challenge x402.ChallengeBody
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("Decode challenge failed: %v", err)
	}
	if len(challenge.Accepts) != 1 {
		t.Fatalf("Expected one accepted requirement, got %d", len(challenge.Accepts))
	}
	reqs := challenge.Accepts[0]
	if reqs.MaxAmountRequired != config.DefaultAgentCreationPrice {
		t.Errorf("Unexpected price %q", reqs.MaxAmountRequired)
	}
	if reqs.Asset != config.USDCMintMainnet {
		t.Errorf("Unexpected asset %q", reqs.Asset)
	}
	if reqs.Resource == "" {
		t.Error("Challenge should carry the resource URL")
	}

	agents, _ := env.store.ListAgents(context.Background())
	if len(agents) != 0 {
		t.Errorf("Challenge must not create an agent, found %d", len(agents))
	}
	txs, _ := env.ledger.ListByWallet(context.Background(), testWallet)
	if len(txs) != 0 {
		t.Errorf("Challenge must not record a transaction, found %d", len(txs))
	}
}

func TestCreateAgentGateEnabledPaidFlow(t *testing.T) {
	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			_ = json.NewEncoder(w).Encode(x402.VerifyResult{IsValid: true})
		case "/settle":
			_ = json.NewEncoder(w).Encode(x402.SettleResult{Success: true, Transaction: "5igsig", Network: "solana"})
		default:
			t.Errorf("Unexpected facilitator path %s", r.URL.Path)
		}
	}))
	defer facilitator.Close()

	env := newTestEnv(t, gateEnabledConfig(), &stubLLM{}, facilitator.URL, 0)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/agents", validAgentBody(), map[string]string{
		WalletHeader:       testWallet,
		x402.PaymentHeader: paymentHeaderValue(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	txs, err := env.ledger.ListByWallet(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("ListByWallet failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("Expected one transaction, got %d", len(txs))
	}
	if txs[0].Status != x402.TxStatusSettled {
		t.Errorf("Expected settled transaction, got %q", txs[0].Status)
	}
	if txs[0].SettlementSignature != "5igsig" {
		t.Errorf("Expected settlement signature, got %q", txs[0].SettlementSignature)
	}
}

func TestCreateAgentMalformedPaymentHeader(t *testing.T) {
	env := newTestEnv(t, gateEnabledConfig(), &stubLLM{}, "http://unused", 0)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/agents", validAgentBody(), map[string]string{
		WalletHeader:       testWallet,
		x402.PaymentHeader: "%%%not-base64%%%",
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402 for malformed payment, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp paymentErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode payment error failed: %v", err)
	}
	if resp.TransactionID == "" {
		t.Fatal("Malformed payment must still record a transaction id")
	}

	tx, err := env.ledger.Get(context.Background(), resp.TransactionID)
	if err != nil {
		t.Fatalf("Get transaction failed: %v", err)
	}
	if tx.Status != x402.TxStatusFailed {
		t.Errorf("Expected failed transaction, got %q", tx.Status)
	}

	agents, _ := env.store.ListAgents(context.Background())
	if len(agents) != 0 {
		t.Errorf("Malformed payment must not create an agent, found %d", len(agents))
	}
}

func TestCreateAgentVerifyTimeout(t *testing.T) {
	release := make(chan struct{})
	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer facilitator.Close()
	defer close(release)

	env := newTestEnv(t, gateEnabledConfig(), &stubLLM{}, facilitator.URL, 50*time.Millisecond)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/agents", validAgentBody(), map[string]string{
		WalletHeader:       testWallet,
		x402.PaymentHeader: paymentHeaderValue(),
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402 on verify timeout, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp paymentErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode payment error failed: %v", err)
	}
	if resp.TransactionID == "" {
		t.Fatal("Payment error must carry the transaction id")
	}

	tx, err := env.ledger.Get(context.Background(), resp.TransactionID)
	if err != nil {
		t.Fatalf("Get transaction failed: %v", err)
	}
	if tx.Status != x402.TxStatusFailed {
		t.Errorf("Expected failed transaction, got %q", tx.Status)
	}

	agents, _ := env.store.ListAgents(context.Background())
	if len(agents) != 0 {
		t.Errorf("Timed-out payment must not create an agent, found %d", len(agents))
	}
}

func TestCreateAgentVerifyRejected(t *testing.T) {
	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(x402.VerifyResult{IsValid: false, InvalidReason: "insufficient funds"})
	}))
	defer facilitator.Close()

	env := newTestEnv(t, gateEnabledConfig(), &stubLLM{}, facilitator.URL, 0)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/agents", validAgentBody(), map[string]string{
		WalletHeader:       testWallet,
		x402.PaymentHeader: paymentHeaderValue(),
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}

	txs, _ := env.ledger.ListByWallet(context.Background(), testWallet)
	if len(txs) != 1 || txs[0].Status != x402.TxStatusFailed {
		t.Errorf("Expected one failed transaction, got %+v", txs)
	}
}

func TestCreateAgentSettlementFailureStillCreates(t *testing.T) {
	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			_ = json.NewEncoder(w).Encode(x402.VerifyResult{IsValid: true})
		case "/settle":
			_ = json.NewEncoder(w).Encode(x402.SettleResult{Success: false, ErrorReason: "blockhash expired"})
		}
	}))
	defer facilitator.Close()

	env := newTestEnv(t, gateEnabledConfig(), &stubLLM{}, facilitator.URL, 0)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/agents", validAgentBody(), map[string]string{
		WalletHeader:       testWallet,
		x402.PaymentHeader: paymentHeaderValue(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Settlement failure must not fail creation, got %d: %s", rec.Code, rec.Body.String())
	}

	txs, _ := env.ledger.ListByWallet(context.Background(), testWallet)
	if len(txs) != 1 || txs[0].Status != x402.TxStatusFailed {
		t.Errorf("Expected one failed transaction after settlement rejection, got %+v", txs)
	}
	if txs[0].ErrorMessage != "blockhash expired" {
		t.Errorf("Expected settlement reason on transaction, got %q", txs[0].ErrorMessage)
	}
}

func TestGetAgent(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)
	env.store.SeedDemoAgents()

	rec := doJSON(t, env.handler, http.MethodGet, "/api/agents/1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, env.handler, http.MethodGet, "/api/agents/999", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, env.handler, http.MethodGet, "/api/agents/abc", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for non-numeric id, got %d", rec.Code)
	}
}

func TestCreateTaskRequiresAgent(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/tasks", map[string]any{
		"agentId":         42,
		"taskType":        "analysis",
		"taskDescription": "Analyze the last week of swap volume",
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for missing agent, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAndListTasks(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)
	env.store.SeedDemoAgents()

	rec := doJSON(t, env.handler, http.MethodPost, "/api/tasks", map[string]any{
		"agentId":         1,
		"taskType":        "summarization",
		"taskDescription": "Summarize the weekly governance call notes",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var task registry.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("Decode task failed: %v", err)
	}
	if task.Status != registry.TaskStatusPending {
		t.Errorf("Expected pending task, got %q", task.Status)
	}

	rec = doJSON(t, env.handler, http.MethodGet, "/api/agents/1/tasks", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var tasks []registry.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("Decode tasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Errorf("Expected the created task back, got %+v", tasks)
	}
}

func TestExecuteTaskSuccess(t *testing.T) {
	llm := &stubLLM{resp: &ai.CompletionResponse{
		Content: "A concise summary of the call.",
		Model:   "gpt-4o-mini",
		Usage:   ai.TokenUsage{PromptTokens: 50, CompletionTokens: 30, TotalTokens: 80},
	}}
	env := newTestEnv(t, gateDisabledConfig(), llm, "http://unused", 0)
	env.store.SeedDemoAgents()

	task, err := env.store.CreateTask(context.Background(), registry.NewTask{
		AgentID:         1,
		TaskType:        registry.TaskTypeSummarization,
		TaskDescription: "Summarize the weekly governance call notes covering treasury votes, validator onboarding, and the pending fee switch proposal in a short readable paragraph for token holders who missed the session entirely",
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	rec := doJSON(t, env.handler, http.MethodPost, "/api/tasks/1/execute", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated registry.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("Decode task failed: %v", err)
	}
	if updated.ID != task.ID {
		t.Errorf("Expected task %d back, got %d", task.ID, updated.ID)
	}
	if updated.Status != registry.TaskStatusCompleted {
		t.Errorf("Expected completed, got %q", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Error("Completed task should carry a completion time")
	}

	var result ai.Result
	if err := json.Unmarshal([]byte(updated.AIResult), &result); err != nil {
		t.Fatalf("aiResult is not valid JSON: %v", err)
	}
	if result.Content == "" {
		t.Error("aiResult should carry a content string")
	}
	if result.Tokens.TotalTokens < 0 {
		t.Errorf("tokens.total must be non-negative, got %d", result.Tokens.TotalTokens)
	}
}

func TestExecuteTaskRecordsLLMMetrics(t *testing.T) {
	metrics, err := observability.NewMetrics(observability.Config{Enabled: true})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	defer func() { _ = metrics.Shutdown(context.Background()) }()

	store := registry.NewMemStore()
	store.SeedDemoAgents()
	llm := &stubLLM{resp: &ai.CompletionResponse{
		Content: "analysis complete",
		Model:   "gpt-4o-mini",
		Usage:   ai.TokenUsage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20},
	}}
	apiHandler := NewAPIHandler(store, ai.NewExecutor(llm), x402.NewLedger(), x402.NewFacilitator(x402.FacilitatorConfig{BaseURL: "http://unused"}), gateDisabledConfig(), metrics)
	handler := NewRouter(apiHandler, metrics, RouterConfig{
		Environment:    "test",
		MetricsEnabled: true,
	})

	if _, err := store.CreateTask(context.Background(), registry.NewTask{
		AgentID:         1,
		TaskType:        registry.TaskTypeAnalysis,
		TaskDescription: "Analyze the last week of swap volume",
	}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if rec := doJSON(t, handler, http.MethodPost, "/api/tasks/1/execute", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("Execute expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, handler, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Scrape expected 200, got %d", rec.Code)
	}
	scrape := rec.Body.String()
	if !strings.Contains(scrape, "aoz_llm_tokens") {
		t.Error("Scrape should expose the LLM token counter after a completed execution")
	}
	if !strings.Contains(scrape, "aoz_llm_latency") {
		t.Error("Scrape should expose the LLM latency histogram after a completed execution")
	}
}

func TestExecuteTaskOnlyOnce(t *testing.T) {
	llm := &stubLLM{resp: &ai.CompletionResponse{Content: "done", Model: "gpt-4o-mini"}}
	env := newTestEnv(t, gateDisabledConfig(), llm, "http://unused", 0)
	env.store.SeedDemoAgents()

	if _, err := env.store.CreateTask(context.Background(), registry.NewTask{
		AgentID:         1,
		TaskType:        registry.TaskTypeAnalysis,
		TaskDescription: "Analyze the last week of swap volume",
	}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if rec := doJSON(t, env.handler, http.MethodPost, "/api/tasks/1/execute", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("First execute expected 200, got %d", rec.Code)
	}

	rec := doJSON(t, env.handler, http.MethodPost, "/api/tasks/1/execute", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Second execute expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	task, err := env.store.GetTask(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Status != registry.TaskStatusCompleted {
		t.Errorf("Rejected execute must not change status, got %q", task.Status)
	}
}

func TestExecuteTaskFailure(t *testing.T) {
	llm := &stubLLM{err: errors.New("upstream unavailable")}
	env := newTestEnv(t, gateDisabledConfig(), llm, "http://unused", 0)
	env.store.SeedDemoAgents()

	if _, err := env.store.CreateTask(context.Background(), registry.NewTask{
		AgentID:         1,
		TaskType:        registry.TaskTypeTextGeneration,
		TaskDescription: "Write a short post about agent settlement",
	}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	rec := doJSON(t, env.handler, http.MethodPost, "/api/tasks/1/execute", nil, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp executeFailedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode response failed: %v", err)
	}
	if resp.Task == nil || resp.Task.Status != registry.TaskStatusFailed {
		t.Errorf("Expected failed task in response, got %+v", resp.Task)
	}
	if resp.Task != nil && resp.Task.ErrorMessage == "" {
		t.Error("Failed task should carry the error message")
	}
}

func TestExecuteTaskFailureTransientUpstream(t *testing.T) {
	llm := &stubLLM{err: aozerrors.NewTransientError(errors.New("upstream timeout"), "LLM request failed. Please retry.")}
	env := newTestEnv(t, gateDisabledConfig(), llm, "http://unused", 0)
	env.store.SeedDemoAgents()

	if _, err := env.store.CreateTask(context.Background(), registry.NewTask{
		AgentID:         1,
		TaskType:        registry.TaskTypeAnalysis,
		TaskDescription: "Analyze the last week of swap volume",
	}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	rec := doJSON(t, env.handler, http.MethodPost, "/api/tasks/1/execute", nil, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Retryable upstream failure must still return 500, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp executeFailedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode response failed: %v", err)
	}
	if resp.Task == nil || resp.Task.Status != registry.TaskStatusFailed {
		t.Errorf("Expected failed task in response, got %+v", resp.Task)
	}
	if resp.Task != nil && !strings.Contains(resp.Task.ErrorMessage, "Please retry") {
		t.Errorf("Failed task should carry the upstream message, got %q", resp.Task.ErrorMessage)
	}
}

func TestTransactionEndpoints(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)

	tx, err := env.ledger.Record(context.Background(), testWallet, "1000000", config.USDCMintMainnet, "solana", "http://localhost/api/agents")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if _, err := env.ledger.Record(context.Background(), "OtherWallet11111111111111111111111111111111", "1000000", config.USDCMintMainnet, "solana", "http://localhost/api/agents"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	rec := doJSON(t, env.handler, http.MethodGet, "/api/x402/transactions?wallet="+testWallet, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var txs []x402.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &txs); err != nil {
		t.Fatalf("Decode transactions failed: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != tx.ID {
		t.Errorf("Expected only the wallet's transaction, got %+v", txs)
	}

	rec = doJSON(t, env.handler, http.MethodGet, "/api/x402/transactions", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 without wallet param, got %d", rec.Code)
	}

	rec = doJSON(t, env.handler, http.MethodGet, "/api/x402/transactions/"+tx.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, env.handler, http.MethodGet, "/api/x402/transactions/x402-missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)

	rec := doJSON(t, env.handler, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Decode health failed: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Unexpected health body %v", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, gateDisabledConfig(), &stubLLM{}, "http://unused", 0)

	rec := doJSON(t, env.handler, http.MethodDelete, "/api/agents", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %d", rec.Code)
	}

	rec = doJSON(t, env.handler, http.MethodGet, "/api/tasks/1/execute", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %d", rec.Code)
	}
}
