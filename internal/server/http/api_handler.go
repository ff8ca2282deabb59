package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AOZdotAG/aoz-explorer/internal/ai"
	aozerrors "github.com/AOZdotAG/aoz-explorer/internal/errors"
	"github.com/AOZdotAG/aoz-explorer/internal/config"
	"github.com/AOZdotAG/aoz-explorer/internal/logging"
	"github.com/AOZdotAG/aoz-explorer/internal/observability"
	"github.com/AOZdotAG/aoz-explorer/internal/registry"
	"github.com/AOZdotAG/aoz-explorer/internal/x402"
)

const maxRequestBodySize = 1 << 20 // 1 MiB

// WalletHeader carries the caller's connected wallet address.
const WalletHeader = "X-Wallet-Address"

// APIHandler handles the REST API endpoints.
type APIHandler struct {
	store       registry.Store
	executor    *ai.Executor
	ledger      *x402.Ledger
	facilitator *x402.Facilitator
	cfg         config.RuntimeConfig
	metrics     *observability.Metrics
	logger      logging.Logger
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(store registry.Store, executor *ai.Executor, ledger *x402.Ledger, facilitator *x402.Facilitator, cfg config.RuntimeConfig, metrics *observability.Metrics) *APIHandler {
	return &APIHandler{
		store:       store,
		executor:    executor,
		ledger:      ledger,
		facilitator: facilitator,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logging.NewComponentLogger("APIHandler"),
	}
}

type createAgentRequest struct {
	AgentName              string `json:"agentName"`
	AgentType              string `json:"agentType"`
	Description            string `json:"description"`
	SettlementAddress      string `json:"settlementAddress"`
	OathDescription        string `json:"oathDescription"`
	FulfillmentDescription string `json:"fulfillmentDescription"`
	TEEURL                 string `json:"teeUrl,omitempty"`
}

type createTaskRequest struct {
	AgentID         int    `json:"agentId"`
	TaskType        string `json:"taskType"`
	TaskDescription string `json:"taskDescription"`
}

type paymentErrorResponse struct {
	Error         string `json:"error"`
	Details       string `json:"details,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
}

type executeFailedResponse struct {
	Error string         `json:"error"`
	Task  *registry.Task `json:"task"`
}

func (h *APIHandler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = body.Close() }()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			h.writeJSONError(w, http.StatusBadRequest, "Request body is empty", nil)
		case errors.As(err, &syntaxErr):
			h.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON at position %d", syntaxErr.Offset), nil)
		case errors.As(err, &typeErr):
			h.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid value for field '%s'", typeErr.Field), nil)
		case errors.As(err, &maxBytesErr):
			h.writeJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
		default:
			h.writeJSONError(w, http.StatusBadRequest, "Invalid request body", nil)
		}
		return false
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		h.writeJSONError(w, http.StatusBadRequest, "Request body must contain a single JSON object", nil)
		return false
	}
	return true
}

// HandleListAgents handles GET /api/agents.
func (h *APIHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.ListAgents(r.Context())
	if err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to fetch agents", err)
		return
	}
	h.writeJSON(w, http.StatusOK, agents)
}

// HandleGetAgent handles GET /api/agents/:id.
func (h *APIHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseIDSuffix(w, r.URL.Path, "/api/agents/", "agent")
	if !ok {
		return
	}

	agent, err := h.store.GetAgent(r.Context(), id)
	if err != nil {
		h.writeJSONError(w, http.StatusNotFound, "Agent not found", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, agent)
}

// HandleCreateAgent handles POST /api/agents. When the payment gate is
// enabled the request must carry a valid payment; settlement happens after
// the agent is created and its failure does not undo the creation.
func (h *APIHandler) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := validateCreateAgent(req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	wallet := strings.TrimSpace(r.Header.Get(WalletHeader))
	if wallet == "" {
		h.writeJSONError(w, http.StatusBadRequest, "Wallet address required", errors.New("Please connect your Phantom wallet"))
		return
	}

	var paidTx *x402.Transaction
	var payment string
	var requirements x402.PaymentRequirements
	if h.cfg.X402Enabled {
		requirements = h.buildRequirements(r)

		payload, present := x402.ExtractPayment(r.Header)
		if !present {
			h.metrics.RecordPaymentEvent(r.Context(), "challenge", "ok")
			h.writeJSON(w, http.StatusPaymentRequired, x402.NewChallenge("X-Payment header is required", requirements))
			return
		}

		tx, err := h.ledger.Record(r.Context(), wallet, requirements.MaxAmountRequired, requirements.Asset, requirements.Network, requirements.Resource)
		if err != nil {
			h.writeJSONError(w, http.StatusInternalServerError, "Failed to record payment", err)
			return
		}

		if payload == "" {
			h.failPayment(r, tx.ID, "malformed payment header")
			h.writeJSON(w, http.StatusPaymentRequired, paymentErrorResponse{
				Error:         "Invalid payment",
				Details:       "Payment header could not be decoded",
				TransactionID: tx.ID,
			})
			return
		}

		result, err := h.facilitator.Verify(r.Context(), payload, requirements)
		if err != nil {
			reason := "payment verification failed"
			if errors.Is(err, x402.ErrVerifyTimeout) {
				reason = "payment verification timed out"
				h.metrics.RecordPaymentEvent(r.Context(), "verify", "timeout")
			} else {
				h.metrics.RecordPaymentEvent(r.Context(), "verify", "error")
			}
			h.logger.Error("Payment verification error for tx %s: %v", tx.ID, err)
			h.failPayment(r, tx.ID, reason)
			h.writeJSON(w, http.StatusPaymentRequired, paymentErrorResponse{
				Error:         "Invalid payment",
				Details:       "Payment verification failed. Please try again.",
				TransactionID: tx.ID,
			})
			return
		}
		if !result.IsValid {
			h.metrics.RecordPaymentEvent(r.Context(), "verify", "rejected")
			reason := result.InvalidReason
			if reason == "" {
				reason = "payment rejected by facilitator"
			}
			h.failPayment(r, tx.ID, reason)
			h.writeJSON(w, http.StatusPaymentRequired, paymentErrorResponse{
				Error:         "Invalid payment",
				Details:       "Payment verification failed. Please try again.",
				TransactionID: tx.ID,
			})
			return
		}

		h.metrics.RecordPaymentEvent(r.Context(), "verify", "ok")
		if paidTx, err = h.ledger.MarkVerified(r.Context(), tx.ID); err != nil {
			h.writeJSONError(w, http.StatusInternalServerError, "Failed to record payment", err)
			return
		}
		payment = payload
	}

	agent, err := h.store.CreateAgent(r.Context(), registry.NewAgent{
		AgentName:              req.AgentName,
		AgentType:              registry.AgentType(req.AgentType),
		Description:            req.Description,
		SettlementAddress:      req.SettlementAddress,
		OathDescription:        req.OathDescription,
		FulfillmentDescription: req.FulfillmentDescription,
		TEEURL:                 req.TEEURL,
	}, wallet)
	if err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to create agent", err)
		return
	}
	h.metrics.RecordAgentCreated(r.Context(), string(agent.AgentType), agent.Verified == "true")
	h.logger.Info("Agent created: id=%d name=%s type=%s verified=%s", agent.ID, agent.AgentName, agent.AgentType, agent.Verified)

	// Settlement failure after creation is recorded but never fails the
	// request; the agent already exists.
	if paidTx != nil {
		h.settlePayment(r, paidTx.ID, payment, requirements)
	}

	h.writeJSON(w, http.StatusCreated, agent)
}

func (h *APIHandler) buildRequirements(r *http.Request) x402.PaymentRequirements {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return x402.BuildRequirements(x402.RequirementsConfig{
		Price:       h.cfg.AgentCreationPrice,
		AssetMint:   h.cfg.USDCMint(),
		Decimals:    config.USDCDecimals,
		Network:     h.cfg.Network,
		PayTo:       h.cfg.TreasuryAddress,
		Resource:    fmt.Sprintf("%s://%s/api/agents", scheme, r.Host),
		Description: "Create AI Agent on AOZ Platform",
	})
}

func (h *APIHandler) failPayment(r *http.Request, txID, reason string) {
	if _, err := h.ledger.MarkFailed(r.Context(), txID, reason); err != nil {
		h.logger.Error("Failed to mark payment %s failed: %v", txID, err)
	}
}

func (h *APIHandler) settlePayment(r *http.Request, txID, payment string, requirements x402.PaymentRequirements) {
	result, err := h.facilitator.Settle(r.Context(), payment, requirements)
	if err != nil {
		h.metrics.RecordPaymentEvent(r.Context(), "settle", "error")
		h.logger.Error("Error settling payment %s: %v", txID, err)
		h.failPayment(r, txID, "settlement failed: "+err.Error())
		return
	}
	if !result.Success {
		h.metrics.RecordPaymentEvent(r.Context(), "settle", "rejected")
		reason := result.ErrorReason
		if reason == "" {
			reason = "settlement rejected by facilitator"
		}
		h.logger.Error("Settlement rejected for payment %s: %s", txID, reason)
		h.failPayment(r, txID, reason)
		return
	}

	h.metrics.RecordPaymentEvent(r.Context(), "settle", "ok")
	if _, err := h.ledger.MarkSettled(r.Context(), txID, result.Transaction); err != nil {
		h.logger.Error("Failed to mark payment %s settled: %v", txID, err)
	}
}

// HandleListAgentTasks handles GET /api/agents/:id/tasks.
func (h *APIHandler) HandleListAgentTasks(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	raw := strings.TrimSuffix(path, "/tasks")
	agentID, err := strconv.Atoi(raw)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "Invalid agent ID", nil)
		return
	}

	tasks, err := h.store.ListTasksByAgent(r.Context(), agentID)
	if err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to fetch tasks", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

// HandleCreateTask handles POST /api/tasks.
func (h *APIHandler) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := validateCreateTask(req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if _, err := h.store.GetAgent(r.Context(), req.AgentID); err != nil {
		h.writeJSONError(w, http.StatusNotFound, "Agent not found", nil)
		return
	}

	task, err := h.store.CreateTask(r.Context(), registry.NewTask{
		AgentID:         req.AgentID,
		TaskType:        registry.TaskType(req.TaskType),
		TaskDescription: req.TaskDescription,
	})
	if err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to create task", err)
		return
	}

	h.logger.Info("Task created: id=%d agent=%d type=%s", task.ID, task.AgentID, task.TaskType)
	h.writeJSON(w, http.StatusCreated, task)
}

// HandleExecuteTask handles POST /api/tasks/:id/execute. Only pending tasks
// are executable; completed, failed, and in-flight tasks yield a 400.
func (h *APIHandler) HandleExecuteTask(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	raw := strings.TrimSuffix(path, "/execute")
	taskID, err := strconv.Atoi(raw)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "Invalid task ID", nil)
		return
	}

	task, err := h.store.GetTask(r.Context(), taskID)
	if err != nil {
		h.writeJSONError(w, http.StatusNotFound, "Task not found", nil)
		return
	}

	if task.Status != registry.TaskStatusPending {
		h.writeJSONError(w, http.StatusBadRequest, "Task already processed", fmt.Errorf("Task status is %s", task.Status))
		return
	}

	agent, err := h.store.GetAgent(r.Context(), task.AgentID)
	if err != nil {
		h.writeJSONError(w, http.StatusNotFound, "Agent not found", nil)
		return
	}

	if _, err := h.store.UpdateTaskStatus(r.Context(), taskID, registry.TaskUpdate{Status: registry.TaskStatusProcessing}); err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to execute task", err)
		return
	}

	llmStart := time.Now()
	result, execErr := h.executor.Execute(r.Context(), task.TaskType, task.TaskDescription, &ai.AgentContext{
		Name:        agent.AgentName,
		Type:        string(agent.AgentType),
		Description: agent.Description,
	})
	if execErr != nil {
		h.metrics.RecordTaskExecution(r.Context(), string(task.TaskType), string(registry.TaskStatusFailed))
		if aozerrors.IsTransient(execErr) {
			h.logger.Warn("AI execution failed for task %d (retryable upstream): %v", taskID, execErr)
		} else {
			h.logger.Error("AI execution failed for task %d: %v", taskID, execErr)
		}

		message := execErr.Error()
		failed, updateErr := h.store.UpdateTaskStatus(r.Context(), taskID, registry.TaskUpdate{
			Status:       registry.TaskStatusFailed,
			ErrorMessage: &message,
		})
		if updateErr != nil {
			h.writeJSONError(w, http.StatusInternalServerError, "Failed to execute task", updateErr)
			return
		}
		h.writeJSON(w, http.StatusInternalServerError, executeFailedResponse{
			Error: "AI execution failed",
			Task:  failed,
		})
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to execute task", err)
		return
	}
	aiResult := string(resultJSON)

	updated, err := h.store.UpdateTaskStatus(r.Context(), taskID, registry.TaskUpdate{
		Status:   registry.TaskStatusCompleted,
		AIResult: &aiResult,
	})
	if err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to execute task", err)
		return
	}

	h.metrics.RecordTaskExecution(r.Context(), string(task.TaskType), string(registry.TaskStatusCompleted))
	h.metrics.RecordLLMUsage(r.Context(), result.Model, result.Tokens.PromptTokens, result.Tokens.CompletionTokens, time.Since(llmStart))
	h.logger.Info("Task %d completed: model=%s tokens=%d", taskID, result.Model, result.Tokens.TotalTokens)
	h.writeJSON(w, http.StatusOK, updated)
}

// HandleListTransactions handles GET /api/x402/transactions?wallet=<addr>.
func (h *APIHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		h.writeJSONError(w, http.StatusBadRequest, "Wallet query parameter is required", nil)
		return
	}

	txs, err := h.ledger.ListByWallet(r.Context(), wallet)
	if err != nil {
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to fetch transactions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// HandleGetTransaction handles GET /api/x402/transactions/:id.
func (h *APIHandler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/x402/transactions/")
	id = strings.TrimSpace(id)
	if id == "" {
		h.writeJSONError(w, http.StatusBadRequest, "Transaction ID is required", nil)
		return
	}

	tx, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		h.writeJSONError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// HandleHealthCheck handles GET /health.
func (h *APIHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"environment": h.cfg.Environment,
		"x402":        h.cfg.X402Enabled,
	})
}

func (h *APIHandler) parseIDSuffix(w http.ResponseWriter, path, prefix, entity string) (int, bool) {
	raw := strings.TrimSpace(strings.TrimPrefix(path, prefix))
	id, err := strconv.Atoi(raw)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s ID", entity), nil)
		return 0, false
	}
	return id, true
}
