package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	aozerrors "github.com/AOZdotAG/aoz-explorer/internal/errors"
	"github.com/AOZdotAG/aoz-explorer/internal/httpclient"
	"github.com/AOZdotAG/aoz-explorer/internal/logging"
)

// TokenUsage reports token accounting for one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt"`
	CompletionTokens int `json:"completion"`
	TotalTokens      int `json:"total"`
}

// Message is one chat turn sent to the completions API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the model-agnostic completion input.
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// CompletionResponse is the aggregated completion output.
type CompletionResponse struct {
	Content string
	Model   string
	Usage   TokenUsage
}

// Client is the LLM completion contract; the production implementation speaks
// the OpenAI-compatible chat completions API.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// ClientConfig configures the OpenAI-compatible client.
type ClientConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

const maxResponseBytes = 4 * 1024 * 1024

type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIClient constructs a client that speaks the OpenAI-compatible chat
// completions API using the provided configuration.
func NewOpenAIClient(config ClientConfig) Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	timeout := 60 * time.Second
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	logger := logging.NewComponentLogger("llm")

	return &openaiClient{
		model:      config.Model,
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpclient.New(timeout, logger),
		logger:     logger,
	}
}

func (c *openaiClient) Model() string {
	return c.model
}

func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	oaiReq := map[string]any{
		"model":       c.model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
		"stream":      false,
	}

	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	c.logger.Debug("LLM request: POST %s model=%s key=%s", endpoint, c.model, logging.SanitizeAPIKey(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("LLM request failed: %v", err)
		return nil, aozerrors.NewTransientError(err, "LLM request failed. Please retry.")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		if httpclient.IsResponseTooLarge(err) {
			return nil, aozerrors.NewPermanentError(err, "LLM response exceeded the size limit")
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("LLM error response (%d): %s", resp.StatusCode, string(respBody))
		return nil, aozerrors.FromHTTPStatus(resp.StatusCode, llmErrorMessage(respBody, resp.StatusCode))
	}

	var oaiResp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if oaiResp.Error != nil && oaiResp.Error.Message != "" {
		return nil, aozerrors.FromHTTPStatus(resp.StatusCode, oaiResp.Error.Message)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, aozerrors.NewTransientError(errors.New("no choices in response"), "LLM returned an empty response. Please retry.")
	}

	model := oaiResp.Model
	if model == "" {
		model = c.model
	}

	content := oaiResp.Choices[0].Message.Content
	if content == "" {
		content = "No response generated"
	}

	c.logger.Debug("LLM response: model=%s finish=%s tokens=%d",
		model, oaiResp.Choices[0].FinishReason, oaiResp.Usage.TotalTokens)

	return &CompletionResponse{
		Content: content,
		Model:   model,
		Usage: TokenUsage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}, nil
}

func llmErrorMessage(body []byte, status int) string {
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Message != "" {
		return wrapped.Error.Message
	}
	return fmt.Sprintf("LLM API returned status %d", status)
}
