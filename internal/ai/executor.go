package ai

import (
	"context"
	"fmt"

	"github.com/AOZdotAG/aoz-explorer/internal/registry"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

// Result is the serializable outcome of one AI task execution. It is stored
// on the task as a JSON document.
type Result struct {
	Content string     `json:"content"`
	Model   string     `json:"model"`
	Tokens  TokenUsage `json:"tokens"`
}

// AgentContext carries the owning agent's identity into the system prompt.
type AgentContext struct {
	Name        string
	Type        string
	Description string
}

// Executor runs registry tasks against the completion client.
type Executor struct {
	client Client
}

// NewExecutor creates a task executor backed by the given client.
func NewExecutor(client Client) *Executor {
	return &Executor{client: client}
}

// Execute runs one task and returns the structured result. The prompt is
// specialized per task type and enriched with the owning agent's profile.
func (e *Executor) Execute(ctx context.Context, taskType registry.TaskType, taskDescription string, agent *AgentContext) (*Result, error) {
	resp, err := e.client.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: systemPrompt(taskType, agent)},
			{Role: "user", Content: taskDescription},
		},
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("AI execution failed: %w", err)
	}

	return &Result{
		Content: resp.Content,
		Model:   resp.Model,
		Tokens:  resp.Usage,
	}, nil
}

func systemPrompt(taskType registry.TaskType, agent *AgentContext) string {
	prompt := "You are an AI assistant helping with automated tasks."

	if agent != nil {
		prompt += fmt.Sprintf("\n\nYou are working as part of %q, a %s agent. Agent description: %s",
			agent.Name, agent.Type, agent.Description)
	}

	switch taskType {
	case registry.TaskTypeTextGeneration:
		prompt += "\n\nYour task is to generate high-quality text based on the user's request. Be creative, accurate, and helpful."
	case registry.TaskTypeAnalysis:
		prompt += "\n\nYour task is to analyze the provided information and provide clear, actionable insights."
	case registry.TaskTypeSummarization:
		prompt += "\n\nYour task is to create a concise, accurate summary of the provided content."
	case registry.TaskTypeQuestionAnswer:
		prompt += "\n\nYour task is to answer questions accurately and helpfully based on the information provided."
	}

	return prompt
}
