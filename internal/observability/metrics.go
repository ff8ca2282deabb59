package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics manages the service meters. A disabled collector is a valid
// zero-cost no-op so call sites never need nil checks.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	agentsCreated metric.Int64Counter
	tasksExecuted metric.Int64Counter
	llmTokens     metric.Int64Counter
	llmLatency    metric.Float64Histogram
	paymentEvents metric.Int64Counter
	httpRequests  metric.Int64Counter
	httpLatency   metric.Float64Histogram
}

// Config controls metrics collection.
type Config struct {
	Enabled bool
}

// NewMetrics creates the metrics collector with a Prometheus exporter.
func NewMetrics(config Config) (*Metrics, error) {
	if !config.Enabled {
		return &Metrics{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("aoz")

	m := &Metrics{provider: provider}

	if m.agentsCreated, err = meter.Int64Counter(
		"aoz.agents.created.total",
		metric.WithDescription("Total number of agents registered"),
		metric.WithUnit("{agent}"),
	); err != nil {
		return nil, fmt.Errorf("create agents counter: %w", err)
	}

	if m.tasksExecuted, err = meter.Int64Counter(
		"aoz.tasks.executed.total",
		metric.WithDescription("Total number of AI task executions by outcome"),
		metric.WithUnit("{task}"),
	); err != nil {
		return nil, fmt.Errorf("create tasks counter: %w", err)
	}

	if m.llmTokens, err = meter.Int64Counter(
		"aoz.llm.tokens.total",
		metric.WithDescription("Total tokens exchanged with the LLM by direction"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("create token counter: %w", err)
	}

	if m.llmLatency, err = meter.Float64Histogram(
		"aoz.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create llm latency histogram: %w", err)
	}

	if m.paymentEvents, err = meter.Int64Counter(
		"aoz.x402.events.total",
		metric.WithDescription("Payment gate events by stage and outcome"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("create payment counter: %w", err)
	}

	if m.httpRequests, err = meter.Int64Counter(
		"aoz.http.requests.total",
		metric.WithDescription("HTTP requests by route and status"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create http counter: %w", err)
	}

	if m.httpLatency, err = meter.Float64Histogram(
		"aoz.http.latency",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create http latency histogram: %w", err)
	}

	return m, nil
}

// Handler exposes the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordAgentCreated increments the registered agent counter.
func (m *Metrics) RecordAgentCreated(ctx context.Context, agentType string, verified bool) {
	if m == nil || m.agentsCreated == nil {
		return
	}
	m.agentsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_type", agentType),
		attribute.Bool("verified", verified),
	))
}

// RecordTaskExecution records one AI execution with its terminal status.
func (m *Metrics) RecordTaskExecution(ctx context.Context, taskType, status string) {
	if m == nil || m.tasksExecuted == nil {
		return
	}
	m.tasksExecuted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

// RecordLLMUsage records token usage and latency for one completion call.
func (m *Metrics) RecordLLMUsage(ctx context.Context, model string, promptTokens, completionTokens int, elapsed time.Duration) {
	if m == nil || m.llmTokens == nil {
		return
	}
	modelAttr := attribute.String("model", model)
	m.llmTokens.Add(ctx, int64(promptTokens), metric.WithAttributes(modelAttr, attribute.String("direction", "input")))
	m.llmTokens.Add(ctx, int64(completionTokens), metric.WithAttributes(modelAttr, attribute.String("direction", "output")))
	m.llmLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(modelAttr))
}

// RecordPaymentEvent records a payment gate stage outcome
// (stage: challenge|verify|settle, outcome: ok|rejected|timeout|error).
func (m *Metrics) RecordPaymentEvent(ctx context.Context, stage, outcome string) {
	if m == nil || m.paymentEvents == nil {
		return
	}
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, route string, status int, elapsed time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("route", route)))
}
