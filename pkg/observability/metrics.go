package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	globalMetrics *Metrics
	metricsMu     sync.RWMutex
)

// Metrics holds the instruments recorded by agents, tools, the LLM backend
// and the HTTP server. A nil *Metrics is valid and records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	conversationDuration metric.Float64Histogram
	conversationTurns    metric.Int64Counter
	conversationErrors   metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrors       metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
}

// InitMetrics creates the otel meter provider backed by a dedicated
// Prometheus registry. A disabled config yields nil metrics.
func InitMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(ns)

	m := &Metrics{provider: provider, registry: registry}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.conversationDuration, "conversation_turn_duration_seconds", "Conversation turn duration in seconds"},
		{&m.toolDuration, "tool_execution_duration_seconds", "Tool execution duration in seconds"},
		{&m.llmDuration, "llm_request_duration_seconds", "LLM request duration in seconds"},
		{&m.httpDuration, "http_request_duration_seconds", "HTTP request duration in seconds"},
	}
	for _, h := range histograms {
		inst, err := meter.Float64Histogram(ns+"_"+h.name, metric.WithDescription(h.desc), metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
		*h.dst = inst
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.conversationTurns, "conversation_turns", "Total conversation turns"},
		{&m.conversationErrors, "conversation_errors", "Total failed conversation turns"},
		{&m.toolCalls, "tool_calls", "Total tool calls"},
		{&m.toolErrors, "tool_errors", "Total tool errors"},
		{&m.llmInputTokens, "llm_tokens_input", "Total input tokens sent to the LLM"},
		{&m.llmOutputTokens, "llm_tokens_output", "Total output tokens from the LLM"},
		{&m.llmErrors, "llm_errors", "Total LLM errors"},
		{&m.httpRequests, "http_requests", "Total HTTP requests"},
	}
	for _, c := range counters {
		inst, err := meter.Int64Counter(ns+"_"+c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = inst
	}

	return m, nil
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordConversationTurn records one user turn through the agent.
func (m *Metrics) RecordConversationTurn(ctx context.Context, agent string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("agent", agent))
	m.conversationDuration.Record(ctx, duration.Seconds(), attrs)
	m.conversationTurns.Add(ctx, 1, attrs)
	if err != nil {
		m.conversationErrors.Add(ctx, 1, attrs)
	}
}

// RecordToolExecution records a single tool invocation.
func (m *Metrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

// RecordLLMCall records a model request and its token usage.
func (m *Metrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpRequests.Add(ctx, 1, attrs)
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// SetGlobalMetrics installs the process-wide metrics.
func SetGlobalMetrics(m *Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics, possibly nil.
func GetGlobalMetrics() *Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
