package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/scoutworks/deepscout/config"
)

// Telemetry provides run monitoring and cost tracking for the research
// engine. A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	registry    *prometheus.Registry
	costTracker *CostTracker

	runsTotal         prometheus.Counter
	runDuration       prometheus.Histogram
	searchesTotal     prometheus.Counter
	branchErrorsTotal prometheus.Counter
	learningsTotal    prometheus.Counter
	llmRequests       *prometheus.CounterVec
	llmTokens         *prometheus.CounterVec
}

// CostTracker tracks dollar costs across models and operations
type CostTracker struct {
	mu          sync.RWMutex
	ModelCosts  map[string]float64 // model -> cost
	TotalCost   float64
	TotalTokens int64
}

// NewTelemetry creates a new telemetry instance with its own registry
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config:   cfg,
		logger:   log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		registry: prometheus.NewRegistry(),
		costTracker: &CostTracker{
			ModelCosts: make(map[string]float64),
		},
	}

	t.runsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deepscout_research_runs_total",
		Help: "Completed root research runs.",
	})
	t.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "deepscout_research_run_duration_seconds",
		Help:    "Duration of root research runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	t.searchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deepscout_searches_total",
		Help: "Web searches issued.",
	})
	t.branchErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deepscout_branch_errors_total",
		Help: "Research branches that failed and degraded to empty learnings.",
	})
	t.learningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deepscout_learnings_total",
		Help: "Learnings extracted across all runs (before deduplication).",
	})
	t.llmRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscout_llm_requests_total",
		Help: "LLM calls by model.",
	}, []string{"model"})
	t.llmTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscout_llm_tokens_total",
		Help: "LLM tokens by model and direction.",
	}, []string{"model", "direction"})

	t.registry.MustRegister(
		t.runsTotal, t.runDuration, t.searchesTotal,
		t.branchErrorsTotal, t.learningsTotal,
		t.llmRequests, t.llmTokens,
	)

	return t
}

// Registry exposes the prometheus registry for the /metrics endpoint.
func (t *Telemetry) Registry() *prometheus.Registry {
	if t == nil {
		return prometheus.NewRegistry()
	}
	return t.registry
}

// RecordResearchRun records one completed root research run
func (t *Telemetry) RecordResearchRun(duration time.Duration, learnings int) {
	if t == nil {
		return
	}
	t.runsTotal.Inc()
	t.runDuration.Observe(duration.Seconds())
	t.learningsTotal.Add(float64(learnings))
	if t.config.Enabled {
		t.logger.Printf("research run completed in %v with %d learnings", duration, learnings)
	}
}

// RecordSearch records one web search
func (t *Telemetry) RecordSearch() {
	if t == nil {
		return
	}
	t.searchesTotal.Inc()
}

// RecordBranchError records one isolated branch failure
func (t *Telemetry) RecordBranchError() {
	if t == nil {
		return
	}
	t.branchErrorsTotal.Inc()
}

// RecordLLMUsage records token usage and cost for one model call
func (t *Telemetry) RecordLLMUsage(model string, promptTokens, completionTokens int64, cost float64) {
	if t == nil {
		return
	}
	t.llmRequests.WithLabelValues(model).Inc()
	t.llmTokens.WithLabelValues(model, "input").Add(float64(promptTokens))
	t.llmTokens.WithLabelValues(model, "output").Add(float64(completionTokens))

	if !t.config.CostTracking {
		return
	}
	t.costTracker.mu.Lock()
	t.costTracker.ModelCosts[model] += cost
	t.costTracker.TotalCost += cost
	t.costTracker.TotalTokens += promptTokens + completionTokens
	t.costTracker.mu.Unlock()
}

// CostSummary returns accumulated per-model and total costs
func (t *Telemetry) CostSummary() (map[string]float64, float64, int64) {
	if t == nil {
		return nil, 0, 0
	}
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()
	costs := make(map[string]float64, len(t.costTracker.ModelCosts))
	for k, v := range t.costTracker.ModelCosts {
		costs[k] = v
	}
	return costs, t.costTracker.TotalCost, t.costTracker.TotalTokens
}
