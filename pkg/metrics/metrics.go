// Package metrics provides metrics collection for the scan engine.
// It includes a collection interface and a Prometheus-compatible implementation.
package metrics

import (
	"net/http"
	"sync"
)

// =============================================================================
// Metrics Interface
// =============================================================================

// Collector is the interface for collecting and reporting metrics.
// Implement this interface to use custom metrics backends.
type Collector interface {
	// Counter operations
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)

	// Gauge operations
	GaugeSet(name string, value float64, labels ...string)
	GaugeInc(name string, labels ...string)
	GaugeDec(name string, labels ...string)

	// Histogram operations
	HistogramObserve(name string, value float64, labels ...string)

	// Handler returns an HTTP handler for the metrics endpoint
	Handler() http.Handler

	// Reset clears all metrics (for testing)
	Reset()
}

// MetricType represents the type of metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// MetricDefinition defines a metric with its metadata.
type MetricDefinition struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Help    string     `json:"help"`
	Labels  []string   `json:"labels,omitempty"`
	Buckets []float64  `json:"buckets,omitempty"` // For histograms
}

// =============================================================================
// Default Metrics - Standard metrics for the scan engine
// =============================================================================

var (
	// Scan lifecycle metrics
	ScansTotal = MetricDefinition{
		Name:   "cypherpunk_scans_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of scans by terminal status",
		Labels: []string{"status"},
	}
	ScanDuration = MetricDefinition{
		Name:    "cypherpunk_scan_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of scans in seconds",
		Labels:  []string{},
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}
	ActiveScans = MetricDefinition{
		Name:   "cypherpunk_active_scans",
		Type:   MetricTypeGauge,
		Help:   "Number of scans currently in progress",
		Labels: []string{},
	}
	ConfirmedFindingsTotal = MetricDefinition{
		Name:   "cypherpunk_findings_confirmed_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of consensus-confirmed findings",
		Labels: []string{"severity"},
	}

	// Analyzer metrics
	AnalyzerRunsTotal = MetricDefinition{
		Name:   "cypherpunk_analyzer_runs_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of analyzer invocations",
		Labels: []string{"analyzer", "status"},
	}
	AnalyzerDuration = MetricDefinition{
		Name:    "cypherpunk_analyzer_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of analyzer invocations in seconds",
		Labels:  []string{"analyzer"},
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}

	// Consensus metrics
	VotesTotal = MetricDefinition{
		Name:   "cypherpunk_votes_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of votes cast",
		Labels: []string{"decision"},
	}
	ConsensusConfidence = MetricDefinition{
		Name:    "cypherpunk_consensus_confidence",
		Type:    MetricTypeHistogram,
		Help:    "Consensus-adjusted confidence of decided groups",
		Labels:  []string{},
		Buckets: []float64{10, 25, 50, 60, 70, 80, 90, 100},
	}
	VoteTimeoutsTotal = MetricDefinition{
		Name:   "cypherpunk_vote_timeouts_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of voting phases force-finalized by timeout",
		Labels: []string{},
	}

	// Artifact cache metrics
	ArtifactCacheHits = MetricDefinition{
		Name:   "cypherpunk_artifact_cache_hits_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of artifact cache hits",
		Labels: []string{},
	}
	ArtifactCacheMisses = MetricDefinition{
		Name:   "cypherpunk_artifact_cache_misses_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of artifact cache misses",
		Labels: []string{},
	}
)

// =============================================================================
// NopCollector - No-operation implementation
// =============================================================================

// NopCollector is a no-op metrics collector that discards all metrics.
// Use this when metrics are not needed.
type NopCollector struct{}

func (c *NopCollector) CounterInc(name string, labels ...string)                      {}
func (c *NopCollector) CounterAdd(name string, value float64, labels ...string)       {}
func (c *NopCollector) GaugeSet(name string, value float64, labels ...string)         {}
func (c *NopCollector) GaugeInc(name string, labels ...string)                        {}
func (c *NopCollector) GaugeDec(name string, labels ...string)                        {}
func (c *NopCollector) HistogramObserve(name string, value float64, labels ...string) {}
func (c *NopCollector) Handler() http.Handler                                         { return http.NotFoundHandler() }
func (c *NopCollector) Reset()                                                        {}

// =============================================================================
// InMemoryCollector - Simple in-memory implementation for testing
// =============================================================================

// InMemoryCollector stores metrics in memory for testing purposes.
type InMemoryCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewInMemoryCollector creates a new in-memory metrics collector.
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (c *InMemoryCollector) key(name string, labels []string) string {
	key := name
	for i := 0; i < len(labels); i += 2 {
		if i+1 < len(labels) {
			key += "," + labels[i] + "=" + labels[i+1]
		}
	}
	return key
}

func (c *InMemoryCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *InMemoryCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[c.key(name, labels)] += value
}

func (c *InMemoryCollector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)] = value
}

func (c *InMemoryCollector) GaugeInc(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)]++
}

func (c *InMemoryCollector) GaugeDec(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)]--
}

func (c *InMemoryCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.histograms[key] = append(c.histograms[key], value)
}

func (c *InMemoryCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = make(map[string]float64)
	c.gauges = make(map[string]float64)
	c.histograms = make(map[string][]float64)
}

// GetCounter returns the current value of a counter (for tests).
func (c *InMemoryCollector) GetCounter(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[c.key(name, labels)]
}

// GetGauge returns the current value of a gauge (for tests).
func (c *InMemoryCollector) GetGauge(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[c.key(name, labels)]
}

// GetHistogram returns the recorded histogram observations (for tests).
func (c *InMemoryCollector) GetHistogram(name string, labels ...string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.histograms[c.key(name, labels)]
}
