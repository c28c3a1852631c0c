// Package dispatch runs analyzer workers over a file set in bounded batches.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/core"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/errors"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/metrics"
)

// Result is one analyzer's contribution to a scan.
type Result struct {
	AnalyzerID string         `json:"analyzer_id"`
	Findings   []core.Finding `json:"findings"`
	Err        error          `json:"-"`
	Duration   time.Duration  `json:"duration"`
}

// Config configures the dispatcher.
type Config struct {
	// Concurrency is the number of analyzers executed per batch.
	// The dispatcher waits for a full batch before starting the next.
	// Default: 3
	Concurrency int

	// AnalyzerTimeout bounds a single analyzer invocation.
	// Default: 2 minutes
	AnalyzerTimeout time.Duration

	// OnBatchDone is called after each batch completes with the number
	// of analyzers finished so far and the total count.
	OnBatchDone func(completed, total int)

	// Metrics receives analyzer run counters and durations (nil = none).
	Metrics metrics.Collector

	// Verbose enables debug logging.
	Verbose bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Concurrency:     3,
		AnalyzerTimeout: 2 * time.Minute,
	}
}

// Dispatcher executes registered analyzers in fixed-size concurrent batches.
type Dispatcher struct {
	config *Config

	// Stats
	runs      int64
	succeeded int64
	failed    int64
	panics    int64
	timeouts  int64
}

// NewDispatcher creates a new analyzer dispatcher.
func NewDispatcher(config *Config) *Dispatcher {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	if config.AnalyzerTimeout <= 0 {
		config.AnalyzerTimeout = 2 * time.Minute
	}
	if config.Metrics == nil {
		config.Metrics = &metrics.NopCollector{}
	}
	return &Dispatcher{config: config}
}

// Run executes all analyzers over the file set and returns one Result per
// analyzer, in registration order. A failing or panicking analyzer
// contributes an empty finding list and never aborts its siblings.
func (d *Dispatcher) Run(ctx context.Context, files []core.SourceFile, analyzers []core.Analyzer) []Result {
	results := make([]Result, len(analyzers))
	total := len(analyzers)

	for start := 0; start < total; start += d.config.Concurrency {
		end := start + d.config.Concurrency
		if end > total {
			end = total
		}

		if d.config.Verbose {
			fmt.Printf("[dispatch] Batch %d-%d of %d analyzers\n", start+1, end, total)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = d.invoke(ctx, analyzers[idx], files)
			}(i)
		}
		wg.Wait()

		if d.config.OnBatchDone != nil {
			d.config.OnBatchDone(end, total)
		}
	}

	return results
}

// invoke runs a single analyzer with panic recovery and a hard deadline.
// The deadline is enforced by the dispatcher: an analyzer that ignores its
// context is abandoned, not waited on.
func (d *Dispatcher) invoke(ctx context.Context, analyzer core.Analyzer, files []core.SourceFile) Result {
	name := analyzer.Name()
	atomic.AddInt64(&d.runs, 1)
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, d.config.AnalyzerTimeout)
	defer cancel()

	type outcome struct {
		findings []core.Finding
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&d.panics, 1)
				done <- outcome{err: errors.E(errors.KindAnalyzer, "dispatch.invoke",
					fmt.Sprintf("analyzer %s panicked: %v", name, r))}
			}
		}()
		findings, err := analyzer.Analyze(ctx, files)
		if err != nil {
			err = errors.E(errors.KindAnalyzer, "dispatch.invoke",
				fmt.Sprintf("analyzer %s failed", name), err)
		}
		done <- outcome{findings: findings, err: err}
	}()

	var res Result
	res.AnalyzerID = name

	select {
	case out := <-done:
		res.Err = out.err
		if out.err == nil {
			res.Findings = out.findings
		}
	case <-ctx.Done():
		atomic.AddInt64(&d.timeouts, 1)
		res.Err = errors.E(errors.KindTimeout, "dispatch.invoke",
			fmt.Sprintf("analyzer %s timed out", name), ctx.Err())
	}
	res.Duration = time.Since(started)

	status := "success"
	if res.Err != nil {
		status = "error"
		if errors.IsTimeoutError(res.Err) {
			status = "timeout"
		}
		atomic.AddInt64(&d.failed, 1)
		if d.config.Verbose {
			fmt.Printf("[dispatch] Analyzer %s failed: %v\n", name, res.Err)
		}
	} else {
		atomic.AddInt64(&d.succeeded, 1)
		if d.config.Verbose {
			fmt.Printf("[dispatch] Analyzer %s done (findings=%d, duration=%v)\n",
				name, len(res.Findings), res.Duration)
		}
	}
	d.config.Metrics.CounterInc(metrics.AnalyzerRunsTotal.Name, "analyzer", name, "status", status)
	d.config.Metrics.HistogramObserve(metrics.AnalyzerDuration.Name, res.Duration.Seconds(), "analyzer", name)

	return res
}

// Stats holds dispatcher statistics.
type Stats struct {
	Runs      int64 `json:"runs"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
	Timeouts  int64 `json:"timeouts"`
}

// GetStats returns current dispatcher statistics.
func (d *Dispatcher) GetStats() *Stats {
	return &Stats{
		Runs:      atomic.LoadInt64(&d.runs),
		Succeeded: atomic.LoadInt64(&d.succeeded),
		Failed:    atomic.LoadInt64(&d.failed),
		Panics:    atomic.LoadInt64(&d.panics),
		Timeouts:  atomic.LoadInt64(&d.timeouts),
	}
}
