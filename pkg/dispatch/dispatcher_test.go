package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/core"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/errors"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/metrics"
)

// fakeAnalyzer implements core.Analyzer for testing.
type fakeAnalyzer struct {
	name    string
	analyze func(ctx context.Context, files []core.SourceFile) ([]core.Finding, error)
}

func (a *fakeAnalyzer) Name() string { return a.name }

func (a *fakeAnalyzer) Analyze(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
	if a.analyze != nil {
		return a.analyze(ctx, files)
	}
	return nil, nil
}

func finding(category string, severity core.Severity, confidence int) core.Finding {
	return core.Finding{
		ID:         "f1",
		Category:   category,
		Severity:   severity,
		Title:      category,
		Confidence: confidence,
	}
}

func TestRunPreservesOrder(t *testing.T) {
	analyzers := []core.Analyzer{
		&fakeAnalyzer{name: "alpha", analyze: func(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
			return []core.Finding{finding("reentrancy", core.SeverityHigh, 90)}, nil
		}},
		&fakeAnalyzer{name: "beta"},
		&fakeAnalyzer{name: "gamma", analyze: func(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
			return []core.Finding{finding("tx-origin", core.SeverityMedium, 70)}, nil
		}},
	}

	d := NewDispatcher(&Config{Concurrency: 2})
	results := d.Run(context.Background(), nil, analyzers)

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if results[i].AnalyzerID != want {
			t.Errorf("results[%d].AnalyzerID = %q, want %q", i, results[i].AnalyzerID, want)
		}
	}
	if len(results[0].Findings) != 1 || len(results[2].Findings) != 1 {
		t.Error("findings lost for successful analyzers")
	}
}

func TestRunBatchBarrier(t *testing.T) {
	var active, maxActive int32
	slow := func(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
		cur := atomic.AddInt32(&active, 1)
		for {
			prev := atomic.LoadInt32(&maxActive)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil, nil
	}

	analyzers := make([]core.Analyzer, 5)
	for i := range analyzers {
		analyzers[i] = &fakeAnalyzer{name: string(rune('a' + i)), analyze: slow}
	}

	d := NewDispatcher(&Config{Concurrency: 2})
	d.Run(context.Background(), nil, analyzers)

	if got := atomic.LoadInt32(&maxActive); got > 2 {
		t.Errorf("max concurrent analyzers = %d, want <= 2", got)
	}
}

func TestRunPanicIsolation(t *testing.T) {
	analyzers := []core.Analyzer{
		&fakeAnalyzer{name: "panicky", analyze: func(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
			panic("boom")
		}},
		&fakeAnalyzer{name: "steady", analyze: func(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
			return []core.Finding{finding("unchecked-call", core.SeverityHigh, 80)}, nil
		}},
	}

	d := NewDispatcher(&Config{Concurrency: 2})
	results := d.Run(context.Background(), nil, analyzers)

	if results[0].Err == nil {
		t.Fatal("panicking analyzer should report an error")
	}
	if !errors.IsAnalyzerError(results[0].Err) {
		t.Errorf("panic error kind = %v, want analyzer", errors.GetKind(results[0].Err))
	}
	if len(results[0].Findings) != 0 {
		t.Error("panicking analyzer should contribute zero findings")
	}
	if results[1].Err != nil || len(results[1].Findings) != 1 {
		t.Error("sibling analyzer result was disturbed")
	}

	stats := d.GetStats()
	if stats.Panics != 1 {
		t.Errorf("Panics = %d, want 1", stats.Panics)
	}
	if stats.Failed != 1 || stats.Succeeded != 1 {
		t.Errorf("Failed/Succeeded = %d/%d, want 1/1", stats.Failed, stats.Succeeded)
	}
}

func TestRunErrorIsolation(t *testing.T) {
	analyzers := []core.Analyzer{
		&fakeAnalyzer{name: "broken", analyze: func(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
			return nil, errors.New("model unavailable")
		}},
		&fakeAnalyzer{name: "fine", analyze: func(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
			return []core.Finding{finding("timestamp", core.SeverityLow, 60)}, nil
		}},
	}

	d := NewDispatcher(&Config{Concurrency: 1})
	results := d.Run(context.Background(), nil, analyzers)

	if !errors.IsAnalyzerError(results[0].Err) {
		t.Error("analyzer error not wrapped with analyzer kind")
	}
	if results[1].Err != nil {
		t.Errorf("later batch polluted by earlier failure: %v", results[1].Err)
	}
}

func TestRunAnalyzerTimeout(t *testing.T) {
	analyzers := []core.Analyzer{
		&fakeAnalyzer{name: "stuck", analyze: func(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
			// Ignores its context entirely.
			time.Sleep(5 * time.Second)
			return nil, nil
		}},
	}

	collector := metrics.NewInMemoryCollector()
	d := NewDispatcher(&Config{Concurrency: 1, AnalyzerTimeout: 30 * time.Millisecond, Metrics: collector})

	start := time.Now()
	results := d.Run(context.Background(), nil, analyzers)
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("dispatcher blocked on stuck analyzer for %v", elapsed)
	}
	if !errors.IsTimeoutError(results[0].Err) {
		t.Errorf("timeout should surface as a timeout error, got: %v", results[0].Err)
	}
	if got := d.GetStats().Timeouts; got != 1 {
		t.Errorf("Timeouts = %d, want 1", got)
	}
	if got := collector.GetCounter(metrics.AnalyzerRunsTotal.Name, "analyzer", "stuck", "status", "timeout"); got != 1 {
		t.Errorf("timeout run counter = %v, want 1", got)
	}
}

func TestRunProgressCallback(t *testing.T) {
	var mu sync.Mutex
	var checkpoints [][2]int

	analyzers := make([]core.Analyzer, 5)
	for i := range analyzers {
		analyzers[i] = &fakeAnalyzer{name: string(rune('a' + i))}
	}

	d := NewDispatcher(&Config{
		Concurrency: 2,
		OnBatchDone: func(completed, total int) {
			mu.Lock()
			checkpoints = append(checkpoints, [2]int{completed, total})
			mu.Unlock()
		},
	})
	d.Run(context.Background(), nil, analyzers)

	want := [][2]int{{2, 5}, {4, 5}, {5, 5}}
	if len(checkpoints) != len(want) {
		t.Fatalf("checkpoints = %v, want %v", checkpoints, want)
	}
	for i := range want {
		if checkpoints[i] != want[i] {
			t.Errorf("checkpoint[%d] = %v, want %v", i, checkpoints[i], want[i])
		}
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	collector := metrics.NewInMemoryCollector()
	analyzers := []core.Analyzer{
		&fakeAnalyzer{name: "ok"},
		&fakeAnalyzer{name: "bad", analyze: func(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
			return nil, errors.New("nope")
		}},
	}

	d := NewDispatcher(&Config{Concurrency: 2, Metrics: collector})
	d.Run(context.Background(), nil, analyzers)

	if got := collector.GetCounter(metrics.AnalyzerRunsTotal.Name, "analyzer", "ok", "status", "success"); got != 1 {
		t.Errorf("success run counter = %v, want 1", got)
	}
	if got := collector.GetCounter(metrics.AnalyzerRunsTotal.Name, "analyzer", "bad", "status", "error"); got != 1 {
		t.Errorf("error run counter = %v, want 1", got)
	}
	if got := collector.GetHistogram(metrics.AnalyzerDuration.Name, "analyzer", "ok"); len(got) != 1 {
		t.Errorf("duration observations = %d, want 1", len(got))
	}
}

func TestNewDispatcherDefaults(t *testing.T) {
	d := NewDispatcher(nil)
	if d.config.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", d.config.Concurrency)
	}
	if d.config.AnalyzerTimeout != 2*time.Minute {
		t.Errorf("AnalyzerTimeout = %v, want 2m", d.config.AnalyzerTimeout)
	}
}
