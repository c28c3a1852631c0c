// Package scan owns the scan lifecycle state machine. The orchestrator
// sequences artifact fetch, analyzer dispatch, and consensus voting for each
// submitted scan, tracking status and progress throughout.
package scan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/artifact"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/audit"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/consensus"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/core"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/dispatch"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/errors"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/metrics"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/store"
)

// Progress checkpoints for the scan lifecycle. The analyzer phase advances
// proportionally between progressFetched and progressAnalyzed.
const (
	progressStarted  = 5
	progressFetched  = 15
	progressAnalyzed = 85
	progressVoting   = 88
	progressDone     = 100
)

// Config configures the orchestrator.
type Config struct {
	// QuorumThreshold is the vote fraction required to decide a group.
	// Default: 0.6
	QuorumThreshold float64

	// MinimumVotes is the vote floor before consensus checks run.
	// Zero derives max(1, analyzerCount/2) per scan.
	MinimumVotes int

	// VotingTimeout force-finalizes undecided groups.
	// Default: 1 minute
	VotingTimeout time.Duration

	// Concurrency is the analyzer batch size. Per-scan options override it.
	// Default: 3
	Concurrency int

	// AnalyzerTimeout bounds a single analyzer invocation.
	// Default: 2 minutes
	AnalyzerTimeout time.Duration

	// Extensions is the source-file allow-list. Per-scan options override it.
	// Default: the fetcher's defaults
	Extensions []string

	// RejectedConfidence is the confidence attached to an analyzer's
	// implicit REJECTED vote for a group it reported nothing in.
	// Default: 50
	RejectedConfidence int

	// WeightingEnabled applies per-analyzer confidence weights.
	WeightingEnabled bool

	// Weights maps analyzer identity to a confidence multiplier.
	Weights map[string]float64

	// Metrics receives scan lifecycle metrics (nil = none).
	Metrics metrics.Collector

	// Audit receives scan lifecycle events (nil = none).
	Audit *audit.Logger

	// Archive persists terminal scans (nil = in-memory only). With an
	// archive configured, GetStatus falls back to it after eviction.
	Archive *store.Store

	// Verbose enables debug logging.
	Verbose bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		QuorumThreshold:    0.6,
		VotingTimeout:      time.Minute,
		Concurrency:        3,
		AnalyzerTimeout:    2 * time.Minute,
		RejectedConfidence: 50,
	}
}

// Orchestrator owns all active scans. Each scan's mutable state is updated
// only under the orchestrator's lock; readers get deep copies.
type Orchestrator struct {
	config    *Config
	fetcher   *artifact.Fetcher
	analyzers []core.Analyzer

	mu    sync.RWMutex
	scans map[string]*core.Scan

	wg sync.WaitGroup

	// Stats
	submitted int64
	completed int64
	failed    int64
}

// NewOrchestrator creates an orchestrator over a fetcher and a fixed set of
// registered analyzers.
func NewOrchestrator(fetcher *artifact.Fetcher, analyzers []core.Analyzer, config *Config) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.QuorumThreshold <= 0 || config.QuorumThreshold > 1 {
		config.QuorumThreshold = 0.6
	}
	if config.VotingTimeout <= 0 {
		config.VotingTimeout = time.Minute
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	if config.AnalyzerTimeout <= 0 {
		config.AnalyzerTimeout = 2 * time.Minute
	}
	if config.RejectedConfidence <= 0 {
		config.RejectedConfidence = 50
	}
	if config.Metrics == nil {
		config.Metrics = &metrics.NopCollector{}
	}

	return &Orchestrator{
		config:    config,
		fetcher:   fetcher,
		analyzers: analyzers,
		scans:     make(map[string]*core.Scan),
	}
}

// Submit validates the request and begins execution asynchronously. It
// returns the scan id immediately and never blocks on network or analyzer
// latency. Malformed requests are rejected synchronously; no scan is created.
func (o *Orchestrator) Submit(req core.ScanRequest) (string, error) {
	if err := req.Validate(); err != nil {
		if o.config.Audit != nil {
			o.config.Audit.Error(audit.EventValidationError, "Scan request rejected", err, nil)
		}
		return "", errors.E(errors.KindInvalidInput, "scan.Submit", "invalid scan request", err)
	}

	scan := &core.Scan{
		ID:        uuid.NewString(),
		Status:    core.StatusPending,
		CreatedAt: time.Now(),
	}

	o.mu.Lock()
	o.scans[scan.ID] = scan
	o.mu.Unlock()

	atomic.AddInt64(&o.submitted, 1)
	o.config.Metrics.GaugeInc(metrics.ActiveScans.Name)
	if o.config.Audit != nil {
		o.config.Audit.ScanSubmitted(scan.ID, req.Locator())
	}
	if o.config.Verbose {
		fmt.Printf("[scan] Submitted %s (locator=%s)\n", scan.ID, req.Locator())
	}

	o.wg.Add(1)
	go o.execute(scan.ID, req)

	return scan.ID, nil
}

// GetStatus returns a read-only snapshot of a scan. Safe to call
// concurrently with an in-progress scan. Evicted scans are read back from
// the archive when one is configured.
func (o *Orchestrator) GetStatus(scanID string) (*core.Scan, error) {
	o.mu.RLock()
	scan, ok := o.scans[scanID]
	o.mu.RUnlock()
	if ok {
		return scan.Clone(), nil
	}
	if o.config.Archive != nil {
		return o.config.Archive.GetScan(context.Background(), scanID)
	}
	return nil, errors.ErrScanNotFound
}

// Evict removes a terminal scan from memory. Callers must bound retention;
// with an archive configured the scan remains readable via GetStatus.
func (o *Orchestrator) Evict(scanID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	scan, ok := o.scans[scanID]
	if !ok {
		return errors.ErrScanNotFound
	}
	if !scan.Status.Terminal() {
		return errors.E(errors.KindInvalidInput, "scan.Evict",
			fmt.Sprintf("scan %s is %s, not terminal", scanID, scan.Status))
	}
	delete(o.scans, scanID)
	return nil
}

// Stop waits for all in-flight scans to reach a terminal state.
func (o *Orchestrator) Stop() {
	o.wg.Wait()
}

// Stats holds orchestrator statistics.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Active    int   `json:"active"`
}

// GetStats returns current orchestrator statistics.
func (o *Orchestrator) GetStats() *Stats {
	o.mu.RLock()
	active := 0
	for _, s := range o.scans {
		if !s.Status.Terminal() {
			active++
		}
	}
	o.mu.RUnlock()

	return &Stats{
		Submitted: atomic.LoadInt64(&o.submitted),
		Completed: atomic.LoadInt64(&o.completed),
		Failed:    atomic.LoadInt64(&o.failed),
		Active:    active,
	}
}

// update mutates a scan under the lock. Progress is clamped monotonic.
func (o *Orchestrator) update(scanID string, fn func(*core.Scan)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	scan, ok := o.scans[scanID]
	if !ok {
		return
	}
	before := scan.Progress
	fn(scan)
	if scan.Progress < before {
		scan.Progress = before
	}
}

// execute runs one scan to a terminal state.
func (o *Orchestrator) execute(scanID string, req core.ScanRequest) {
	defer o.wg.Done()
	ctx := context.Background()
	started := time.Now()

	// PENDING -> SCANNING: fetch begins.
	o.update(scanID, func(s *core.Scan) {
		s.Status = core.StatusScanning
		s.Progress = progressStarted
	})
	if o.config.Audit != nil {
		o.config.Audit.ForScan(scanID).Info(audit.EventScanStarted, "Scan started", nil)
	}

	extensions := o.config.Extensions
	concurrency := o.config.Concurrency
	if req.Options != nil {
		if len(req.Options.Extensions) > 0 {
			extensions = req.Options.Extensions
		}
		if req.Options.Concurrency > 0 {
			concurrency = req.Options.Concurrency
		}
	}

	files, err := o.fetcher.FetchTree(ctx, req.Locator(), req.Path, req.Credential, extensions)
	if err != nil {
		o.fail(scanID, req, started, errors.WrapWithMessage(err, "artifact fetch failed"))
		return
	}

	o.update(scanID, func(s *core.Scan) { s.Progress = progressFetched })
	if o.config.Audit != nil {
		o.config.Audit.ForScan(scanID).Info(audit.EventArtifactsFetched,
			fmt.Sprintf("Fetched %d source files", len(files)),
			map[string]interface{}{"files": len(files)})
	}

	// SCANNING: analyzer batches advance progress proportionally.
	dispatcher := dispatch.NewDispatcher(&dispatch.Config{
		Concurrency:     concurrency,
		AnalyzerTimeout: o.config.AnalyzerTimeout,
		Metrics:         o.config.Metrics,
		Verbose:         o.config.Verbose,
		OnBatchDone: func(completed, total int) {
			span := progressAnalyzed - progressFetched
			o.update(scanID, func(s *core.Scan) {
				s.Progress = progressFetched + span*completed/total
			})
		},
	})
	results := dispatcher.Run(ctx, files, o.analyzers)

	succeeded := 0
	var raw []core.Finding
	for _, res := range results {
		if res.Err != nil {
			if o.config.Audit != nil {
				o.config.Audit.AnalyzerFailed(scanID, res.AnalyzerID, res.Err)
			}
			continue
		}
		succeeded++
		raw = append(raw, res.Findings...)
	}

	// SCANNING -> VOTING: group raw findings and reconcile.
	o.update(scanID, func(s *core.Scan) {
		s.Status = core.StatusVoting
		s.Progress = progressVoting
	})

	minVotes := o.config.MinimumVotes
	if minVotes <= 0 {
		minVotes = consensus.MinimumVotesFor(succeeded)
	}
	engine := consensus.NewEngine(&consensus.Config{
		QuorumThreshold:  o.config.QuorumThreshold,
		MinimumVotes:     minVotes,
		VotingTimeout:    o.config.VotingTimeout,
		WeightingEnabled: o.config.WeightingEnabled,
		Weights:          o.config.Weights,
		Metrics:          o.config.Metrics,
		Verbose:          o.config.Verbose,
	})
	defer engine.Stop()

	groups := consensus.GroupFindings(raw)
	decided := o.vote(scanID, engine, groups, results)

	o.complete(scanID, req, started, engine, groups, decided)
}

// vote runs the voting phase: every successful analyzer casts one vote per
// finding group, and a one-shot timer per group bounds the phase. If any
// timer fires first, the phase stops waiting and groups are finalized with
// whatever votes exist.
func (o *Orchestrator) vote(scanID string, engine *consensus.Engine, groups map[string][]core.Finding, results []dispatch.Result) map[string]consensus.Result {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	timedOut := make(chan string, len(keys))
	for _, key := range keys {
		engine.StartTimeout(key, func(groupKey string) {
			timedOut <- groupKey
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, res := range results {
			if res.Err != nil {
				continue
			}
			for _, key := range keys {
				engine.SubmitVote(o.deriveVote(res, key))
			}
		}
	}()

	select {
	case <-done:
	case key := <-timedOut:
		if o.config.Audit != nil {
			o.config.Audit.VoteTimeout(scanID, key, len(engine.Votes(key)), errors.ErrVotingTimeout)
		}
	}

	decided := make(map[string]consensus.Result, len(keys))
	for _, key := range keys {
		decided[key] = engine.Finalize(key)
	}
	return decided
}

// deriveVote turns one analyzer's raw findings into its vote on a group: a
// CONFIRMED vote carrying its strongest confidence in the group, or an
// implicit REJECTED vote when it reported nothing there.
func (o *Orchestrator) deriveVote(res dispatch.Result, groupKey string) core.Vote {
	best := 0
	count := 0
	for _, f := range res.Findings {
		if f.GroupKey() != groupKey {
			continue
		}
		count++
		if f.Confidence > best {
			best = f.Confidence
		}
	}

	vote := core.Vote{
		AnalyzerID: res.AnalyzerID,
		GroupKey:   groupKey,
		Timestamp:  time.Now(),
	}
	if count > 0 {
		vote.Decision = core.VoteConfirmed
		vote.Confidence = best
		vote.Rationale = fmt.Sprintf("reported %d finding(s) in group", count)
	} else {
		vote.Decision = core.VoteRejected
		vote.Confidence = o.config.RejectedConfidence
		vote.Rationale = "no findings in group"
	}
	return vote
}

// complete finalizes a scan as COMPLETED: confirmed findings ordered by
// severity, vote totals, and the average confidence over confirmed groups.
func (o *Orchestrator) complete(scanID string, req core.ScanRequest, started time.Time, engine *consensus.Engine, groups map[string][]core.Finding, decided map[string]consensus.Result) {
	keys := make([]string, 0, len(decided))
	for key := range decided {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		si := groups[keys[i]][0].Severity.Rank()
		sj := groups[keys[j]][0].Severity.Rank()
		if si != sj {
			return si > sj
		}
		return keys[i] < keys[j]
	})

	var confirmed []core.Finding
	var confidenceSum float64
	allReached := true
	for _, key := range keys {
		result := decided[key]
		if !result.Reached {
			allReached = false
		}
		if o.config.Audit != nil && result.Reached {
			o.config.Audit.ConsensusReached(scanID, key, string(result.Decision), result.ConfidenceScore)
		}
		if result.Decision != core.VoteConfirmed {
			continue
		}

		rep := consensus.Representative(groups[key], result.ConfidenceScore)
		rep.ID = uuid.NewString()
		confirmed = append(confirmed, rep)
		confidenceSum += result.ConfidenceScore
		o.config.Metrics.CounterInc(metrics.ConfirmedFindingsTotal.Name,
			"severity", string(rep.Severity))
	}

	var finalConfidence float64
	if len(confirmed) > 0 {
		finalConfidence = confidenceSum / float64(len(confirmed))
	}
	votes := engine.AllVotes()
	completedAt := time.Now()

	o.update(scanID, func(s *core.Scan) {
		s.Status = core.StatusCompleted
		s.Progress = progressDone
		s.Findings = confirmed
		s.Votes = votes
		s.FinalConfidenceScore = finalConfidence
		s.TotalVotes = len(votes)
		s.ConsensusReached = allReached
		s.CompletedAt = completedAt
	})

	atomic.AddInt64(&o.completed, 1)
	duration := completedAt.Sub(started)
	o.config.Metrics.GaugeDec(metrics.ActiveScans.Name)
	o.config.Metrics.CounterInc(metrics.ScansTotal.Name, "status", string(core.StatusCompleted))
	o.config.Metrics.HistogramObserve(metrics.ScanDuration.Name, duration.Seconds())
	if o.config.Audit != nil {
		o.config.Audit.ScanCompleted(scanID, duration, map[string]interface{}{
			"findings":   len(confirmed),
			"votes":      len(votes),
			"confidence": finalConfidence,
		})
	}
	if o.config.Verbose {
		fmt.Printf("[scan] Completed %s (findings=%d, votes=%d, confidence=%.1f)\n",
			scanID, len(confirmed), len(votes), finalConfidence)
	}

	o.archive(scanID, req)
}

// fail moves a scan to FAILED. No partial findings are ever exposed.
func (o *Orchestrator) fail(scanID string, req core.ScanRequest, started time.Time, err error) {
	completedAt := time.Now()
	o.update(scanID, func(s *core.Scan) {
		s.Status = core.StatusFailed
		s.Progress = progressDone
		s.Error = err.Error()
		s.CompletedAt = completedAt
	})

	atomic.AddInt64(&o.failed, 1)
	o.config.Metrics.GaugeDec(metrics.ActiveScans.Name)
	o.config.Metrics.CounterInc(metrics.ScansTotal.Name, "status", string(core.StatusFailed))
	o.config.Metrics.HistogramObserve(metrics.ScanDuration.Name, completedAt.Sub(started).Seconds())
	if o.config.Audit != nil {
		o.config.Audit.ScanFailed(scanID, err, nil)
	}
	if o.config.Verbose {
		fmt.Printf("[scan] Failed %s: %v\n", scanID, err)
	}

	o.archive(scanID, req)
}

// archive writes a terminal scan through to the configured archive.
func (o *Orchestrator) archive(scanID string, req core.ScanRequest) {
	if o.config.Archive == nil {
		return
	}
	o.mu.RLock()
	scan, ok := o.scans[scanID]
	var snapshot *core.Scan
	if ok {
		snapshot = scan.Clone()
	}
	o.mu.RUnlock()
	if snapshot == nil {
		return
	}

	if err := o.config.Archive.SaveScan(context.Background(), snapshot, req.Locator()); err != nil {
		if o.config.Audit != nil {
			o.config.Audit.Error(audit.EventArchiveError, "Archive write failed", err,
				map[string]interface{}{"scan_id": scanID})
		}
		if o.config.Verbose {
			fmt.Printf("[scan] Archive write failed for %s: %v\n", scanID, err)
		}
	}
}
