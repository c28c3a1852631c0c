// Package consensus reconciles independent analyzer votes into confirmed or
// rejected finding groups using a quorum threshold and timeout-bounded
// finalization.
package consensus

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/core"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/metrics"
)

// Config configures the consensus engine.
type Config struct {
	// QuorumThreshold is the fraction of votes required to confirm or
	// reject a group. The check is inclusive (>=).
	// Default: 0.6
	QuorumThreshold float64

	// MinimumVotes is the absolute floor of votes a group needs before a
	// consensus check is attempted. It gates check attempts only; quorum
	// alone decides reached-ness.
	// Default: MinimumVotesFor(analyzer count), set by the caller.
	MinimumVotes int

	// VotingTimeout is the duration after which undecided groups are
	// force-finalized.
	// Default: 1 minute
	VotingTimeout time.Duration

	// WeightingEnabled applies per-analyzer multipliers to vote
	// confidence when averaging.
	WeightingEnabled bool

	// Weights maps analyzer identity to a confidence multiplier.
	// Missing analyzers weigh 1.0. Ignored unless WeightingEnabled.
	Weights map[string]float64

	// Metrics receives vote counters and confidence observations (nil = none).
	Metrics metrics.Collector

	// Verbose enables debug logging.
	Verbose bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		QuorumThreshold: 0.6,
		MinimumVotes:    1,
		VotingTimeout:   time.Minute,
	}
}

// MinimumVotesFor derives the default vote floor from the number of
// registered analyzers: max(1, analyzerCount/2).
func MinimumVotesFor(analyzerCount int) int {
	min := analyzerCount / 2
	if min < 1 {
		min = 1
	}
	return min
}

// Result is the outcome of a consensus computation for one finding group.
type Result struct {
	// Reached is true when the winning fraction met the quorum threshold.
	Reached bool `json:"reached"`

	// Decision is CONFIRMED, REJECTED, or UNCERTAIN.
	Decision core.VoteDecision `json:"decision"`

	// ConfidenceScore is the mean confidence of the votes matching the
	// winning decision, scaled by the consensus strength
	// (matching/total). Zero when undecided.
	ConfidenceScore float64 `json:"confidence_score"`

	// Breakdown tallies votes per decision.
	Breakdown map[core.VoteDecision]int `json:"breakdown"`

	// TotalVotes is the number of votes considered.
	TotalVotes int `json:"total_votes"`
}

// Engine collects votes per finding group and decides them against the
// quorum threshold. Safe for concurrent use.
type Engine struct {
	config *Config

	mu     sync.Mutex
	votes  map[string]map[string]core.Vote // group -> analyzer -> vote
	timers map[string]*time.Timer
}

// NewEngine creates a consensus engine.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.QuorumThreshold <= 0 || config.QuorumThreshold > 1 {
		config.QuorumThreshold = 0.6
	}
	if config.MinimumVotes < 1 {
		config.MinimumVotes = 1
	}
	if config.VotingTimeout <= 0 {
		config.VotingTimeout = time.Minute
	}
	if config.Metrics == nil {
		config.Metrics = &metrics.NopCollector{}
	}
	return &Engine{
		config: config,
		votes:  make(map[string]map[string]core.Vote),
		timers: make(map[string]*time.Timer),
	}
}

// SubmitVote records a vote for a finding group, replacing any earlier vote
// from the same analyzer, and attempts an immediate consensus check. It
// returns the check result, or nil while the group is still below the
// minimum-votes floor. When the check reaches consensus the group's timeout
// timer is cancelled.
func (e *Engine) SubmitVote(vote core.Vote) *Result {
	e.mu.Lock()
	group := e.votes[vote.GroupKey]
	if group == nil {
		group = make(map[string]core.Vote)
		e.votes[vote.GroupKey] = group
	}
	group[vote.AnalyzerID] = vote
	votes := snapshotLocked(group)
	e.mu.Unlock()

	e.config.Metrics.CounterInc(metrics.VotesTotal.Name, "decision", string(vote.Decision))
	if e.config.Verbose {
		fmt.Printf("[consensus] Vote %s on %s by %s (confidence=%d, total=%d)\n",
			vote.Decision, vote.GroupKey, vote.AnalyzerID, vote.Confidence, len(votes))
	}

	if len(votes) < e.config.MinimumVotes {
		return nil
	}

	result := e.ComputeConsensus(votes)
	if result.Reached {
		e.CancelTimeout(vote.GroupKey)
		e.config.Metrics.HistogramObserve(metrics.ConsensusConfidence.Name, result.ConfidenceScore)
	}
	return &result
}

// ComputeConsensus decides a vote set against the quorum threshold. It is a
// pure function of the votes: replaying the same set in any order yields the
// same decision and score.
func (e *Engine) ComputeConsensus(votes []core.Vote) Result {
	result := Result{
		Decision:   core.VoteUncertain,
		Breakdown:  make(map[core.VoteDecision]int),
		TotalVotes: len(votes),
	}
	if len(votes) == 0 {
		return result
	}

	for _, v := range votes {
		result.Breakdown[v.Decision]++
	}

	total := float64(len(votes))
	confirmedFraction := float64(result.Breakdown[core.VoteConfirmed]) / total
	rejectedFraction := float64(result.Breakdown[core.VoteRejected]) / total

	switch {
	case confirmedFraction >= e.config.QuorumThreshold:
		result.Reached = true
		result.Decision = core.VoteConfirmed
	case rejectedFraction >= e.config.QuorumThreshold:
		result.Reached = true
		result.Decision = core.VoteRejected
	default:
		return result
	}

	// Mean confidence of the matching votes, scaled by consensus strength.
	var sum float64
	matching := 0
	for _, v := range votes {
		if v.Decision != result.Decision {
			continue
		}
		sum += float64(v.Confidence) * e.weight(v.AnalyzerID)
		matching++
	}
	if matching > 0 {
		strength := float64(matching) / total
		result.ConfidenceScore = math.Min(100, sum/float64(matching)*strength)
	}
	return result
}

func (e *Engine) weight(analyzerID string) float64 {
	if !e.config.WeightingEnabled {
		return 1
	}
	if w, ok := e.config.Weights[analyzerID]; ok && w > 0 {
		return w
	}
	return 1
}

// Finalize decides a group with whatever votes exist, regardless of the
// minimum-votes floor, and cancels its timeout timer. Used for forced
// finalization when the voting timeout fires.
func (e *Engine) Finalize(groupKey string) Result {
	e.CancelTimeout(groupKey)

	e.mu.Lock()
	votes := snapshotLocked(e.votes[groupKey])
	e.mu.Unlock()

	result := e.ComputeConsensus(votes)
	if result.Reached {
		e.config.Metrics.HistogramObserve(metrics.ConsensusConfidence.Name, result.ConfidenceScore)
	}
	return result
}

// Votes returns a snapshot of the votes recorded for a group, ordered by
// analyzer identity.
func (e *Engine) Votes(groupKey string) []core.Vote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotLocked(e.votes[groupKey])
}

// AllVotes returns a snapshot of every recorded vote, grouped order first,
// then analyzer order.
func (e *Engine) AllVotes() []core.Vote {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]string, 0, len(e.votes))
	for k := range e.votes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var all []core.Vote
	for _, k := range keys {
		all = append(all, snapshotLocked(e.votes[k])...)
	}
	return all
}

// StartTimeout arms a one-shot timer for a group. When it fires, onTimeout
// is invoked with the group key so the caller can force a decision with
// whatever votes exist. Arming an already-armed group is a no-op; reaching
// consensus cancels the timer.
func (e *Engine) StartTimeout(groupKey string, onTimeout func(groupKey string)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, armed := e.timers[groupKey]; armed {
		return
	}
	e.timers[groupKey] = time.AfterFunc(e.config.VotingTimeout, func() {
		e.mu.Lock()
		delete(e.timers, groupKey)
		e.mu.Unlock()

		e.config.Metrics.CounterInc(metrics.VoteTimeoutsTotal.Name)
		if e.config.Verbose {
			fmt.Printf("[consensus] Voting timeout for group %s\n", groupKey)
		}
		onTimeout(groupKey)
	})
}

// CancelTimeout stops and removes a group's timeout timer, if armed.
func (e *Engine) CancelTimeout(groupKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if timer, ok := e.timers[groupKey]; ok {
		timer.Stop()
		delete(e.timers, groupKey)
	}
}

// Stop cancels all outstanding timeout timers.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, timer := range e.timers {
		timer.Stop()
		delete(e.timers, key)
	}
}

// snapshotLocked copies a group's votes into a deterministic slice. Caller
// holds e.mu (or owns the map exclusively).
func snapshotLocked(group map[string]core.Vote) []core.Vote {
	if len(group) == 0 {
		return nil
	}
	ids := make([]string, 0, len(group))
	for id := range group {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	votes := make([]core.Vote, 0, len(group))
	for _, id := range ids {
		votes = append(votes, group[id])
	}
	return votes
}

// GroupFindings buckets raw findings by their (category, severity) group key.
func GroupFindings(findings []core.Finding) map[string][]core.Finding {
	groups := make(map[string][]core.Finding)
	for _, f := range findings {
		key := f.GroupKey()
		groups[key] = append(groups[key], f)
	}
	return groups
}

// Representative returns the highest-confidence member of a group with its
// confidence replaced by the consensus-adjusted score. The group must be
// non-empty.
func Representative(group []core.Finding, score float64) core.Finding {
	best := group[0]
	for _, f := range group[1:] {
		if f.Confidence > best.Confidence {
			best = f
		}
	}
	best.Confidence = int(math.Round(score))
	return best
}
