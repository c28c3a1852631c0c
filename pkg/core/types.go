// Package core provides the domain model for the 0xCypherpunkAI scan engine:
// findings, votes, analyzers, and the scan aggregate.
package core

import (
	"context"
	"time"
)

// =============================================================================
// Severity
// =============================================================================

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Rank returns the ordering of the severity (higher = more severe).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// =============================================================================
// Finding
// =============================================================================

// Finding is a single reported issue. A raw finding is produced by one
// analyzer; a confirmed finding is produced by the consensus engine and
// carries a scan-unique ID distinct from any analyzer-internal id.
type Finding struct {
	ID             string   `json:"id"`
	Category       string   `json:"category"`
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	File           string   `json:"file"`
	Line           int      `json:"line"`
	Recommendation string   `json:"recommendation,omitempty"`

	// Confidence is 0-100. On a confirmed finding it holds the
	// consensus-adjusted score, not the analyzer's original value.
	Confidence int `json:"confidence"`
}

// GroupKey returns the consensus grouping key for the finding. Independent
// analyzers describe the same underlying issue with different wording, so
// findings are reconciled by (category, severity) rather than identity.
func (f *Finding) GroupKey() string {
	return f.Category + "/" + string(f.Severity)
}

// =============================================================================
// Vote
// =============================================================================

// VoteDecision is one analyzer's verdict on a finding group.
type VoteDecision string

const (
	VoteConfirmed VoteDecision = "CONFIRMED"
	VoteRejected  VoteDecision = "REJECTED"
	VoteUncertain VoteDecision = "UNCERTAIN"
)

// Vote is one analyzer's opinion on a finding group. Votes are keyed by
// (group, analyzer); a later vote from the same analyzer replaces the
// earlier one.
type Vote struct {
	AnalyzerID string       `json:"analyzer_id"`
	GroupKey   string       `json:"group_key"`
	Decision   VoteDecision `json:"decision"`
	Confidence int          `json:"confidence"`
	Rationale  string       `json:"rationale,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// =============================================================================
// Artifacts
// =============================================================================

// SourceFile is one fetched artifact: a path and its content.
type SourceFile struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

// =============================================================================
// Analyzer
// =============================================================================

// Analyzer independently inspects the artifact set and returns candidate
// findings. Implementations may be rule-based, model-backed, or otherwise;
// the dispatcher treats them as black boxes. Analyze must not mutate its
// input and must honor the context deadline.
type Analyzer interface {
	// Name returns a stable analyzer identity used for vote attribution.
	Name() string

	// Analyze inspects the files and returns raw findings.
	Analyze(ctx context.Context, files []SourceFile) ([]Finding, error)
}
