package core

import "time"

// ScanStatus is the scan lifecycle state.
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusScanning  ScanStatus = "scanning"
	StatusVoting    ScanStatus = "voting"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the lifecycle allows moving to next.
// FAILED is reachable from any non-terminal state.
func (s ScanStatus) CanTransition(next ScanStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusScanning
	case StatusScanning:
		return next == StatusVoting
	case StatusVoting:
		return next == StatusCompleted
	}
	return false
}

// ScanOptions tunes a single scan. Zero values fall back to the
// orchestrator's configured defaults.
type ScanOptions struct {
	// Extensions overrides the source-file allow-list (e.g. [".sol"]).
	Extensions []string `yaml:"extensions" json:"extensions,omitempty"`

	// Concurrency overrides the analyzer batch size.
	Concurrency int `yaml:"concurrency" json:"concurrency,omitempty"`
}

// ScanRequest describes one analysis run. It is validated at submission and
// never mutated afterward. Credential is passed through to the source
// provider opaquely and is never inspected or persisted by the core.
type ScanRequest struct {
	// Repository is a provider locator such as "owner/repo".
	Repository string `yaml:"repository" json:"repository"`

	// Path is an optional subpath within the repository.
	Path string `yaml:"path" json:"path,omitempty"`

	// ChainAddress is an alternative on-chain locator (0x-prefixed).
	ChainAddress string `yaml:"chain_address" json:"chain_address,omitempty"`

	// Credential is an opaque access token for the source provider.
	Credential string `yaml:"credential" json:"-"`

	// Options tunes this scan.
	Options *ScanOptions `yaml:"options" json:"options,omitempty"`
}

// Locator returns the source locator for the request.
func (r *ScanRequest) Locator() string {
	if r.Repository != "" {
		return r.Repository
	}
	return r.ChainAddress
}

// Scan is the mutable aggregate root for one analysis run. It is owned and
// mutated only by its orchestrator; external readers get deep copies.
type Scan struct {
	ID       string     `json:"id"`
	Status   ScanStatus `json:"status"`
	Progress int        `json:"progress"` // 0-100, monotonically non-decreasing

	// Findings holds confirmed findings only. Nothing enters this list
	// without passing through the consensus engine.
	Findings []Finding `json:"findings"`

	// Votes holds every raw vote cast during the voting phase.
	Votes []Vote `json:"votes"`

	FinalConfidenceScore float64 `json:"final_confidence_score"`
	TotalVotes           int     `json:"total_votes"`
	ConsensusReached     bool    `json:"consensus_reached"`

	// Error holds the terminal failure reason for FAILED scans.
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s *Scan) Clone() *Scan {
	c := *s
	if s.Findings != nil {
		c.Findings = make([]Finding, len(s.Findings))
		copy(c.Findings, s.Findings)
	}
	if s.Votes != nil {
		c.Votes = make([]Vote, len(s.Votes))
		copy(c.Votes, s.Votes)
	}
	return &c
}
