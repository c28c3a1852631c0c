package core

import (
	"testing"
	"time"
)

func TestScanStatusTerminal(t *testing.T) {
	tests := []struct {
		status   ScanStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusScanning, false},
		{StatusVoting, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestScanStatusTransitions(t *testing.T) {
	tests := []struct {
		from    ScanStatus
		to      ScanStatus
		allowed bool
	}{
		{StatusPending, StatusScanning, true},
		{StatusScanning, StatusVoting, true},
		{StatusVoting, StatusCompleted, true},

		// No skipping ahead
		{StatusPending, StatusVoting, false},
		{StatusPending, StatusCompleted, false},
		{StatusScanning, StatusCompleted, false},

		// No moving backwards
		{StatusScanning, StatusPending, false},
		{StatusVoting, StatusScanning, false},

		// FAILED is reachable from every non-terminal state
		{StatusPending, StatusFailed, true},
		{StatusScanning, StatusFailed, true},
		{StatusVoting, StatusFailed, true},

		// Terminal states are frozen
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusScanning, false},
		{StatusFailed, StatusScanning, false},
		{StatusFailed, StatusCompleted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestScanRequestLocator(t *testing.T) {
	repo := ScanRequest{Repository: "owner/repo", ChainAddress: "0xabc"}
	if got := repo.Locator(); got != "owner/repo" {
		t.Errorf("Locator() = %q, want repository to win", got)
	}

	chain := ScanRequest{ChainAddress: "0xabc"}
	if got := chain.Locator(); got != "0xabc" {
		t.Errorf("Locator() = %q, want 0xabc", got)
	}
}

func TestScanClone(t *testing.T) {
	original := &Scan{
		ID:       "scan-1",
		Status:   StatusCompleted,
		Progress: 100,
		Findings: []Finding{
			{ID: "f1", Severity: SeverityHigh, Category: "reentrancy", Confidence: 80},
		},
		Votes: []Vote{
			{AnalyzerID: "a1", Decision: VoteConfirmed, Confidence: 80},
		},
		TotalVotes: 1,
		CreatedAt:  time.Now(),
	}

	clone := original.Clone()

	clone.Findings[0].Confidence = 10
	clone.Votes[0].Decision = VoteRejected
	clone.Status = StatusFailed

	if original.Findings[0].Confidence != 80 {
		t.Error("mutating clone findings affected the original")
	}
	if original.Votes[0].Decision != VoteConfirmed {
		t.Error("mutating clone votes affected the original")
	}
	if original.Status != StatusCompleted {
		t.Error("mutating clone status affected the original")
	}
}

func TestScanCloneNilSlices(t *testing.T) {
	clone := (&Scan{ID: "scan-2", Status: StatusPending}).Clone()
	if clone.Findings != nil || clone.Votes != nil {
		t.Error("Clone() should preserve nil slices")
	}
}
