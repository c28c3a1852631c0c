package core

import (
	"strings"
	"testing"
)

func TestScanRequestValidate_Valid(t *testing.T) {
	req := &ScanRequest{
		Repository: "OpenZeppelin/openzeppelin-contracts",
		Path:       "contracts/token",
		Options: &ScanOptions{
			Extensions:  []string{".sol"},
			Concurrency: 3,
		},
	}

	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got: %v", err)
	}
}

func TestScanRequestValidate_MissingLocator(t *testing.T) {
	req := &ScanRequest{}

	err := req.Validate()
	if err == nil {
		t.Fatal("expected error for empty request")
	}
	if !strings.Contains(err.Error(), "repository") {
		t.Errorf("expected repository error, got: %v", err)
	}
}

func TestScanRequestValidate_BothLocators(t *testing.T) {
	req := &ScanRequest{
		Repository:   "owner/repo",
		ChainAddress: "0x1234567890abcdef1234567890abcdef12345678",
	}

	if err := req.Validate(); err == nil {
		t.Fatal("expected error when both locators are set")
	}
}

func TestScanRequestValidate_ChainAddress(t *testing.T) {
	req := &ScanRequest{ChainAddress: "0x1234567890abcdef1234567890abcdef12345678"}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid chain address, got: %v", err)
	}

	bad := &ScanRequest{ChainAddress: "0x123"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for malformed chain address")
	}
}

func TestScanRequestValidate_BadRepository(t *testing.T) {
	for _, repo := range []string{"no-slash", "a/b/c", "owner/"} {
		req := &ScanRequest{Repository: repo}
		if err := req.Validate(); err == nil {
			t.Errorf("expected error for repository %q", repo)
		}
	}
}

func TestScanRequestValidate_AbsolutePath(t *testing.T) {
	req := &ScanRequest{Repository: "owner/repo", Path: "/etc"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for absolute path")
	}
}

func TestScanRequestValidate_BadOptions(t *testing.T) {
	req := &ScanRequest{
		Repository: "owner/repo",
		Options:    &ScanOptions{Concurrency: 100},
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for out-of-range concurrency")
	}

	req = &ScanRequest{
		Repository: "owner/repo",
		Options:    &ScanOptions{Extensions: []string{"sol"}},
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for extension without dot")
	}
}

func TestFindingGroupKey(t *testing.T) {
	f := &Finding{Category: "reentrancy", Severity: SeverityHigh}
	if f.GroupKey() != "reentrancy/HIGH" {
		t.Errorf("unexpected group key: %s", f.GroupKey())
	}
}
