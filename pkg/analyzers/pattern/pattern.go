// Package pattern provides a rule-based reference analyzer. It matches
// regular-expression rules against source lines and reports a finding per
// match. It exists so the engine runs end-to-end without a model-backed
// analyzer; detection quality is intentionally modest.
package pattern

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/core"
)

// Rule is one detection pattern.
type Rule struct {
	ID             string
	Category       string
	Severity       core.Severity
	Title          string
	Description    string
	Recommendation string
	Confidence     int
	Pattern        *regexp.Regexp
}

// DefaultRules covers well-known Solidity defect patterns.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:             "reentrancy-call-value",
			Category:       "reentrancy",
			Severity:       core.SeverityHigh,
			Title:          "External call with value transfer",
			Description:    "A low-level call transfers value before state updates can be verified, which enables reentrant withdrawals.",
			Recommendation: "Apply the checks-effects-interactions pattern or a reentrancy guard.",
			Confidence:     70,
			Pattern:        regexp.MustCompile(`\.call\{value:`),
		},
		{
			ID:             "tx-origin-auth",
			Category:       "tx-origin",
			Severity:       core.SeverityHigh,
			Title:          "Authorization via tx.origin",
			Description:    "tx.origin refers to the transaction initiator, not the caller, so any intermediate contract can impersonate the user.",
			Recommendation: "Use msg.sender for authorization checks.",
			Confidence:     85,
			Pattern:        regexp.MustCompile(`tx\.origin`),
		},
		{
			ID:             "unchecked-send",
			Category:       "unchecked-call",
			Severity:       core.SeverityMedium,
			Title:          "Unchecked send result",
			Description:    "The boolean result of send/call is discarded, silently ignoring transfer failures.",
			Recommendation: "Check the return value or use a reverting transfer wrapper.",
			Confidence:     60,
			Pattern:        regexp.MustCompile(`\.send\(`),
		},
		{
			ID:             "timestamp-dependence",
			Category:       "timestamp-dependence",
			Severity:       core.SeverityLow,
			Title:          "Block timestamp in logic",
			Description:    "block.timestamp is miner-influenced within a small window and is unsafe as a randomness or strict-deadline source.",
			Recommendation: "Avoid timestamp-derived randomness; tolerate a drift window for deadlines.",
			Confidence:     50,
			Pattern:        regexp.MustCompile(`block\.timestamp|\bnow\b`),
		},
		{
			ID:             "selfdestruct",
			Category:       "selfdestruct",
			Severity:       core.SeverityCritical,
			Title:          "Reachable selfdestruct",
			Description:    "selfdestruct removes the contract and forwards its balance; if reachable by an attacker it destroys the contract.",
			Recommendation: "Guard selfdestruct behind strict access control, or remove it.",
			Confidence:     75,
			Pattern:        regexp.MustCompile(`selfdestruct\s*\(`),
		},
		{
			ID:             "delegatecall",
			Category:       "delegatecall",
			Severity:       core.SeverityHigh,
			Title:          "Delegatecall to variable target",
			Description:    "delegatecall executes foreign code in this contract's storage context; a controllable target hands over the contract.",
			Recommendation: "Restrict delegatecall targets to immutable, audited addresses.",
			Confidence:     65,
			Pattern:        regexp.MustCompile(`\.delegatecall\(`),
		},
	}
}

// Analyzer matches rules line-by-line over the artifact set.
type Analyzer struct {
	name  string
	rules []Rule
}

// New creates a pattern analyzer with the default rule set.
func New(name string) *Analyzer {
	return NewWithRules(name, DefaultRules())
}

// NewWithRules creates a pattern analyzer with a custom rule set.
func NewWithRules(name string, rules []Rule) *Analyzer {
	if name == "" {
		name = "pattern"
	}
	return &Analyzer{name: name, rules: rules}
}

// Name returns the analyzer identity.
func (a *Analyzer) Name() string {
	return a.name
}

// Analyze scans every file line-by-line against the rule set.
func (a *Analyzer) Analyze(ctx context.Context, files []core.SourceFile) ([]core.Finding, error) {
	var findings []core.Finding

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scanner := bufio.NewScanner(bytes.NewReader(file.Content))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		line := 0
		for scanner.Scan() {
			line++
			text := scanner.Text()
			for _, rule := range a.rules {
				if !rule.Pattern.MatchString(text) {
					continue
				}
				findings = append(findings, core.Finding{
					ID:             fmt.Sprintf("%s-%s-%d", a.name, rule.ID, len(findings)+1),
					Category:       rule.Category,
					Severity:       rule.Severity,
					Title:          rule.Title,
					Description:    rule.Description,
					File:           file.Path,
					Line:           line,
					Recommendation: rule.Recommendation,
					Confidence:     rule.Confidence,
				})
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan %s: %w", file.Path, err)
		}
	}

	return findings, nil
}
