package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidationError represents a request validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// HasErrors returns true if there are any errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Add adds a validation error.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// Validator provides chained validation methods.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Required validates that a field is not empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors.Add(field, "is required")
	}
	return v
}

// Range validates that an integer is within [min, max]. Zero is allowed as
// "unset" when allowZero is true.
func (v *Validator) Range(field string, value, min, max int, allowZero bool) *Validator {
	if value == 0 && allowZero {
		return v
	}
	if value < min || value > max {
		v.errors.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
	return v
}

// MinDuration validates that a duration is at least the minimum.
func (v *Validator) MinDuration(field string, value, min time.Duration) *Validator {
	if value != 0 && value < min {
		v.errors.Add(field, fmt.Sprintf("must be at least %s", min))
	}
	return v
}

// Match validates a field against a pattern when the value is set.
func (v *Validator) Match(field, value string, re *regexp.Regexp, hint string) *Validator {
	if value != "" && !re.MatchString(value) {
		v.errors.Add(field, hint)
	}
	return v
}

// Errors returns the accumulated errors, or nil if validation passed.
func (v *Validator) Errors() error {
	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

var (
	repoLocatorRe  = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)
	chainAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Validate checks the request at submission time. A request that fails here
// is rejected synchronously and no scan is created.
func (r *ScanRequest) Validate() error {
	v := NewValidator()

	if r.Repository == "" && r.ChainAddress == "" {
		v.errors.Add("repository", "either repository or chain_address is required")
	}
	if r.Repository != "" && r.ChainAddress != "" {
		v.errors.Add("repository", "repository and chain_address are mutually exclusive")
	}

	v.Match("repository", r.Repository, repoLocatorRe, `must be in "owner/repo" form`)
	v.Match("chain_address", r.ChainAddress, chainAddressRe, "must be a 0x-prefixed 40-hex-digit address")

	if strings.HasPrefix(r.Path, "/") {
		v.errors.Add("path", "must be relative")
	}

	if r.Options != nil {
		v.Range("options.concurrency", r.Options.Concurrency, 1, 64, true)
		for _, ext := range r.Options.Extensions {
			if !strings.HasPrefix(ext, ".") {
				v.errors.Add("options.extensions", fmt.Sprintf("%q must start with a dot", ext))
				break
			}
		}
	}

	return v.Errors()
}
