// Package audit provides structured audit logging for scan operations.
//
// All critical scan lifecycle operations should be logged via this package
// to enable:
// - Security monitoring and incident response
// - Debugging and troubleshooting
// - Compliance and audit trails
// - Remote log collection (when configured)
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Engine lifecycle events
	EventEngineStart EventType = "engine_start"
	EventEngineStop  EventType = "engine_stop"

	// Scan lifecycle events
	EventScanSubmitted EventType = "scan_submitted"
	EventScanStarted   EventType = "scan_started"
	EventScanCompleted EventType = "scan_completed"
	EventScanFailed    EventType = "scan_failed"

	// Phase events
	EventArtifactsFetched EventType = "artifacts_fetched"
	EventAnalyzerFailed   EventType = "analyzer_failed"
	EventConsensusReached EventType = "consensus_reached"
	EventVoteTimeout      EventType = "vote_timeout"

	// Storage events
	EventArchiveError EventType = "archive_error"

	// Security events
	EventRateLimited     EventType = "rate_limited"
	EventValidationError EventType = "validation_error"
)

// Severity represents log severity level.
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Event represents an audit event.
type Event struct {
	Timestamp  time.Time              `json:"timestamp"`
	Type       EventType              `json:"type"`
	Severity   Severity               `json:"severity"`
	ScanID     string                 `json:"scan_id,omitempty"`
	AnalyzerID string                 `json:"analyzer_id,omitempty"`
	Message    string                 `json:"message"`
	Error      string                 `json:"error,omitempty"`
	Duration   time.Duration          `json:"duration_ms,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// LoggerConfig configures the audit logger.
type LoggerConfig struct {
	// LogFile is the path to the audit log file.
	// Default: ~/.cypherpunk/audit.log
	LogFile string

	// BufferSize is the number of events to buffer before flushing.
	// Default: 100
	BufferSize int

	// FlushInterval is how often to flush buffered events.
	// Default: 5 seconds
	FlushInterval time.Duration

	// Verbose enables console output of audit events.
	Verbose bool
}

// DefaultLoggerConfig returns sensible defaults.
func DefaultLoggerConfig() *LoggerConfig {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}

	return &LoggerConfig{
		LogFile:       filepath.Join(home, ".cypherpunk", "audit.log"),
		BufferSize:    100,
		FlushInterval: 5 * time.Second,
	}
}

// Logger is the audit logger.
type Logger struct {
	config *LoggerConfig
	file   *os.File
	mu     sync.Mutex

	buffer   []Event
	bufferMu sync.Mutex

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Callback for remote sending
	remoteSender func([]Event) error
}

// NewLogger creates a new audit logger.
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	// Apply defaults for zero values
	if config.LogFile == "" {
		config.LogFile = DefaultLoggerConfig().LogFile
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}

	// Ensure log directory exists
	dir := filepath.Dir(config.LogFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	// Open log file for append (0640 = owner read/write, group read)
	file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Logger{
		config: config,
		file:   file,
		buffer: make([]Event, 0, config.BufferSize),
		stopCh: make(chan struct{}),
	}

	return l, nil
}

// Start begins background flushing.
func (l *Logger) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	l.wg.Add(1)
	go l.flushLoop()
}

// Stop stops the logger and flushes remaining events.
func (l *Logger) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()

	// Final flush
	l.Flush()

	// Close file
	return l.file.Close()
}

// Log records an audit event.
func (l *Logger) Log(event Event) {
	event.Timestamp = time.Now()

	l.bufferMu.Lock()
	l.buffer = append(l.buffer, event)
	shouldFlush := len(l.buffer) >= l.config.BufferSize
	l.bufferMu.Unlock()

	if l.config.Verbose {
		l.printEvent(event)
	}

	if shouldFlush {
		go l.Flush()
	}
}

// Convenience methods for common event types

// Info logs an informational event.
func (l *Logger) Info(eventType EventType, message string, details map[string]interface{}) {
	l.Log(Event{
		Type:     eventType,
		Severity: SeverityInfo,
		Message:  message,
		Details:  details,
	})
}

// Error logs an error event.
func (l *Logger) Error(eventType EventType, message string, err error, details map[string]interface{}) {
	event := Event{
		Type:     eventType,
		Severity: SeverityError,
		Message:  message,
		Details:  details,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// ScanSubmitted logs a scan submission event.
func (l *Logger) ScanSubmitted(scanID, locator string) {
	l.Log(Event{
		Type:     EventScanSubmitted,
		Severity: SeverityInfo,
		ScanID:   scanID,
		Message:  fmt.Sprintf("Scan submitted: %s", locator),
		Details: map[string]interface{}{
			"locator": locator,
		},
	})
}

// ScanCompleted logs a scan completion event.
func (l *Logger) ScanCompleted(scanID string, duration time.Duration, details map[string]interface{}) {
	l.Log(Event{
		Type:     EventScanCompleted,
		Severity: SeverityInfo,
		ScanID:   scanID,
		Message:  "Scan completed successfully",
		Duration: duration,
		Details:  details,
	})
}

// ScanFailed logs a scan failure event.
func (l *Logger) ScanFailed(scanID string, err error, details map[string]interface{}) {
	event := Event{
		Type:     EventScanFailed,
		Severity: SeverityError,
		ScanID:   scanID,
		Message:  "Scan failed",
		Details:  details,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// AnalyzerFailed logs a single-analyzer failure. These are absorbed by the
// dispatcher and never fail the scan, but they must leave a trace.
func (l *Logger) AnalyzerFailed(scanID, analyzerID string, err error) {
	event := Event{
		Type:       EventAnalyzerFailed,
		Severity:   SeverityWarning,
		ScanID:     scanID,
		AnalyzerID: analyzerID,
		Message:    fmt.Sprintf("Analyzer %s failed, contribution dropped", analyzerID),
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// ConsensusReached logs a decided finding group.
func (l *Logger) ConsensusReached(scanID, groupKey string, decision string, confidence float64) {
	l.Log(Event{
		Type:     EventConsensusReached,
		Severity: SeverityInfo,
		ScanID:   scanID,
		Message:  fmt.Sprintf("Consensus %s for group %s", decision, groupKey),
		Details: map[string]interface{}{
			"group":      groupKey,
			"decision":   decision,
			"confidence": confidence,
		},
	})
}

// VoteTimeout logs a forced finalization of a voting phase.
func (l *Logger) VoteTimeout(scanID, groupKey string, votes int, err error) {
	event := Event{
		Type:     EventVoteTimeout,
		Severity: SeverityWarning,
		ScanID:   scanID,
		Message:  fmt.Sprintf("Voting timeout for group %s with %d votes", groupKey, votes),
		Details: map[string]interface{}{
			"group": groupKey,
			"votes": votes,
		},
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// Flush writes buffered events to disk.
func (l *Logger) Flush() {
	l.bufferMu.Lock()
	if len(l.buffer) == 0 {
		l.bufferMu.Unlock()
		return
	}
	events := l.buffer
	l.buffer = make([]Event, 0, l.config.BufferSize)
	l.bufferMu.Unlock()

	// Write to file
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = l.file.Write(data)
		_, _ = l.file.Write([]byte("\n"))
	}

	// Sync to disk
	_ = l.file.Sync()

	// Send to remote if configured
	if l.remoteSender != nil {
		go l.remoteSender(events) //nolint:errcheck // async send, errors handled internally
	}
}

// flushLoop periodically flushes buffered events.
func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.Flush()
		}
	}
}

// printEvent prints an event to console in human-readable format.
func (l *Logger) printEvent(event Event) {
	timestamp := event.Timestamp.Format("2006-01-02 15:04:05")
	fmt.Printf("[%s] [%s] %s: %s\n", timestamp, event.Severity, event.Type, event.Message)
	if event.Error != "" {
		fmt.Printf("  Error: %s\n", event.Error)
	}
}

// SetRemoteSender sets the callback for sending events to a remote endpoint.
func (l *Logger) SetRemoteSender(sender func([]Event) error) {
	l.remoteSender = sender
}

// ScanLogger wraps Logger with a scan id stamped on every event.
type ScanLogger struct {
	logger *Logger
	scanID string
}

// ForScan binds the logger to one scan.
func (l *Logger) ForScan(scanID string) *ScanLogger {
	return &ScanLogger{logger: l, scanID: scanID}
}

// Info logs an info event for the bound scan.
func (sl *ScanLogger) Info(eventType EventType, message string, details map[string]interface{}) {
	sl.logger.Log(Event{
		Type:     eventType,
		Severity: SeverityInfo,
		ScanID:   sl.scanID,
		Message:  message,
		Details:  details,
	})
}

// Error logs an error event for the bound scan.
func (sl *ScanLogger) Error(eventType EventType, message string, err error, details map[string]interface{}) {
	event := Event{
		Type:     eventType,
		Severity: SeverityError,
		ScanID:   sl.scanID,
		Message:  message,
		Details:  details,
	}
	if err != nil {
		event.Error = err.Error()
	}
	sl.logger.Log(event)
}
