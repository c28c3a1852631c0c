package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultLoggerConfig(t *testing.T) {
	cfg := DefaultLoggerConfig()

	if cfg == nil {
		t.Fatal("DefaultLoggerConfig returned nil")
	}

	if cfg.BufferSize != 100 {
		t.Errorf("BufferSize = %d, want 100", cfg.BufferSize)
	}

	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", cfg.FlushInterval)
	}

	if !strings.Contains(cfg.LogFile, ".cypherpunk") {
		t.Errorf("LogFile should contain .cypherpunk directory")
	}
}

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, err := NewLogger(&LoggerConfig{
		LogFile: logFile,
	})

	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	defer logger.Stop()

	// Log file should be created
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("Log file should be created")
	}
}

func TestNewLogger_NilConfig(t *testing.T) {
	logger, err := NewLogger(nil)
	if err != nil {
		t.Fatalf("NewLogger with nil config should work: %v", err)
	}

	defer logger.Stop()

	if logger.config == nil {
		t.Error("Logger should have default config")
	}
}

func TestLogger_Log(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, _ := NewLogger(&LoggerConfig{
		LogFile:       logFile,
		BufferSize:    1, // Small buffer to trigger immediate flush
		FlushInterval: 5 * time.Second,
	})

	logger.Start()

	// Log an event
	logger.Log(Event{
		Type:     EventScanStarted,
		Severity: SeverityInfo,
		ScanID:   "scan-123",
		Message:  "Test scan started",
		Details: map[string]interface{}{
			"key": "value",
		},
	})

	// Wait for flush
	time.Sleep(100 * time.Millisecond)

	logger.Stop()

	// Read log file
	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	// Parse the JSON line
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to parse log event: %v (data: %s)", err, string(data))
	}

	if event.Type != EventScanStarted {
		t.Errorf("Type = %s, want %s", event.Type, EventScanStarted)
	}

	if event.ScanID != "scan-123" {
		t.Errorf("ScanID = %s, want scan-123", event.ScanID)
	}

	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be stamped on Log")
	}
}

func TestLogger_ScanSubmitted(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, _ := NewLogger(&LoggerConfig{LogFile: logFile})
	logger.ScanSubmitted("scan-1", "owner/repo")
	logger.Flush()
	logger.Stop()

	data, _ := os.ReadFile(logFile)
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}

	if event.Type != EventScanSubmitted {
		t.Errorf("Type = %s, want %s", event.Type, EventScanSubmitted)
	}
	if event.Details["locator"] != "owner/repo" {
		t.Errorf("locator detail = %v, want owner/repo", event.Details["locator"])
	}
}

func TestLogger_ScanFailed(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, _ := NewLogger(&LoggerConfig{LogFile: logFile})
	logger.ScanFailed("scan-1", errors.New("fetch exploded"), nil)
	logger.Flush()
	logger.Stop()

	data, _ := os.ReadFile(logFile)
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}

	if event.Severity != SeverityError {
		t.Errorf("Severity = %s, want ERROR", event.Severity)
	}
	if event.Error != "fetch exploded" {
		t.Errorf("Error = %q", event.Error)
	}
}

func TestLogger_AnalyzerFailed(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, _ := NewLogger(&LoggerConfig{LogFile: logFile})
	logger.AnalyzerFailed("scan-1", "pattern", errors.New("boom"))
	logger.Flush()
	logger.Stop()

	data, _ := os.ReadFile(logFile)
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}

	if event.Type != EventAnalyzerFailed {
		t.Errorf("Type = %s, want %s", event.Type, EventAnalyzerFailed)
	}
	if event.AnalyzerID != "pattern" {
		t.Errorf("AnalyzerID = %s, want pattern", event.AnalyzerID)
	}
	if event.Severity != SeverityWarning {
		t.Errorf("Severity = %s, want WARN (analyzer failures are absorbed)", event.Severity)
	}
}

func TestLogger_VoteTimeout(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, _ := NewLogger(&LoggerConfig{LogFile: logFile})
	logger.VoteTimeout("scan-1", "reentrancy/HIGH", 2, errors.New("voting timeout elapsed"))
	logger.Flush()
	logger.Stop()

	data, _ := os.ReadFile(logFile)
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}

	if event.Type != EventVoteTimeout {
		t.Errorf("Type = %s, want %s", event.Type, EventVoteTimeout)
	}
	if event.Severity != SeverityWarning {
		t.Errorf("Severity = %s, want WARN (timeouts are control flow)", event.Severity)
	}
	if event.Error != "voting timeout elapsed" {
		t.Errorf("Error = %q", event.Error)
	}
	if event.Details["group"] != "reentrancy/HIGH" {
		t.Errorf("Details group = %v", event.Details["group"])
	}
}

func TestLogger_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, _ := NewLogger(&LoggerConfig{
		LogFile:       logFile,
		BufferSize:    100, // Large buffer
		FlushInterval: 1 * time.Hour,
	})
	logger.Start()

	// Log some events
	for i := 0; i < 10; i++ {
		logger.Info(EventScanStarted, "Test", nil)
	}

	// Manual flush
	logger.Flush()

	// Verify events were written
	data, _ := os.ReadFile(logFile)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	if len(lines) != 10 {
		t.Errorf("Expected 10 events, got %d", len(lines))
	}

	logger.Stop()
}

func TestLogger_BufferFlush(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, _ := NewLogger(&LoggerConfig{
		LogFile:       logFile,
		BufferSize:    5, // Small buffer
		FlushInterval: 1 * time.Hour,
	})
	logger.Start()

	// Log more than buffer size
	for i := 0; i < 10; i++ {
		logger.Info(EventScanStarted, "Test", nil)
	}

	// Wait for automatic flush
	time.Sleep(100 * time.Millisecond)

	logger.Stop()

	// All events should be written
	data, _ := os.ReadFile(logFile)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	if len(lines) != 10 {
		t.Errorf("Expected 10 events, got %d", len(lines))
	}
}

func TestLogger_ForScan(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, _ := NewLogger(&LoggerConfig{LogFile: logFile})

	sl := logger.ForScan("scan-77")
	sl.Info(EventArtifactsFetched, "Fetched 3 files", nil)
	sl.Error(EventScanFailed, "Scan blew up", errors.New("bad"), nil)

	logger.Flush()
	logger.Stop()

	data, _ := os.ReadFile(logFile)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(lines))
	}

	for _, line := range lines {
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("Failed to parse event: %v", err)
		}
		if event.ScanID != "scan-77" {
			t.Errorf("ScanID = %s, want scan-77", event.ScanID)
		}
	}
}

func TestLogger_ConcurrentLogging(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, _ := NewLogger(&LoggerConfig{
		LogFile:       logFile,
		BufferSize:    1000,
		FlushInterval: 1 * time.Hour,
	})
	logger.Start()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Info(EventScanStarted, "Concurrent", nil)
			}
		}()
	}
	wg.Wait()

	logger.Flush()
	logger.Stop()

	data, _ := os.ReadFile(logFile)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	if len(lines) != 200 {
		t.Errorf("Expected 200 events, got %d", len(lines))
	}
}

func TestLogger_RemoteSender(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger, _ := NewLogger(&LoggerConfig{LogFile: logFile})

	var mu sync.Mutex
	var received []Event
	logger.SetRemoteSender(func(events []Event) error {
		mu.Lock()
		received = append(received, events...)
		mu.Unlock()
		return nil
	})

	logger.Info(EventScanCompleted, "Done", nil)
	logger.Flush()

	// Remote send is async
	time.Sleep(100 * time.Millisecond)
	logger.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Errorf("Remote sender received %d events, want 1", len(received))
	}
}

func TestEventTypes(t *testing.T) {
	types := []EventType{
		EventEngineStart,
		EventEngineStop,
		EventScanSubmitted,
		EventScanStarted,
		EventScanCompleted,
		EventScanFailed,
		EventArtifactsFetched,
		EventAnalyzerFailed,
		EventConsensusReached,
		EventVoteTimeout,
		EventArchiveError,
		EventRateLimited,
		EventValidationError,
	}

	for _, et := range types {
		if et == "" {
			t.Error("Event type should not be empty")
		}
	}
}
