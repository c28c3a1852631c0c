// Cypherpunk Agent - Consensus-driven smart-contract defect scanner
//
// The agent fetches a source tree from a git provider, fans it out to the
// registered analyzers, and reconciles their findings into a single
// confidence-scored report. It runs one scan per invocation:
//
//	cypherpunk-agent -repo owner/contracts -path src
//
// A Prometheus listener can be attached to a run with -metrics-addr, and
// -config points at a YAML file for everything the flags don't cover.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/analyzers/pattern"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/artifact"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/audit"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/cache"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/core"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/metrics"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/scan"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/source"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/source/github"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/source/gitlab"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/store"
)

const (
	appName    = "cypherpunk-agent"
	appVersion = "1.0.0"
)

// Config represents the agent configuration.
type Config struct {
	// Source provider
	Source struct {
		Provider string `yaml:"provider"` // github or gitlab
		Token    string `yaml:"token"`
		BaseURL  string `yaml:"base_url"`
		Ref      string `yaml:"ref"` // gitlab only
	} `yaml:"source"`

	// Scan engine
	Scan struct {
		QuorumThreshold float64       `yaml:"quorum_threshold"`
		VotingTimeout   time.Duration `yaml:"voting_timeout"`
		Concurrency     int           `yaml:"concurrency"`
		AnalyzerTimeout time.Duration `yaml:"analyzer_timeout"`
		Extensions      []string      `yaml:"extensions"`
	} `yaml:"scan"`

	// Artifact cache
	Cache struct {
		Capacity      int           `yaml:"capacity"`
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"cache"`

	// Scan archive
	Archive struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"archive"`

	// Audit log
	Audit struct {
		LogFile string `yaml:"log_file"`
	} `yaml:"audit"`

	Verbose bool `yaml:"verbose"`
}

func (c *Config) validate() error {
	return core.NewValidator().
		Range("scan.concurrency", c.Scan.Concurrency, 1, 64, true).
		Range("cache.capacity", c.Cache.Capacity, 1, 100000, true).
		MinDuration("scan.voting_timeout", c.Scan.VotingTimeout, time.Second).
		MinDuration("scan.analyzer_timeout", c.Scan.AnalyzerTimeout, time.Second).
		MinDuration("cache.ttl", c.Cache.TTL, time.Second).
		Errors()
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	repo := flag.String("repo", "", "Repository locator (owner/repo) for one-shot mode")
	path := flag.String("path", "", "Subpath within the repository")
	chain := flag.String("chain", "", "On-chain locator (0x-prefixed address)")
	provider := flag.String("provider", "github", "Source provider (github, gitlab)")
	token := flag.String("token", "", "Provider access token (or CYPHERPUNK_TOKEN env)")
	metricsAddr := flag.String("metrics-addr", "", "Address for the Prometheus metrics listener (e.g. :9090)")
	outputJSON := flag.Bool("json", false, "Output the scan report as JSON")
	verbose := flag.Bool("verbose", false, "Verbose output")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	var cfg Config
	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *verbose {
		cfg.Verbose = true
	}
	if cfg.Source.Provider == "" {
		cfg.Source.Provider = *provider
	}
	if cfg.Source.Token == "" {
		cfg.Source.Token = *token
	}
	if cfg.Source.Token == "" {
		cfg.Source.Token = os.Getenv("CYPHERPUNK_TOKEN")
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// Signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	// Source provider client
	client, err := newSourceClient(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Shared artifact cache with background sweep
	artifactCache := cache.New[[]core.SourceFile](&cache.Config{
		Capacity:      cfg.Cache.Capacity,
		DefaultTTL:    cfg.Cache.TTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Verbose:       cfg.Verbose,
	})
	artifactCache.Start()
	defer artifactCache.Stop()

	// Metrics
	collector := metrics.NewPrometheusCollector(&metrics.PrometheusConfig{
		RegisterDefaultMetrics: true,
	})
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", collector.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "Metrics listener error: %v\n", err)
			}
		}()
	}

	// Audit log
	auditLogger, err := audit.NewLogger(&audit.LoggerConfig{
		LogFile: cfg.Audit.LogFile,
		Verbose: cfg.Verbose,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening audit log: %v\n", err)
		os.Exit(1)
	}
	auditLogger.Start()
	defer auditLogger.Stop()
	auditLogger.Info(audit.EventEngineStart, appName+" starting", nil)
	defer auditLogger.Info(audit.EventEngineStop, appName+" stopping", nil)

	// Scan archive
	var archive *store.Store
	if cfg.Archive.Enabled {
		archive, err = store.Open(&store.Config{Path: cfg.Archive.Path, Verbose: cfg.Verbose})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening scan archive: %v\n", err)
			os.Exit(1)
		}
		defer archive.Close()
	}

	fetcher := artifact.NewFetcher(client, artifactCache, &artifact.Config{
		Extensions: cfg.Scan.Extensions,
		CacheTTL:   cfg.Cache.TTL,
		Metrics:    collector,
		Verbose:    cfg.Verbose,
	})

	orchestrator := scan.NewOrchestrator(fetcher, defaultAnalyzers(), &scan.Config{
		QuorumThreshold: cfg.Scan.QuorumThreshold,
		VotingTimeout:   cfg.Scan.VotingTimeout,
		Concurrency:     cfg.Scan.Concurrency,
		AnalyzerTimeout: cfg.Scan.AnalyzerTimeout,
		Extensions:      cfg.Scan.Extensions,
		Metrics:         collector,
		Audit:           auditLogger,
		Archive:         archive,
		Verbose:         cfg.Verbose,
	})
	defer orchestrator.Stop()

	if *repo == "" && *chain == "" {
		fmt.Fprintln(os.Stderr, "Nothing to do: pass -repo or -chain for a one-shot scan")
		flag.Usage()
		os.Exit(2)
	}

	if err := runOneShot(ctx, orchestrator, core.ScanRequest{
		Repository:   *repo,
		Path:         *path,
		ChainAddress: *chain,
		Credential:   cfg.Source.Token,
	}, *outputJSON); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newSourceClient builds the configured provider client.
func newSourceClient(cfg *Config) (source.Client, error) {
	switch cfg.Source.Provider {
	case "github", "":
		return github.NewClient(&github.Config{
			Token:   cfg.Source.Token,
			BaseURL: cfg.Source.BaseURL,
			Verbose: cfg.Verbose,
		}), nil
	case "gitlab":
		return gitlab.NewClient(&gitlab.Config{
			Token:   cfg.Source.Token,
			BaseURL: cfg.Source.BaseURL,
			Ref:     cfg.Source.Ref,
			Verbose: cfg.Verbose,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source provider %q (want github or gitlab)", cfg.Source.Provider)
	}
}

// defaultAnalyzers returns the built-in analyzer set. The strict variant
// votes only on high-signal rules, so the two disagree on noisy patterns and
// the consensus engine has real work to do.
func defaultAnalyzers() []core.Analyzer {
	var strict []pattern.Rule
	for _, rule := range pattern.DefaultRules() {
		if rule.Confidence >= 65 {
			strict = append(strict, rule)
		}
	}
	return []core.Analyzer{
		pattern.New("pattern"),
		pattern.NewWithRules("pattern-strict", strict),
	}
}

// runOneShot submits a single scan, waits for a terminal status, and prints
// the report.
func runOneShot(ctx context.Context, orchestrator *scan.Orchestrator, req core.ScanRequest, asJSON bool) error {
	scanID, err := orchestrator.Submit(req)
	if err != nil {
		return err
	}
	fmt.Printf("Scan %s submitted for %s\n", scanID, req.Locator())

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		result, err := orchestrator.GetStatus(scanID)
		if err != nil {
			return err
		}
		if !result.Status.Terminal() {
			continue
		}

		if asJSON {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			printReport(result)
		}

		if result.Status == core.StatusFailed {
			return fmt.Errorf("scan failed: %s", result.Error)
		}
		return nil
	}
}

// printReport prints a human-readable scan summary.
func printReport(result *core.Scan) {
	fmt.Println()
	fmt.Printf("Scan %s: %s\n", result.ID, result.Status)
	fmt.Printf("  Votes: %d  Consensus: %v  Confidence: %.1f\n",
		result.TotalVotes, result.ConsensusReached, result.FinalConfidenceScore)
	fmt.Printf("  Confirmed findings: %d\n", len(result.Findings))

	for _, f := range result.Findings {
		fmt.Println()
		fmt.Printf("  [%s] %s (%s, confidence %d)\n", f.Severity, f.Title, f.Category, f.Confidence)
		fmt.Printf("    %s:%d\n", f.File, f.Line)
		if f.Description != "" {
			fmt.Printf("    %s\n", f.Description)
		}
		if f.Recommendation != "" {
			fmt.Printf("    Fix: %s\n", f.Recommendation)
		}
	}
}

// loadConfig reads and parses a YAML config file, expanding environment
// variables first.
func loadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	return nil
}
