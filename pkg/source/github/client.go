// Package github provides a GitHub source-control client.
package github

import (
	"context"
	"fmt"
	"strings"
	"sync"

	gh "github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/errors"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/source"
)

// DefaultRateLimit is the default GitHub API rate limit
// (5000 req/hour for authenticated users).
const DefaultRateLimit = 5000

// Config holds GitHub client configuration.
type Config struct {
	// Token is the default access token, used when a request carries no
	// credential of its own.
	Token string `yaml:"token" json:"token"`

	// BaseURL for GitHub Enterprise (default: public github.com API).
	BaseURL string `yaml:"base_url" json:"base_url"`

	// RateLimit in requests per hour (default: 5000).
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// Client fetches repository trees via the GitHub Contents API.
type Client struct {
	*source.BaseClient
	cfg *Config

	// API clients keyed by credential, so per-request tokens reuse
	// connections without ever being logged or inspected.
	mu      sync.Mutex
	clients map[string]*gh.Client
}

// NewClient creates a new GitHub client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}

	return &Client{
		BaseClient: source.NewBaseClient(&source.BaseClientConfig{
			Name:      "github",
			RateLimit: cfg.RateLimit,
			Verbose:   cfg.Verbose,
		}),
		cfg:     cfg,
		clients: make(map[string]*gh.Client),
	}
}

// apiClient returns a go-github client for the given credential, building
// and caching one on first use.
func (c *Client) apiClient(ctx context.Context, credential string) (*gh.Client, error) {
	token := credential
	if token == "" {
		token = c.cfg.Token
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[token]; ok {
		return client, nil
	}

	var client *gh.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = gh.NewClient(oauth2.NewClient(ctx, ts))
	} else {
		client = gh.NewClient(nil)
	}

	if c.cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(c.cfg.BaseURL, c.cfg.BaseURL)
		if err != nil {
			return nil, errors.E(errors.KindInvalidInput, "github.apiClient", "invalid base URL", err)
		}
	}

	c.clients[token] = client
	return client, nil
}

// ListDirectory lists the contents of path within an "owner/repo" locator.
func (c *Client) ListDirectory(ctx context.Context, locator, path, credential string) ([]source.Entry, error) {
	owner, repo, err := splitLocator(locator)
	if err != nil {
		return nil, err
	}

	if err := c.WaitForRateLimit(ctx); err != nil {
		return nil, err
	}

	client, err := c.apiClient(ctx, credential)
	if err != nil {
		return nil, err
	}

	if c.Verbose() {
		fmt.Printf("[github] GET contents %s/%s/%s\n", owner, repo, path)
	}

	file, dir, resp, err := client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, upstreamErr(resp, err)
	}

	// A file path yields exactly one file entry.
	if file != nil {
		return []source.Entry{{
			Name: file.GetName(),
			Path: file.GetPath(),
			Type: source.EntryFile,
		}}, nil
	}

	entries := make([]source.Entry, 0, len(dir))
	for _, item := range dir {
		entry := source.Entry{
			Name: item.GetName(),
			Path: item.GetPath(),
		}
		switch item.GetType() {
		case "dir":
			entry.Type = source.EntryDir
		case "file":
			entry.Type = source.EntryFile
		default:
			// Symlinks and submodules are skipped.
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// GetFileContent returns the decoded content of one file.
func (c *Client) GetFileContent(ctx context.Context, locator, path, credential string) ([]byte, error) {
	owner, repo, err := splitLocator(locator)
	if err != nil {
		return nil, err
	}

	if err := c.WaitForRateLimit(ctx); err != nil {
		return nil, err
	}

	client, err := c.apiClient(ctx, credential)
	if err != nil {
		return nil, err
	}

	file, _, resp, err := client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, upstreamErr(resp, err)
	}
	if file == nil {
		return nil, errors.E(errors.KindNotFound, "github.GetFileContent",
			fmt.Sprintf("%s is not a file", path))
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, errors.E(errors.KindUpstream, "github.GetFileContent", "decode content", err)
	}

	return []byte(content), nil
}

// upstreamErr maps a GitHub API failure onto the scan error taxonomy,
// propagating the provider status where available.
func upstreamErr(resp *gh.Response, err error) error {
	ue := &errors.UpstreamError{
		Provider: "github",
		Message:  err.Error(),
	}
	if resp != nil {
		ue.StatusCode = resp.StatusCode
	}
	if ue.StatusCode == 404 {
		return errors.E(errors.KindNotFound, "github", "path not found", ue)
	}
	return errors.E(errors.KindUpstream, "github", "contents request failed", ue)
}

func splitLocator(locator string) (owner, repo string, err error) {
	parts := strings.Split(locator, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.E(errors.KindInvalidInput, "github",
			fmt.Sprintf("locator %q is not in owner/repo form", locator))
	}
	return parts[0], parts[1], nil
}

var _ source.Client = (*Client)(nil)
