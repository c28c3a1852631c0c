// Package gitlab provides a GitLab source-control client.
package gitlab

import (
	"context"
	"fmt"
	"sync"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/errors"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/source"
)

// DefaultRateLimit is the default GitLab API rate limit in requests per hour.
const DefaultRateLimit = 2000

// Config holds GitLab client configuration.
type Config struct {
	// Token is the default access token, used when a request carries no
	// credential of its own.
	Token string `yaml:"token" json:"token"`

	// BaseURL for self-hosted GitLab (default: https://gitlab.com).
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Ref is the git ref to read from (default: the project default branch).
	Ref string `yaml:"ref" json:"ref"`

	// RateLimit in requests per hour (default: 2000).
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// Client fetches repository trees via the GitLab repository API.
type Client struct {
	*source.BaseClient
	cfg *Config

	mu      sync.Mutex
	clients map[string]*gl.Client
}

// NewClient creates a new GitLab client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}

	return &Client{
		BaseClient: source.NewBaseClient(&source.BaseClientConfig{
			Name:      "gitlab",
			RateLimit: cfg.RateLimit,
			Verbose:   cfg.Verbose,
		}),
		cfg:     cfg,
		clients: make(map[string]*gl.Client),
	}
}

func (c *Client) apiClient(credential string) (*gl.Client, error) {
	token := credential
	if token == "" {
		token = c.cfg.Token
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[token]; ok {
		return client, nil
	}

	var opts []gl.ClientOptionFunc
	if c.cfg.BaseURL != "" {
		opts = append(opts, gl.WithBaseURL(c.cfg.BaseURL))
	}

	client, err := gl.NewClient(token, opts...)
	if err != nil {
		return nil, errors.E(errors.KindInvalidInput, "gitlab.apiClient", "create client", err)
	}

	c.clients[token] = client
	return client, nil
}

// ListDirectory lists the tree at path within a "group/project" locator.
func (c *Client) ListDirectory(ctx context.Context, locator, path, credential string) ([]source.Entry, error) {
	if err := c.WaitForRateLimit(ctx); err != nil {
		return nil, err
	}

	client, err := c.apiClient(credential)
	if err != nil {
		return nil, err
	}

	if c.Verbose() {
		fmt.Printf("[gitlab] list tree %s path=%s\n", locator, path)
	}

	opt := &gl.ListTreeOptions{
		ListOptions: gl.ListOptions{PerPage: 100},
	}
	if path != "" {
		opt.Path = gl.Ptr(path)
	}
	if c.cfg.Ref != "" {
		opt.Ref = gl.Ptr(c.cfg.Ref)
	}

	var entries []source.Entry
	for {
		nodes, resp, err := client.Repositories.ListTree(locator, opt, gl.WithContext(ctx))
		if err != nil {
			return nil, upstreamErr(resp, err)
		}

		for _, node := range nodes {
			entry := source.Entry{
				Name: node.Name,
				Path: node.Path,
			}
			switch node.Type {
			case "tree":
				entry.Type = source.EntryDir
			case "blob":
				entry.Type = source.EntryFile
			default:
				continue
			}
			entries = append(entries, entry)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	// ListTree returns an empty tree when path names a single file. Probe
	// the file API so a file path lists as one file entry, matching the
	// other providers.
	if len(entries) == 0 && path != "" {
		if entry, ok := c.fileEntry(ctx, client, locator, path); ok {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

func (c *Client) fileEntry(ctx context.Context, client *gl.Client, locator, path string) (source.Entry, bool) {
	opt := &gl.GetFileMetaDataOptions{}
	if c.cfg.Ref != "" {
		opt.Ref = gl.Ptr(c.cfg.Ref)
	}

	file, _, err := client.RepositoryFiles.GetFileMetaData(locator, path, opt, gl.WithContext(ctx))
	if err != nil || file == nil {
		return source.Entry{}, false
	}

	return source.Entry{
		Name: file.FileName,
		Path: file.FilePath,
		Type: source.EntryFile,
	}, true
}

// GetFileContent returns the raw content of one file.
func (c *Client) GetFileContent(ctx context.Context, locator, path, credential string) ([]byte, error) {
	if err := c.WaitForRateLimit(ctx); err != nil {
		return nil, err
	}

	client, err := c.apiClient(credential)
	if err != nil {
		return nil, err
	}

	opt := &gl.GetRawFileOptions{}
	if c.cfg.Ref != "" {
		opt.Ref = gl.Ptr(c.cfg.Ref)
	}

	data, resp, err := client.RepositoryFiles.GetRawFile(locator, path, opt, gl.WithContext(ctx))
	if err != nil {
		return nil, upstreamErr(resp, err)
	}

	return data, nil
}

func upstreamErr(resp *gl.Response, err error) error {
	ue := &errors.UpstreamError{
		Provider: "gitlab",
		Message:  err.Error(),
	}
	if resp != nil {
		ue.StatusCode = resp.StatusCode
	}
	if ue.StatusCode == 404 {
		return errors.E(errors.KindNotFound, "gitlab", "path not found", ue)
	}
	return errors.E(errors.KindUpstream, "gitlab", "repository request failed", ue)
}

var _ source.Client = (*Client)(nil)
