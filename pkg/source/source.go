// Package source defines the source-control fetch boundary: listing
// directory entries and reading file content from a remote provider.
// Credentials are passed through opaquely and never inspected by the core.
package source

import "context"

// EntryType classifies a directory entry.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// Entry is one directory entry returned by a provider.
type Entry struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Type EntryType `json:"type"`
}

// Client is a source-control provider client. Implementations must be safe
// for concurrent use from multiple scans.
type Client interface {
	// Name returns the provider name (e.g., "github", "gitlab").
	Name() string

	// ListDirectory lists the entries at path within the locator. When the
	// path names a single file, the provider returns exactly one file entry.
	ListDirectory(ctx context.Context, locator, path, credential string) ([]Entry, error)

	// GetFileContent returns the raw bytes of one file.
	GetFileContent(ctx context.Context, locator, path, credential string) ([]byte, error)
}
