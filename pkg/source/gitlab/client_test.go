package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/source"
)

// fakeGitLab serves the repository tree and file endpoints the client uses.
type fakeGitLab struct {
	treeJSON  string
	fileName  string
	filePath  string
	headCalls int
}

func (f *fakeGitLab) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/repository/tree"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, f.treeJSON)
		case r.Method == http.MethodHead && strings.Contains(r.URL.Path, "/repository/files/"):
			f.headCalls++
			if f.fileName == "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("X-Gitlab-File-Name", f.fileName)
			w.Header().Set("X-Gitlab-File-Path", f.filePath)
			w.Header().Set("X-Gitlab-Size", "42")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestClient(t *testing.T, fake *fakeGitLab) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	return NewClient(&Config{Token: "test-token", BaseURL: server.URL})
}

func TestListDirectoryTree(t *testing.T) {
	fake := &fakeGitLab{
		treeJSON: `[
			{"name": "contracts", "path": "contracts", "type": "tree"},
			{"name": "Vault.sol", "path": "contracts/Vault.sol", "type": "blob"},
			{"name": "module", "path": "vendor/module", "type": "commit"}
		]`,
	}
	client := newTestClient(t, fake)

	entries, err := client.ListDirectory(context.Background(), "group/proj", "", "")
	if err != nil {
		t.Fatalf("ListDirectory failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries (submodule skipped), got %d", len(entries))
	}
	if entries[0].Type != source.EntryDir || entries[0].Path != "contracts" {
		t.Errorf("unexpected dir entry: %+v", entries[0])
	}
	if entries[1].Type != source.EntryFile || entries[1].Path != "contracts/Vault.sol" {
		t.Errorf("unexpected file entry: %+v", entries[1])
	}
	if fake.headCalls != 0 {
		t.Errorf("non-empty tree should not probe the file API, got %d probes", fake.headCalls)
	}
}

func TestListDirectoryFilePath(t *testing.T) {
	// The tree endpoint returns an empty list when path names a single
	// file; the client must still list it as one file entry.
	fake := &fakeGitLab{
		treeJSON: `[]`,
		fileName: "Vault.sol",
		filePath: "contracts/Vault.sol",
	}
	client := newTestClient(t, fake)

	entries, err := client.ListDirectory(context.Background(), "group/proj", "contracts/Vault.sol", "")
	if err != nil {
		t.Fatalf("ListDirectory failed: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 file entry, got %d", len(entries))
	}
	if entries[0].Type != source.EntryFile {
		t.Errorf("expected file entry, got %v", entries[0].Type)
	}
	if entries[0].Name != "Vault.sol" || entries[0].Path != "contracts/Vault.sol" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
	if fake.headCalls != 1 {
		t.Errorf("expected exactly one file probe, got %d", fake.headCalls)
	}
}

func TestListDirectoryMissingPath(t *testing.T) {
	fake := &fakeGitLab{treeJSON: `[]`}
	client := newTestClient(t, fake)

	entries, err := client.ListDirectory(context.Background(), "group/proj", "does/not/exist", "")
	if err != nil {
		t.Fatalf("ListDirectory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(nil)
	if client.Name() != "gitlab" {
		t.Errorf("expected provider name gitlab, got %s", client.Name())
	}
	if !client.RateLimited() {
		t.Error("expected rate limiting enabled by default")
	}
}
