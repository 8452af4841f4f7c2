// Package source discovers the files to document and their current commit
// identity.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// pathIDLength is the number of hex characters kept from the path hash. Long
// enough to be collision-free across any realistic repository.
const pathIDLength = 16

// Directories never scanned for documentation candidates.
var skippedDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
}

// entryPointNames are base names (without extension) that mark a file as a
// package's primary public surface.
var entryPointNames = map[string]struct{}{
	"index": {},
	"main":  {},
	"doc":   {},
	"mod":   {},
}

// File is one documentation candidate.
type File struct {
	// Path is relative to the provider root, with forward slashes.
	Path string

	// PathID is a stable content-independent identifier derived from Path.
	PathID string

	// IsEntryPoint marks the package's primary public surface.
	IsEntryPoint bool
}

// Provider yields the files awaiting documentation and the repository's
// current commit identity.
type Provider interface {
	// Pending returns documentation candidates in a deterministic order.
	Pending(ctx context.Context) ([]File, error)

	// Head returns the current commit hash, or empty string when the root is
	// not under version control.
	Head(ctx context.Context) (string, error)

	// Read returns the current content of a repo-relative path.
	Read(path string) ([]byte, error)
}

// DirProvider scans a directory tree for files with configured extensions.
type DirProvider struct {
	root       string
	extensions map[string]struct{}
}

// NewDirProvider creates a provider rooted at root that considers files with
// the given extensions (including the leading dot).
func NewDirProvider(root string, extensions []string) *DirProvider {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return &DirProvider{root: root, extensions: exts}
}

// Root returns the scanned directory.
func (p *DirProvider) Root() string { return p.root }

// Pending implements Provider. Results are sorted by path so FilePathIndex
// assignment is reproducible across invocations.
func (p *DirProvider) Pending(ctx context.Context) ([]File, error) {
	var files []File

	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if _, skip := skippedDirs[name]; skip {
				return filepath.SkipDir
			}
			if name != "." && strings.HasPrefix(name, ".") && path != p.root {
				return filepath.SkipDir
			}
			return nil
		}

		if _, ok := p.extensions[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}

		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		files = append(files, File{
			Path:         rel,
			PathID:       PathID(rel),
			IsEntryPoint: isEntryPoint(name),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", p.root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Head implements Provider via `git rev-parse HEAD`. A non-git root yields an
// empty hash, not an error.
func (p *DirProvider) Head(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", p.root, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(string(out)), nil
}

// Read implements Provider.
func (p *DirProvider) Read(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(p.root, filepath.FromSlash(path)))
}

// PathID derives the stable identifier for a repo-relative path: a truncated
// SHA-256 of the forward-slash path.
func PathID(relPath string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(relPath)))
	return hex.EncodeToString(sum[:])[:pathIDLength]
}

// isEntryPoint reports whether a file name marks a package entry point.
func isEntryPoint(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	_, ok := entryPointNames[strings.ToLower(base)]
	return ok
}
