// Package writer applies generated documentation comments to source files.
package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const filePerm = 0600

// WriteConflictError reports that a target file (or its repository) changed
// between batch submission and result application. The result is not applied;
// the reconciler records this as a per-item failure.
type WriteConflictError struct {
	FilePath       string
	ExpectedCommit string
	ActualCommit   string
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("file %s changed since submission (submitted at %.12s, now %.12s)",
		e.FilePath, e.ExpectedCommit, e.ActualCommit)
}

// commentStyle describes how a language renders a block of line comments.
type commentStyle struct {
	prefix string
}

// styleByExtension maps file extensions to their line-comment prefix.
var styleByExtension = map[string]commentStyle{
	".go": {prefix: "// "},
	".ts": {prefix: "// "},
	".js": {prefix: "// "},
	".py": {prefix: "# "},
	".rb": {prefix: "# "},
	".sh": {prefix: "# "},
}

var defaultStyle = commentStyle{prefix: "// "}

// HeadFunc returns the repository's current commit hash, empty when not under
// version control.
type HeadFunc func(ctx context.Context) (string, error)

// FileWriter inserts documentation comments at the top of files under root.
// Writes are atomic (temp file + rename) so an interrupted apply never leaves
// a half-written source file.
type FileWriter struct {
	root string
	head HeadFunc
}

// NewFileWriter creates a FileWriter rooted at root. head supplies the
// current commit identity for conflict detection; pass nil to skip the check.
func NewFileWriter(root string, head HeadFunc) *FileWriter {
	return &FileWriter{root: root, head: head}
}

// Apply renders text as a comment block and inserts it at the top of path
// (after any shebang line). When expectedCommit is non-empty and the
// repository head has moved, Apply refuses with a WriteConflictError.
func (w *FileWriter) Apply(ctx context.Context, path, text, expectedCommit string) error {
	if expectedCommit != "" && w.head != nil {
		current, err := w.head(ctx)
		if err != nil {
			return fmt.Errorf("resolving current commit: %w", err)
		}
		if current != "" && current != expectedCommit {
			return &WriteConflictError{
				FilePath:       path,
				ExpectedCommit: expectedCommit,
				ActualCommit:   current,
			}
		}
	}

	fullPath := filepath.Join(w.root, filepath.FromSlash(path))
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	comment := renderComment(text, styleFor(path))
	updated := insertHeader(string(content), comment)

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, []byte(updated), filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("publishing %s: %w", path, err)
	}
	return nil
}

// styleFor picks the comment style for a path by extension.
func styleFor(path string) commentStyle {
	if style, ok := styleByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return style
	}
	return defaultStyle
}

// renderComment converts generated text into a comment block, one prefixed
// line per input line, with trailing whitespace trimmed.
func renderComment(text string, style commentStyle) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			b.WriteString(strings.TrimRight(style.prefix, " "))
		} else {
			b.WriteString(style.prefix)
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// insertHeader places the comment block at the top of content, keeping a
// shebang line first when present.
func insertHeader(content, comment string) string {
	if strings.HasPrefix(content, "#!") {
		if idx := strings.IndexByte(content, '\n'); idx >= 0 {
			return content[:idx+1] + comment + content[idx+1:]
		}
		return content + "\n" + comment
	}
	return comment + content
}
