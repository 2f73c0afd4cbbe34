// Package localfs implements tools.FileReader confined to one directory.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Kocoro-lab/deepresearch/internal/tools"
)

// DefaultMaxBytes caps how much of a file is returned.
const DefaultMaxBytes = 512 << 10

// Reader reads files under a fixed root. Symlinks cannot escape the root.
type Reader struct {
	root     *os.Root
	dir      string
	maxBytes int64
}

// New opens dir as the readable root.
func New(dir string, maxBytes int64) (*Reader, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("open document root: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Reader{root: root, dir: abs, maxBytes: maxBytes}, nil
}

// Dir returns the absolute root directory.
func (r *Reader) Dir() string { return r.dir }

// Close releases the root handle.
func (r *Reader) Close() error { return r.root.Close() }

// ReadFile returns the file's text with invalid UTF-8 replaced.
func (r *Reader) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel, err := r.relative(path)
	if err != nil {
		return "", err
	}
	info, err := r.root.Stat(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: '%s'", tools.ErrFileNotFound, path)
		}
		return "", fmt.Errorf("%w: '%s'", tools.ErrOutsideRoot, path)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: '%s'", tools.ErrNotAFile, path)
	}
	f, err := r.root.Open(rel)
	if err != nil {
		return "", fmt.Errorf("read '%s': %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, r.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read '%s': %w", path, err)
	}
	truncated := int64(len(data)) > r.maxBytes
	if truncated {
		data = data[:r.maxBytes]
	}
	text := strings.ToValidUTF8(string(data), "�")
	if truncated {
		text += "\n...[truncated]"
	}
	return text, nil
}

// relative maps path onto the root. Absolute paths are accepted only when
// they point inside the root.
func (r *Reader) relative(path string) (string, error) {
	p := filepath.Clean(path)
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.dir, p)
		if err != nil {
			return "", fmt.Errorf("%w: '%s'", tools.ErrOutsideRoot, path)
		}
		p = rel
	}
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("%w: '%s'", tools.ErrOutsideRoot, path)
	}
	return p, nil
}
