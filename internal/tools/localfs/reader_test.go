package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/deepresearch/internal/tools"
)

func setup(t *testing.T, maxBytes int64) (*Reader, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# Notes\nhello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "big.txt"), []byte(strings.Repeat("a", 100)), 0o644))
	r, err := New(dir, maxBytes)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, dir
}

func TestReadFile(t *testing.T) {
	r, dir := setup(t, 0)
	ctx := context.Background()

	got, err := r.ReadFile(ctx, "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "# Notes\nhello", got)

	got, err = r.ReadFile(ctx, filepath.Join(dir, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Notes\nhello", got)
}

func TestReadFileErrors(t *testing.T) {
	r, _ := setup(t, 0)
	ctx := context.Background()

	_, err := r.ReadFile(ctx, "missing.txt")
	assert.ErrorIs(t, err, tools.ErrFileNotFound)

	_, err = r.ReadFile(ctx, "sub")
	assert.ErrorIs(t, err, tools.ErrNotAFile)

	_, err = r.ReadFile(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, tools.ErrOutsideRoot)

	_, err = r.ReadFile(ctx, "/etc/passwd")
	assert.ErrorIs(t, err, tools.ErrOutsideRoot)
}

func TestReadFileRejectsSymlinkEscape(t *testing.T) {
	r, dir := setup(t, 0)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644))
	if err := os.Symlink(filepath.Join(outside, "secret"), filepath.Join(dir, "link")); err != nil {
		t.Skip("symlinks unsupported")
	}
	_, err := r.ReadFile(context.Background(), "link")
	assert.ErrorIs(t, err, tools.ErrOutsideRoot)
}

func TestReadFileTruncates(t *testing.T) {
	r, _ := setup(t, 10)
	got, err := r.ReadFile(context.Background(), "sub/big.txt")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 10)+"\n...[truncated]", got)
}
