package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Kocoro-lab/deepresearch/internal/registry"
)

var defaultIndexExts = []string{".md", ".markdown", ".txt", ".rst"}

// Ingester writes one document into the knowledge index.
type Ingester interface {
	Ingest(ctx context.Context, source, text string) (int, error)
}

func indexCmd() *cobra.Command {
	var (
		exts    []string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "index <path>...",
		Short: "Ingest local documents into the knowledge index",
		Long: `Chunk, embed and upsert documents so researchers can retrieve them with
the query_index tool. Directories are walked recursively.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()
			defer logger.Sync()

			files, err := collectFiles(args, exts)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no files with extensions %v under %v", exts, args)
			}
			index, _, err := registry.NewKnowledge(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}
			chunks, err := ingestFiles(cmd.Context(), index, files, workers, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s indexed %d files (%d chunks)\n", color.GreenString("✓"), len(files), chunks)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&exts, "ext", defaultIndexExts, "File extensions to ingest")
	cmd.Flags().IntVar(&workers, "workers", 4, "Files ingested concurrently")
	return cmd
}

// collectFiles expands paths into a sorted, de-duplicated list of files
// whose extension is in exts.
func collectFiles(paths, exts []string) ([]string, error) {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = true
	}
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if allowed[strings.ToLower(filepath.Ext(p))] && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

// ingestFiles feeds files to ix, at most workers at a time, and returns
// the total number of chunks written. The first failure cancels the rest.
func ingestFiles(ctx context.Context, ix Ingester, files []string, workers int, progress io.Writer) (int, error) {
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		mu    sync.Mutex
		total int
	)
	for _, f := range files {
		g.Go(func() error {
			b, err := os.ReadFile(f)
			if err != nil {
				return err
			}
			n, err := ix.Ingest(ctx, f, string(b))
			if err != nil {
				return fmt.Errorf("index %s: %w", f, err)
			}
			mu.Lock()
			total += n
			fmt.Fprintf(progress, "  %s %s (%d chunks)\n", color.GreenString("+"), f, n)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}
