// Package sync maintains the persistent resolved-record table for one
// dataset repository: loading the previous snapshot, merging new
// resolutions, and periodically publishing table + cover images + report
// as one atomic directory push.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deepghs/anime-sites/internal/hub"
	"github.com/deepghs/anime-sites/internal/images"
	"github.com/deepghs/anime-sites/internal/parallel"
	"github.com/parquet-go/parquet-go"
	"golang.org/x/time/rate"
)

const tableFile = "table.parquet"

// lfsRules are appended to the repository's attribute file once at
// bootstrap.
var lfsRules = []string{
	"*.json filter=lfs diff=lfs merge=lfs -text",
	"*.csv filter=lfs diff=lfs merge=lfs -text",
}

// Row is one persisted record of the table. A row with a catalog ID is
// settled and is never re-resolved.
type Row interface {
	Key() string
	Settled() bool
	SortYear() int64
}

// Describer projects a row into its report entry and cover reference.
type Describer[T Row] func(T) Entry

// Options configures an Engine.
type Options struct {
	Hub        *hub.Client
	Repository string
	// Source names the upstream site in the dataset card.
	Source  string
	WorkDir string
	// DeploySpan debounces flushes: a non-forced flush is skipped until
	// this much time has passed since the previous one.
	DeploySpan time.Duration
	// UploadSpan rate-limits pushes to the storage backend. The limiter
	// blocks the flusher instead of dropping the push.
	UploadSpan time.Duration
	Fetcher    *images.Fetcher
	Workers    int
}

// Engine is the incremental sync engine for one dataset. The row table is
// mutated from concurrent worker callbacks; every read-modify-write of it
// goes through the engine's lock.
type Engine[T Row] struct {
	opts     Options
	describe Describer[T]
	limiter  *rate.Limiter

	// flushMu serializes the whole flush body: snapshot write, cover sync,
	// report and upload all share one work directory.
	flushMu      sync.Mutex
	imagesSynced bool

	mu         sync.Mutex
	rows       map[string]T
	dirty      bool
	lastDeploy time.Time
	baseCount  int
}

// NewEngine creates an engine. describe supplies the report projection and
// cover reference for each row.
func NewEngine[T Row](opts Options, describe Describer[T]) *Engine[T] {
	if opts.DeploySpan <= 0 {
		opts.DeploySpan = 5 * time.Minute
	}
	if opts.UploadSpan <= 0 {
		opts.UploadSpan = 30 * time.Second
	}
	return &Engine[T]{
		opts:     opts,
		describe: describe,
		limiter:  rate.NewLimiter(rate.Every(opts.UploadSpan), 1),
		rows:     make(map[string]T),
	}
}

// Bootstrap ensures the repository exists, creating it together with its
// attribute rules when absent.
func (e *Engine[T]) Bootstrap(ctx context.Context) error {
	exists, err := e.opts.Hub.RepoExists(ctx, e.opts.Repository)
	if err != nil {
		return fmt.Errorf("failed to check repository: %w", err)
	}
	if exists {
		return nil
	}

	slog.Info("Creating dataset repository", "repo", e.opts.Repository)
	if err := e.opts.Hub.CreateRepo(ctx, e.opts.Repository); err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}

	attrs, err := e.opts.Hub.ReadText(ctx, e.opts.Repository, ".gitattributes")
	if err != nil {
		return fmt.Errorf("failed to read attribute rules: %w", err)
	}
	lines := strings.Split(strings.TrimRight(attrs, "\n"), "\n")
	lines = append(lines, lfsRules...)
	if err := e.opts.Hub.WriteText(ctx, e.opts.Repository, ".gitattributes",
		strings.Join(lines, "\n")+"\n", "Add attribute rules"); err != nil {
		return fmt.Errorf("failed to write attribute rules: %w", err)
	}
	return nil
}

// Load pulls the previous table snapshot into memory, keyed by page ID.
func (e *Engine[T]) Load(ctx context.Context) error {
	exists, err := e.opts.Hub.FileExists(ctx, e.opts.Repository, tableFile)
	if err != nil {
		return fmt.Errorf("failed to check table file: %w", err)
	}
	if !exists {
		slog.Info("No previous table snapshot, starting fresh", "repo", e.opts.Repository)
		return nil
	}

	local := filepath.Join(e.opts.WorkDir, tableFile)
	if err := e.opts.Hub.DownloadFile(ctx, e.opts.Repository, tableFile, local); err != nil {
		return fmt.Errorf("failed to download table: %w", err)
	}

	rows, err := readTable[T](local)
	if err != nil {
		return err
	}

	e.mu.Lock()
	for _, row := range rows {
		e.rows[row.Key()] = row
	}
	e.baseCount = len(e.rows)
	e.mu.Unlock()

	slog.Info("Loaded table snapshot", "repo", e.opts.Repository, "rows", len(rows))
	return nil
}

// Lookup returns the persisted row for a page ID, if any.
func (e *Engine[T]) Lookup(key string) (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	row, ok := e.rows[key]
	return row, ok
}

// Upsert merges one resolved row into the table and marks the table dirty.
func (e *Engine[T]) Upsert(row T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows[row.Key()] = row
	e.dirty = true
}

// Count returns the current table size.
func (e *Engine[T]) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rows)
}

// Flush publishes the current table, cover images and report as one atomic
// directory push. A non-forced flush is skipped while the table is clean
// or the deploy span has not elapsed; any pending change is guaranteed to
// reach the backend through a final forced flush.
func (e *Engine[T]) Flush(ctx context.Context, force bool) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	// Re-check under flushMu: a concurrent worker may have just pushed the
	// rows this caller saw as dirty.
	e.mu.Lock()
	if !e.dirty {
		e.mu.Unlock()
		return nil
	}
	if !force && time.Since(e.lastDeploy) < e.opts.DeploySpan {
		e.mu.Unlock()
		return nil
	}
	snapshot := make([]T, 0, len(e.rows))
	for _, row := range e.rows {
		snapshot = append(snapshot, row)
	}
	added := len(e.rows) - e.baseCount
	e.mu.Unlock()

	// Deterministic table order: year descending, then page ID descending.
	sort.Slice(snapshot, func(i, j int) bool {
		yi, yj := snapshot[i].SortYear(), snapshot[j].SortYear()
		if yi != yj {
			return yi > yj
		}
		return snapshot[i].Key() > snapshot[j].Key()
	})

	if err := writeTable(filepath.Join(e.opts.WorkDir, tableFile), snapshot); err != nil {
		return err
	}

	entries := make([]Entry, 0, len(snapshot))
	for _, row := range snapshot {
		entries = append(entries, e.describe(row))
	}

	if err := e.syncCovers(ctx, entries); err != nil {
		return err
	}

	reportPath := filepath.Join(e.opts.WorkDir, "README.md")
	f, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := WriteReport(f, e.opts.Source, entries); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	message := fmt.Sprintf("Adding %d new record(s) into index", added)
	slog.Info("Pushing snapshot", "repo", e.opts.Repository, "rows", len(snapshot), "added", added)
	if err := e.opts.Hub.UploadDir(ctx, e.opts.Repository, e.opts.WorkDir, message); err != nil {
		return fmt.Errorf("failed to push snapshot: %w", err)
	}

	e.mu.Lock()
	e.dirty = false
	e.lastDeploy = time.Now()
	e.baseCount = len(e.rows)
	e.mu.Unlock()
	return nil
}

// syncCovers mirrors the repository's existing image directory once, then
// downloads any cover still missing locally. A failed download aborts the
// flush; the table entry is unaffected so the next flush retries the file.
func (e *Engine[T]) syncCovers(ctx context.Context, entries []Entry) error {
	if e.opts.Fetcher == nil {
		return nil
	}

	imagesDir := filepath.Join(e.opts.WorkDir, "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return fmt.Errorf("failed to create images directory: %w", err)
	}

	if !e.imagesSynced {
		if err := e.opts.Hub.DownloadDir(ctx, e.opts.Repository, "images", imagesDir); err != nil {
			return fmt.Errorf("failed to mirror images: %w", err)
		}
		e.imagesSynced = true
	}

	var pending []Entry
	for _, entry := range entries {
		if entry.CoverURL == "" || entry.CoverPath == "" {
			continue
		}
		pending = append(pending, entry)
	}
	if len(pending) == 0 {
		return nil
	}

	summary := parallel.Run(pending, e.opts.Workers, nil, func(entry Entry) error {
		dest := filepath.Join(e.opts.WorkDir, filepath.FromSlash(entry.CoverPath))
		return e.opts.Fetcher.Download(ctx, entry.CoverURL, dest)
	})
	if summary.Failed > 0 {
		return fmt.Errorf("%d cover download(s) failed", summary.Failed)
	}
	return nil
}

// readTable loads every row of a parquet snapshot.
func readTable[T Row](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat table file: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[T](pf)
	defer reader.Close()

	var rows []T
	batch := make([]T, 128)
	for {
		n, err := reader.Read(batch)
		if n > 0 {
			rows = append(rows, batch[:n]...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read table rows: %w", err)
		}
	}
	return rows, nil
}

// writeTable serializes the sorted snapshot to a parquet file.
func writeTable[T Row](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create table directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}

	writer := parquet.NewGenericWriter[T](f)
	if _, err := writer.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write table rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize table: %w", err)
	}
	return f.Close()
}
