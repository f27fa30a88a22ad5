package dataset

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/soundprediction/risposta/pkg/types"
)

// Dataset is an in-memory view over a columnar question store. Rows are
// addressed by integer index; MapBatches mutates rows in place so mapped
// columns (e.g. retrieval results) persist for later passes.
type Dataset struct {
	rows      []types.Question
	searchKey string

	// Caching toggles mirror the loader configuration: when caching is
	// enabled MapBatches snapshots the mapped dataset under cacheDir, and
	// CleanupCacheFiles removes all snapshots except the latest.
	cacheEnabled bool
	cacheDir     string
	lastSnapshot string
	snapshots    []string
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithCaching enables snapshotting of mapped datasets under dir.
func WithCaching(dir string) Option {
	return func(d *Dataset) {
		d.cacheEnabled = true
		d.cacheDir = dir
	}
}

// New wraps rows as a Dataset whose retrieval columns live under searchKey.
func New(rows []types.Question, searchKey string, opts ...Option) *Dataset {
	if searchKey == "" {
		searchKey = "search"
	}
	d := &Dataset{rows: rows, searchKey: searchKey}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// SearchKey returns the search key the retrieval columns are stored under.
func (d *Dataset) SearchKey() string { return d.searchKey }

// Row returns a pointer to row i, valid until the dataset is reloaded.
func (d *Dataset) Row(i int) (*types.Question, error) {
	if i < 0 || i >= len(d.rows) {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, len(d.rows))
	}
	return &d.rows[i], nil
}

// Select returns the rows at the given integer indices, in order.
func (d *Dataset) Select(indices []int) ([]types.Question, error) {
	out := make([]types.Question, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(d.rows) {
			return nil, fmt.Errorf("row %d out of range [0, %d)", idx, len(d.rows))
		}
		out[i] = d.rows[idx]
	}
	return out, nil
}

// Columns projects the named columns into a map. Supported names are id,
// input, image, original_answer and answer.
func (d *Dataset) Columns(names ...string) (map[string][]string, error) {
	out := make(map[string][]string, len(names))
	for _, name := range names {
		col := make([]string, len(d.rows))
		for i, q := range d.rows {
			switch name {
			case "id":
				col[i] = q.ID
			case "input":
				col[i] = q.Input
			case "image":
				col[i] = q.Image
			case "original_answer":
				col[i] = q.Output.OriginalAnswer
			default:
				return nil, fmt.Errorf("unknown column %q", name)
			}
		}
		out[name] = col
	}
	return out, nil
}

// BatchFn maps one batch of rows. The slice aliases the dataset rows, so
// mutations performed by fn are kept.
type BatchFn func(ctx context.Context, batch []types.Question) error

// MapBatches applies fn over the whole dataset in consecutive batches of
// batchSize rows. Batches are processed sequentially; span search and batch
// construction rely on in-order, single-threaded application.
func (d *Dataset) MapBatches(ctx context.Context, batchSize int, fn BatchFn) error {
	if batchSize <= 0 {
		return types.ErrInvalidLimit
	}
	for start := 0; start < len(d.rows); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(d.rows) {
			end = len(d.rows)
		}
		if err := fn(ctx, d.rows[start:end]); err != nil {
			return fmt.Errorf("map batch [%d, %d): %w", start, end, err)
		}
	}
	if d.cacheEnabled {
		if err := d.snapshot(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dataset) snapshot() error {
	path := filepath.Join(d.cacheDir, fmt.Sprintf("cache-%d.parquet", len(d.snapshots)))
	if err := d.Save(path); err != nil {
		return err
	}
	d.snapshots = append(d.snapshots, path)
	d.lastSnapshot = path
	return nil
}

// CleanupCacheFiles removes all cache snapshots except the currently used
// one. Useful to avoid saturating disk storage during long searches.
func (d *Dataset) CleanupCacheFiles() error {
	kept := d.snapshots[:0]
	for _, path := range d.snapshots {
		if path == d.lastSnapshot {
			kept = append(kept, path)
			continue
		}
		if err := removeIfExists(path); err != nil {
			return fmt.Errorf("failed to remove cache file %s: %w", path, err)
		}
	}
	d.snapshots = kept
	return nil
}
