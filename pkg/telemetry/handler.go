// Package telemetry persists warning and error logs from experiment
// runs to parquet files, so failed trials and index errors can be
// inspected alongside the run artifacts.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// LogRecord is a single warning or error entry in Parquet storage.
type LogRecord struct {
	ID         string    `parquet:"id"`
	Timestamp  time.Time `parquet:"timestamp"`
	Level      string    `parquet:"level"`
	Message    string    `parquet:"message"`
	SourceFile string    `parquet:"source_file"`
	LineNumber int       `parquet:"line_number"`
	Attributes string    `parquet:"attributes"` // JSON string
}

// ParquetHandler is a slog.Handler that forwards every record to the
// wrapped handler and additionally buffers warnings and errors into
// parquet files under outputDir.
type ParquetHandler struct {
	next      slog.Handler
	outputDir string
	mu        sync.Mutex
	buffer    []LogRecord
	batchSize int
}

// NewParquetHandler creates a ParquetHandler writing under outputDir.
func NewParquetHandler(next slog.Handler, outputDir string) (*ParquetHandler, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	return &ParquetHandler{
		next:      next,
		outputDir: outputDir,
		batchSize: 100,
		buffer:    make([]LogRecord, 0, 100),
	}, nil
}

// Enabled implements slog.Handler
func (h *ParquetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *ParquetHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level < slog.LevelWarn {
		return nil
	}

	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	attrsJSON, _ := json.Marshal(attrs)

	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()

	record := LogRecord{
		ID:         uuid.New().String(),
		Timestamp:  r.Time.UTC(),
		Level:      r.Level.String(),
		Message:    r.Message,
		SourceFile: f.File,
		LineNumber: f.Line,
		Attributes: string(attrsJSON),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buffer = append(h.buffer, record)

	if len(h.buffer) >= h.batchSize {
		return h.flush()
	}

	return nil
}

// Flush writes any buffered records out. Call it at the end of a run;
// batch jobs otherwise lose the tail of the buffer.
func (h *ParquetHandler) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flush()
}

// flush writes the current buffer to a new parquet file.
// Caller must hold the lock.
func (h *ParquetHandler) flush() error {
	if len(h.buffer) == 0 {
		return nil
	}

	filename := fmt.Sprintf("run_errors_%s_%d.parquet", time.Now().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(h.outputDir, filename)

	if err := parquet.WriteFile(path, h.buffer); err != nil {
		return fmt.Errorf("write telemetry parquet file: %w", err)
	}

	h.buffer = h.buffer[:0]
	return nil
}

// WithAttrs implements slog.Handler. Child handlers batch on their own.
func (h *ParquetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ParquetHandler{
		next:      h.next.WithAttrs(attrs),
		outputDir: h.outputDir,
		batchSize: h.batchSize,
		buffer:    make([]LogRecord, 0, h.batchSize),
	}
}

// WithGroup implements slog.Handler
func (h *ParquetHandler) WithGroup(name string) slog.Handler {
	return &ParquetHandler{
		next:      h.next.WithGroup(name),
		outputDir: h.outputDir,
		batchSize: h.batchSize,
		buffer:    make([]LogRecord, 0, h.batchSize),
	}
}
