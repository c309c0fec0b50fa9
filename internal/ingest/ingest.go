// Package ingest feeds local lab documents into the processing queue, either as a
// one-off directory batch or from a watched inbox.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/joseph-ayodele/lab-extractor/internal/async"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/ocr"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	HashHex      string
	Deduplicated bool
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Queued       uint32
	Deduplicated uint32
	Failed       uint32
}

// Enqueuer accepts documents for processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}

// Ingestor hashes local files and queues each distinct content once per process.
type Ingestor struct {
	queue  Enqueuer
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]string // content hash -> first path
}

func NewIngestor(queue Enqueuer, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{queue: queue, logger: logger, seen: map[string]string{}}
}

// IngestPath queues a single file.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs
	if !AllowedExt(filepath.Ext(abs)) {
		return out, common.NewExtractionError(common.ErrUnsupportedFormat, "unsupported or missing extension: "+filepath.Base(abs), nil)
	}

	sum, err := hashFile(abs)
	if err != nil {
		return out, common.NewExtractionError(common.ErrSourceUnavailable, "cannot read "+abs, err)
	}
	out.HashHex = sum

	i.mu.Lock()
	first, dup := i.seen[sum]
	if !dup {
		i.seen[sum] = abs
	}
	i.mu.Unlock()
	if dup {
		i.logger.Info("ingest.deduplicated", "path", abs, "first", first)
		out.Deduplicated = true
		return out, nil
	}

	ctx, reqID := common.EnsureRequestID(ctx)
	if err := i.queue.Enqueue(ctx, async.Job{Source: ocr.Source{Path: abs}, TraceID: reqID}); err != nil {
		i.forget(sum)
		return out, err
	}
	i.logger.Debug("ingest.queued", "path", abs, "hash", sum[:12], "req_id", reqID)
	return out, nil
}

// forget lets a file whose enqueue failed be ingested again.
func (i *Ingestor) forget(sum string) {
	i.mu.Lock()
	delete(i.seen, sum)
	i.mu.Unlock()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
