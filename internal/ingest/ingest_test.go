package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-extractor/internal/async"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []async.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) paths() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, filepath.Base(j.Source.Path))
	}
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "cbc.pdf"), "%PDF-1.4 cbc")
	writeFile(t, filepath.Join(root, "nested", "urine.JPG"), "jpeg urine")
	writeFile(t, filepath.Join(root, "nested", "copy-of-cbc.pdf"), "%PDF-1.4 cbc")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, ".hidden", "secret.pdf"), "%PDF-1.4 hidden")

	q := &recordingQueue{}
	ing := NewIngestor(q, nil)
	results, stats, err := ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)

	assert.EqualValues(t, 3, stats.Matched)
	assert.EqualValues(t, 2, stats.Queued)
	assert.EqualValues(t, 1, stats.Deduplicated)
	assert.EqualValues(t, 0, stats.Failed)
	assert.Len(t, results, 3)
	assert.Equal(t, []string{"cbc.pdf", "urine.JPG"}, q.paths())

	for _, j := range q.jobs {
		assert.True(t, filepath.IsAbs(j.Source.Path))
		assert.NotEmpty(t, j.TraceID)
	}

	// a second pass over the same content queues nothing new
	_, stats, err = ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Queued)
	assert.EqualValues(t, 3, stats.Deduplicated)
}

func TestIngestPathErrors(t *testing.T) {
	dir := t.TempDir()
	ing := NewIngestor(&recordingQueue{}, nil)

	txt := filepath.Join(dir, "a.txt")
	writeFile(t, txt, "x")
	_, err := ing.IngestPath(context.Background(), txt)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)

	_, err = ing.IngestPath(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, common.ErrSourceUnavailable)

	_, _, err = ing.IngestDirectory(context.Background(), " ", false)
	assert.Error(t, err)
}

func TestIngestRetriesAfterEnqueueFailure(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cbc.pdf")
	writeFile(t, p, "%PDF-1.4")

	q := &recordingQueue{err: async.ErrQueueClosed}
	ing := NewIngestor(q, nil)
	_, err := ing.IngestPath(context.Background(), p)
	assert.ErrorIs(t, err, async.ErrQueueClosed)

	q.err = nil
	res, err := ing.IngestPath(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.Len(t, q.paths(), 1)
}

func TestWatcherEmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "%PDF-1.4 old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	select {
	case p := <-events:
		assert.Equal(t, "existing.pdf", filepath.Base(p))
	case <-time.After(2 * time.Second):
		t.Fatal("initial scan did not report existing file")
	}

	writeFile(t, filepath.Join(root, "ignored.txt"), "x")
	writeFile(t, filepath.Join(root, "new.png"), "png")

	select {
	case p := <-events:
		assert.Equal(t, "new.png", filepath.Base(p))
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report new file")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-events
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchQueuesFiles(t *testing.T) {
	root := t.TempDir()
	q := &recordingQueue{}
	ing := NewIngestor(q, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Watch(ctx, WatchConfig{Roots: []string{root}, Debounce: 30 * time.Millisecond}) }()

	// give the watcher time to register the root
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(root, "lipid.pdf"), "%PDF-1.4 lipid")

	require.Eventually(t, func() bool { return len(q.paths()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestStartWatcherNeedsRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
