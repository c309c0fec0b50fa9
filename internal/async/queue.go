// Package async runs documents through the pipeline on a pool of workers.
package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/ocr"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document to process.
type Job struct {
	Source      ocr.Source
	SubmittedAt time.Time
	TraceID     string
}

// Result pairs a job with its pipeline outcome.
type Result struct {
	Job     Job
	Outcome entity.ExtractionOutcome
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
