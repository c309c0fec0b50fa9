package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/lab-extractor/internal/async"
	"github.com/joseph-ayodele/lab-extractor/internal/export"
	"github.com/joseph-ayodele/lab-extractor/internal/ingest"
	"github.com/joseph-ayodele/lab-extractor/internal/utils"
)

type queueOptions struct {
	workers   int
	queueSize int
}

func (o *queueOptions) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.workers, "workers", 4, "documents processed in parallel")
	cmd.Flags().IntVar(&o.queueSize, "queue-size", 256, "queued documents before ingestion blocks")
}

// batchStats counts job outcomes reported by the queue workers.
type batchStats struct {
	mu        sync.Mutex
	processed int
	failures  int
	results   int
}

func (s *batchStats) record(r async.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Outcome.Err != nil {
		s.failures++
		return
	}
	s.processed++
	s.results += len(r.Outcome.Results)
}

func batchCmd(opts *globalOptions) *cobra.Command {
	var (
		qo         queueOptions
		out        string
		fromStr    string
		toStr      string
		skipHidden bool
	)
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Extract every lab report under a directory and optionally export the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			from, to, err := parseWindow(fromStr, toStr)
			if err != nil {
				return err
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openDB(ctx, opts.inmem); err != nil {
				return err
			}
			if err := a.buildProcessor(ctx); err != nil {
				return err
			}

			stats := &batchStats{}
			q := async.NewProcessorQueue(a.processor, a.logger,
				async.WithWorkers(qo.workers),
				async.WithQueueSize(qo.queueSize),
				async.WithProcessTimeout(a.cfg.Server.RequestTimeout),
				async.WithResultHandler(stats.record),
			)
			ing := ingest.NewIngestor(q, a.logger)

			a.logger.Info("batch.start", "dir", args[0])
			_, dirStats, err := ing.IngestDirectory(ctx, args[0], skipHidden)
			q.Shutdown(context.Background())
			if err != nil {
				return err
			}
			a.logger.Info("batch.ingested",
				"scanned", dirStats.Scanned,
				"matched", dirStats.Matched,
				"queued", dirStats.Queued,
				"deduplicated", dirStats.Deduplicated,
				"failed", dirStats.Failed,
			)

			if out != "" {
				b, err := export.NewService(a.results, a.logger).ResultsXLSX(ctx, "", from, to)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, b, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Batch processing complete!\n")
			fmt.Fprintf(w, "- Files queued: %d\n", dirStats.Queued)
			fmt.Fprintf(w, "- Documents processed: %d\n", stats.processed)
			fmt.Fprintf(w, "- Test results stored: %d\n", stats.results)
			fmt.Fprintf(w, "- Failures: %d\n", stats.failures)
			if out != "" {
				fmt.Fprintf(w, "- Output: %s\n", out)
			}
			return nil
		},
	}
	qo.bind(cmd)
	cmd.Flags().StringVar(&out, "out", "", "write stored results to this XLSX file")
	cmd.Flags().StringVar(&fromStr, "from", "", "export results performed on or after YYYY-MM-DD")
	cmd.Flags().StringVar(&toStr, "to", "", "export results performed on or before YYYY-MM-DD")
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip hidden files and directories")
	return cmd
}

func watchCmd(opts *globalOptions) *cobra.Command {
	var (
		qo       queueOptions
		initial  bool
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Extract lab reports as they appear in one or more inbox directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openDB(ctx, opts.inmem); err != nil {
				return err
			}
			if err := a.buildProcessor(ctx); err != nil {
				return err
			}

			q := async.NewProcessorQueue(a.processor, a.logger,
				async.WithWorkers(qo.workers),
				async.WithQueueSize(qo.queueSize),
				async.WithProcessTimeout(a.cfg.Server.RequestTimeout),
			)
			defer q.Shutdown(context.Background())

			err = ingest.NewIngestor(q, a.logger).Watch(ctx, ingest.WatchConfig{
				Roots:       args,
				InitialScan: initial,
				Debounce:    debounce,
				SkipHidden:  true,
			})
			if ctx.Err() != nil {
				a.logger.Info("watch.stopped")
				return nil
			}
			return err
		},
	}
	qo.bind(cmd)
	cmd.Flags().BoolVar(&initial, "initial-scan", true, "process files already present when the watch starts")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait this long after the last write before processing")
	return cmd
}

func parseWindow(fromStr, toStr string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if fromStr != "" {
		t, err := utils.ParseYMD(fromStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --from date, use YYYY-MM-DD: %w", err)
		}
		from = &t
	}
	if toStr != "" {
		t, err := utils.ParseYMD(toStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --to date, use YYYY-MM-DD: %w", err)
		}
		to = &t
	}
	return from, to, nil
}
