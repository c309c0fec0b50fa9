package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/normalize"
)

func extractCmd(opts *globalOptions) *cobra.Command {
	var persist bool
	cmd := &cobra.Command{
		Use:   "extract <path|url>",
		Short: "Run the full pipeline on one document and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			src, err := sourceFromArg(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if persist || opts.inmem {
				if err := a.openDB(ctx, opts.inmem); err != nil {
					return err
				}
			}
			if err := a.buildProcessor(ctx); err != nil {
				return err
			}

			ctx, cancel := common.WithTimeout(ctx, a.cfg.Server.RequestTimeout)
			defer cancel()
			out := a.processor.Process(ctx, src)
			return printOutcome(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&persist, "persist", false, "store the results in the configured database")
	return cmd
}

func ocrCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ocr <path|url>",
		Short: "Print the normalized text of one document without extracting parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			src, err := sourceFromArg(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.buildProcessor(ctx); err != nil {
				return err
			}

			text, err := a.processor.RunOCROnly(ctx, src)
			if err != nil {
				return err
			}
			a.logger.Info("ocr.done", "method", text.Method, "pages", len(text.Pages), "chars", len(text.Text), "elapsed_ms", text.Duration.Milliseconds())
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text.Text)
			return err
		},
	}
}

// printOutcome writes the same JSON the HTTP endpoint returns. Failures are printed
// as an error body and returned so the process exits non-zero.
func printOutcome(w io.Writer, out entity.ExtractionOutcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if out.Err != nil {
		body := map[string]any{"error": map[string]string{
			"code":     common.ErrorCode(out.Err),
			"message":  out.Err.Error(),
			"category": common.ErrorCategory(out.Err),
		}}
		if err := enc.Encode(body); err != nil {
			return err
		}
		return out.Err
	}
	resp := normalize.BuildResponse(out.Results, out.TestType)
	if resp.DocumentID == "" && out.DocumentID != nil {
		resp.DocumentID = out.DocumentID.String()
	}
	return enc.Encode(resp)
}
