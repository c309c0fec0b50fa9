package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/lab-extractor/internal/export"
)

func exportCmd(opts *globalOptions) *cobra.Command {
	var out, fromStr, toStr string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored results to XLSX",
	}
	cmd.PersistentFlags().StringVarP(&out, "out", "o", "", "output XLSX path (required)")
	cmd.PersistentFlags().StringVar(&fromStr, "from", "", "from date YYYY-MM-DD")
	cmd.PersistentFlags().StringVar(&toStr, "to", "", "to date YYYY-MM-DD")
	_ = cmd.MarkPersistentFlagRequired("out")

	run := func(cmd *cobra.Command, render func(ctx context.Context, svc *export.Service) ([]byte, error)) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := newApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.openDB(ctx, opts.inmem); err != nil {
			return err
		}
		b, err := render(ctx, export.NewService(a.results, a.logger))
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(b))
		return err
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "history <parameter-code>",
		Short: "One parameter's values over time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseWindow(fromStr, toStr)
			if err != nil {
				return err
			}
			code := strings.ToUpper(strings.TrimSpace(args[0]))
			return run(cmd, func(ctx context.Context, svc *export.Service) ([]byte, error) {
				return svc.HistoryXLSX(ctx, code, from, to)
			})
		},
	})

	var testType string
	results := &cobra.Command{
		Use:   "results",
		Short: "Every stored parameter value, one row each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseWindow(fromStr, toStr)
			if err != nil {
				return err
			}
			tt := strings.ToUpper(strings.TrimSpace(testType))
			return run(cmd, func(ctx context.Context, svc *export.Service) ([]byte, error) {
				return svc.ResultsXLSX(ctx, tt, from, to)
			})
		},
	}
	results.Flags().StringVar(&testType, "test-type", "", "limit to one test type code, e.g. CBC")
	cmd.AddCommand(results)
	return cmd
}
