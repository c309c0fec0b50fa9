package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

func migrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed test types and parameter definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openDB(ctx, false); err != nil {
				return err
			}
			if err := a.migrate(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrated: %d test types, %d parameter definitions\n",
				len(a.catalog.TestTypes()), len(a.catalog.AllParameters()))
			return err
		},
	}
}

func dbhealthCmd(opts *globalOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Ping the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openDB(ctx, opts.inmem); err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			if err := a.db.HealthCheck(ctx, timeout); err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "DB health: OK (%s)\n", a.db.Dialect())
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "ping timeout")
	return cmd
}
