package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "lab-extractor",
		Short:        "Extract structured test results from lab report PDFs and images",
		SilenceUsage: true,
	}

	opts := &globalOptions{}
	rootCmd.PersistentFlags().BoolVar(&opts.inmem, "inmem", false, "use an in-memory SQLite database (migrated and seeded on start)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "load environment variables from this file before reading config")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(extractCmd(opts))
	rootCmd.AddCommand(ocrCmd(opts))
	rootCmd.AddCommand(batchCmd(opts))
	rootCmd.AddCommand(watchCmd(opts))
	rootCmd.AddCommand(migrateCmd(opts))
	rootCmd.AddCommand(dbhealthCmd(opts))
	rootCmd.AddCommand(exportCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
