package main

import (
	"github.com/spf13/cobra"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/api"
	"github.com/eliranbeatt/studioOpsAi-sub001/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "studioops",
	Short: "Document ingestion pipeline for heterogeneous business documents",
	Long: `StudioOps ingests invoices, quotes, and receipts (including Hebrew and
mixed-language documents) into a structured catalog.

The pipeline includes:
  - Content-hash deduplication on upload
  - Parsing with OCR fallback for scanned documents
  - LLM-powered classification and line-item extraction
  - Line-item validation with arithmetic consistency checks
  - Pricing catalog linkage and staging for review`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.studioops/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "studioops home directory (default: ~/.studioops)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
