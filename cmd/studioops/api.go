package main

import (
	"github.com/spf13/cobra"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running StudioOps server via HTTP.

These commands require a running server (studioops serve).
Use --server to specify a custom server URL.

Examples:
  studioops api health                       # Check server health
  studioops api documents list               # List cataloged documents
  studioops api documents upload scan.pdf    # Upload a document`,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Document management commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8321", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))

	// Documents as subcommand group
	documentsCmd.AddCommand((&endpoints.UploadDocumentEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.ListDocumentsEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.GetDocumentEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.DeleteDocumentEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.DocumentEventsEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.DocumentResultEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.ReprocessDocumentEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(apiCmd)
}
