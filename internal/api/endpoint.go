package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint pairs an HTTP route with the CLI command that calls it, so every
// API operation is declared in one place.
type Endpoint interface {
	// Route returns the HTTP method, path pattern, and handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the route needs the catalog, content
	// store, and worker pool to be up. Such routes answer 503 until then.
	RequiresInit() bool

	// Command returns the cobra command that calls this endpoint over
	// HTTP. getServerURL is evaluated at run time, after flag parsing.
	Command(getServerURL func() string) *cobra.Command
}
