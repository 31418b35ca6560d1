package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/api"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/catalog"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/svcctx"
)

// DocumentEventsResponse is the full ingest event log for one document.
type DocumentEventsResponse struct {
	DocumentID string                 `json:"document_id"`
	Events     []*catalog.IngestEvent `json:"events"`
}

// DocumentEventsEndpoint handles GET /api/documents/{id}/events.
type DocumentEventsEndpoint struct{}

func (e *DocumentEventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/events", e.handler
}

func (e *DocumentEventsEndpoint) RequiresInit() bool { return true }

func (e *DocumentEventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	cat := svcctx.CatalogFrom(r.Context())
	if cat == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not initialized")
		return
	}

	// Events survive document deletion, so only 404 when neither the row
	// nor any events exist.
	events, err := cat.Events(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(events) == 0 {
		if _, err := cat.GetDocument(r.Context(), id); errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
	}

	writeJSON(w, http.StatusOK, DocumentEventsResponse{DocumentID: id, Events: events})
}

func (e *DocumentEventsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "events <id>",
		Short: "Show the ingest event log for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp DocumentEventsResponse
			if err := client.Get(ctx, "/api/documents/"+args[0]+"/events", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
