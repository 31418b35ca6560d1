package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/api"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/catalog"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/queue"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/svcctx"
)

// ReprocessResponse reports whether a reprocess request was queued.
type ReprocessResponse struct {
	DocumentID string `json:"document_id"`
	Queued     bool   `json:"queued"`
	Reason     string `json:"reason,omitempty"`
}

// ReprocessDocumentEndpoint handles POST /api/documents/{id}/reprocess. A
// document already queued or running is left alone; the queue guarantees at
// most one pending run per document.
type ReprocessDocumentEndpoint struct{}

func (e *ReprocessDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents/{id}/reprocess", e.handler
}

func (e *ReprocessDocumentEndpoint) RequiresInit() bool { return true }

func (e *ReprocessDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	cat := svcctx.CatalogFrom(r.Context())
	q := svcctx.QueueFrom(r.Context())
	if cat == nil || q == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	if _, err := cat.GetDocument(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	queued, err := q.Enqueue(id)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			writeJSON(w, http.StatusTooManyRequests, ReprocessResponse{
				DocumentID: id, Queued: false, Reason: "queue full",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ReprocessResponse{DocumentID: id, Queued: queued}
	if !queued {
		resp.Reason = "already pending"
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (e *ReprocessDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <id>",
		Short: "Re-run the pipeline for a cataloged document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp ReprocessResponse
			if err := client.Post(ctx, "/api/documents/"+args[0]+"/reprocess", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
