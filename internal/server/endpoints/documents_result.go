package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/api"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/catalog"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/pipeline"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/svcctx"
)

// DocumentResultEndpoint handles GET /api/documents/{id}/result. The result
// is the staging payload from the last successful pipeline run; documents
// still in flight (or failed) return 409 with their current progress.
type DocumentResultEndpoint struct{}

func (e *DocumentResultEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/result", e.handler
}

func (e *DocumentResultEndpoint) RequiresInit() bool { return true }

func (e *DocumentResultEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	if _, err := cat.GetDocument(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload, err := cat.StagePayload(r.Context(), id, catalog.StageStage, catalog.StatusOK)
	if errors.Is(err, catalog.ErrNotFound) {
		progress, perr := cat.Progress(r.Context(), id)
		if perr != nil {
			writeError(w, http.StatusInternalServerError, perr.Error())
			return
		}
		writeJSON(w, http.StatusConflict, progress)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var result pipeline.StageResult
	if err := json.Unmarshal(payload, &result); err != nil {
		writeError(w, http.StatusInternalServerError, "malformed staging payload")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (e *DocumentResultEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "result <id>",
		Short: "Get the extraction result for a processed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp pipeline.StageResult
			if err := client.Get(ctx, "/api/documents/"+args[0]+"/result", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
