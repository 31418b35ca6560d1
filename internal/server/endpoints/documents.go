package endpoints

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/api"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/catalog"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/svcctx"
)

const defaultListLimit = 50

// ListDocumentsResponse is the response for listing documents.
type ListDocumentsResponse struct {
	Documents []*catalog.Document `json:"documents"`
	Limit     int                 `json:"limit"`
	Offset    int                 `json:"offset"`
}

// ListDocumentsEndpoint handles GET /api/documents.
type ListDocumentsEndpoint struct{}

func (e *ListDocumentsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents", e.handler
}

func (e *ListDocumentsEndpoint) RequiresInit() bool { return true }

func (e *ListDocumentsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	cat := svcctx.CatalogFrom(r.Context())
	if cat == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not initialized")
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	offset := queryInt(r, "offset", 0)

	docs, err := cat.ListDocuments(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListDocumentsResponse{
		Documents: docs,
		Limit:     limit,
		Offset:    offset,
	})
}

func (e *ListDocumentsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cataloged documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			params := url.Values{}
			params.Set("limit", strconv.Itoa(limit))
			params.Set("offset", strconv.Itoa(offset))

			var resp ListDocumentsResponse
			if err := client.Get(ctx, "/api/documents?"+params.Encode(), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "Maximum number of documents to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of documents to skip")
	return cmd
}

// GetDocumentResponse is the document row plus pipeline progress
// reconstructed from the event log.
type GetDocumentResponse struct {
	*catalog.Document

	Progress *catalog.Progress `json:"progress,omitempty"`
}

// GetDocumentEndpoint handles GET /api/documents/{id}.
type GetDocumentEndpoint struct{}

func (e *GetDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}", e.handler
}

func (e *GetDocumentEndpoint) RequiresInit() bool { return true }

func (e *GetDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	doc, err := cat.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := GetDocumentResponse{Document: doc}
	if progress, err := cat.Progress(r.Context(), id); err == nil {
		resp.Progress = progress
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *GetDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a document by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp GetDocumentResponse
			if err := client.Get(ctx, "/api/documents/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DeleteDocumentEndpoint handles DELETE /api/documents/{id}. It removes the
// catalog row and the stored object; the event log is kept as an audit trail.
type DeleteDocumentEndpoint struct{}

func (e *DeleteDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/documents/{id}", e.handler
}

func (e *DeleteDocumentEndpoint) RequiresInit() bool { return true }

func (e *DeleteDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	cat := svcctx.CatalogFrom(r.Context())
	cs := svcctx.ContentStoreFrom(r.Context())
	if cat == nil || cs == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	q := svcctx.QueueFrom(r.Context())
	if q != nil && q.Pending(id) {
		writeError(w, http.StatusConflict, "document is queued or processing")
		return
	}

	doc, err := cat.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Remove the catalog row first so another upload of the same bytes can
	// re-register while the object delete is in flight.
	if err := cat.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := cs.Delete(r.Context(), doc.StoragePath); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (e *DeleteDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its stored content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			if err := client.Delete(ctx, "/api/documents/"+args[0]); err != nil {
				return err
			}
			return api.Output(map[string]string{"status": "deleted", "id": args[0]})
		},
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
