package endpoints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/api"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/svcctx"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/upload"
)

// UploadDocumentEndpoint handles POST /api/documents/upload with a
// multipart file upload.
type UploadDocumentEndpoint struct{}

var _ api.Endpoint = (*UploadDocumentEndpoint)(nil)

func (e *UploadDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents/upload", e.handler
}

func (e *UploadDocumentEndpoint) RequiresInit() bool { return true }

func (e *UploadDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	// Multipart form with 64MB max memory; larger files spill to disk.
	const maxMemory = 64 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	svc := svcctx.UploadFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "upload service not initialized")
		return
	}

	result, err := svc.Upload(r.Context(), upload.Request{
		Filename:   header.Filename,
		MimeType:   header.Header.Get("Content-Type"),
		ProjectRef: r.FormValue("project_ref"),
		Data:       data,
	})
	if err != nil {
		if upload.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	status := http.StatusAccepted
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (e *UploadDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var projectRef string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			part, err := mw.CreateFormFile("file", filepath.Base(args[0]))
			if err != nil {
				return err
			}
			if _, err := part.Write(data); err != nil {
				return err
			}
			if projectRef != "" {
				if err := mw.WriteField("project_ref", projectRef); err != nil {
					return err
				}
			}
			if err := mw.Close(); err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				getServerURL()+"/api/documents/upload", &body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", mw.FormDataContentType())

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 400 {
				return fmt.Errorf("server error (%d): %s", resp.StatusCode, respBody)
			}

			var result upload.Result
			if err := json.Unmarshal(respBody, &result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return api.Output(result)
		},
	}
	cmd.Flags().StringVar(&projectRef, "project", "", "Project reference for the document")
	return cmd
}
