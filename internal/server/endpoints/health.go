package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/api"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/store"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Catalog string `json:"catalog,omitempty"`
	Store   string `json:"store,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Catalog: "ok", Store: "ok"}

	cat := svcctx.CatalogFrom(r.Context())
	if cat == nil {
		resp.Status = "degraded"
		resp.Catalog = "not_initialized"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if err := cat.HealthCheck(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Catalog = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if svcctx.ContentStoreFrom(r.Context()) == nil {
		resp.Status = "degraded"
		resp.Store = "not_initialized"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (includes catalog and store)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status:  %s\n", resp.Status)
			if resp.Catalog != "" {
				fmt.Printf("Catalog: %s\n", resp.Catalog)
			}
			if resp.Store != "" {
				fmt.Printf("Store:   %s\n", resp.Store)
			}
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server  string        `json:"server"`
	Queue   QueueStatus   `json:"queue"`
	Storage StorageStatus `json:"storage"`
}

// QueueStatus shows processing queue depth.
type QueueStatus struct {
	Depth int `json:"depth"`
}

// StorageStatus shows MinIO container and endpoint status.
type StorageStatus struct {
	Container string `json:"container"`
	Endpoint  string `json:"endpoint"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct {
	// StoreManager is set by server since it's not in Services
	StoreManager *store.DockerManager
}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Server: "running"}

	if q := svcctx.QueueFrom(r.Context()); q != nil {
		resp.Queue.Depth = q.Depth()
	}

	if e.StoreManager != nil {
		status, err := e.StoreManager.Status(r.Context())
		if err != nil {
			resp.Storage.Container = "error"
		} else {
			resp.Storage.Container = string(status)
		}
		resp.Storage.Endpoint = e.StoreManager.Endpoint()
	} else {
		resp.Storage.Container = "external"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			fmt.Printf("Server: %s\n", resp.Server)
			fmt.Printf("Queue depth: %d\n", resp.Queue.Depth)
			fmt.Printf("Storage:\n")
			fmt.Printf("  Container: %s\n", resp.Storage.Container)
			fmt.Printf("  Endpoint:  %s\n", resp.Storage.Endpoint)
			return nil
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
