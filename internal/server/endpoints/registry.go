package endpoints

import (
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/api"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/store"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// StoreManager is the MinIO container manager, used by the status
	// endpoint. It is not part of Services because only status reporting
	// needs it.
	StoreManager *store.DockerManager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{StoreManager: cfg.StoreManager},

		// Document endpoints
		&UploadDocumentEndpoint{},
		&ListDocumentsEndpoint{},
		&GetDocumentEndpoint{},
		&DeleteDocumentEndpoint{},
		&DocumentEventsEndpoint{},
		&DocumentResultEndpoint{},
		&ReprocessDocumentEndpoint{},
	}
}
