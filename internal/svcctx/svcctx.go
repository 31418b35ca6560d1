// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/catalog"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/config"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/home"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/pipeline"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/queue"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/store"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/upload"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Catalog      *catalog.Catalog
	ContentStore store.ContentStore
	Queue        *queue.Queue
	Upload       *upload.Service
	Orchestrator *pipeline.Orchestrator
	Config       *config.Manager
	Logger       *slog.Logger
	Home         *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// CatalogFrom extracts the document catalog from context.
func CatalogFrom(ctx context.Context) *catalog.Catalog {
	if s := ServicesFrom(ctx); s != nil {
		return s.Catalog
	}
	return nil
}

// ContentStoreFrom extracts the content store from context.
func ContentStoreFrom(ctx context.Context) store.ContentStore {
	if s := ServicesFrom(ctx); s != nil {
		return s.ContentStore
	}
	return nil
}

// QueueFrom extracts the processing queue from context.
func QueueFrom(ctx context.Context) *queue.Queue {
	if s := ServicesFrom(ctx); s != nil {
		return s.Queue
	}
	return nil
}

// UploadFrom extracts the upload service from context.
func UploadFrom(ctx context.Context) *upload.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Upload
	}
	return nil
}

// OrchestratorFrom extracts the pipeline orchestrator from context.
func OrchestratorFrom(ctx context.Context) *pipeline.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
