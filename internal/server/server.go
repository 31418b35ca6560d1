package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/api"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/catalog"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/collab"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/config"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/home"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/pipeline"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/queue"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/server/endpoints"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/store"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/svcctx"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/upload"
)

// Server is the main StudioOps ingestion server. It owns the MinIO container
// lifecycle - starting it on server start and stopping it on shutdown - and
// runs the pipeline worker pool alongside the HTTP listener.
type Server struct {
	httpServer   *http.Server
	storeManager *store.DockerManager
	catalog      *catalog.Catalog
	configMgr    *config.Manager
	homeDir      *home.Dir
	logger       *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	poolCancel context.CancelFunc
	poolDone   chan struct{}

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8321)
	Port int
	// Home is the StudioOps home directory
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8321
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory required")
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager required")
	}

	storageCfg := cfg.ConfigManager.Get().Storage
	storeManager, err := store.NewDockerManager(store.DockerConfig{
		ContainerName: storageCfg.ContainerName,
		Image:         storageCfg.Image,
		DataPath:      cfg.Home.MinioDataPath(),
		HostPort:      storageCfg.Port,
		AccessKey:     config.ResolveEnvVars(storageCfg.AccessKey),
		SecretKey:     config.ResolveEnvVars(storageCfg.SecretKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store manager: %w", err)
	}

	s := &Server{
		storeManager: storeManager,
		configMgr:    cfg.ConfigManager,
		homeDir:      cfg.Home,
		logger:       cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{StoreManager: storeManager}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server, the MinIO container, and the pipeline workers.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	cfg := s.configMgr.Get()

	// Start MinIO
	s.logger.Info("starting MinIO")
	if err := s.storeManager.Start(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to start MinIO: %w", err)
	}
	if err := s.storeManager.WaitReady(ctx, 2*time.Minute); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("MinIO readiness check failed: %w", err)
	}
	s.logger.Info("MinIO is ready", "endpoint", s.storeManager.Endpoint())

	accessKey, secretKey := s.storeManager.Credentials()
	contentStore, err := store.NewMinioStore(ctx, store.MinioConfig{
		Endpoint:  s.storeManager.Endpoint(),
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
		Logger:    s.logger,
	})
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to create content store: %w", err)
	}

	// Open the catalog
	cat, err := catalog.Open(ctx, s.homeDir.CatalogPath())
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	s.catalog = cat

	// Build pipeline collaborators
	registry, err := s.buildCollaborators(cfg)
	if err != nil {
		_ = s.shutdown()
		return err
	}

	// Processing queue, orchestrator, upload service
	q := queue.New(cfg.Pipeline.QueueSize, s.logger)

	orchestrator, err := pipeline.New(cat, contentStore, registry, pipeline.Config{
		MaxRetries:      cfg.Pipeline.MaxRetries,
		RetryDelay:      cfg.Pipeline.RetryDelay(),
		StageTimeout:    cfg.Pipeline.StageTimeout(),
		ReviewThreshold: cfg.Pipeline.ReviewThreshold,
		TotalTolerance:  cfg.Pipeline.TotalTolerance,
	}, s.logger)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	uploadSvc := upload.NewService(upload.Config{
		Catalog:      cat,
		Store:        contentStore,
		Queue:        q,
		MaxSizeBytes: cfg.Upload.MaxSizeBytes(),
		Logger:       s.logger,
	})

	// Start the worker pool. It gets its own cancel so shutdown can stop it
	// even when Start exits through the HTTP error path.
	poolCtx, poolCancel := context.WithCancel(ctx)
	s.poolCancel = poolCancel
	s.poolDone = make(chan struct{})
	pool := queue.NewPool(queue.PoolConfig{
		Queue:   q,
		Runner:  orchestrator,
		Workers: cfg.Pipeline.Workers,
		Logger:  s.logger,
	})
	go func() {
		defer close(s.poolDone)
		if err := pool.Start(poolCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("worker pool stopped", "error", err)
		}
	}()

	// Create services struct for context enrichment
	s.services = &svcctx.Services{
		Catalog:      cat,
		ContentStore: contentStore,
		Queue:        q,
		Upload:       uploadSvc,
		Orchestrator: orchestrator,
		Config:       s.configMgr,
		Logger:       s.logger,
		Home:         s.homeDir,
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// buildCollaborators wires the stage collaborators from config. Classify and
// extract require the OpenAI collaborator; the linker is optional.
func (s *Server) buildCollaborators(cfg *config.Config) (*collab.Registry, error) {
	cc := cfg.Collaborators

	if !cc.OpenAI.Enabled {
		return nil, errors.New("openai collaborator is required for classification and extraction; enable collaborators.openai")
	}
	apiKey := config.ResolveEnvVars(cc.OpenAI.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key not set; export OPENAI_API_KEY or set collaborators.openai.api_key")
	}

	openaiClient := collab.NewOpenAIClient(collab.OpenAIConfig{
		APIKey:    apiKey,
		Model:     cc.OpenAI.Model,
		RateLimit: cc.OpenAI.RateLimit,
		Timeout:   cc.Timeout(),
	})

	registry := &collab.Registry{
		OCR:        collab.NewHTTPOCRClient(collab.OCRConfig{BaseURL: cc.OCRURL, Timeout: cc.Timeout()}),
		Parser:     collab.NewHTTPParser(collab.ParserConfig{BaseURL: cc.ParserURL, Timeout: cc.Timeout()}),
		Classifier: openaiClient,
		Extractor:  openaiClient,
	}
	if cc.LinkerURL != "" {
		registry.Linker = collab.NewHTTPLinker(collab.LinkerConfig{BaseURL: cc.LinkerURL, Timeout: cc.Timeout()})
	}
	return registry, nil
}

// shutdown performs graceful shutdown of the HTTP server, the worker pool,
// the catalog, and MinIO.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop workers and wait for in-flight documents to finish
	if s.poolCancel != nil {
		s.poolCancel()
		select {
		case <-s.poolDone:
		case <-shutdownCtx.Done():
			s.logger.Warn("worker pool did not stop in time")
		}
	}

	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			s.logger.Error("catalog close error", "error", err)
		}
	}

	s.logger.Info("stopping MinIO")
	if err := s.storeManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("MinIO stop error", "error", err)
	}
	if err := s.storeManager.Close(); err != nil {
		s.logger.Error("store manager close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the catalog and store are ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		ready := s.services != nil
		s.mu.RUnlock()
		if !ready {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
