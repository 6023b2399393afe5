package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liamcoop/specetl/catalog"
	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/internal/config"
	"github.com/liamcoop/specetl/internal/logger"
	"github.com/liamcoop/specetl/internal/metrics"
	"github.com/liamcoop/specetl/pipeline"
	"github.com/liamcoop/specetl/report"
	"github.com/liamcoop/specetl/rules"
)

type Server struct {
	db       *sql.DB
	store    rules.SpecStore
	manager  *catalog.Manager
	pipeline *pipeline.Pipeline
	metrics  *metrics.Prometheus
	logger   *slog.Logger
	maxBody  int64
	router   *chi.Mux
}

// NewServer connects to the catalog database, or keeps the catalog in memory
// when no database URL is configured, and loads every active specification.
func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	var (
		db    *sql.DB
		store rules.SpecStore
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store = rules.NewPostgresSpecStore(db)
	} else {
		log.Warn("no database configured, specifications are kept in memory")
		store = rules.NewInMemorySpecStore()
	}

	s := newServer(cfg, log, store, db)

	log.Info("loading specifications")
	if err := s.manager.LoadAll(); err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("failed to load specifications: %w", err)
	}
	log.Info("specifications ready", "names", s.manager.Names())
	return s, nil
}

func newServer(cfg *config.Config, log *slog.Logger, store rules.SpecStore, db *sql.DB) *Server {
	var rec metrics.Recorder = metrics.Nop{}
	var prom *metrics.Prometheus
	if !cfg.Metrics.Disabled {
		prom = metrics.NewPrometheus(cfg.Metrics.Namespace, prometheus.NewRegistry())
		rec = prom
	}

	engineOpts := []rules.EngineOption{rules.WithCostLimit(cfg.Engine.CostLimit)}
	validatorOpts := []rules.ValidatorOption{rules.WithExpressionCostLimit(cfg.Engine.ExpressionCostLimit)}
	reportOpts := []report.Option{report.WithDomainColumn(cfg.ReportColumn())}

	manager := catalog.NewManager(store,
		catalog.WithLogger(log),
		catalog.WithMetrics(rec),
		catalog.WithCache(rules.NewInMemorySpecCache(rules.CacheConfig{TTL: cfg.Database.CacheTTL})),
		catalog.WithEngineOptions(engineOpts...),
		catalog.WithValidatorOptions(validatorOpts...),
		catalog.WithReportOptions(reportOpts...),
	)

	adhoc := pipeline.New(
		pipeline.WithLogger(log),
		pipeline.WithMetrics(rec),
		pipeline.WithEngine(rules.NewEngine(append(engineOpts, rules.WithLogger(log), rules.WithMetrics(rec))...)),
		pipeline.WithValidator(rules.NewValidator(validatorOpts...)),
		pipeline.WithGenerator(report.NewGenerator(reportOpts...)),
	)

	s := &Server{
		db:       db,
		store:    store,
		manager:  manager,
		pipeline: adhoc,
		metrics:  prom,
		logger:   log,
		maxBody:  cfg.Server.MaxBodyBytes,
	}
	s.setupRoutes(cfg.Server.WriteTimeout)
	return s
}

func (s *Server) setupRoutes(timeout time.Duration) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	// Health check
	r.Get("/api/v1/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// Ad-hoc processing
	r.Post("/api/v1/process", s.handleProcess)

	// Specification catalog
	r.Route("/api/v1/specifications", func(r chi.Router) {
		r.Get("/", s.handleListSpecifications)
		r.Post("/", s.handleCreateSpecification)
		r.Post("/validate", s.handleValidateSpecification)

		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetSpecification)
			r.Put("/", s.handleUpdateSpecification)
			r.Delete("/", s.handleDeleteSpecification)
			r.Post("/process", s.handleProcessStored)
			r.Get("/validate", s.handleValidateStored)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs one line per request through the server's logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		switch {
		case ww.Status() >= 500:
			level = slog.LevelError
		case ww.Status() >= 400:
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:               "healthy",
		Store:                "memory",
		SpecificationsLoaded: len(s.manager.Names()),
	}
	if s.db != nil {
		resp.Store = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Process handler for an inline specification and dataset
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Specification) == 0 {
		respondError(w, http.StatusBadRequest, "specification is required", nil)
		return
	}

	spec, err := rules.Parse(req.Specification)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid specification", err)
		return
	}
	ds, err := dataset.ReadCSV(strings.NewReader(req.CSV), "request")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid dataset", err)
		return
	}

	s.respondResult(w, r, s.pipeline.Process(spec, ds))
}

// Process handler for a stored specification; the body is the CSV dataset
func (s *Server) handleProcessStored(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "failed to read dataset", err)
		return
	}
	ds, err := dataset.ReadCSV(bytes.NewReader(body), "request")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid dataset", err)
		return
	}

	res, err := s.manager.Process(name, ds)
	if err != nil {
		respondError(w, http.StatusNotFound, "specification not found", err)
		return
	}
	s.respondResult(w, r, res)
}

func (s *Server) respondResult(w http.ResponseWriter, r *http.Request, res *pipeline.Result) {
	if strings.Contains(r.Header.Get("Accept"), "text/csv") {
		var buf bytes.Buffer
		if err := dataset.WriteCSV(&buf, res.Dataset); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to encode dataset", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("X-Run-Id", res.Report.RunID)
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}
	respondJSON(w, http.StatusOK, newProcessResponse(res))
}

// List specifications handler
func (s *Server) handleListSpecifications(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list specifications", err)
		return
	}

	resp := SpecificationsListResponse{Specifications: make([]SpecificationResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Specifications = append(resp.Specifications, newSpecificationResponse(rec, s.loaded(rec.Name)))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Create specification handler
func (s *Server) handleCreateSpecification(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.decodeSpecification(w, r)
	if !ok {
		return
	}
	if rec.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	if err := s.manager.Create(rec); err != nil {
		s.respondCatalogError(w, "failed to create specification", err)
		return
	}
	respondJSON(w, http.StatusCreated, newSpecificationResponse(rec, s.loaded(rec.Name)))
}

// Get specification handler
func (s *Server) handleGetSpecification(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rec, err := s.store.Get(name)
	if err != nil {
		s.respondCatalogError(w, "failed to get specification", err)
		return
	}
	respondJSON(w, http.StatusOK, newSpecificationResponse(rec, s.loaded(name)))
}

// Update specification handler
func (s *Server) handleUpdateSpecification(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.decodeSpecification(w, r)
	if !ok {
		return
	}
	rec.Name = chi.URLParam(r, "name")

	if err := s.manager.Update(rec); err != nil {
		s.respondCatalogError(w, "failed to update specification", err)
		return
	}
	respondJSON(w, http.StatusOK, newSpecificationResponse(rec, s.loaded(rec.Name)))
}

// Delete specification handler
func (s *Server) handleDeleteSpecification(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(chi.URLParam(r, "name")); err != nil {
		s.respondCatalogError(w, "failed to delete specification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate handler for an inline specification; nothing is stored
func (s *Server) handleValidateSpecification(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Specification) == 0 {
		respondError(w, http.StatusBadRequest, "specification is required", nil)
		return
	}

	spec, err := rules.Parse(req.Specification)
	if err != nil {
		respondJSON(w, http.StatusOK, ValidationResponse{Errors: []string{err.Error()}})
		return
	}
	var opts []catalog.LintOption
	if len(req.Columns) > 0 {
		opts = append(opts, catalog.WithDatasetColumns(req.Columns...))
	}
	respondJSON(w, http.StatusOK, newValidationResponse(catalog.ValidateSpecification(spec.Document(), opts...)))
}

// Validate handler for a stored specification
func (s *Server) handleValidateStored(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.respondCatalogError(w, "failed to get specification", err)
		return
	}
	respondJSON(w, http.StatusOK, newValidationResponse(catalog.ValidateSpecification(rec.Document)))
}

// decodeSpecification reads a SpecificationRequest and parses the embedded
// document. It writes the error response itself and reports whether the
// caller should continue.
func (s *Server) decodeSpecification(w http.ResponseWriter, r *http.Request) (*rules.SpecRecord, bool) {
	var req SpecificationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return nil, false
	}
	if len(req.Specification) == 0 {
		respondError(w, http.StatusBadRequest, "specification is required", nil)
		return nil, false
	}
	spec, err := rules.Parse(req.Specification)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid specification", err)
		return nil, false
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &rules.SpecRecord{
		Name:        req.Name,
		Description: req.Description,
		Active:      active,
		Document:    spec.Document(),
	}, true
}

func (s *Server) respondCatalogError(w http.ResponseWriter, message string, err error) {
	var invalid *catalog.InvalidError
	switch {
	case errors.Is(err, rules.ErrSpecNotFound):
		respondError(w, http.StatusNotFound, "specification not found", err)
	case errors.Is(err, rules.ErrSpecExists):
		respondError(w, http.StatusConflict, "specification already exists", err)
	case errors.As(err, &invalid):
		respondError(w, http.StatusUnprocessableEntity, "invalid specification", err)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

func (s *Server) loaded(name string) bool {
	_, err := s.manager.Get(name)
	return err == nil
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	configPath := os.Getenv("SPECETL_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, shutdownLogs, err := logger.New(context.Background(), logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OTEL:        cfg.Log.OTEL,
		ServiceName: cfg.Log.ServiceName,
		SampleRate:  cfg.Log.SampleRate,
	}, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer shutdownLogs(context.Background())

	server, err := NewServer(cfg, log)
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "address", cfg.Server.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		log.Error("server failed", "error", err)
	}

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	log.Info("server stopped")
}
