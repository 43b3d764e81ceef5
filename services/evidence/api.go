package evidence

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultMaxUploadSize  = 25 << 20
	defaultPresignTTL     = 5 * time.Minute
	maxPresignTTLSeconds  = 3600
	readinessProbeTimeout = 5 * time.Second
)

// Uploader runs one intake invocation; satisfied by *Pipeline and mocked in
// handler tests.
type Uploader interface {
	Upload(ctx context.Context, up Upload) (Result, error)
}

// HealthCheck verifies one external dependency for the readiness probe.
type HealthCheck func(ctx context.Context) error

// APIConfig controls runtime behaviour for the HTTP handlers.
type APIConfig struct {
	ScannedBucket string
	MaxUploadSize int64
	PresignTTL    time.Duration
}

// API wires the pipeline, repository and object store into HTTP handlers.
type API struct {
	pipeline Uploader
	repo     Repository
	objects  ObjectStore
	cfg      APIConfig
	logger   *log.Logger
	checks   []HealthCheck
}

// NewAPI initialises the HTTP layer with defaults applied to the provided
// configuration.
func NewAPI(pipeline Uploader, repo Repository, objects ObjectStore, cfg APIConfig, logger *log.Logger, checks ...HealthCheck) (*API, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if objects == nil {
		return nil, errors.New("object store is required")
	}
	if cfg.ScannedBucket == "" {
		return nil, errors.New("scanned bucket is required")
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}
	if logger == nil {
		logger = log.Default()
	}

	return &API{
		pipeline: pipeline,
		repo:     repo,
		objects:  objects,
		cfg:      cfg,
		logger:   logger,
		checks:   checks,
	}, nil
}

// Routes constructs the chi router containing all service endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/hc", a.handleHC)
	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		// Base64 inflates content by a third; allow for that plus the
		// envelope so the configured limit applies to the decoded file.
		r.Use(middleware.RequestSize(a.cfg.MaxUploadSize*4/3 + 4096))
		r.Post("/upload", a.handleUpload)
	})

	r.Get("/evidence/{evidenceID}", a.handleGetEvidence)
	r.Get("/evidence/{evidenceID}/download", a.handleDownload)

	return r, nil
}
