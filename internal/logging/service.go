package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cattle-worker-go/internal/config"
	"cattle-worker-go/internal/models"
)

// NewServiceLogger derives a child of the global logger tagged with the worker
// and the owning service, so lines from several workers can share one sink.
func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().
		Str("worker_id", cfg.WorkerID).
		Str("service", service).
		Logger()
}

func WithCamera(base zerolog.Logger, cameraID string, tenantID int64) zerolog.Logger {
	return base.With().Str("camera_id", cameraID).Int64("tenant_id", tenantID).Logger()
}

// WithEntity tags lines about a single registered entity.
func WithEntity(base zerolog.Logger, tenantID int64, category models.Category, name string) zerolog.Logger {
	return base.With().
		Int64("tenant_id", tenantID).
		Str("category", category.String()).
		Str("name", name).
		Logger()
}
