package camera

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cattle-worker-go/internal/config"
	"cattle-worker-go/internal/metrics"
	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/services/identity"
	"cattle-worker-go/internal/services/presence"
	"cattle-worker-go/internal/services/registration"
)

// Capture is an open video source owned by one worker.
type Capture interface {
	Read() (*models.RawFrame, error)
	Opened() bool
	Close() error
}

// OpenFunc connects to a camera source.
type OpenFunc func(cameraID, source string) (Capture, error)

type Detector interface {
	Detect(ctx context.Context, frame *models.RawFrame) ([]models.Detection, error)
}

type Embedder interface {
	Embed(ctx context.Context, crop *models.RawFrame) ([]float32, error)
}

// Banks resolves the identity bank for a tenant and category.
type Banks interface {
	Bank(ctx context.Context, tenantID int64, category models.Category) (*identity.Bank, error)
}

type Registrar interface {
	Register(ctx context.Context, req registration.Request) (*models.RegistrationEvent, error)
}

// KnownStore is what the known-entity path writes.
type KnownStore interface {
	RecordMovement(ctx context.Context, m models.Movement) (int64, error)
	UpdatePhoto(ctx context.Context, category models.Category, id int64, path string) error
}

type Renderer interface {
	Annotate(frame *models.RawFrame, items []models.Annotation) ([]byte, error)
}

// FrameSink holds the latest published frame per camera.
type FrameSink interface {
	Publish(cameraID string, jpeg []byte)
	Remove(cameraID string)
}

type EventSink interface {
	Publish(ev *models.RegistrationEvent) error
}

// Settings are the per-worker pipeline knobs.
type Settings struct {
	ReconnectBackoff time.Duration
	ReadRetryDelay   time.Duration
	FrameInterval    time.Duration
	StopTimeout      time.Duration
	CropPadding      int
	MinCropSize      int
	MaxReadFailures  int
	UnknownLabel     string
	BufferCapacity   int
	BufferTTL        time.Duration
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		ReconnectBackoff: cfg.ReconnectBackoff,
		ReadRetryDelay:   cfg.ReadRetryDelay,
		FrameInterval:    cfg.FrameInterval,
		StopTimeout:      5 * time.Second,
		CropPadding:      cfg.CropPadding,
		MinCropSize:      cfg.MinCropSize,
		MaxReadFailures:  100,
		UnknownLabel:     cfg.UnknownLabel,
		BufferCapacity:   cfg.BufferCapacity,
		BufferTTL:        cfg.BufferTTL,
	}
}

// Pipeline holds the collaborators every worker shares. Workers never own
// these; the container builds one Pipeline and hands it to the manager.
type Pipeline struct {
	Settings

	Open      OpenFunc
	Detector  Detector
	Embedder  Embedder
	Banks     Banks
	Registrar Registrar
	Store     KnownStore
	Photos    registration.PhotoSaver
	SeenToday *presence.SeenToday
	NoPhoto   *presence.NoPhoto
	Renderer  Renderer
	Frames    FrameSink
	Events    EventSink
	Metrics   *metrics.Client
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
