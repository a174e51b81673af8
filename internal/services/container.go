package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"cattle-worker-go/internal/config"
	"cattle-worker-go/internal/helpers"
	"cattle-worker-go/internal/logging"
	"cattle-worker-go/internal/metrics"
	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/services/analyzer"
	"cattle-worker-go/internal/services/camera"
	"cattle-worker-go/internal/services/dedup"
	"cattle-worker-go/internal/services/detection"
	"cattle-worker-go/internal/services/events"
	"cattle-worker-go/internal/services/frameprocessing"
	"cattle-worker-go/internal/services/identity"
	"cattle-worker-go/internal/services/messaging"
	"cattle-worker-go/internal/services/presence"
	"cattle-worker-go/internal/services/publisher/mjpeg"
	"cattle-worker-go/internal/services/registration"
	"cattle-worker-go/internal/services/streamcapture"
	"cattle-worker-go/internal/storage/photos"
	"cattle-worker-go/internal/storage/sqlite"
)

const photoJPEGQuality = helpers.HighQuality

// ServiceContainer holds all services
type ServiceContainer struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Client

	Store  *sqlite.Store
	Photos *photos.Store

	DetectorConn *detection.Conn
	EmbedderConn *detection.Conn
	Analyzer     *analyzer.Client

	Registry     *identity.Registry
	Orchestrator *registration.Orchestrator
	SeenToday    *presence.SeenToday
	NoPhoto      *presence.NoPhoto

	Broadcaster *events.Broadcaster
	Messaging   *messaging.Service
	Frames      *mjpeg.Publisher
	Renderer    *frameprocessing.Renderer
	Capture     *streamcapture.Service

	CameraManager *camera.CameraManager

	reloadSub     *nats.Subscription
	cancelRuntime context.CancelFunc
	eventsDone    chan struct{}
}

// NewServiceContainer creates a new service container
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	sc := &ServiceContainer{
		Config: cfg,
		Logger: logging.NewServiceLogger(cfg, "container"),
	}

	var err error
	if sc.Metrics, err = metrics.New(cfg); err != nil {
		return nil, err
	}

	if sc.Store, err = sqlite.Open(cfg.DBPath); err != nil {
		return nil, err
	}
	if sc.Photos, err = photos.New(cfg.PhotosDir, helpers.JPEGEncoder(photoJPEGQuality)); err != nil {
		sc.closeQuietly()
		return nil, err
	}

	if err := sc.initVision(); err != nil {
		sc.closeQuietly()
		return nil, err
	}

	sc.SeenToday = presence.NewSeenToday(nil)
	sc.NoPhoto = presence.NewNoPhoto()
	sc.Registry = identity.NewRegistry(sc.Store, float32(cfg.SimilarityThreshold), cfg.UnknownLabel,
		logging.NewServiceLogger(cfg, "identity"))
	sc.Orchestrator = registration.NewOrchestrator(registration.Deps{
		Store:           sc.Store,
		Analyzer:        sc.Analyzer,
		Photos:          sc.Photos,
		Guard:           dedup.NewGuard(float32(cfg.DedupGuardThreshold), float32(cfg.BufferSimThreshold)),
		SeenToday:       sc.SeenToday,
		NoPhoto:         sc.NoPhoto,
		AnalyzerTimeout: cfg.AnalyzerTimeout,
		Metrics:         sc.Metrics,
		Logger:          logging.NewServiceLogger(cfg, "registration"),
	})

	sc.Broadcaster = events.NewBroadcaster(cfg.EventBufferSize, cfg.EventDeliveryTimeout, sc.Metrics,
		logging.NewServiceLogger(cfg, "events"))
	if cfg.NatsEnabled {
		msg, err := messaging.NewService(cfg, logging.NewServiceLogger(cfg, "messaging"))
		if err != nil {
			// events still reach WebSocket clients without NATS
			sc.Logger.Warn().Err(err).Msg("NATS unavailable, continuing without event fan-out")
		} else {
			sc.Messaging = msg
			sc.Broadcaster.Subscribe(events.NewNATSSubscriber(msg, cfg.EventsSubject))
		}
	}

	sc.Renderer = frameprocessing.NewRenderer(cfg.OverlayTitle, cfg.JPEGQuality)
	sc.Frames = mjpeg.NewPublisher(sc.Renderer.Placeholder)
	sc.Capture = streamcapture.NewService(cfg)

	pipeline := &camera.Pipeline{
		Settings:  camera.SettingsFromConfig(cfg),
		Open:      sc.openCapture,
		Detector:  detection.NewDetector(sc.DetectorConn, helpers.JPEGEncoder(helpers.HighQuality), cfg.DetectionConf, cfg.DetectorTimeout),
		Embedder:  detection.NewEmbedder(sc.EmbedderConn, helpers.JPEGEncoder(helpers.HighQuality), cfg.EmbedderTimeout),
		Banks:     sc.Registry,
		Registrar: sc.Orchestrator,
		Store:     sc.Store,
		Photos:    sc.Photos,
		SeenToday: sc.SeenToday,
		NoPhoto:   sc.NoPhoto,
		Renderer:  sc.Renderer,
		Frames:    sc.Frames,
		Events:    sc.Broadcaster,
		Metrics:   sc.Metrics,
		Logger:    logging.NewServiceLogger(cfg, "camera"),
	}
	sc.CameraManager = camera.NewCameraManager(cfg, pipeline, sc.Store, logging.NewServiceLogger(cfg, "camera_manager"))

	return sc, nil
}

func (sc *ServiceContainer) initVision() error {
	cfg := sc.Config

	conn, err := detection.Dial("detector", cfg.DetectorGRPCURL)
	if err != nil {
		return err
	}
	sc.DetectorConn = conn

	if cfg.EmbedderGRPCURL == cfg.DetectorGRPCURL {
		sc.EmbedderConn = conn
	} else if sc.EmbedderConn, err = detection.Dial("embedder", cfg.EmbedderGRPCURL); err != nil {
		return err
	}

	sc.Analyzer, err = analyzer.New(cfg,
		helpers.ResizedJPEGEncoder(cfg.AnalyzerMaxDim, cfg.AnalyzerJPEGQuality),
		logging.NewServiceLogger(cfg, "analyzer"))
	return err
}

// openCapture adapts streamcapture to the camera package without leaking a
// typed nil into the Capture interface.
func (sc *ServiceContainer) openCapture(cameraID, source string) (camera.Capture, error) {
	st, err := sc.Capture.Open(cameraID, source)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Start seeds cameras, loads the no-photo set, starts the event consumer,
// the reload subscription, every active camera and the watchdog.
func (sc *ServiceContainer) Start(ctx context.Context) error {
	if err := sc.seedCameras(ctx); err != nil {
		return err
	}
	if err := sc.loadNoPhoto(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sc.cancelRuntime = cancel
	sc.eventsDone = make(chan struct{})
	go func() {
		defer close(sc.eventsDone)
		if err := sc.Broadcaster.Run(runCtx); err != nil {
			sc.Logger.Error().Err(err).Msg("Event consumer exited")
		}
	}()

	if sc.Messaging != nil {
		sub, err := sc.Messaging.SubscribeReload(runCtx, sc.Reload)
		if err != nil {
			sc.Logger.Warn().Err(err).Str("subject", sc.Config.ReloadSubject).Msg("Failed to subscribe to reload requests")
		} else {
			sc.reloadSub = sub
		}
	}

	if _, err := sc.CameraManager.StartActive(ctx); err != nil {
		return err
	}
	sc.CameraManager.StartWatchdog()
	return nil
}

func (sc *ServiceContainer) seedCameras(ctx context.Context) error {
	seeds, err := config.LoadCameraSeeds(sc.Config.CamerasFile, sc.Config.DefaultTenantID)
	if err != nil {
		return err
	}
	for _, s := range seeds {
		cam := models.Camera{ID: s.ID, Name: s.Name, URL: s.URL, TenantID: s.TenantID, Active: s.IsActive()}
		if err := sc.Store.UpsertCamera(ctx, cam); err != nil {
			return fmt.Errorf("failed to seed camera %s: %w", s.ID, err)
		}
	}
	if len(seeds) > 0 {
		sc.Logger.Info().Int("cameras", len(seeds)).Str("file", sc.Config.CamerasFile).Msg("Camera seeds applied")
	}
	return nil
}

func (sc *ServiceContainer) loadNoPhoto(ctx context.Context) error {
	refs, err := sc.Store.ListWithoutPhoto(ctx)
	if err != nil {
		return err
	}
	sc.NoPhoto.Load(refs)
	return nil
}

// Reload refreshes the requested identity banks and the no-photo set while
// registrations are held off.
func (sc *ServiceContainer) Reload(ctx context.Context, req messaging.ReloadRequest) error {
	err := sc.Orchestrator.Exclusive(func() error {
		if err := sc.Registry.Reload(ctx, req.TenantID); err != nil {
			return err
		}
		return sc.loadNoPhoto(ctx)
	})
	if err != nil {
		return err
	}
	sc.Logger.Info().
		Int64("tenant_id", req.TenantID).
		Str("requested_by", req.RequestedBy).
		Int("no_photo", sc.NoPhoto.Len()).
		Msg("Reload complete")
	return nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if sc.CameraManager != nil {
		if err := sc.CameraManager.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if sc.reloadSub != nil {
		_ = sc.reloadSub.Unsubscribe()
	}
	if sc.cancelRuntime != nil {
		sc.cancelRuntime()
		select {
		case <-sc.eventsDone:
		case <-ctx.Done():
		}
	}

	if sc.Messaging != nil {
		if err := sc.Messaging.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if sc.Frames != nil {
		sc.Frames.Shutdown()
	}

	sc.closeQuietly()
	return errors.Join(errs...)
}

func (sc *ServiceContainer) closeQuietly() {
	if sc.Analyzer != nil {
		_ = sc.Analyzer.Close()
	}
	if sc.EmbedderConn != nil && sc.EmbedderConn != sc.DetectorConn {
		_ = sc.EmbedderConn.Close()
	}
	if sc.DetectorConn != nil {
		_ = sc.DetectorConn.Close()
	}
	if sc.Store != nil {
		_ = sc.Store.Close()
	}
	if sc.Metrics != nil {
		_ = sc.Metrics.Close()
	}
}
