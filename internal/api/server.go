package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"cattle-worker-go/internal/api/handlers"
	"cattle-worker-go/internal/api/middleware"
	"cattle-worker-go/internal/config"
	"cattle-worker-go/internal/services"
)

type Server struct {
	config    *config.Config
	container *services.ServiceContainer
	router    *gin.Engine
	server    *http.Server

	healthHandler  *handlers.HealthHandler
	cameraHandler  *handlers.CameraHandler
	eventsHandler  *handlers.EventsHandler
	recordsHandler *handlers.RecordsHandler
	systemHandler  *handlers.SystemHandler
}

func NewServer(cfg *config.Config, container *services.ServiceContainer) *Server {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}

	checks := map[string]handlers.Check{
		"database": container.Store.Ping,
		"events": func(context.Context) error {
			if !container.Broadcaster.Running() {
				return errors.New("event consumer not running")
			}
			return nil
		},
	}
	if container.Messaging != nil {
		checks["nats"] = func(context.Context) error {
			if !container.Messaging.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}

	return &Server{
		config:         cfg,
		container:      container,
		router:         gin.New(),
		healthHandler:  handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, checks),
		cameraHandler:  handlers.NewCameraHandler(container.CameraManager, container.Frames, container.Capture),
		eventsHandler:  handlers.NewEventsHandler(container.Broadcaster, container.Reload),
		recordsHandler: handlers.NewRecordsHandler(container.Store, container.Registry),
		systemHandler:  handlers.NewSystemHandler(cfg.WorkerID, container.CameraManager, container.Broadcaster, container.Analyzer.State),
	}
}

func (s *Server) Setup() error {
	s.setupMiddleware()

	s.setupRoutes()

	s.setupSwagger()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

// Start blocks serving HTTP; a graceful shutdown is not an error.
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting Cattle Worker API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping Cattle Worker API")
	return s.server.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
