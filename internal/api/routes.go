package api

import (
	"cattle-worker-go/internal/api/middleware"
)

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	s.router.Static("/photos", s.config.PhotosDir)

	api := s.router.Group("/api")

	// streams and the event socket are long-lived and stay outside the limiter
	api.GET("/cameras/:id/stream", s.cameraHandler.StreamMJPEG)
	api.GET("/camera/events", s.eventsHandler.Stream)

	limited := api.Group("", middleware.RateLimit(s.config.APIRateLimit, s.config.APIRateBurst))

	cameras := limited.Group("/cameras")
	{
		cameras.GET("", s.cameraHandler.ListCameras)
		cameras.POST("", s.cameraHandler.AddCamera)
		cameras.POST("/validate", s.cameraHandler.ValidateSource)
		cameras.PUT("/:id", s.cameraHandler.UpdateCamera)
		cameras.DELETE("/:id", s.cameraHandler.RemoveCamera)
		cameras.GET("/:id/status", s.cameraHandler.GetCameraStatus)
		cameras.GET("/:id/frame", s.cameraHandler.GetLatestFrame)
		cameras.POST("/:id/reconnect", s.cameraHandler.ReconnectCamera)
	}

	limited.POST("/camera/reload", s.eventsHandler.Reload)
	limited.GET("/camera/events/stats", s.eventsHandler.Stats)
	limited.GET("/movements", s.recordsHandler.ListMovements)
	limited.GET("/identity/stats", s.recordsHandler.IdentityStats)

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
