package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Storage
	DataDir         string
	DBPath          string
	PhotosDir       string
	DefaultTenantID int64
	CamerasFile     string // optional YAML list of cameras upserted at startup

	// External vision services (gRPC)
	DetectorGRPCURL string
	EmbedderGRPCURL string
	AnalyzerGRPCURL string // empty = description service unavailable
	DetectionConf   float64
	DetectorTimeout time.Duration
	EmbedderTimeout time.Duration

	// Description service
	AnalyzerTimeout     time.Duration
	AnalyzerMaxFailures uint32
	AnalyzerOpenTimeout time.Duration
	AnalyzerMaxDim      int
	AnalyzerJPEGQuality int

	// Identification and dedup
	SimilarityThreshold float64
	DedupGuardThreshold float64
	BufferSimThreshold  float64
	BufferTTL           time.Duration
	BufferCapacity      int
	UnknownLabel        string

	// Camera pipeline
	ReconnectBackoff time.Duration
	ReadRetryDelay   time.Duration
	FrameInterval    time.Duration
	CropPadding      int
	MinCropSize      int
	JPEGQuality      int
	OverlayTitle     string
	MaxCameras       int

	// Watchdog
	HealthCheckInterval time.Duration
	FrameStaleThreshold time.Duration

	// Events
	EventBufferSize      int
	EventDeliveryTimeout time.Duration

	// NATS (registration events fan-out and reload requests)
	// Docker: use nats://nats:4222 when the worker runs in compose
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	EventsSubject      string
	ReloadSubject      string

	// Metrics
	MetricsEnabled bool
	StatsdAddr     string

	// API
	APIRateLimit float64
	APIRateBurst int
	SwaggerHost  string

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	dataDir := getEnv("DATA_DIR", ".")

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "worker-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Storage
		DataDir:         dataDir,
		DBPath:          getEnv("DB_PATH", filepath.Join(dataDir, "cattle.db")),
		PhotosDir:       getEnv("PHOTOS_DIR", filepath.Join(dataDir, "photos")),
		DefaultTenantID: int64(getEnvInt("DEFAULT_TENANT_ID", 1)),
		CamerasFile:     getEnv("CAMERAS_FILE", ""),

		// External vision services
		DetectorGRPCURL: getEnv("DETECTOR_GRPC_URL", "localhost:50051"),
		EmbedderGRPCURL: getEnv("EMBEDDER_GRPC_URL", "localhost:50051"),
		AnalyzerGRPCURL: getEnv("ANALYZER_GRPC_URL", ""),
		DetectionConf:   getEnvFloat("DETECTION_CONF", 0.40),
		DetectorTimeout: getEnvDuration("DETECTOR_TIMEOUT", 2*time.Second),
		EmbedderTimeout: getEnvDuration("EMBEDDER_TIMEOUT", 2*time.Second),

		// Description service
		AnalyzerTimeout:     getEnvDuration("ANALYZER_TIMEOUT", 20*time.Second),
		AnalyzerMaxFailures: uint32(getEnvInt("ANALYZER_MAX_FAILURES", 3)),
		AnalyzerOpenTimeout: getEnvDuration("ANALYZER_OPEN_TIMEOUT", 60*time.Second),
		AnalyzerMaxDim:      getEnvInt("ANALYZER_MAX_DIM", 800),
		AnalyzerJPEGQuality: getEnvInt("ANALYZER_JPEG_QUALITY", 85),

		// Identification and dedup
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.75),
		DedupGuardThreshold: getEnvFloat("DEDUP_GUARD_THRESHOLD", 0.60),
		BufferSimThreshold:  getEnvFloat("BUFFER_SIM_THRESHOLD", 0.68),
		BufferTTL:           getEnvDuration("BUFFER_TTL", 10*time.Second),
		BufferCapacity:      getEnvInt("BUFFER_CAPACITY", 50),
		UnknownLabel:        getEnv("UNKNOWN_LABEL", "Desconhecido"),

		// Camera pipeline
		ReconnectBackoff: getEnvDuration("RECONNECT_BACKOFF", 3*time.Second),
		ReadRetryDelay:   getEnvDuration("READ_RETRY_DELAY", 50*time.Millisecond),
		FrameInterval:    getEnvDuration("FRAME_INTERVAL", 33*time.Millisecond),
		CropPadding:      getEnvInt("CROP_PADDING", 10),
		MinCropSize:      getEnvInt("MIN_CROP_SIZE", 20),
		JPEGQuality:      getEnvInt("JPEG_QUALITY", 75),
		OverlayTitle:     getEnv("OVERLAY_TITLE", "Cattle AI"),
		MaxCameras:       getEnvInt("MAX_CAMERAS", 16),

		// Watchdog
		HealthCheckInterval: getEnvDuration("HEALTH_CHECK_INTERVAL", 5*time.Second),
		FrameStaleThreshold: getEnvDuration("FRAME_STALE_THRESHOLD", 15*time.Second),

		// Events
		EventBufferSize:      getEnvInt("EVENT_BUFFER_SIZE", 256),
		EventDeliveryTimeout: getEnvDuration("EVENT_DELIVERY_TIMEOUT", 2*time.Second),

		// NATS
		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		EventsSubject:      getEnv("EVENTS_SUBJECT", "cattle.registrations"),
		ReloadSubject:      getEnv("RELOAD_SUBJECT", "cattle.reload"),

		// Metrics
		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		StatsdAddr:     getEnv("STATSD_ADDR", "localhost:8125"),

		// API
		APIRateLimit: getEnvFloat("API_RATE_LIMIT", 20),
		APIRateBurst: getEnvInt("API_RATE_BURST", 40),
		SwaggerHost:  getEnv("SWAGGER_HOST", "localhost:8000"),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Validate rejects values the pipeline cannot run with. Threshold ordering is
// only advisory: guard <= buffer <= identify is logged when violated.
func (c *Config) Validate() error {
	thresholds := map[string]float64{
		"SIMILARITY_THRESHOLD":  c.SimilarityThreshold,
		"DEDUP_GUARD_THRESHOLD": c.DedupGuardThreshold,
		"BUFFER_SIM_THRESHOLD":  c.BufferSimThreshold,
	}
	for key, v := range thresholds {
		if v < -1 || v > 1 {
			return fmt.Errorf("%s must be within [-1, 1], got %v", key, v)
		}
	}
	if c.BufferCapacity < 1 {
		return fmt.Errorf("BUFFER_CAPACITY must be at least 1, got %d", c.BufferCapacity)
	}
	if c.BufferTTL < 0 || c.ReconnectBackoff < 0 || c.ReadRetryDelay < 0 || c.FrameInterval < 0 {
		return fmt.Errorf("pipeline durations must not be negative")
	}
	if c.CropPadding < 0 || c.MinCropSize < 0 {
		return fmt.Errorf("CROP_PADDING and MIN_CROP_SIZE must not be negative")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be within [1, 100], got %d", c.JPEGQuality)
	}

	if !(c.DedupGuardThreshold <= c.BufferSimThreshold && c.BufferSimThreshold <= c.SimilarityThreshold) {
		log.Warn().
			Float64("dedup_guard", c.DedupGuardThreshold).
			Float64("buffer_sim", c.BufferSimThreshold).
			Float64("identify", c.SimilarityThreshold).
			Msg("Thresholds are not ordered guard <= buffer <= identify")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
