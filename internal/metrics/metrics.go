package metrics

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"

	"cattle-worker-go/internal/config"
)

const (
	RegistrationCount   = "registration.count"
	RegistrationLatency = "registration.latency"
	FrameLatency        = "frame.latency"
	FrameErrors         = "frame.errors"
	EventsDropped       = "events.dropped"
	EventsDelivered     = "events.delivered"
	AnalyzerCalls       = "analyzer.calls"
	CamerasRunning      = "cameras.running"

	TagOutcome  = "outcome"
	TagResult   = "result"
	TagCameraID = "camera_id"
	TagCategory = "category"
	TagWorkerID = "worker_id"
	TagEnv      = "env"
)

// Client wraps a statsd client. A nil *Client is a valid no-op.
type Client struct {
	sd           statsd.ClientInterface
	samplingRate float64
}

// New builds a statsd-backed client, or a no-op one when metrics are disabled.
func New(cfg *config.Config) (*Client, error) {
	if !cfg.MetricsEnabled {
		return NewNoop(), nil
	}

	sd, err := statsd.New(cfg.StatsdAddr,
		statsd.WithNamespace("cattle."),
		statsd.WithTags([]string{
			Tag(TagWorkerID, cfg.WorkerID),
			Tag(TagEnv, cfg.Environment),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("statsd client initialization failed: %w", err)
	}

	log.Info().Str("addr", cfg.StatsdAddr).Msg("Metrics client initialized")
	return &Client{sd: sd, samplingRate: 1}, nil
}

func NewNoop() *Client {
	return &Client{sd: &statsd.NoOpClient{}, samplingRate: 1}
}

// NewWithClient is used by tests to capture emitted metrics.
func NewWithClient(sd statsd.ClientInterface) *Client {
	return &Client{sd: sd, samplingRate: 1}
}

func Tag(key, value string) string {
	return key + ":" + value
}

// Count increases a counter by value.
func (c *Client) Count(name string, value int64, tags ...string) {
	if c == nil {
		return
	}
	if err := c.sd.Count(name, value, tags, c.samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Error occurred while doing statsd count")
	}
}

func (c *Client) Incr(name string, tags ...string) {
	c.Count(name, 1, tags...)
}

func (c *Client) Timing(name string, value time.Duration, tags ...string) {
	if c == nil {
		return
	}
	if err := c.sd.Timing(name, value, tags, c.samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Error occurred while doing statsd timing")
	}
}

// TimingWithStart is meant for defer at the top of a function.
func (c *Client) TimingWithStart(name string, start time.Time, tags ...string) {
	c.Timing(name, time.Since(start), tags...)
}

func (c *Client) Gauge(name string, value float64, tags ...string) {
	if c == nil {
		return
	}
	if err := c.sd.Gauge(name, value, tags, c.samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Error occurred while doing statsd gauge")
	}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.sd.Close()
}
