package analyzer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"cattle-worker-go/internal/config"
	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/services/detection"
)

const MethodDescribe = "/cattle.vision.v1.Analyzer/Describe"

// ErrUnavailable is returned when no description service is configured.
var ErrUnavailable = errors.New("description service unavailable")

// Client asks the description service for a textual analysis of a crop.
type Client struct {
	invoker detection.Invoker
	closer  func() error
	encode  detection.Encoder
	breaker *breaker
	logger  zerolog.Logger
}

// New dials ANALYZER_GRPC_URL. An empty URL yields an unavailable client.
// encode must downscale and compress the crop for transport.
func New(cfg *config.Config, encode detection.Encoder, logger zerolog.Logger) (*Client, error) {
	bc := BreakerConfig{MaxFailures: cfg.AnalyzerMaxFailures, OpenTimeout: cfg.AnalyzerOpenTimeout}
	if cfg.AnalyzerGRPCURL == "" {
		logger.Info().Msg("No description service configured, registrations will carry empty attributes")
		return NewWithInvoker(nil, encode, bc, logger), nil
	}

	conn, err := detection.Dial("analyzer", cfg.AnalyzerGRPCURL)
	if err != nil {
		return nil, err
	}
	c := NewWithInvoker(conn, encode, bc, logger)
	c.closer = conn.Close
	return c, nil
}

// NewWithInvoker builds a client on any transport; a nil invoker means unavailable.
func NewWithInvoker(invoker detection.Invoker, encode detection.Encoder, bc BreakerConfig, logger zerolog.Logger) *Client {
	return &Client{
		invoker: invoker,
		encode:  encode,
		breaker: newBreaker(bc, logger),
		logger:  logger,
	}
}

func (c *Client) Available() bool {
	return c != nil && c.invoker != nil
}

// Analyze describes the crop. The caller bounds the call with ctx.
func (c *Client) Analyze(ctx context.Context, crop *models.RawFrame, category models.Category) (models.Analysis, error) {
	if !c.Available() {
		return models.Analysis{}, ErrUnavailable
	}

	img, err := c.encode(crop)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("failed to encode crop for analysis: %w", err)
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"image_jpeg_b64": base64.StdEncoding.EncodeToString(img),
		"category":       category.String(),
	})
	if err != nil {
		return models.Analysis{}, fmt.Errorf("failed to build describe request: %w", err)
	}

	text, err := c.breaker.execute(ctx, func() (string, error) {
		reply := &structpb.Struct{}
		if err := c.invoker.Invoke(ctx, MethodDescribe, req, reply); err != nil {
			return "", err
		}
		return reply.GetFields()["text"].GetStringValue(), nil
	})
	if err != nil {
		return models.Analysis{}, err
	}

	analysis := Parse(text)
	c.logger.Debug().
		Str("category", category.String()).
		Str("breed", analysis.Breed).
		Int("description_len", len(analysis.Description)).
		Msg("Crop analyzed")
	return analysis, nil
}

// State reports the breaker state: closed, open or half-open.
func (c *Client) State() string {
	if !c.Available() {
		return "unavailable"
	}
	return c.breaker.state()
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}
