package detection

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/vision"
)

var ErrEmptyEmbedding = errors.New("embedder returned no vector")

// Embedder calls the external appearance embedder.
type Embedder struct {
	invoker Invoker
	encode  Encoder
	timeout time.Duration
}

func NewEmbedder(invoker Invoker, encode Encoder, timeout time.Duration) *Embedder {
	return &Embedder{invoker: invoker, encode: encode, timeout: timeout}
}

// Embed returns a unit-norm vector for the crop. The remote side is trusted
// to normalize, but the result is normalized again here.
func (e *Embedder) Embed(ctx context.Context, crop *models.RawFrame) ([]float32, error) {
	img, err := e.encode(crop)
	if err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"image_jpeg_b64": base64.StdEncoding.EncodeToString(img),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	reply := &structpb.Struct{}
	if err := e.invoker.Invoke(ctx, MethodEmbed, req, reply); err != nil {
		return nil, err
	}

	values := reply.GetFields()["embedding"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	raw := make([]float32, len(values))
	for i, v := range values {
		raw[i] = float32(v.GetNumberValue())
	}

	out, err := vision.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding: %w", err)
	}
	return out, nil
}
