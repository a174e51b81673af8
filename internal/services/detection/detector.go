package detection

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"cattle-worker-go/internal/models"
)

const (
	MethodDetect = "/cattle.vision.v1.Detector/Detect"
	MethodEmbed  = "/cattle.vision.v1.Embedder/Embed"
)

// Encoder turns a BGR frame into JPEG bytes.
type Encoder func(frame *models.RawFrame) ([]byte, error)

// COCO classes the pipeline keeps. Everything else is discarded.
const (
	classPerson    = 0
	firstAnimalCls = 14
	lastAnimalCls  = 23
)

var animalLabels = map[int]string{
	14: "bird", 15: "cat", 16: "dog", 17: "horse", 18: "sheep",
	19: "cow", 20: "elephant", 21: "bear", 22: "zebra", 23: "giraffe",
}

// Classify maps a COCO class to a category; ok is false for ignored classes.
func Classify(classID int) (models.Category, bool) {
	switch {
	case classID == classPerson:
		return models.CategoryPerson, true
	case classID >= firstAnimalCls && classID <= lastAnimalCls:
		return models.CategoryAnimal, true
	default:
		return "", false
	}
}

// Detector calls the external object detector.
type Detector struct {
	invoker Invoker
	encode  Encoder
	minConf float32
	timeout time.Duration
}

func NewDetector(invoker Invoker, encode Encoder, minConf float64, timeout time.Duration) *Detector {
	return &Detector{invoker: invoker, encode: encode, minConf: float32(minConf), timeout: timeout}
}

// Detect returns people and animals at or above the confidence floor.
func (d *Detector) Detect(ctx context.Context, frame *models.RawFrame) ([]models.Detection, error) {
	img, err := d.encode(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"image_jpeg_b64": base64.StdEncoding.EncodeToString(img),
		"width":          frame.Width,
		"height":         frame.Height,
		"min_confidence": float64(d.minConf),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build detect request: %w", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	reply := &structpb.Struct{}
	if err := d.invoker.Invoke(ctx, MethodDetect, req, reply); err != nil {
		return nil, err
	}
	return d.parse(reply), nil
}

func (d *Detector) parse(reply *structpb.Struct) []models.Detection {
	list := reply.GetFields()["detections"].GetListValue()
	out := make([]models.Detection, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		f := v.GetStructValue().GetFields()
		if f == nil {
			continue
		}

		classID := int(f["class_id"].GetNumberValue())
		category, ok := Classify(classID)
		if !ok {
			continue
		}
		conf := float32(f["confidence"].GetNumberValue())
		if conf < d.minConf {
			continue
		}

		label := f["label"].GetStringValue()
		if label == "" {
			if category == models.CategoryPerson {
				label = "person"
			} else {
				label = animalLabels[classID]
			}
		}

		out = append(out, models.Detection{
			BBox: models.BBox{
				X1: int(f["x1"].GetNumberValue()),
				Y1: int(f["y1"].GetNumberValue()),
				X2: int(f["x2"].GetNumberValue()),
				Y2: int(f["y2"].GetNumberValue()),
			},
			Confidence: conf,
			ClassID:    classID,
			Label:      label,
			Category:   category,
		})
	}
	return out
}
