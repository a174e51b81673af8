package models

import (
	"image"
	"time"
)

// RawFrame is a BGR24 frame as read from OpenCV.
type RawFrame struct {
	CameraID  string
	Data      []byte
	Width     int
	Height    int
	FrameID   int64
	Timestamp time.Time
}

// Channels is the byte depth of a BGR24 pixel.
const Channels = 3

// Valid reports whether Data matches the declared dimensions.
func (f *RawFrame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height*Channels
}

// BBox is a pixel-space bounding box, corners inclusive-exclusive.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Detection represents one object returned by the detector
type Detection struct {
	BBox       BBox     `json:"bbox"`
	Confidence float32  `json:"confidence"`
	ClassID    int      `json:"class_id"`
	Label      string   `json:"label"`
	Category   Category `json:"category"`
}

// Annotation pairs a detection with the identity drawn next to it.
type Annotation struct {
	Detection Detection
	Match     IdentityMatch
}
