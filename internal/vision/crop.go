package vision

import (
	"errors"
	"image"

	"cattle-worker-go/internal/models"
)

var ErrInvalidFrame = errors.New("frame data does not match its dimensions")

// CropRect grows box by padding on every side and clips it to the frame.
// The result may be empty when the box lies outside the frame.
func CropRect(box models.BBox, width, height, padding int) image.Rectangle {
	r := image.Rect(box.X1-padding, box.Y1-padding, box.X2+padding, box.Y2+padding)
	return r.Intersect(image.Rect(0, 0, width, height))
}

// Crop copies the padded region of a BGR frame into a new frame.
func Crop(frame *models.RawFrame, box models.BBox, padding int) (*models.RawFrame, error) {
	if !frame.Valid() {
		return nil, ErrInvalidFrame
	}

	r := CropRect(box, frame.Width, frame.Height, padding)
	out := &models.RawFrame{
		CameraID:  frame.CameraID,
		FrameID:   frame.FrameID,
		Timestamp: frame.Timestamp,
		Width:     r.Dx(),
		Height:    r.Dy(),
	}
	if r.Empty() {
		return out, nil
	}

	rowBytes := r.Dx() * models.Channels
	stride := frame.Width * models.Channels
	out.Data = make([]byte, rowBytes*r.Dy())
	for y := 0; y < r.Dy(); y++ {
		src := (r.Min.Y+y)*stride + r.Min.X*models.Channels
		copy(out.Data[y*rowBytes:(y+1)*rowBytes], frame.Data[src:src+rowBytes])
	}
	return out, nil
}

// TooSmall reports crops that are empty or below minSize on either side.
func TooSmall(crop *models.RawFrame, minSize int) bool {
	if crop == nil || crop.Width == 0 || crop.Height == 0 {
		return true
	}
	return crop.Width < minSize || crop.Height < minSize
}
