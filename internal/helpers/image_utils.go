package helpers

import (
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"cattle-worker-go/internal/models"
)

const (
	// JPEG quality settings
	HighQuality   = 95
	MediumQuality = 75
	LowQuality    = 50
)

// IsJPEGData checks if the byte slice contains JPEG data by checking magic bytes
func IsJPEGData(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	// JPEG magic bytes: FF D8
	return data[0] == 0xFF && data[1] == 0xD8
}

// ScaleToFit returns dimensions whose longest side is at most maxDim, keeping
// the aspect ratio. Images are never upscaled.
func ScaleToFit(width, height, maxDim int) (int, int) {
	if maxDim <= 0 || width <= 0 || height <= 0 {
		return width, height
	}
	longest := max(width, height)
	if longest <= maxDim {
		return width, height
	}
	scale := float64(maxDim) / float64(longest)
	return max(1, int(float64(width)*scale)), max(1, int(float64(height)*scale))
}

// MatFromFrame wraps BGR frame bytes in a Mat. The caller closes it.
func MatFromFrame(frame *models.RawFrame) (gocv.Mat, error) {
	if !frame.Valid() {
		return gocv.NewMat(), fmt.Errorf("invalid frame %dx%d with %d bytes", frame.Width, frame.Height, len(frame.Data))
	}
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create Mat from BGR data: %w", err)
	}
	return mat, nil
}

// FrameFromMat copies a BGR Mat into a RawFrame.
func FrameFromMat(mat gocv.Mat, cameraID string, frameID int64, at time.Time) *models.RawFrame {
	return &models.RawFrame{
		CameraID:  cameraID,
		Data:      mat.ToBytes(),
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		FrameID:   frameID,
		Timestamp: at,
	}
}

// EncodeMatJPEG encodes a Mat as JPEG at the given quality.
func EncodeMatJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// EncodeJPEG encodes a BGR frame as JPEG.
func EncodeJPEG(frame *models.RawFrame, quality int) ([]byte, error) {
	mat, err := MatFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return EncodeMatJPEG(mat, quality)
}

// EncodeResizedJPEG downsizes the frame so its longest side fits maxDim before
// encoding.
func EncodeResizedJPEG(frame *models.RawFrame, maxDim, quality int) ([]byte, error) {
	mat, err := MatFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	w, h := ScaleToFit(mat.Cols(), mat.Rows(), maxDim)
	if w == mat.Cols() && h == mat.Rows() {
		return EncodeMatJPEG(mat, quality)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	return EncodeMatJPEG(resized, quality)
}

// JPEGEncoder binds a quality to EncodeJPEG.
func JPEGEncoder(quality int) func(*models.RawFrame) ([]byte, error) {
	return func(frame *models.RawFrame) ([]byte, error) {
		return EncodeJPEG(frame, quality)
	}
}

// ResizedJPEGEncoder binds size and quality to EncodeResizedJPEG.
func ResizedJPEGEncoder(maxDim, quality int) func(*models.RawFrame) ([]byte, error) {
	return func(frame *models.RawFrame) ([]byte, error) {
		return EncodeResizedJPEG(frame, maxDim, quality)
	}
}

// DataURL turns JPEG bytes into an inline image URL.
func DataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}
