package streamcapture

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"cattle-worker-go/internal/config"
	"cattle-worker-go/internal/helpers"
	"cattle-worker-go/internal/models"
)

var (
	// ErrReadFailed is a single failed read; the stream may still be open.
	ErrReadFailed = errors.New("failed to read frame")
	// ErrNotOpened means the source could not be opened or was lost.
	ErrNotOpened = errors.New("video capture is not opened")
)

// ffmpegOptions tuned for low-latency RTSP over TCP.
var ffmpegOptions = map[string]string{
	"rtsp_transport":      "tcp",
	"buffer_size":         "2097152",
	"max_delay":           "500000",
	"stimeout":            "5000000",
	"rw_timeout":          "5000000",
	"flags":               "low_delay",
	"fflags":              "nobuffer+flush_packets",
	"analyzeduration":     "500000",
	"probesize":           "2000000",
	"err_detect":          "careful",
	"allowed_media_types": "video",
	"reconnect":           "1",
	"reconnect_streamed":  "1",
	"reconnect_delay_max": "2",
}

// Service opens capture sources with OpenCV.
type Service struct {
	cfg        *config.Config
	ffmpegOnce sync.Once
}

// NewService creates a new stream capture service
func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// FFmpegOptions renders the options in the key;value|key;value form OpenCV reads.
func FFmpegOptions() string {
	keys := make([]string, 0, len(ffmpegOptions))
	for k := range ffmpegOptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+";"+ffmpegOptions[k])
	}
	return strings.Join(parts, "|")
}

func (s *Service) configureFFmpegOptions() {
	s.ffmpegOnce.Do(func() {
		if os.Getenv("OPENCV_FFMPEG_CAPTURE_OPTIONS") != "" {
			return
		}
		opts := FFmpegOptions()
		os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", opts)
		log.Info().Str("ffmpeg_options", opts).Msg("FFmpeg options configured for OpenCV")
	})
}

// ParseSource reports whether source is a local webcam index such as "0".
func ParseSource(source string) (int, bool) {
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(source)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func (s *Service) open(source string) (*gocv.VideoCapture, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if idx, ok := ParseSource(source); ok {
		vc, err = gocv.OpenVideoCapture(idx)
	} else {
		s.configureFFmpegOptions()
		vc, err = gocv.OpenVideoCaptureWithAPI(source, gocv.VideoCaptureFFmpeg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open source %s: %w", source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotOpened, source)
	}

	// Minimal buffer keeps the newest frame at the head of the queue.
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	return vc, nil
}

// Open connects to a webcam index or an RTSP/HTTP/file URL.
func (s *Service) Open(cameraID, source string) (*Stream, error) {
	vc, err := s.open(source)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("camera_id", cameraID).
		Float64("fps", vc.Get(gocv.VideoCaptureFPS)).
		Float64("width", vc.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", vc.Get(gocv.VideoCaptureFrameHeight)).
		Msg("VideoCapture opened")

	return &Stream{cameraID: cameraID, vc: vc, img: gocv.NewMat(), now: time.Now}, nil
}

// Stream is one open capture handle. It is owned by a single camera worker.
type Stream struct {
	cameraID string
	vc       *gocv.VideoCapture
	img      gocv.Mat
	frameID  int64
	now      func() time.Time
}

// Read returns a copy of the next BGR frame.
func (st *Stream) Read() (*models.RawFrame, error) {
	if st.vc == nil || !st.vc.IsOpened() {
		return nil, ErrNotOpened
	}
	if ok := st.vc.Read(&st.img); !ok || st.img.Empty() {
		return nil, ErrReadFailed
	}
	st.frameID++
	return helpers.FrameFromMat(st.img, st.cameraID, st.frameID, st.now()), nil
}

func (st *Stream) Opened() bool {
	return st.vc != nil && st.vc.IsOpened()
}

func (st *Stream) Close() error {
	if st.vc == nil {
		return nil
	}
	st.img.Close()
	err := st.vc.Close()
	st.vc = nil
	return err
}

// ValidateSource opens a source, reads a few frames and returns an HD thumbnail.
func (s *Service) ValidateSource(source string) *models.SourceCheckResponse {
	response := &models.SourceCheckResponse{
		Valid:   false,
		Message: "Source validation failed",
	}

	vc, err := s.open(source)
	if err != nil {
		response.ErrorDetail = err.Error()
		log.Warn().Str("source", source).Str("error", response.ErrorDetail).Msg("Source validation failed")
		return response
	}

	frame := gocv.NewMat()
	release := func() {
		frame.Close()
		vc.Close()
	}

	readDone := make(chan bool, 1)
	go func() {
		for i := 0; i < 5; i++ {
			if vc.Read(&frame) && !frame.Empty() {
				readDone <- true
				return
			}
			time.Sleep(200 * time.Millisecond)
		}
		readDone <- false
	}()

	select {
	case ok := <-readDone:
		defer release()
		if !ok {
			response.ErrorDetail = "Failed to read stable frames from source"
			log.Warn().Str("source", source).Str("error", response.ErrorDetail).Msg("Source validation failed")
			return response
		}
	case <-time.After(10 * time.Second):
		// the reader goroutine still owns frame and vc
		go func() {
			<-readDone
			release()
		}()
		response.ErrorDetail = "Timeout reading from source (10s limit)"
		log.Warn().Str("source", source).Str("error", response.ErrorDetail).Msg("Source validation failed")
		return response
	}

	w, h := helpers.ScaleToFit(frame.Cols(), frame.Rows(), 1280)
	thumb := frame
	if w != frame.Cols() || h != frame.Rows() {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(frame, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
		thumb = resized
	}

	jpeg, err := helpers.EncodeMatJPEG(thumb, helpers.HighQuality)
	if err != nil {
		response.ErrorDetail = fmt.Sprintf("Failed to encode thumbnail: %v", err)
		log.Warn().Str("source", source).Str("error", response.ErrorDetail).Msg("Source validation failed")
		return response
	}

	response.Valid = true
	response.Message = "Source is valid and accessible"
	response.Thumbnail = helpers.DataURL(jpeg)
	response.Width = frame.Cols()
	response.Height = frame.Rows()
	response.FPS = vc.Get(gocv.VideoCaptureFPS)

	log.Info().
		Str("source", source).
		Int("width", response.Width).
		Int("height", response.Height).
		Float64("fps", response.FPS).
		Msg("Source validation successful")

	return response
}
