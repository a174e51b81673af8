package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cattle-worker-go/internal/logging"
	"cattle-worker-go/internal/metrics"
	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/services/dedup"
	"cattle-worker-go/internal/services/registration"
	"cattle-worker-go/internal/vision"
)

var (
	ErrCameraNotFound = errors.New("camera not found")
	ErrAlreadyRunning = errors.New("camera already running")
	ErrNotRunning     = errors.New("camera not running")
	ErrTooManyCameras = errors.New("camera limit reached")
)

// CameraState represents the atomic state of a camera
type CameraState int32

const (
	StateStopped CameraState = iota
	StateRunning
)

func (s CameraState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Connection is the sub-state of a running worker.
type Connection int32

const (
	ConnIdle Connection = iota
	ConnConnecting
	ConnStreaming
)

func (c Connection) String() string {
	switch c {
	case ConnConnecting:
		return "connecting"
	case ConnStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

type command int

const (
	cmdStop command = iota
	cmdReconnect
)

// Status is a point-in-time view of one worker.
type Status struct {
	State         CameraState
	Connection    Connection
	FrameCount    int64
	ErrorCount    int64
	Registrations int64
	LastFrameTime time.Time
	BufferSize    int
}

// Worker runs capture, identification and publishing for one camera. It is
// controlled through a command channel; a stop lets the current frame,
// including any registration in flight, finish first.
type Worker struct {
	camera models.Camera
	p      *Pipeline
	buffer *dedup.Buffer
	logger zerolog.Logger

	state atomic.Int32
	conn  atomic.Int32

	mu      sync.Mutex
	cmds    chan command
	done    chan struct{}
	retired bool // set by Stop; a draining loop no longer publishes frames

	frameCount    atomic.Int64
	errorCount    atomic.Int64
	registrations atomic.Int64
	lastFrame     atomic.Int64
}

func NewWorker(cam models.Camera, p *Pipeline) *Worker {
	return &Worker{
		camera: cam,
		p:      p,
		buffer: dedup.NewBuffer(p.BufferCapacity, p.BufferTTL),
		logger: logging.WithCamera(p.Logger, cam.ID, cam.TenantID),
	}
}

func (w *Worker) Camera() models.Camera {
	return w.camera
}

func (w *Worker) State() CameraState {
	return CameraState(w.state.Load())
}

// Start spawns the processing loop.
func (w *Worker) Start() error {
	if !w.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return fmt.Errorf("camera %s: %w", w.camera.ID, ErrAlreadyRunning)
	}

	cmds := make(chan command, 4)
	done := make(chan struct{})
	w.mu.Lock()
	w.cmds, w.done = cmds, done
	w.retired = false
	w.mu.Unlock()

	go w.run(cmds, done)

	w.logger.Info().Str("url", w.camera.URL).Msg("Camera worker started")
	return nil
}

// Stop asks the loop to exit and waits up to StopTimeout for it.
func (w *Worker) Stop() error {
	if !w.state.CompareAndSwap(int32(StateRunning), int32(StateStopped)) {
		return fmt.Errorf("camera %s: %w", w.camera.ID, ErrNotRunning)
	}

	w.mu.Lock()
	cmds, done := w.cmds, w.done
	w.retired = true
	w.mu.Unlock()

	select {
	case cmds <- cmdStop:
	case <-done:
	}

	timeout := w.p.StopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
		w.logger.Info().Msg("Camera worker stopped")
	case <-time.After(timeout):
		w.logger.Warn().Dur("timeout", timeout).Msg("Camera worker still draining after stop")
	}
	return nil
}

// Done is closed when the current loop has exited.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Reconnect drops the capture handle and reopens it after the backoff.
func (w *Worker) Reconnect() error {
	if w.State() != StateRunning {
		return fmt.Errorf("camera %s: %w", w.camera.ID, ErrNotRunning)
	}
	w.mu.Lock()
	cmds := w.cmds
	w.mu.Unlock()

	select {
	case cmds <- cmdReconnect:
	default:
	}
	return nil
}

func (w *Worker) Status() Status {
	var last time.Time
	if ns := w.lastFrame.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Status{
		State:         w.State(),
		Connection:    Connection(w.conn.Load()),
		FrameCount:    w.frameCount.Load(),
		ErrorCount:    w.errorCount.Load(),
		Registrations: w.registrations.Load(),
		LastFrameTime: last,
		BufferSize:    w.buffer.Live(w.p.now()),
	}
}

// Stale is true for a streaming worker whose last frame is older than threshold.
func (w *Worker) Stale(now time.Time, threshold time.Duration) bool {
	if w.State() != StateRunning || Connection(w.conn.Load()) != ConnStreaming {
		return false
	}
	ns := w.lastFrame.Load()
	return ns != 0 && now.Sub(time.Unix(0, ns)) > threshold
}

// wait sleeps for d unless a command arrives first.
func wait(cmds <-chan command, d time.Duration) (command, bool) {
	if d <= 0 {
		select {
		case cmd := <-cmds:
			return cmd, true
		default:
			return 0, false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case cmd := <-cmds:
		return cmd, true
	case <-t.C:
		return 0, false
	}
}

func (w *Worker) run(cmds <-chan command, done chan struct{}) {
	defer close(done)
	defer w.conn.Store(int32(ConnIdle))

	for {
		if w.session(cmds) {
			return
		}
		if cmd, ok := wait(cmds, w.p.ReconnectBackoff); ok && cmd == cmdStop {
			return
		}
	}
}

// session runs one Connecting/Streaming cycle and reports whether the worker
// must exit.
func (w *Worker) session(cmds <-chan command) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			w.errorCount.Add(1)
			w.logger.Error().Interface("panic", r).Msg("Camera loop panic recovered, reconnecting")
			stop = false
		}
	}()

	w.conn.Store(int32(ConnConnecting))
	capture, err := w.p.Open(w.camera.ID, w.camera.URL)
	if err != nil {
		w.logger.Warn().Err(err).Dur("backoff", w.p.ReconnectBackoff).Msg("Camera connection failed, retrying")
		return false
	}
	defer capture.Close()

	w.conn.Store(int32(ConnStreaming))
	w.logger.Info().Msg("Camera streaming")

	failures := 0
	for {
		if cmd, ok := wait(cmds, 0); ok {
			return w.onCommand(cmd)
		}

		frame, err := capture.Read()
		if err != nil {
			failures++
			if !capture.Opened() || (w.p.MaxReadFailures > 0 && failures >= w.p.MaxReadFailures) {
				w.logger.Warn().Err(err).Int("consecutive_failures", failures).Msg("Camera stream lost")
				return false
			}
			if cmd, ok := wait(cmds, w.p.ReadRetryDelay); ok {
				return w.onCommand(cmd)
			}
			continue
		}
		failures = 0

		w.frameCount.Add(1)
		w.lastFrame.Store(w.p.now().UnixNano())
		w.handleFrame(frame)

		if cmd, ok := wait(cmds, w.p.FrameInterval); ok {
			return w.onCommand(cmd)
		}
	}
}

func (w *Worker) onCommand(cmd command) bool {
	if cmd == cmdReconnect {
		w.logger.Info().Msg("Reconnect requested")
		return false
	}
	return true
}

func (w *Worker) handleFrame(frame *models.RawFrame) {
	start := time.Now()
	// registrations must not be cut short by a stop, so the frame runs
	// on its own context
	events, err := w.ProcessFrame(context.Background(), frame)
	if err != nil {
		w.errorCount.Add(1)
		w.p.Metrics.Incr(metrics.FrameErrors, metrics.Tag(metrics.TagCameraID, w.camera.ID))
		w.logger.Error().Err(err).Int64("frame_id", frame.FrameID).Msg("Frame processing failed")
	}

	for _, ev := range events {
		if err := w.p.Events.Publish(ev); err != nil {
			w.logger.Debug().Err(err).Str("event_id", ev.EventID).Msg("Registration event not delivered")
		}
	}
	w.p.Metrics.TimingWithStart(metrics.FrameLatency, start, metrics.Tag(metrics.TagCameraID, w.camera.ID))
}

// ProcessFrame runs detect, crop, embed and identify for every detection,
// then publishes the annotated frame. Events registered before a failure are
// still returned so they can be broadcast.
func (w *Worker) ProcessFrame(ctx context.Context, frame *models.RawFrame) (events []*models.RegistrationEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing frame: %v", r)
		}
	}()

	dets, err := w.p.Detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	items := make([]models.Annotation, 0, len(dets))
	for _, det := range dets {
		match, ev, err := w.identify(ctx, frame, det)
		if err != nil {
			return events, err
		}
		if ev != nil {
			events = append(events, ev)
		}
		items = append(items, models.Annotation{Detection: det, Match: match})
	}

	jpeg, err := w.p.Renderer.Annotate(frame, items)
	if err != nil {
		return events, fmt.Errorf("annotate: %w", err)
	}
	w.publish(jpeg)
	return events, nil
}

// publish overwrites the camera's latest frame unless the worker was stopped
// while this frame was in flight; the manager clears the slot on stop.
func (w *Worker) publish(jpeg []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.retired {
		return
	}
	w.p.Frames.Publish(w.camera.ID, jpeg)
}

func (w *Worker) identify(ctx context.Context, frame *models.RawFrame, det models.Detection) (models.IdentityMatch, *models.RegistrationEvent, error) {
	unknown := models.UnknownMatch(w.p.UnknownLabel, 0)

	crop, err := vision.Crop(frame, det.BBox, w.p.CropPadding)
	if err != nil {
		return unknown, nil, fmt.Errorf("crop: %w", err)
	}
	if vision.TooSmall(crop, w.p.MinCropSize) {
		return unknown, nil, nil
	}

	emb, err := w.p.Embedder.Embed(ctx, crop)
	if err != nil {
		return unknown, nil, fmt.Errorf("embed: %w", err)
	}

	bank, err := w.p.Banks.Bank(ctx, w.camera.TenantID, det.Category)
	if err != nil {
		return unknown, nil, err
	}

	match := bank.Identify(emb)
	if match.IsKnown {
		w.handleKnown(ctx, det.Category, match, crop)
		return match, nil, nil
	}

	ev, err := w.p.Registrar.Register(ctx, registration.Request{
		TenantID:  w.camera.TenantID,
		Category:  det.Category,
		CameraID:  w.camera.ID,
		Camera:    w.camera.Name,
		Source:    w.camera.Source(),
		Crop:      crop,
		Embedding: emb,
		Bank:      bank,
		Buffer:    w.buffer,
	})
	if err != nil {
		w.logger.Error().Err(err).Str("category", det.Category.String()).Msg("Auto-registration failed")
		return match, nil, nil
	}
	if ev != nil {
		w.registrations.Add(1)
	}
	return match, ev, nil
}

// handleKnown logs the first entry of the day and backfills a missing photo.
// Both are retried on the next sighting when they fail.
func (w *Worker) handleKnown(ctx context.Context, category models.Category, match models.IdentityMatch, crop *models.RawFrame) {
	ref := models.EntityRef{TenantID: w.camera.TenantID, Category: category, ID: match.EntityID}

	logged, err := w.p.SeenToday.Observe(ref, func() error {
		_, err := w.p.Store.RecordMovement(ctx, models.Movement{
			TenantID:   w.camera.TenantID,
			Category:   category,
			EntityID:   match.EntityID,
			EntityName: match.Name,
			EventType:  models.MovementEntry,
			Source:     w.camera.Source(),
			DetectedAt: w.p.now(),
		})
		return err
	})
	if err != nil {
		w.logger.Warn().Err(err).Int64("entity_id", match.EntityID).Msg("Failed to record entry movement")
	} else if logged {
		w.logger.Info().Str("name", match.Name).Int64("entity_id", match.EntityID).Msg("First entry today recorded")
	}

	if w.p.Photos == nil || !w.p.NoPhoto.Needs(ref) {
		return
	}
	path, err := w.p.Photos.Save(crop, match.Name)
	if err != nil {
		w.logger.Warn().Err(err).Int64("entity_id", match.EntityID).Msg("Failed to save backfill photo")
		return
	}
	if err := w.p.Store.UpdatePhoto(ctx, category, match.EntityID, path); err != nil {
		w.logger.Warn().Err(err).Int64("entity_id", match.EntityID).Msg("Failed to persist backfill photo")
		return
	}
	w.p.NoPhoto.Remove(ref)
	w.logger.Info().Str("name", match.Name).Str("photo", path).Msg("Photo saved")
}
