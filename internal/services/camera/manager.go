package camera

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cattle-worker-go/internal/config"
	"cattle-worker-go/internal/metrics"
	"cattle-worker-go/internal/models"
)

// CameraStore persists camera configuration.
type CameraStore interface {
	UpsertCamera(ctx context.Context, c models.Camera) error
	GetCamera(ctx context.Context, id string) (models.Camera, error)
	ListCameras(ctx context.Context) ([]models.Camera, error)
	DeleteCamera(ctx context.Context, id string) error
}

// CameraManager owns every camera worker in the process.
type CameraManager struct {
	cfg      *config.Config
	pipeline *Pipeline
	store    CameraStore
	logger   zerolog.Logger

	workers map[string]*Worker
	mutex   sync.RWMutex

	stopChannel  chan struct{}
	watchdogOnce sync.Once
	stopOnce     sync.Once
}

func NewCameraManager(cfg *config.Config, pipeline *Pipeline, store CameraStore, logger zerolog.Logger) *CameraManager {
	return &CameraManager{
		cfg:         cfg,
		pipeline:    pipeline,
		store:       store,
		logger:      logger,
		workers:     make(map[string]*Worker),
		stopChannel: make(chan struct{}),
	}
}

// StartWatchdog begins periodic health checks. Calling it twice is a no-op.
func (cm *CameraManager) StartWatchdog() {
	if cm.cfg.HealthCheckInterval <= 0 {
		return
	}
	cm.watchdogOnce.Do(func() {
		go cm.runWatchdog()
		cm.logger.Info().Dur("interval", cm.cfg.HealthCheckInterval).Msg("Watchdog started")
	})
}

// StartCamera starts a worker for cam, replacing a stopped one.
func (cm *CameraManager) StartCamera(cam models.Camera) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if w, exists := cm.workers[cam.ID]; exists {
		if w.State() == StateRunning {
			return fmt.Errorf("camera %s: %w", cam.ID, ErrAlreadyRunning)
		}
		delete(cm.workers, cam.ID)
	}
	if cm.cfg.MaxCameras > 0 && len(cm.workers) >= cm.cfg.MaxCameras {
		return fmt.Errorf("%w (%d)", ErrTooManyCameras, cm.cfg.MaxCameras)
	}

	w := NewWorker(cam, cm.pipeline)
	if err := w.Start(); err != nil {
		return err
	}
	cm.workers[cam.ID] = w
	return nil
}

// StopCamera stops and forgets the worker for id.
func (cm *CameraManager) StopCamera(cameraID string) error {
	cm.mutex.Lock()
	w, exists := cm.workers[cameraID]
	delete(cm.workers, cameraID)
	cm.mutex.Unlock()

	if !exists {
		return fmt.Errorf("camera %s: %w", cameraID, ErrCameraNotFound)
	}
	if err := w.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	cm.pipeline.Frames.Remove(cameraID)
	return nil
}

// RestartCamera applies a new configuration by stopping any running worker first.
func (cm *CameraManager) RestartCamera(cam models.Camera) error {
	if err := cm.StopCamera(cam.ID); err != nil && !errors.Is(err, ErrCameraNotFound) {
		cm.logger.Warn().Err(err).Str("camera_id", cam.ID).Msg("Failed to stop camera before restart")
	}
	return cm.StartCamera(cam)
}

// Reconnect forces the worker to reopen its source.
func (cm *CameraManager) Reconnect(cameraID string) error {
	w, ok := cm.worker(cameraID)
	if !ok {
		return fmt.Errorf("camera %s: %w", cameraID, ErrCameraNotFound)
	}
	return w.Reconnect()
}

func (cm *CameraManager) worker(cameraID string) (*Worker, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	w, ok := cm.workers[cameraID]
	return w, ok
}

// StartActive starts every active persisted camera and returns how many started.
func (cm *CameraManager) StartActive(ctx context.Context) (int, error) {
	cams, err := cm.store.ListCameras(ctx)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, cam := range cams {
		if !cam.Active {
			continue
		}
		if err := cm.StartCamera(cam); err != nil {
			cm.logger.Error().Err(err).Str("camera_id", cam.ID).Msg("Failed to auto-start camera")
			continue
		}
		started++
	}
	cm.logger.Info().Int("started", started).Int("persisted", len(cams)).Msg("Active cameras started")
	return started, nil
}

// AddCamera persists a camera and starts it when active.
func (cm *CameraManager) AddCamera(ctx context.Context, req models.CameraRequest) (models.Camera, error) {
	cam := models.Camera{
		ID:       req.CameraID,
		Name:     req.Name,
		URL:      req.URL,
		TenantID: req.TenantID,
		Active:   req.Active == nil || *req.Active,
	}
	if cam.Name == "" {
		cam.Name = cam.ID
	}
	if cam.TenantID == 0 {
		cam.TenantID = cm.cfg.DefaultTenantID
	}

	if err := cm.store.UpsertCamera(ctx, cam); err != nil {
		return cam, err
	}
	if !cam.Active {
		if err := cm.StopCamera(cam.ID); err != nil && !errors.Is(err, ErrCameraNotFound) {
			return cam, err
		}
		return cam, nil
	}
	return cam, cm.RestartCamera(cam)
}

// UpdateCamera applies partial changes, then restarts or stops the worker.
func (cm *CameraManager) UpdateCamera(ctx context.Context, cameraID string, req models.CameraUpdateRequest) (models.Camera, error) {
	cam, err := cm.store.GetCamera(ctx, cameraID)
	if err != nil {
		return cam, err
	}
	if req.Name != nil {
		cam.Name = *req.Name
	}
	if req.URL != nil {
		cam.URL = *req.URL
	}
	if req.Active != nil {
		cam.Active = *req.Active
	}
	if err := cm.store.UpsertCamera(ctx, cam); err != nil {
		return cam, err
	}

	if cam.Active {
		return cam, cm.RestartCamera(cam)
	}
	if err := cm.StopCamera(cam.ID); err != nil && !errors.Is(err, ErrCameraNotFound) {
		return cam, err
	}
	return cam, nil
}

// RemoveCamera stops the worker and deletes the configuration.
func (cm *CameraManager) RemoveCamera(ctx context.Context, cameraID string) error {
	if err := cm.StopCamera(cameraID); err != nil && !errors.Is(err, ErrCameraNotFound) {
		return err
	}
	return cm.store.DeleteCamera(ctx, cameraID)
}

func (cm *CameraManager) response(cam models.Camera, w *Worker) *models.CameraResponse {
	resp := &models.CameraResponse{
		CameraID:   cam.ID,
		Name:       cam.Name,
		URL:        cam.URL,
		TenantID:   cam.TenantID,
		Active:     cam.Active,
		State:      StateStopped.String(),
		Connection: ConnIdle.String(),
		MJPEGUrl:   "/api/cameras/" + cam.ID + "/stream",
	}
	if w != nil {
		st := w.Status()
		resp.State = st.State.String()
		resp.Connection = st.Connection.String()
		resp.FrameCount = st.FrameCount
		resp.ErrorCount = st.ErrorCount
		resp.Registrations = st.Registrations
		resp.LastFrameTime = st.LastFrameTime
		resp.DedupBufferSize = st.BufferSize
	}
	return resp
}

// GetCamera returns the persisted camera merged with its live status.
func (cm *CameraManager) GetCamera(ctx context.Context, cameraID string) (*models.CameraResponse, error) {
	cam, err := cm.store.GetCamera(ctx, cameraID)
	if err != nil {
		w, ok := cm.worker(cameraID)
		if !ok {
			return nil, err
		}
		cam = w.Camera()
	}
	w, _ := cm.worker(cameraID)
	return cm.response(cam, w), nil
}

// GetCameras lists persisted cameras plus any running worker not yet persisted.
func (cm *CameraManager) GetCameras(ctx context.Context) ([]*models.CameraResponse, error) {
	cams, err := cm.store.ListCameras(ctx)
	if err != nil {
		return nil, err
	}

	cm.mutex.RLock()
	seen := make(map[string]struct{}, len(cams))
	out := make([]*models.CameraResponse, 0, len(cams))
	for _, cam := range cams {
		seen[cam.ID] = struct{}{}
		out = append(out, cm.response(cam, cm.workers[cam.ID]))
	}
	for id, w := range cm.workers {
		if _, ok := seen[id]; !ok {
			out = append(out, cm.response(w.Camera(), w))
		}
	}
	cm.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out, nil
}

// IsRunning reports whether a worker for id is running.
func (cm *CameraManager) IsRunning(cameraID string) bool {
	w, ok := cm.worker(cameraID)
	return ok && w.State() == StateRunning
}

// GetStats returns running and total worker counts.
func (cm *CameraManager) GetStats() (int, int) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	active := 0
	for _, w := range cm.workers {
		if w.State() == StateRunning {
			active++
		}
	}
	return active, len(cm.workers)
}

// Shutdown stops every worker and the watchdog.
func (cm *CameraManager) Shutdown(ctx context.Context) error {
	cm.stopOnce.Do(func() { close(cm.stopChannel) })

	cm.mutex.Lock()
	workers := make([]*Worker, 0, len(cm.workers))
	for _, w := range cm.workers {
		workers = append(workers, w)
	}
	cm.workers = make(map[string]*Worker)
	cm.mutex.Unlock()

	cm.logger.Info().Int("cameras", len(workers)).Msg("Shutting down camera manager")

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
				cm.logger.Error().Err(err).Str("camera_id", w.Camera().ID).Msg("Failed to stop camera during shutdown")
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runWatchdog monitors camera health and handles cleanup
func (cm *CameraManager) runWatchdog() {
	ticker := time.NewTicker(cm.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.stopChannel:
			return
		case <-ticker.C:
			cm.checkCameraHealth(time.Now())
		}
	}
}

// checkCameraHealth reconnects stale workers and prunes yesterday's presence marks.
func (cm *CameraManager) checkCameraHealth(now time.Time) {
	cm.mutex.RLock()
	running := 0
	var stale []*Worker
	for _, w := range cm.workers {
		if w.State() == StateRunning {
			running++
		}
		if w.Stale(now, cm.cfg.FrameStaleThreshold) {
			stale = append(stale, w)
		}
	}
	cm.mutex.RUnlock()

	for _, w := range stale {
		cm.logger.Warn().
			Str("camera_id", w.Camera().ID).
			Time("last_frame", w.Status().LastFrameTime).
			Msg("Camera appears to be stale - reconnecting")
		_ = w.Reconnect()
	}

	cm.pipeline.Metrics.Gauge(metrics.CamerasRunning, float64(running))
	if cm.pipeline.SeenToday != nil {
		if n := cm.pipeline.SeenToday.Prune(); n > 0 {
			cm.logger.Debug().Int("pruned", n).Msg("Cleared previous-day presence marks")
		}
	}
}
