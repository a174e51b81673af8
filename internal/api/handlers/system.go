package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"cattle-worker-go/internal/services/camera"
	"cattle-worker-go/internal/services/events"
)

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID    string
	startTime   time.Time
	cameras     *camera.CameraManager
	broadcaster *events.Broadcaster
	analyzer    func() string
}

// NewSystemHandler creates a new system handler. analyzerState may be nil.
func NewSystemHandler(workerID string, cameras *camera.CameraManager, broadcaster *events.Broadcaster, analyzerState func() string) *SystemHandler {
	return &SystemHandler{
		WorkerID:    workerID,
		startTime:   time.Now(),
		cameras:     cameras,
		broadcaster: broadcaster,
		analyzer:    analyzerState,
	}
}

// @Summary Get system stats
// @Description Runtime, camera and event counters
// @Tags system
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	active, total := h.cameras.GetStats()
	analyzer := "unavailable"
	if h.analyzer != nil {
		analyzer = h.analyzer()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"worker_id":      h.WorkerID,
			"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
			"memory_mb":      m.Alloc / 1024 / 1024,
			"cpu_cores":      runtime.NumCPU(),
			"goroutines":     runtime.NumGoroutine(),
			"go_version":     runtime.Version(),
			"cameras_active": active,
			"cameras_total":  total,
			"events":         h.broadcaster.Stats(),
			"analyzer":       analyzer,
		},
		"timestamp": time.Now().Unix(),
	})
}
