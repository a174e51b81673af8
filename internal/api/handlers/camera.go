package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cattle-worker-go/internal/logging"
	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/services/camera"
	"cattle-worker-go/internal/services/publisher/mjpeg"
	"cattle-worker-go/internal/storage/sqlite"
)

// SourceValidator opens a source once and reports whether it produces frames.
type SourceValidator interface {
	ValidateSource(source string) *models.SourceCheckResponse
}

type CameraHandler struct {
	cameraManager *camera.CameraManager
	frames        *mjpeg.Publisher
	validator     SourceValidator
}

func NewCameraHandler(cameraManager *camera.CameraManager, frames *mjpeg.Publisher, validator SourceValidator) *CameraHandler {
	return &CameraHandler{
		cameraManager: cameraManager,
		frames:        frames,
		validator:     validator,
	}
}

type ValidateSourceRequest struct {
	URL string `json:"url" binding:"required" example:"rtsp://10.0.0.5:554/stream1"`
}

// ListCameras lists all cameras
// @Summary List all cameras
// @Description Persisted cameras merged with live worker status
// @Tags cameras
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /api/cameras [get]
func (h *CameraHandler) ListCameras(c *gin.Context) {
	cameras, err := h.cameraManager.GetCameras(c.Request.Context())
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to list cameras")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	active, total := h.cameraManager.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"cameras": cameras,
		"count":   len(cameras),
		"running": active,
		"workers": total,
	})
}

// AddCamera persists a camera and starts it when active
// @Summary Add a camera
// @Tags cameras
// @Accept json
// @Produce json
// @Param request body models.CameraRequest true "Camera configuration"
// @Success 201 {object} models.CameraResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/cameras [post]
func (h *CameraHandler) AddCamera(c *gin.Context) {
	var req models.CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logging.Warn(c).Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	cam, err := h.cameraManager.AddCamera(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, sqlite.ErrInvalidInput):
			status = http.StatusBadRequest
		case isConflict(err):
			status = http.StatusConflict
		}
		logging.Error(c).Err(err).Str("camera_id", req.CameraID).Msg("Failed to add camera")
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}

	resp, err := h.cameraManager.GetCamera(c.Request.Context(), cam.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Camera saved but failed to get details"})
		return
	}

	logging.Info(c).Str("camera_id", cam.ID).Str("url", cam.URL).Bool("active", cam.Active).Msg("Camera added")
	c.JSON(http.StatusCreated, resp)
}

// UpdateCamera applies partial changes and restarts or stops the worker
// @Summary Update a camera
// @Tags cameras
// @Accept json
// @Produce json
// @Param id path string true "Camera ID"
// @Param request body models.CameraUpdateRequest true "Fields to change"
// @Success 200 {object} models.CameraResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/cameras/{id} [put]
func (h *CameraHandler) UpdateCamera(c *gin.Context) {
	cameraID := c.Param("id")

	var req models.CameraUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if _, err := h.cameraManager.UpdateCamera(c.Request.Context(), cameraID, req); err != nil {
		switch {
		case isNotFound(err):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Camera not found"})
		case isConflict(err):
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		case errors.Is(err, sqlite.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			logging.Error(c).Err(err).Msg("Failed to update camera")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	resp, err := h.cameraManager.GetCamera(c.Request.Context(), cameraID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	logging.Info(c).Bool("active", resp.Active).Msg("Camera updated")
	c.JSON(http.StatusOK, resp)
}

// RemoveCamera stops the worker and deletes the camera
// @Summary Remove a camera
// @Tags cameras
// @Param id path string true "Camera ID"
// @Success 200 {object} StatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/cameras/{id} [delete]
func (h *CameraHandler) RemoveCamera(c *gin.Context) {
	if err := h.cameraManager.RemoveCamera(c.Request.Context(), c.Param("id")); err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Camera not found"})
			return
		}
		logging.Error(c).Err(err).Msg("Failed to remove camera")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	logging.Info(c).Msg("Camera removed")
	c.JSON(http.StatusOK, StatusResponse{Status: "removed"})
}

// GetCameraStatus returns configuration and live worker counters
// @Summary Camera status
// @Tags cameras
// @Produce json
// @Param id path string true "Camera ID"
// @Success 200 {object} models.CameraResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/cameras/{id}/status [get]
func (h *CameraHandler) GetCameraStatus(c *gin.Context) {
	resp, err := h.cameraManager.GetCamera(c.Request.Context(), c.Param("id"))
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ReconnectCamera forces the worker to reopen its source
// @Summary Reconnect a camera
// @Tags cameras
// @Param id path string true "Camera ID"
// @Success 202 {object} StatusResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/cameras/{id}/reconnect [post]
func (h *CameraHandler) ReconnectCamera(c *gin.Context) {
	if err := h.cameraManager.Reconnect(c.Param("id")); err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Camera not found"})
			return
		}
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, StatusResponse{Status: "reconnecting"})
}

// GetLatestFrame returns the most recent annotated JPEG
// @Summary Latest annotated frame
// @Tags cameras
// @Produce image/jpeg
// @Param id path string true "Camera ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /api/cameras/{id}/frame [get]
func (h *CameraHandler) GetLatestFrame(c *gin.Context) {
	jpeg, ok := h.frames.Latest(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No frame available"})
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/jpeg", jpeg)
}

// StreamMJPEG serves the annotated frames as multipart/x-mixed-replace
// @Summary MJPEG stream
// @Tags cameras
// @Produce multipart/x-mixed-replace
// @Param id path string true "Camera ID"
// @Success 200 {file} binary
// @Router /api/cameras/{id}/stream [get]
func (h *CameraHandler) StreamMJPEG(c *gin.Context) {
	cameraID := c.Param("id")
	logging.Debug(c).Msg("MJPEG viewer connected")
	h.frames.StreamMJPEGHTTP(c.Writer, c.Request, cameraID)
	logging.Debug(c).Msg("MJPEG viewer disconnected")
}

// ValidateSource opens a source and captures one thumbnail
// @Summary Validate a capture source
// @Tags cameras
// @Accept json
// @Produce json
// @Param request body ValidateSourceRequest true "Source URL or webcam index"
// @Success 200 {object} models.SourceCheckResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} models.SourceCheckResponse
// @Router /api/cameras/validate [post]
func (h *CameraHandler) ValidateSource(c *gin.Context) {
	var req ValidateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	res := h.validator.ValidateSource(req.URL)
	if !res.Valid {
		logging.Warn(c).Str("url", req.URL).Str("detail", res.ErrorDetail).Msg("Source validation failed")
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusOK, res)
}
