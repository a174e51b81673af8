package models

import (
	"time"
)

// Camera is a persisted camera configuration.
type Camera struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	TenantID  int64     `json:"tenant_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Source identifies the camera in movement logs.
func (c Camera) Source() string {
	return "camera_" + c.ID
}

// CameraRequest for API
type CameraRequest struct {
	CameraID string `json:"camera_id" binding:"required"`
	Name     string `json:"name"`
	URL      string `json:"url" binding:"required"`
	TenantID int64  `json:"tenant_id"`
	Active   *bool  `json:"active"`
}

// CameraUpdateRequest for API
type CameraUpdateRequest struct {
	Name   *string `json:"name"`
	URL    *string `json:"url"`
	Active *bool   `json:"active"`
}

// CameraResponse for API
type CameraResponse struct {
	CameraID        string    `json:"camera_id"`
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	TenantID        int64     `json:"tenant_id"`
	Active          bool      `json:"active"`
	State           string    `json:"state"`
	Connection      string    `json:"connection"`
	FrameCount      int64     `json:"frame_count"`
	ErrorCount      int64     `json:"error_count"`
	Registrations   int64     `json:"registrations"`
	LastFrameTime   time.Time `json:"last_frame_time"`
	DedupBufferSize int       `json:"dedup_buffer_size"`
	MJPEGUrl        string    `json:"mjpeg_url"`
}

// SourceCheckResponse is returned when validating a capture source
type SourceCheckResponse struct {
	Valid       bool    `json:"valid"`
	Message     string  `json:"message"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	FPS         float64 `json:"fps,omitempty"`
	ErrorDetail string  `json:"error_detail,omitempty"`
}
