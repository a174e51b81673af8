package handlers

import (
	"errors"

	"cattle-worker-go/internal/services/camera"
	"cattle-worker-go/internal/storage/sqlite"
)

type ErrorResponse struct {
	Error string `json:"error" example:"Camera not found"`
}

type StatusResponse struct {
	Status string `json:"status" example:"reloaded"`
}

func isNotFound(err error) bool {
	return errors.Is(err, camera.ErrCameraNotFound) || errors.Is(err, sqlite.ErrNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, camera.ErrAlreadyRunning) || errors.Is(err, camera.ErrTooManyCameras)
}
