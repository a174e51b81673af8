package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cattle-worker-go/internal/models"
)

func solidFrame(w, h int) *models.RawFrame {
	data := make([]byte, w*h*models.Channels)
	for i := 0; i < len(data); i += models.Channels {
		data[i], data[i+1], data[i+2] = 30, 120, 200
	}
	return &models.RawFrame{Data: data, Width: w, Height: h}
}

func TestScaleToFit(t *testing.T) {
	tests := []struct {
		name         string
		w, h, maxDim int
		wantW, wantH int
	}{
		{"already small", 640, 480, 800, 640, 480},
		{"landscape", 1920, 1080, 800, 800, 450},
		{"portrait", 1000, 2000, 800, 400, 800},
		{"no limit", 1920, 1080, 0, 1920, 1080},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := ScaleToFit(tt.w, tt.h, tt.maxDim)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(solidFrame(64, 48), MediumQuality)
	require.NoError(t, err)
	assert.True(t, IsJPEGData(data))

	_, err = EncodeJPEG(&models.RawFrame{Width: 10, Height: 10, Data: []byte{1}}, MediumQuality)
	assert.Error(t, err)
}

func TestEncodeResizedJPEG(t *testing.T) {
	data, err := EncodeResizedJPEG(solidFrame(400, 200), 100, HighQuality)
	require.NoError(t, err)
	assert.True(t, IsJPEGData(data))
}

func TestFrameRoundTrip(t *testing.T) {
	frame := solidFrame(8, 4)
	mat, err := MatFromFrame(frame)
	require.NoError(t, err)
	defer mat.Close()

	back := FrameFromMat(mat, "cam", 3, frame.Timestamp)
	assert.Equal(t, frame.Data, back.Data)
	assert.Equal(t, 8, back.Width)
	assert.Equal(t, int64(3), back.FrameID)
}

func TestDataURL(t *testing.T) {
	assert.True(t, strings.HasPrefix(DataURL([]byte{0xFF, 0xD8}), "data:image/jpeg;base64,"))
	assert.False(t, IsJPEGData([]byte{0x89, 'P'}))
}
