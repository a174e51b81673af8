package streamcapture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		source  string
		wantIdx int
		webcam  bool
	}{
		{"0", 0, true},
		{" 2 ", 2, true},
		{"-1", 0, false},
		{"rtsp://10.0.0.5:554/stream1", 0, false},
		{"/data/curral.mp4", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			idx, ok := ParseSource(tt.source)
			assert.Equal(t, tt.webcam, ok)
			assert.Equal(t, tt.wantIdx, idx)
		})
	}
}

func TestFFmpegOptionsStable(t *testing.T) {
	opts := FFmpegOptions()
	assert.Equal(t, opts, FFmpegOptions())
	assert.True(t, strings.HasPrefix(opts, "allowed_media_types;video|"))
	assert.Contains(t, opts, "rtsp_transport;tcp")
	assert.Len(t, strings.Split(opts, "|"), len(ffmpegOptions))
}

func TestClosedStream(t *testing.T) {
	st := &Stream{}
	assert.False(t, st.Opened())
	_, err := st.Read()
	assert.ErrorIs(t, err, ErrNotOpened)
	require.NoError(t, st.Close())
}

func TestValidateMissingFile(t *testing.T) {
	s := NewService(nil)
	res := s.ValidateSource("/nonexistent/curral.mp4")
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.ErrorDetail)
}
