package photos

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cattle-worker-go/internal/models"
)

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "photos")
	s, err := New(dir, func(*models.RawFrame) ([]byte, error) { return []byte("jpeg"), nil })
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 5, 10, 14, 3, 9, 0, time.Local) }

	path, err := s.Save(&models.RawFrame{}, "Vitória 2/b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Vitória_2_b_20260510_140309.jpg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestSaveEncodeError(t *testing.T) {
	s, err := New(t.TempDir(), func(*models.RawFrame) ([]byte, error) { return nil, errors.New("empty crop") })
	require.NoError(t, err)

	_, err = s.Save(&models.RawFrame{}, "Mimosa")
	assert.Error(t, err)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "Boi_123_2", SafeName("Boi_123_2"))
	assert.Equal(t, "Gaúcho", SafeName("Gaúcho"))
	assert.Equal(t, "a_b_c", SafeName("a/b.c"))
}
