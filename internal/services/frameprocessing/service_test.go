package frameprocessing

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cattle-worker-go/internal/helpers"
	"cattle-worker-go/internal/models"
)

func grayFrame(w, h int) *models.RawFrame {
	data := make([]byte, w*h*models.Channels)
	for i := range data {
		data[i] = 90
	}
	return &models.RawFrame{Data: data, Width: w, Height: h}
}

func TestLabelBaseline(t *testing.T) {
	assert.Equal(t, image.Pt(40, 70), LabelBaseline(models.BBox{X1: 40, Y1: 80, X2: 90, Y2: 120}))
	assert.Equal(t, image.Pt(5, 20), LabelBaseline(models.BBox{X1: 5, Y1: 3, X2: 50, Y2: 50}))
}

func TestAnnotateLeavesSourceUntouched(t *testing.T) {
	r := NewRenderer("Cattle AI", 75)
	r.now = func() time.Time { return time.Date(2026, 1, 2, 8, 30, 0, 0, time.Local) }

	frame := grayFrame(160, 120)
	before := append([]byte(nil), frame.Data...)

	out, err := r.Annotate(frame, []models.Annotation{
		{
			Detection: models.Detection{BBox: models.BBox{X1: 10, Y1: 30, X2: 80, Y2: 100}, Category: models.CategoryAnimal},
			Match:     models.IdentityMatch{Name: "Mimosa", EntityID: 4, Similarity: 0.91, IsKnown: true},
		},
		{
			Detection: models.Detection{BBox: models.BBox{X1: 90, Y1: 20, X2: 150, Y2: 110}, Category: models.CategoryPerson},
			Match:     models.UnknownMatch("Desconhecido", 0.3),
		},
	})
	require.NoError(t, err)
	assert.True(t, helpers.IsJPEGData(out))
	assert.Equal(t, before, frame.Data)
}

func TestAnnotateInvalidFrame(t *testing.T) {
	_, err := NewRenderer("x", 75).Annotate(&models.RawFrame{Width: 4, Height: 4}, nil)
	assert.Error(t, err)
}

func TestPlaceholder(t *testing.T) {
	out, err := NewRenderer("x", 0).Placeholder("Sem sinal")
	require.NoError(t, err)
	assert.True(t, helpers.IsJPEGData(out))
}
