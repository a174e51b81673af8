package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"cattle-worker-go/internal/config"
	"cattle-worker-go/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		breed  string
		weight *float64
		desc   string
	}{
		{
			name:   "structured",
			text:   "RAÇA: Nelore\nPESO_ESTIMADO: 420\nDESCRIÇÃO: Pelagem branca, corcova proeminente.",
			breed:  "Nelore",
			weight: ptr(420),
			desc:   "Pelagem branca, corcova proeminente.",
		},
		{
			name:   "kg suffix and lowercase keys",
			text:   "raça: Angus\npeso_estimado: 380.5 kg\ndescrição: Preto, sem chifres.",
			breed:  "Angus",
			weight: ptr(380.5),
			desc:   "Preto, sem chifres.",
		},
		{
			name:  "unparsable weight",
			text:  "RAÇA: Mestiço\nPESO_ESTIMADO: N/A\nDESCRIÇÃO: Malhado.",
			breed: "Mestiço",
			desc:  "Malhado.",
		},
		{
			name:  "free text falls back to whole text and keyword breed",
			text:  "Animal de pelagem avermelhada, provavelmente girolando.",
			breed: "Gir",
			desc:  "Animal de pelagem avermelhada, provavelmente girolando.",
		},
		{
			name: "empty",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			assert.Equal(t, tt.breed, got.Breed)
			assert.Equal(t, tt.desc, got.Description)
			if tt.weight == nil {
				assert.Nil(t, got.Weight)
			} else {
				require.NotNil(t, got.Weight)
				assert.InDelta(t, *tt.weight, *got.Weight, 1e-9)
			}
		})
	}
}

func TestExtractBreed(t *testing.T) {
	assert.Equal(t, "Hereford", ExtractBreed("cruza HEREFORD com zebu"))
	assert.Equal(t, "Charolês", ExtractBreed("parece charolês"))
	assert.Equal(t, "", ExtractBreed("sem raça definida"))
}

func ptr(f float64) *float64 { return &f }

type scriptedInvoker struct {
	text  string
	err   error
	calls int
}

func (s *scriptedInvoker) Invoke(_ context.Context, method string, req, reply *structpb.Struct) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	if method != MethodDescribe || req.Fields["category"].GetStringValue() == "" {
		return errors.New("bad request")
	}
	reply.Fields = map[string]*structpb.Value{"text": structpb.NewStringValue(s.text)}
	return nil
}

func encodeOK(*models.RawFrame) ([]byte, error) { return []byte{1, 2, 3}, nil }

func TestAnalyze(t *testing.T) {
	inv := &scriptedInvoker{text: "RAÇA: Gir\nDESCRIÇÃO: Orelhas longas."}
	c := NewWithInvoker(inv, encodeOK, BreakerConfig{MaxFailures: 3, OpenTimeout: time.Minute}, zerolog.Nop())

	a, err := c.Analyze(context.Background(), &models.RawFrame{}, models.CategoryAnimal)
	require.NoError(t, err)
	assert.Equal(t, "Gir", a.Breed)
	assert.Equal(t, "Orelhas longas.", a.Description)
	assert.Equal(t, "closed", c.State())
}

func TestAnalyzeUnavailable(t *testing.T) {
	c, err := New(&config.Config{}, encodeOK, zerolog.Nop())
	require.NoError(t, err)

	assert.False(t, c.Available())
	_, err = c.Analyze(context.Background(), &models.RawFrame{}, models.CategoryAnimal)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "unavailable", c.State())
	assert.NoError(t, c.Close())
}

func TestAnalyzeCircuitOpens(t *testing.T) {
	inv := &scriptedInvoker{err: errors.New("deadline exceeded")}
	c := NewWithInvoker(inv, encodeOK, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Hour}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Analyze(ctx, &models.RawFrame{}, models.CategoryPerson)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := c.Analyze(ctx, &models.RawFrame{}, models.CategoryPerson)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, inv.calls, "open circuit does not reach the service")
	assert.Equal(t, "open", c.State())
}

func TestAnalyzeCancelledContext(t *testing.T) {
	inv := &scriptedInvoker{text: "x"}
	c := NewWithInvoker(inv, encodeOK, BreakerConfig{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Analyze(ctx, &models.RawFrame{}, models.CategoryAnimal)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, inv.calls)
}
