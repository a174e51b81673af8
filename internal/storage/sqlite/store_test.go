package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/services/identity"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterAndLoad(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	w := 412.5

	id, err := s.Register(ctx, models.NewEntity{
		TenantID:    1,
		Category:    models.CategoryAnimal,
		Name:        "Mimosa",
		Embedding:   []float32{0.6, 0.8},
		Description: "Nelore branca",
		Breed:       "Nelore",
		Weight:      &w,
		PhotoPath:   "photos/Mimosa.jpg",
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.Register(ctx, models.NewEntity{TenantID: 1, Category: models.CategoryPerson, Name: "Visitante_001", Embedding: []float32{1, 0}})
	require.NoError(t, err)

	animals, err := s.LoadWithEmbeddings(ctx, 1, models.CategoryAnimal)
	require.NoError(t, err)
	require.Len(t, animals, 1)
	assert.Equal(t, "Mimosa", animals[0].Name)
	assert.Equal(t, []float32{0.6, 0.8}, animals[0].Embedding)
	assert.Equal(t, models.CategoryAnimal, animals[0].Category)

	other, err := s.LoadWithEmbeddings(ctx, 2, models.CategoryAnimal)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestEmbeddingSurvivesBankReload(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	emb := []float32{0.267261, 0.534522, 0.801784}

	bank := identity.NewBank(models.CategoryAnimal, 0.75, "Desconhecido")
	id, err := s.Register(ctx, models.NewEntity{TenantID: 1, Category: models.CategoryAnimal, Name: "Aurora", Embedding: emb})
	require.NoError(t, err)
	bank.Add(id, "Aurora", emb, "")

	records, err := s.LoadWithEmbeddings(ctx, 1, models.CategoryAnimal)
	require.NoError(t, err)
	reloaded := identity.NewBank(models.CategoryAnimal, 0.75, "Desconhecido")
	reloaded.Load(records)

	got := reloaded.Records()
	require.Len(t, got, 1)
	assert.InDeltaSlice(t, emb, got[0].Embedding, 1e-7)
	assert.Equal(t, bank.Identify(emb), reloaded.Identify(emb))
}

func TestExistsScopedByTenantAndCategory(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.Register(ctx, models.NewEntity{TenantID: 1, Category: models.CategoryAnimal, Name: "Bravo", Embedding: []float32{1}})
	require.NoError(t, err)

	ok, err := s.Exists(ctx, 1, models.CategoryAnimal, "Bravo")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, 2, models.CategoryAnimal, "Bravo")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Exists(ctx, 1, models.CategoryPerson, "Bravo")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Register(ctx, models.NewEntity{TenantID: 1, Category: models.CategoryAnimal, Name: "Bravo", Embedding: []float32{1}})
	assert.Error(t, err, "names are unique per tenant and category")
}

func TestPhotoBackfill(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a, err := s.Register(ctx, models.NewEntity{TenantID: 1, Category: models.CategoryAnimal, Name: "Flor", Embedding: []float32{1}})
	require.NoError(t, err)
	p, err := s.Register(ctx, models.NewEntity{TenantID: 3, Category: models.CategoryPerson, Name: "Convidado_001", Embedding: []float32{1}, PhotoPath: "x.jpg"})
	require.NoError(t, err)

	missing, err := s.ListWithoutPhoto(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.EntityRef{{TenantID: 1, Category: models.CategoryAnimal, ID: a}}, missing)

	require.NoError(t, s.UpdatePhoto(ctx, models.CategoryAnimal, a, "photos/Flor.jpg"))
	missing, err = s.ListWithoutPhoto(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)

	assert.ErrorIs(t, s.UpdatePhoto(ctx, models.CategoryPerson, p+100, "y.jpg"), ErrNotFound)
}

func TestMovements(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)

	for i, tenant := range []int64{1, 1, 2} {
		_, err := s.RecordMovement(ctx, models.Movement{
			TenantID:   tenant,
			Category:   models.CategoryAnimal,
			EntityID:   int64(i + 1),
			EntityName: "Mimosa",
			EventType:  models.MovementEntry,
			Source:     "camera_1",
			DetectedAt: at.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	all, err := s.ListMovements(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].EntityID, "newest first")

	t1, err := s.ListMovements(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, t1, 1)
	assert.Equal(t, int64(2), t1[0].EntityID)
	assert.True(t, at.Add(time.Minute).Equal(t1[0].DetectedAt))
	assert.Equal(t, "camera_1", t1[0].Source)

	_, err = s.RecordMovement(ctx, models.Movement{Category: "plant", EventType: "entry"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCameras(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	cam := models.Camera{ID: "curral-1", Name: "Curral", URL: "rtsp://10.0.0.5/stream", TenantID: 1, Active: true}
	require.NoError(t, s.UpsertCamera(ctx, cam))

	got, err := s.GetCamera(ctx, "curral-1")
	require.NoError(t, err)
	assert.Equal(t, cam.URL, got.URL)
	assert.True(t, got.Active)
	created := got.CreatedAt

	cam.Name = "Curral Norte"
	require.NoError(t, s.UpsertCamera(ctx, cam))
	got, err = s.GetCamera(ctx, "curral-1")
	require.NoError(t, err)
	assert.Equal(t, "Curral Norte", got.Name)
	assert.True(t, created.Equal(got.CreatedAt), "upsert keeps created_at")

	require.NoError(t, s.SetCameraActive(ctx, "curral-1", false))
	list, err := s.ListCameras(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)

	require.NoError(t, s.DeleteCamera(ctx, "curral-1"))
	_, err = s.GetCamera(ctx, "curral-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteCamera(ctx, "curral-1"), ErrNotFound)
	assert.ErrorIs(t, s.UpsertCamera(ctx, models.Camera{ID: "x"}), ErrInvalidInput)
}

func TestEmbeddingCodec(t *testing.T) {
	v := []float32{-1.5, 0, 3.25}
	got, err := DecodeEmbedding(EncodeEmbedding(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}
