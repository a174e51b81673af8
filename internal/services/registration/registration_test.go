package registration

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cattle-worker-go/internal/metrics"
	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/services/dedup"
	"cattle-worker-go/internal/services/identity"
	"cattle-worker-go/internal/services/presence"
)

type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	names       map[string]bool
	registered  []models.NewEntity
	movements   []models.Movement
	registerErr error
	movementErr error
	existsErr   error
}

func newFakeStore(startID int64, taken ...string) *fakeStore {
	s := &fakeStore{nextID: startID, names: map[string]bool{}}
	for _, n := range taken {
		s.names[n] = true
	}
	return s
}

func (s *fakeStore) Exists(_ context.Context, _ int64, _ models.Category, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.names[name], nil
}

func (s *fakeStore) Register(_ context.Context, e models.NewEntity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registerErr != nil {
		return 0, s.registerErr
	}
	id := s.nextID
	s.nextID++
	s.names[e.Name] = true
	s.registered = append(s.registered, e)
	return id, nil
}

func (s *fakeStore) RecordMovement(_ context.Context, m models.Movement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.movementErr != nil {
		return 0, s.movementErr
	}
	s.movements = append(s.movements, m)
	return int64(len(s.movements)), nil
}

type fakeAnalyzer struct {
	result models.Analysis
	err    error
	delay  time.Duration
	calls  int
}

func (a *fakeAnalyzer) Available() bool { return true }

func (a *fakeAnalyzer) Analyze(ctx context.Context, _ *models.RawFrame, _ models.Category) (models.Analysis, error) {
	a.calls++
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return models.Analysis{}, ctx.Err()
		}
	}
	return a.result, a.err
}

type fakePhotos struct {
	err error
}

func (p fakePhotos) Save(_ *models.RawFrame, name string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "photos/" + name + ".jpg", nil
}

// pair returns two unit vectors with cosine cos.
func pair(cos float64) ([]float32, []float32) {
	return []float32{1, 0}, []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func newOrchestrator(store *fakeStore, an Analyzer, photos PhotoSaver) *Orchestrator {
	rng := rand.New(rand.NewPCG(1, 2))
	return NewOrchestrator(Deps{
		Store:    store,
		Analyzer: an,
		Photos:   photos,
		Guard:    dedup.NewGuard(0.60, 0.68),
		Names: map[models.Category]NameGenerator{
			models.CategoryAnimal: NewCattleNames(store, rng),
			models.CategoryPerson: NewVisitorNames(store, rng),
		},
		AnalyzerTimeout: 50 * time.Millisecond,
		Metrics:         metrics.NewNoop(),
		Logger:          zerolog.Nop(),
	})
}

func request(bank *identity.Bank, buf *dedup.Buffer, emb []float32, cam string) Request {
	return Request{
		TenantID:  1,
		Category:  models.CategoryAnimal,
		CameraID:  cam,
		Camera:    "Curral " + cam,
		Source:    "camera_" + cam,
		Crop:      &models.RawFrame{Width: 40, Height: 40, Data: make([]byte, 40*40*3)},
		Embedding: emb,
		Bank:      bank,
		Buffer:    buf,
	}
}

func TestRegisterHappyPath(t *testing.T) {
	store := newFakeStore(7)
	an := &fakeAnalyzer{result: models.Analysis{Description: "Nelore adulto", Breed: "Nelore"}}
	o := newOrchestrator(store, an, fakePhotos{})
	bank := identity.NewBank(models.CategoryAnimal, 0.75, "Desconhecido")
	buf := dedup.NewBuffer(50, 10*time.Second)

	ev, err := o.Register(context.Background(), request(bank, buf, []float32{1, 0}, "1"))
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, int64(7), ev.EntityID)
	assert.Equal(t, models.EventAutoRegistered, ev.Event)
	assert.Equal(t, models.CategoryAnimal, ev.Category)
	assert.Equal(t, "Nelore adulto", ev.Description)
	assert.Equal(t, "1", ev.CameraID)
	assert.Equal(t, "Curral 1", ev.CameraName)
	assert.NotEmpty(t, ev.EventID)
	assert.Contains(t, cattleNames, ev.Name)

	m := bank.Identify([]float32{1, 0})
	assert.True(t, m.IsKnown)
	assert.Equal(t, ev.Name, m.Name)
	assert.Equal(t, 1, buf.Len())

	require.Len(t, store.movements, 1)
	assert.Equal(t, models.MovementEntry, store.movements[0].EventType)
	assert.Equal(t, "camera_1", store.movements[0].Source)
	assert.True(t, o.SeenToday().Seen(presence.Key{TenantID: 1, Category: models.CategoryAnimal, ID: 7}))
	assert.Equal(t, "Nelore", store.registered[0].Breed)
}

func TestRegisterSecondCameraSuppressedByGlobalGuard(t *testing.T) {
	store := newFakeStore(7)
	o := newOrchestrator(store, nil, fakePhotos{})
	bank := identity.NewBank(models.CategoryAnimal, 0.75, "Desconhecido")
	e1, e2 := pair(0.62)

	ev1, err := o.Register(context.Background(), request(bank, dedup.NewBuffer(50, 10*time.Second), e1, "1"))
	require.NoError(t, err)
	require.NotNil(t, ev1)
	assert.Equal(t, int64(7), ev1.EntityID)

	// below identify, above the global guard
	assert.False(t, bank.Identify(e2).IsKnown)

	ev2, err := o.Register(context.Background(), request(bank, dedup.NewBuffer(50, 10*time.Second), e2, "2"))
	require.NoError(t, err)
	assert.Nil(t, ev2)
	assert.Len(t, store.registered, 1)
}

func TestRegisterConcurrentAttemptsRegisterOnce(t *testing.T) {
	for round := 0; round < 20; round++ {
		store := newFakeStore(1)
		o := newOrchestrator(store, nil, nil)
		bank := identity.NewBank(models.CategoryAnimal, 0.75, "Desconhecido")
		e1, e2 := pair(0.62)

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			events []*models.RegistrationEvent
		)
		for i, emb := range [][]float32{e1, e2} {
			wg.Add(1)
			go func(cam string, emb []float32) {
				defer wg.Done()
				ev, err := o.Register(context.Background(), request(bank, dedup.NewBuffer(50, 10*time.Second), emb, cam))
				assert.NoError(t, err)
				mu.Lock()
				events = append(events, ev)
				mu.Unlock()
			}(string(rune('a'+i)), emb)
		}
		wg.Wait()

		registered := 0
		for _, ev := range events {
			if ev != nil {
				registered++
			}
		}
		require.Equal(t, 1, registered, "round %d", round)
		require.Equal(t, 1, bank.Len())
	}
}

func TestRegisterBufferGuard(t *testing.T) {
	store := newFakeStore(1)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	o := newOrchestrator(store, nil, nil)
	o.now = func() time.Time { return now }

	buf := dedup.NewBuffer(50, 10*time.Second)
	buf.Append([]float32{1, 0}, now.Add(-2*time.Second))
	// bank does not know it, e.g. after a reload raced the registration
	bank := identity.NewBank(models.CategoryAnimal, 0.75, "Desconhecido")

	_, q := pair(0.70)
	ev, err := o.Register(context.Background(), request(bank, buf, q, "1"))
	require.NoError(t, err)
	assert.Nil(t, ev)

	now = now.Add(20 * time.Second)
	ev, err = o.Register(context.Background(), request(bank, buf, q, "1"))
	require.NoError(t, err)
	assert.NotNil(t, ev, "expired buffer entry no longer blocks")
}

func TestRegisterAnalyzerFailureStillRegisters(t *testing.T) {
	tests := []struct {
		name string
		an   *fakeAnalyzer
	}{
		{"error", &fakeAnalyzer{err: errors.New("service down")}},
		{"timeout", &fakeAnalyzer{delay: time.Second, result: models.Analysis{Description: "late"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(1)
			o := newOrchestrator(store, tt.an, fakePhotos{})
			bank := identity.NewBank(models.CategoryAnimal, 0.75, "Desconhecido")

			ev, err := o.Register(context.Background(), request(bank, nil, []float32{0, 1}, "1"))
			require.NoError(t, err)
			require.NotNil(t, ev)
			assert.Empty(t, ev.Description)
			assert.Equal(t, 1, tt.an.calls)
		})
	}
}

func TestRegisterPhotoFailureQueuesBackfill(t *testing.T) {
	store := newFakeStore(3)
	o := newOrchestrator(store, nil, fakePhotos{err: errors.New("disk full")})
	bank := identity.NewBank(models.CategoryAnimal, 0.75, "Desconhecido")

	ev, err := o.Register(context.Background(), request(bank, nil, []float32{1, 0}, "1"))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Empty(t, ev.PhotoPath)
	assert.True(t, o.NoPhoto().Needs(presence.Key{TenantID: 1, Category: models.CategoryAnimal, ID: 3}))
}

func TestRegisterStoreFailureNoEvent(t *testing.T) {
	store := newFakeStore(1)
	store.registerErr = errors.New("constraint failed")
	o := newOrchestrator(store, nil, nil)
	bank := identity.NewBank(models.CategoryAnimal, 0.75, "Desconhecido")
	buf := dedup.NewBuffer(50, 10*time.Second)

	ev, err := o.Register(context.Background(), request(bank, buf, []float32{1, 0}, "1"))
	require.Error(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, 0, bank.Len())
	assert.Equal(t, 0, buf.Len())
}

func TestRegisterMovementFailureKeepsEntity(t *testing.T) {
	store := newFakeStore(1)
	store.movementErr = errors.New("database is locked")
	o := newOrchestrator(store, nil, nil)
	bank := identity.NewBank(models.CategoryAnimal, 0.75, "Desconhecido")

	ev, err := o.Register(context.Background(), request(bank, nil, []float32{1, 0}, "1"))
	require.Error(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, 1, bank.Len(), "the entity stays registered")
	assert.False(t, o.SeenToday().Seen(presence.Key{TenantID: 1, Category: models.CategoryAnimal, ID: 1}))
}

func TestRegisterRejectsIncompleteRequest(t *testing.T) {
	o := newOrchestrator(newFakeStore(1), nil, nil)
	_, err := o.Register(context.Background(), Request{Category: models.CategoryAnimal})
	assert.Error(t, err)
}

func TestCattleNamesAvoidCollisions(t *testing.T) {
	store := newFakeStore(1, cattleNames...)
	for _, n := range cattleNames {
		store.names[n+"_2"] = true
	}
	g := NewCattleNames(store, rand.New(rand.NewPCG(3, 4)))

	name, err := g.Generate(context.Background(), 1)
	require.NoError(t, err)
	assert.Regexp(t, `_3$`, name)
	taken, _ := store.Exists(context.Background(), 1, models.CategoryAnimal, name)
	assert.False(t, taken)
}

func TestCattleNamesExhaustPool(t *testing.T) {
	store := newFakeStore(1)
	g := NewCattleNames(store, rand.New(rand.NewPCG(5, 6)))
	ctx := context.Background()

	seen := map[string]bool{}
	for range cattleNames {
		name, err := g.Generate(ctx, 1)
		require.NoError(t, err)
		assert.False(t, seen[name], "pool names are not reused")
		seen[name] = true
		store.names[name] = true
	}

	name, err := g.Generate(ctx, 1)
	require.NoError(t, err)
	assert.Regexp(t, `^Boi_[1-9][0-9]{2}(_[0-9]+)?$`, name)

	// another tenant starts from the full pool; the fake store is not tenant aware
	other, err := g.Generate(ctx, 2)
	require.NoError(t, err)
	assert.Contains(t, cattleNames, strings.TrimSuffix(other, "_2"))
}

func TestVisitorNames(t *testing.T) {
	store := newFakeStore(1)
	g := NewVisitorNames(store, rand.New(rand.NewPCG(7, 8)))
	ctx := context.Background()

	name, err := g.Generate(ctx, 1)
	require.NoError(t, err)
	assert.Regexp(t, `^(Visitante|Funcionario|Convidado|Colaborador)_001$`, name)

	counts := map[string]bool{name: true}
	for i := 0; i < 30; i++ {
		n, err := g.Generate(ctx, 1)
		require.NoError(t, err)
		assert.False(t, counts[n])
		counts[n] = true
	}
}

func TestVisitorNamesSuffixOnCollision(t *testing.T) {
	store := newFakeStore(1)
	for _, p := range visitorPrefixes {
		store.names[p+"_001"] = true
		store.names[p+"_001_2"] = true
	}
	g := NewVisitorNames(store, nil)

	name, err := g.Generate(context.Background(), 1)
	require.NoError(t, err)
	assert.Regexp(t, `_001_3$`, name)
}

func TestNameCheckerError(t *testing.T) {
	store := newFakeStore(1)
	store.existsErr = errors.New("closed")

	_, err := NewVisitorNames(store, nil).Generate(context.Background(), 1)
	assert.ErrorIs(t, err, store.existsErr)
}

// stallingLoader returns an empty snapshot and, once armed, holds the first
// animal load open until released.
type stallingLoader struct {
	armed   chan struct{}
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (l *stallingLoader) LoadWithEmbeddings(_ context.Context, _ int64, c models.Category) ([]models.EntityRecord, error) {
	if c != models.CategoryAnimal {
		return nil, nil
	}
	select {
	case <-l.armed:
		l.once.Do(func() {
			close(l.read)
			<-l.release
		})
	default:
	}
	return nil, nil
}

func TestReloadDoesNotDropConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	loader := &stallingLoader{armed: make(chan struct{}), read: make(chan struct{}), release: make(chan struct{})}
	reg := identity.NewRegistry(loader, 0.75, "Desconhecido", zerolog.Nop())
	bank, err := reg.Bank(ctx, 1, models.CategoryAnimal)
	require.NoError(t, err)

	store := newFakeStore(1)
	o := newOrchestrator(store, nil, nil)

	close(loader.armed)
	reloaded := make(chan error, 1)
	go func() {
		reloaded <- o.Exclusive(func() error { return reg.Reload(ctx, 0) })
	}()
	<-loader.read

	emb := []float32{1, 0}
	registered := make(chan *models.RegistrationEvent, 1)
	go func() {
		ev, err := o.Register(ctx, request(bank, nil, emb, "a"))
		assert.NoError(t, err)
		registered <- ev
	}()

	select {
	case <-registered:
		t.Fatal("registration ran while the bank snapshot was being swapped")
	case <-time.After(50 * time.Millisecond):
	}

	close(loader.release)
	require.NoError(t, <-reloaded)
	require.NotNil(t, <-registered)
	assert.Equal(t, 1, bank.Len(), "entity registered during reload stays in the bank")

	ev, err := o.Register(ctx, request(bank, nil, emb, "b"))
	require.NoError(t, err)
	assert.Nil(t, ev, "second camera sees the entity as a duplicate")
	assert.Len(t, store.registered, 1)
}
