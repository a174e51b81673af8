package registration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cattle-worker-go/internal/logging"
	"cattle-worker-go/internal/metrics"
	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/services/dedup"
	"cattle-worker-go/internal/services/presence"
)

// Store is the slice of the entity store registration writes to.
type Store interface {
	NameChecker
	Register(ctx context.Context, e models.NewEntity) (int64, error)
	RecordMovement(ctx context.Context, m models.Movement) (int64, error)
}

// Analyzer describes a crop. Errors never abort a registration.
type Analyzer interface {
	Available() bool
	Analyze(ctx context.Context, crop *models.RawFrame, category models.Category) (models.Analysis, error)
}

// PhotoSaver writes a crop to disk and returns its path.
type PhotoSaver interface {
	Save(crop *models.RawFrame, name string) (string, error)
}

// Bank is the identity bank the new entity joins.
type Bank interface {
	dedup.Similarity
	Add(id int64, name string, embedding []float32, description string)
}

// Request carries one unknown detection into the orchestrator.
type Request struct {
	TenantID  int64
	Category  models.Category
	CameraID  string
	Camera    string
	Source    string
	Crop      *models.RawFrame
	Embedding []float32
	Bank      Bank
	Buffer    *dedup.Buffer
}

// Deps wires the orchestrator. Analyzer and Photos may be nil.
type Deps struct {
	Store           Store
	Analyzer        Analyzer
	Photos          PhotoSaver
	Guard           dedup.Guard
	SeenToday       *presence.SeenToday
	NoPhoto         *presence.NoPhoto
	Names           map[models.Category]NameGenerator
	AnalyzerTimeout time.Duration
	Metrics         *metrics.Client
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Orchestrator serializes every auto-registration in the process. The dedup
// check, name choice, analysis, persistence and bank update all run under one
// lock so two cameras can never register the same entity twice.
type Orchestrator struct {
	mu sync.Mutex

	store           Store
	analyzer        Analyzer
	photos          PhotoSaver
	guard           dedup.Guard
	seen            *presence.SeenToday
	noPhoto         *presence.NoPhoto
	names           map[models.Category]NameGenerator
	analyzerTimeout time.Duration
	metrics         *metrics.Client
	logger          zerolog.Logger
	now             func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Names == nil {
		d.Names = map[models.Category]NameGenerator{
			models.CategoryAnimal: NewCattleNames(d.Store, nil),
			models.CategoryPerson: NewVisitorNames(d.Store, nil),
		}
	}
	if d.SeenToday == nil {
		d.SeenToday = presence.NewSeenToday(d.Now)
	}
	if d.NoPhoto == nil {
		d.NoPhoto = presence.NewNoPhoto()
	}
	return &Orchestrator{
		store:           d.Store,
		analyzer:        d.Analyzer,
		photos:          d.Photos,
		guard:           d.Guard,
		seen:            d.SeenToday,
		noPhoto:         d.NoPhoto,
		names:           d.Names,
		analyzerTimeout: d.AnalyzerTimeout,
		metrics:         d.Metrics,
		logger:          d.Logger,
		now:             d.Now,
	}
}

// Exclusive runs fn with registrations held off. Bank reloads go through it so
// a snapshot read before a registration cannot overwrite that registration.
func (o *Orchestrator) Exclusive(fn func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fn()
}

// Register auto-registers one unknown detection. A duplicate returns (nil, nil).
// Any error means the entity was not announced and will be retried on a later
// sighting.
func (o *Orchestrator) Register(ctx context.Context, req Request) (*models.RegistrationEvent, error) {
	if req.Bank == nil || len(req.Embedding) == 0 {
		return nil, fmt.Errorf("registration request for camera %s is missing bank or embedding", req.CameraID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	catTag := metrics.Tag(metrics.TagCategory, req.Category.String())
	defer o.metrics.TimingWithStart(metrics.RegistrationLatency, start, catTag)

	verdict := o.guard.Check(req.Bank, req.Buffer, req.Embedding, o.now())
	if verdict.Duplicate {
		o.logger.Debug().
			Str("camera_id", req.CameraID).
			Str("reason", string(verdict.Reason)).
			Float32("similarity", verdict.Similarity).
			Msg("Duplicate suppressed")
		o.metrics.Incr(metrics.RegistrationCount, metrics.Tag(metrics.TagOutcome, "duplicate_"+string(verdict.Reason)), catTag)
		return nil, nil
	}

	ev, err := o.register(ctx, req)
	if err != nil {
		o.metrics.Incr(metrics.RegistrationCount, metrics.Tag(metrics.TagOutcome, "failed"), catTag)
		return nil, err
	}
	o.metrics.Incr(metrics.RegistrationCount, metrics.Tag(metrics.TagOutcome, "registered"), catTag)
	return ev, nil
}

func (o *Orchestrator) register(ctx context.Context, req Request) (*models.RegistrationEvent, error) {
	gen, ok := o.names[req.Category]
	if !ok {
		return nil, fmt.Errorf("no name generator for category %q", req.Category)
	}
	name, err := gen.Generate(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate name: %w", err)
	}

	logger := logging.WithEntity(o.logger, req.TenantID, req.Category, name)
	analysis := o.analyze(ctx, req)

	photoPath := ""
	if o.photos != nil && req.Crop != nil {
		photoPath, err = o.photos.Save(req.Crop, name)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to save photo, will backfill on next sighting")
			photoPath = ""
		}
	}

	entityID, err := o.store.Register(ctx, models.NewEntity{
		TenantID:    req.TenantID,
		Category:    req.Category,
		Name:        name,
		Embedding:   req.Embedding,
		Description: analysis.Description,
		Breed:       analysis.Breed,
		Weight:      analysis.Weight,
		PhotoPath:   photoPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register %s %q: %w", req.Category, name, err)
	}

	now := o.now()
	req.Bank.Add(entityID, name, req.Embedding, analysis.Description)
	if req.Buffer != nil {
		req.Buffer.Append(req.Embedding, now)
	}

	key := presence.Key{TenantID: req.TenantID, Category: req.Category, ID: entityID}
	if photoPath == "" {
		o.noPhoto.Add(key)
	}

	if _, err := o.store.RecordMovement(ctx, models.Movement{
		TenantID:   req.TenantID,
		Category:   req.Category,
		EntityID:   entityID,
		EntityName: name,
		EventType:  models.MovementEntry,
		Source:     req.Source,
		DetectedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("registered %s %q (id %d) but failed to record entry: %w", req.Category, name, entityID, err)
	}
	o.seen.Mark(key)

	logger.Info().
		Str("camera_id", req.CameraID).
		Int64("entity_id", entityID).
		Msg("Entity auto-registered")

	return &models.RegistrationEvent{
		EventID:      uuid.NewString(),
		Event:        models.EventAutoRegistered,
		Category:     req.Category,
		EntityID:     entityID,
		Name:         name,
		Description:  analysis.Description,
		PhotoPath:    photoPath,
		CameraID:     req.CameraID,
		CameraName:   req.Camera,
		TenantID:     req.TenantID,
		RegisteredAt: now,
	}, nil
}

// analyze never fails: an unavailable or failing service yields an empty result.
func (o *Orchestrator) analyze(ctx context.Context, req Request) models.Analysis {
	if o.analyzer == nil || !o.analyzer.Available() || req.Crop == nil {
		return models.Analysis{}
	}

	actx := ctx
	if o.analyzerTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.analyzerTimeout)
		defer cancel()
	}

	analysis, err := o.analyzer.Analyze(actx, req.Crop, req.Category)
	if err != nil {
		o.logger.Warn().Err(err).Str("camera_id", req.CameraID).Msg("Analysis failed, registering without description")
		o.metrics.Incr(metrics.AnalyzerCalls, metrics.Tag(metrics.TagResult, "error"))
		return models.Analysis{}
	}
	o.metrics.Incr(metrics.AnalyzerCalls, metrics.Tag(metrics.TagResult, "ok"))
	return analysis
}

// SeenToday exposes the shared seen-today cache to the known-entity path.
func (o *Orchestrator) SeenToday() *presence.SeenToday {
	return o.seen
}

// NoPhoto exposes the shared no-photo set.
func (o *Orchestrator) NoPhoto() *presence.NoPhoto {
	return o.noPhoto
}
