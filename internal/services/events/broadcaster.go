package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cattle-worker-go/internal/metrics"
	"cattle-worker-go/internal/models"
)

var (
	// ErrNoConsumer means the event was dropped because Run is not active.
	ErrNoConsumer = errors.New("no event consumer running")
	// ErrBufferFull means the event was dropped because the queue is full.
	ErrBufferFull = errors.New("event queue full")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("event consumer already running")
)

// Subscriber receives registration events. A Deliver error removes it.
type Subscriber interface {
	ID() string
	Deliver(ctx context.Context, ev *models.RegistrationEvent) error
}

// Stats is a snapshot of broadcaster counters.
type Stats struct {
	Running     bool  `json:"running"`
	Subscribers int   `json:"subscribers"`
	Queued      int   `json:"queued"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
	Pruned      int64 `json:"pruned"`
}

// Broadcaster hands events from camera workers to one consumer goroutine that
// fans them out to subscribers. Delivery is at most once: events published
// while no consumer runs, or while the queue is full, are dropped and counted.
type Broadcaster struct {
	queue   chan *models.RegistrationEvent
	timeout time.Duration
	metrics *metrics.Client
	logger  zerolog.Logger

	running atomic.Bool

	mu   sync.RWMutex
	subs map[string]Subscriber

	delivered atomic.Int64
	dropped   atomic.Int64
	pruned    atomic.Int64
}

func NewBroadcaster(bufferSize int, deliveryTimeout time.Duration, m *metrics.Client, logger zerolog.Logger) *Broadcaster {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Broadcaster{
		queue:   make(chan *models.RegistrationEvent, bufferSize),
		timeout: deliveryTimeout,
		metrics: m,
		logger:  logger,
		subs:    make(map[string]Subscriber),
	}
}

func (b *Broadcaster) Subscribe(s Subscriber) {
	b.mu.Lock()
	b.subs[s.ID()] = s
	n := len(b.subs)
	b.mu.Unlock()
	b.logger.Info().Str("subscriber", s.ID()).Int("total", n).Msg("Event subscriber added")
}

func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	_, ok := b.subs[id]
	delete(b.subs, id)
	n := len(b.subs)
	b.mu.Unlock()
	if ok {
		b.logger.Info().Str("subscriber", id).Int("total", n).Msg("Event subscriber removed")
	}
}

// Publish never blocks the caller.
func (b *Broadcaster) Publish(ev *models.RegistrationEvent) error {
	if ev == nil {
		return nil
	}
	if !b.running.Load() {
		b.drop(ev, "no_consumer")
		return ErrNoConsumer
	}
	select {
	case b.queue <- ev:
		return nil
	default:
		b.drop(ev, "queue_full")
		return ErrBufferFull
	}
}

func (b *Broadcaster) drop(ev *models.RegistrationEvent, reason string) {
	b.dropped.Add(1)
	b.metrics.Incr(metrics.EventsDropped, metrics.Tag("reason", reason))
	b.logger.Debug().Str("event_id", ev.EventID).Str("reason", reason).Msg("Registration event dropped")
}

// Run consumes the queue until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer b.running.Store(false)

	b.logger.Info().Msg("Event consumer started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Event consumer stopped")
			return nil
		case ev := <-b.queue:
			b.fanOut(ctx, ev)
		}
	}
}

func (b *Broadcaster) fanOut(ctx context.Context, ev *models.RegistrationEvent) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.deliverOne(ctx, s, ev); err != nil {
			b.pruned.Add(1)
			b.Unsubscribe(s.ID())
			b.logger.Warn().Err(err).Str("subscriber", s.ID()).Msg("Event delivery failed, subscriber pruned")
			continue
		}
		b.delivered.Add(1)
		b.metrics.Incr(metrics.EventsDelivered)
	}
}

func (b *Broadcaster) deliverOne(ctx context.Context, s Subscriber, ev *models.RegistrationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("subscriber", s.ID()).Msg("Subscriber panicked")
			err = errors.New("subscriber panicked")
		}
	}()

	dctx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return s.Deliver(dctx, ev)
}

func (b *Broadcaster) Running() bool {
	return b.running.Load()
}

func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		Running:     b.running.Load(),
		Subscribers: n,
		Queued:      len(b.queue),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Pruned:      b.pruned.Load(),
	}
}
