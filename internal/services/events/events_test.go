package events

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"cattle-worker-go/internal/metrics"
	"cattle-worker-go/internal/models"
)

type recordingSub struct {
	id  string
	err error

	mu     sync.Mutex
	events []*models.RegistrationEvent
}

func (r *recordingSub) ID() string { return r.id }

func (r *recordingSub) Deliver(_ context.Context, ev *models.RegistrationEvent) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingSub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newBroadcaster(size int) *Broadcaster {
	return NewBroadcaster(size, time.Second, metrics.NewNoop(), zerolog.Nop())
}

func startConsumer(t *testing.T, b *Broadcaster) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()
	require.Eventually(t, b.Running, time.Second, time.Millisecond)
	return func() {
		cancel()
		<-done
	}
}

func TestPublishWithoutConsumerDrops(t *testing.T) {
	b := newBroadcaster(4)
	sub := &recordingSub{id: "a"}
	b.Subscribe(sub)

	err := b.Publish(&models.RegistrationEvent{EventID: "1"})
	assert.ErrorIs(t, err, ErrNoConsumer)
	assert.Equal(t, int64(1), b.Stats().Dropped)
	assert.Equal(t, 0, sub.count())
}

func TestDeliversToAllSubscribers(t *testing.T) {
	b := newBroadcaster(4)
	a, c := &recordingSub{id: "a"}, &recordingSub{id: "c"}
	b.Subscribe(a)
	b.Subscribe(c)
	stop := startConsumer(t, b)
	defer stop()

	require.NoError(t, b.Publish(&models.RegistrationEvent{EventID: "1", Name: "Mimosa"}))
	require.Eventually(t, func() bool { return a.count() == 1 && c.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "Mimosa", a.events[0].Name)
}

func TestFailingSubscriberIsPruned(t *testing.T) {
	b := newBroadcaster(4)
	bad := &recordingSub{id: "bad", err: errors.New("broken pipe")}
	good := &recordingSub{id: "good"}
	b.Subscribe(bad)
	b.Subscribe(good)
	stop := startConsumer(t, b)
	defer stop()

	require.NoError(t, b.Publish(&models.RegistrationEvent{EventID: "1"}))
	require.Eventually(t, func() bool { return b.Stats().Subscribers == 1 }, time.Second, time.Millisecond)

	require.NoError(t, b.Publish(&models.RegistrationEvent{EventID: "2"}))
	require.Eventually(t, func() bool { return good.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), b.Stats().Pruned)
}

func TestStoppedConsumerDrops(t *testing.T) {
	b := newBroadcaster(4)
	stop := startConsumer(t, b)
	stop()

	assert.False(t, b.Running())
	assert.ErrorIs(t, b.Publish(&models.RegistrationEvent{}), ErrNoConsumer)
}

func TestSecondRunRejected(t *testing.T) {
	b := newBroadcaster(1)
	stop := startConsumer(t, b)
	defer stop()

	assert.ErrorIs(t, b.Run(context.Background()), ErrAlreadyRunning)
}

type blockingSub struct {
	release chan struct{}
}

func (s *blockingSub) ID() string { return "slow" }

func (s *blockingSub) Deliver(ctx context.Context, _ *models.RegistrationEvent) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	b := NewBroadcaster(1, time.Minute, metrics.NewNoop(), zerolog.Nop())
	slow := &blockingSub{release: make(chan struct{})}
	b.Subscribe(slow)
	stop := startConsumer(t, b)
	defer func() {
		close(slow.release)
		stop()
	}()

	// first event occupies the consumer, second fills the queue
	require.NoError(t, b.Publish(&models.RegistrationEvent{EventID: "1"}))
	require.Eventually(t, func() bool { return b.Stats().Queued == 0 }, time.Second, time.Millisecond)
	require.NoError(t, b.Publish(&models.RegistrationEvent{EventID: "2"}))

	start := time.Now()
	err := b.Publish(&models.RegistrationEvent{EventID: "3"})
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

type fakePublisher struct {
	closed bool
	err    error
	sent   int
}

func (f *fakePublisher) Publish(string, interface{}) error {
	f.sent++
	return f.err
}

func (f *fakePublisher) IsClosed() bool { return f.closed }

func TestNATSSubscriber(t *testing.T) {
	pub := &fakePublisher{err: errors.New("slow consumer")}
	s := NewNATSSubscriber(pub, "cattle.registrations")
	assert.Equal(t, "nats:cattle.registrations", s.ID())

	assert.NoError(t, s.Deliver(context.Background(), &models.RegistrationEvent{}), "transient errors keep the sink")
	assert.Equal(t, 1, pub.sent)

	pub.closed = true
	assert.ErrorIs(t, s.Deliver(context.Background(), &models.RegistrationEvent{}), ErrSinkClosed)
}

func TestWebSocketSubscriber(t *testing.T) {
	b := newBroadcaster(4)
	stop := startConsumer(t, b)
	defer stop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		sub := NewWebSocketSubscriber(conn)
		b.Subscribe(sub)
		ctx := conn.CloseRead(r.Context())
		<-ctx.Done()
		b.Unsubscribe(sub.ID())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, srv.URL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return b.Stats().Subscribers == 1 }, time.Second, time.Millisecond)
	require.NoError(t, b.Publish(&models.RegistrationEvent{
		EventID:  "e1",
		Event:    models.EventAutoRegistered,
		Category: models.CategoryAnimal,
		Name:     "Estrela",
	}))

	var got map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, "auto_registered", got["event"])
	assert.Equal(t, "animal", got["entity_type"])
	assert.Equal(t, "Estrela", got["name"])
}
