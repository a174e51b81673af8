package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"cattle-worker-go/internal/models"
)

// ErrSinkClosed tells the broadcaster to prune a sink that can never recover.
var ErrSinkClosed = errors.New("event sink closed")

// WebSocketSubscriber pushes each event to one browser as JSON.
type WebSocketSubscriber struct {
	id   string
	conn *websocket.Conn

	mu sync.Mutex
}

func NewWebSocketSubscriber(conn *websocket.Conn) *WebSocketSubscriber {
	return &WebSocketSubscriber{id: "ws:" + uuid.NewString(), conn: conn}
}

func (w *WebSocketSubscriber) ID() string { return w.id }

func (w *WebSocketSubscriber) Deliver(ctx context.Context, ev *models.RegistrationEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return wsjson.Write(ctx, w.conn, ev)
}

func (w *WebSocketSubscriber) Close(reason string) {
	_ = w.conn.Close(websocket.StatusNormalClosure, reason)
}

// Publisher is the messaging surface the NATS sink needs.
type Publisher interface {
	Publish(subject string, data interface{}) error
	IsClosed() bool
}

// NATSSubscriber republishes events on a subject for other processes. It is
// pruned only once the connection is closed for good; transient publish
// errors are logged and the event is lost.
type NATSSubscriber struct {
	pub     Publisher
	subject string
}

func NewNATSSubscriber(pub Publisher, subject string) *NATSSubscriber {
	return &NATSSubscriber{pub: pub, subject: subject}
}

func (n *NATSSubscriber) ID() string { return "nats:" + n.subject }

func (n *NATSSubscriber) Deliver(_ context.Context, ev *models.RegistrationEvent) error {
	if n.pub.IsClosed() {
		return ErrSinkClosed
	}
	if err := n.pub.Publish(n.subject, ev); err != nil {
		log.Warn().Err(err).Str("subject", n.subject).Str("event_id", ev.EventID).Msg("Failed to publish registration event")
	}
	return nil
}
