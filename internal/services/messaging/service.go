package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"cattle-worker-go/internal/config"
)

// Service owns the worker's NATS connection. Registration events go out on
// EventsSubject and reload requests come in on ReloadSubject.
type Service struct {
	conn   *nats.Conn
	cfg    *config.Config
	logger zerolog.Logger

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed chan struct{}
}

func NewService(cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	closed := make(chan struct{})
	opts := []nats.Option{
		nats.Name("cattle-worker-" + cfg.WorkerID),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected, registration events will be lost until reconnect")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS connection closed")
			close(closed)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := logger.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS async error")
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NatsURL, err)
	}

	logger.Info().
		Str("url", cfg.NatsURL).
		Str("events_subject", cfg.EventsSubject).
		Str("reload_subject", cfg.ReloadSubject).
		Msg("NATS connection established")

	return &Service{conn: conn, cfg: cfg, logger: logger, closed: closed}, nil
}

// Publish sends data as JSON. The worker id travels in a header so consumers
// can tell which process saw the entity first.
func (s *Service) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", subject, err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set("Worker-Id", s.cfg.WorkerID)
	return s.conn.PublishMsg(msg)
}

// Subscribe registers handler on subject. Subscriptions are drained on Shutdown.
func (s *Service) Subscribe(subject string, handler func([]byte)) (*nats.Subscription, error) {
	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub, nil
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// IsClosed is true once the connection will never reconnect.
func (s *Service) IsClosed() bool {
	return s.conn == nil || s.conn.IsClosed()
}

// Shutdown drains subscriptions and pending publishes, closing immediately
// when ctx expires first.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}

	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.logger.Debug().Err(err).Str("subject", sub.Subject).Msg("Unsubscribe failed")
		}
	}

	if err := s.conn.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
		s.conn.Close()
		return nil
	}
	select {
	case <-s.closed:
		return nil
	case <-ctx.Done():
		s.conn.Close()
		return ctx.Err()
	}
}
