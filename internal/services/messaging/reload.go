package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// ReloadRequest asks every worker to refresh its identity banks from the
// database. TenantID 0 means all loaded tenants; the no-photo set is always
// reloaded whole.
type ReloadRequest struct {
	TenantID    int64  `json:"tenant_id"`
	RequestedBy string `json:"requested_by"`
}

// ReloadFunc refreshes identity state.
type ReloadFunc func(ctx context.Context, req ReloadRequest) error

// DecodeReload accepts an empty payload as a reload of everything.
func DecodeReload(data []byte) (ReloadRequest, error) {
	var req ReloadRequest
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("invalid reload request: %w", err)
	}
	if req.TenantID < 0 {
		return req, fmt.Errorf("invalid reload request: negative tenant_id %d", req.TenantID)
	}
	return req, nil
}

// HandleReload decodes one message and runs fn, logging the outcome.
func HandleReload(ctx context.Context, data []byte, fn ReloadFunc) error {
	req, err := DecodeReload(data)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring reload request")
		return err
	}
	if err := fn(ctx, req); err != nil {
		log.Error().Err(err).Int64("tenant_id", req.TenantID).Msg("Reload failed")
		return err
	}
	log.Info().Int64("tenant_id", req.TenantID).Str("requested_by", req.RequestedBy).Msg("Identity banks reloaded")
	return nil
}

// SubscribeReload wires the reload subject so any process can trigger a bank
// refresh.
func (s *Service) SubscribeReload(ctx context.Context, fn ReloadFunc) (*nats.Subscription, error) {
	return s.Subscribe(s.cfg.ReloadSubject, func(data []byte) {
		_ = HandleReload(ctx, data, fn)
	})
}
