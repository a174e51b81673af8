package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"cattle-worker-go/internal/models"
)

// Loader reads every entity of one {tenant, category} with its embedding.
type Loader interface {
	LoadWithEmbeddings(ctx context.Context, tenantID int64, category models.Category) ([]models.EntityRecord, error)
}

// TenantBanks holds the two independent banks of one tenant.
type TenantBanks struct {
	TenantID int64
	animals  *Bank
	people   *Bank
}

// For returns the bank of the given category. Cross-category lookups are never made.
func (t *TenantBanks) For(category models.Category) *Bank {
	if category == models.CategoryPerson {
		return t.people
	}
	return t.animals
}

// BankStats is a size snapshot for one bank.
type BankStats struct {
	TenantID int64           `json:"tenant_id"`
	Category models.Category `json:"category"`
	Size     int             `json:"size"`
}

// Registry owns the banks of every tenant, populated from the store on first use.
type Registry struct {
	loader       Loader
	threshold    float32
	unknownLabel string
	logger       zerolog.Logger

	mu      sync.RWMutex
	tenants map[int64]*TenantBanks
}

func NewRegistry(loader Loader, threshold float32, unknownLabel string, logger zerolog.Logger) *Registry {
	return &Registry{
		loader:       loader,
		threshold:    threshold,
		unknownLabel: unknownLabel,
		logger:       logger,
		tenants:      make(map[int64]*TenantBanks),
	}
}

func (r *Registry) UnknownLabel() string {
	return r.unknownLabel
}

// Banks returns the tenant's banks, loading them from the store the first time.
func (r *Registry) Banks(ctx context.Context, tenantID int64) (*TenantBanks, error) {
	r.mu.RLock()
	tb, ok := r.tenants[tenantID]
	r.mu.RUnlock()
	if ok {
		return tb, nil
	}

	fresh := &TenantBanks{
		TenantID: tenantID,
		animals:  NewBank(models.CategoryAnimal, r.threshold, r.unknownLabel),
		people:   NewBank(models.CategoryPerson, r.threshold, r.unknownLabel),
	}
	if err := r.populate(ctx, fresh); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tenants[tenantID]; ok {
		return existing, nil
	}
	r.tenants[tenantID] = fresh

	r.logger.Info().
		Int64("tenant_id", tenantID).
		Int("animals", fresh.animals.Len()).
		Int("people", fresh.people.Len()).
		Msg("Identity banks loaded")
	return fresh, nil
}

// Bank is a shortcut for Banks(...).For(category).
func (r *Registry) Bank(ctx context.Context, tenantID int64, category models.Category) (*Bank, error) {
	tb, err := r.Banks(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return tb.For(category), nil
}

// Reload rebuilds loaded banks from the store without stopping readers.
// tenantID 0 reloads every loaded tenant; a tenant not loaded yet is skipped
// since its banks are read fresh on first use. Callers must keep registrations
// out while it runs or an entity added mid-reload is lost in the swap.
func (r *Registry) Reload(ctx context.Context, tenantID int64) error {
	r.mu.RLock()
	loaded := make([]*TenantBanks, 0, len(r.tenants))
	for id, tb := range r.tenants {
		if tenantID == 0 || id == tenantID {
			loaded = append(loaded, tb)
		}
	}
	r.mu.RUnlock()

	for _, tb := range loaded {
		if err := r.populate(ctx, tb); err != nil {
			return err
		}
	}

	r.logger.Info().Int64("tenant_id", tenantID).Int("tenants", len(loaded)).Msg("Identity banks reloaded")
	return nil
}

// Stats lists bank sizes ordered by tenant then category.
func (r *Registry) Stats() []BankStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BankStats, 0, len(r.tenants)*len(models.Categories))
	for id, tb := range r.tenants {
		for _, c := range models.Categories {
			out = append(out, BankStats{TenantID: id, Category: c, Size: tb.For(c).Len()})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func (r *Registry) populate(ctx context.Context, tb *TenantBanks) error {
	for _, c := range models.Categories {
		records, err := r.loader.LoadWithEmbeddings(ctx, tb.TenantID, c)
		if err != nil {
			return fmt.Errorf("failed to load %s bank for tenant %d: %w", c, tb.TenantID, err)
		}
		tb.For(c).Load(records)
	}
	return nil
}
