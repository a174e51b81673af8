package registration

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"cattle-worker-go/internal/models"
)

// maxSuffix bounds the collision loop when the store keeps answering "exists".
const maxSuffix = 10000

var cattleNames = []string{
	"Mimosa", "Estrela", "Pintada", "Moreninha", "Branquinha", "Caramelo",
	"Pretinha", "Malhada", "Formosa", "Bonita", "Clarinha", "Rosinha",
	"Serena", "Vitória", "Aurora", "Bela", "Doce", "Flor", "Graça", "Hera",
	"Trovão", "Valente", "Bravo", "Capitão", "Guerreiro", "Forte", "Titã",
	"Rei", "Jaguar", "Sultan", "Barroso", "Manchado", "Pintado", "Gaúcho",
	"Cangaço", "Sertão", "Pampa", "Cerrado", "Chapadão", "Vaqueiro",
}

var visitorPrefixes = []string{"Visitante", "Funcionario", "Convidado", "Colaborador"}

// NameChecker answers whether a name is taken within {tenant, category}.
type NameChecker interface {
	Exists(ctx context.Context, tenantID int64, category models.Category, name string) (bool, error)
}

// NameGenerator produces a name unused within the tenant's category.
type NameGenerator interface {
	Generate(ctx context.Context, tenantID int64) (string, error)
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
}

// uniquify appends _2, _3, ... to base until the checker reports it free.
func uniquify(ctx context.Context, checker NameChecker, tenantID int64, category models.Category, base string) (string, error) {
	name := base
	for suffix := 2; ; suffix++ {
		taken, err := checker.Exists(ctx, tenantID, category, name)
		if err != nil {
			return "", fmt.Errorf("failed to check name %q: %w", name, err)
		}
		if !taken {
			return name, nil
		}
		if suffix > maxSuffix {
			return "", fmt.Errorf("no free name for base %q", base)
		}
		name = fmt.Sprintf("%s_%d", base, suffix)
	}
}

// CattleNames picks names from a curated pool, skipping names this process
// already handed out for the tenant. When the pool is exhausted the base
// becomes Boi_<100..999>.
type CattleNames struct {
	checker NameChecker

	mu   sync.Mutex
	rng  *rand.Rand
	used map[int64]map[string]struct{}
}

func NewCattleNames(checker NameChecker, rng *rand.Rand) *CattleNames {
	if rng == nil {
		rng = newRand()
	}
	return &CattleNames{checker: checker, rng: rng, used: make(map[int64]map[string]struct{})}
}

func (g *CattleNames) Generate(ctx context.Context, tenantID int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	used := g.used[tenantID]
	if used == nil {
		used = make(map[string]struct{})
		g.used[tenantID] = used
	}

	available := make([]string, 0, len(cattleNames))
	for _, n := range cattleNames {
		if _, ok := used[n]; !ok {
			available = append(available, n)
		}
	}

	var base string
	if len(available) > 0 {
		base = available[g.rng.IntN(len(available))]
	} else {
		base = fmt.Sprintf("Boi_%d", 100+g.rng.IntN(900))
	}

	name, err := uniquify(ctx, g.checker, tenantID, models.CategoryAnimal, base)
	if err != nil {
		return "", err
	}
	used[base] = struct{}{}
	used[name] = struct{}{}
	return name, nil
}

// VisitorNames builds <Prefix>_<NNN> with one counter per prefix and tenant.
type VisitorNames struct {
	checker NameChecker

	mu       sync.Mutex
	rng      *rand.Rand
	counters map[int64]map[string]int
}

func NewVisitorNames(checker NameChecker, rng *rand.Rand) *VisitorNames {
	if rng == nil {
		rng = newRand()
	}
	return &VisitorNames{checker: checker, rng: rng, counters: make(map[int64]map[string]int)}
}

func (g *VisitorNames) Generate(ctx context.Context, tenantID int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	counters := g.counters[tenantID]
	if counters == nil {
		counters = make(map[string]int)
		g.counters[tenantID] = counters
	}

	prefix := visitorPrefixes[g.rng.IntN(len(visitorPrefixes))]
	counters[prefix]++
	base := fmt.Sprintf("%s_%03d", prefix, counters[prefix])

	return uniquify(ctx, g.checker, tenantID, models.CategoryPerson, base)
}
