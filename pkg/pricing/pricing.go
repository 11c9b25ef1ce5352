// Package pricing canonicalizes model names and computes USD cost from
// token counts. The catalogue is pulled from the control store and cached
// with a TTL; a compiled-in catalogue backs it when the store is
// unavailable.
package pricing

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Rate is the per-million-token pricing for one canonical model.
type Rate struct {
	Model            string  `json:"model"`
	Provider         string  `json:"provider"`
	InputPer1M       float64 `json:"input_per_1m"`
	OutputPer1M      float64 `json:"output_per_1m"`
	CachedInputPer1M float64 `json:"cached_input_per_1m"`
	Aliases          []string `json:"aliases,omitempty"`
}

// Quote pricing sources.
const (
	SourceCatalogue    = "catalogue"
	SourceBedrockMatch = "bedrock_match"
	SourceDefault      = "default"
)

// Quote is the resolved pricing for a model lookup.
type Quote struct {
	InputPer1M       float64 `json:"input_per_Mtok"`
	OutputPer1M      float64 `json:"output_per_Mtok"`
	CachedInputPer1M float64 `json:"cached_per_Mtok"`
	CanonicalModel   string  `json:"canonicalModel"`
	Provider         string  `json:"provider"`
	Source           string  `json:"source"`
}

// CostInput carries the token counts of a call to price.
type CostInput struct {
	Model  string
	Input  int64
	Output int64
	Cached int64
}

// Cost is the per-component USD cost of a call.
type Cost struct {
	Total      float64 `json:"total"`
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	CachedCost float64 `json:"cached_cost"`
	Pricing    Quote   `json:"pricing"`
}

// defaultRate is the conservative fallback for models the catalogue does
// not know.
var defaultRate = Rate{
	InputPer1M:       5,
	OutputPer1M:      15,
	CachedInputPer1M: 0.5,
}

// catalogue is an immutable snapshot of model rates and the alias graph.
// Reloads swap the whole snapshot so the model map and alias map never
// disagree.
type catalogue struct {
	models  map[string]Rate   // canonical model (lowercase) → rate
	aliases map[string]string // alias (lowercase) → canonical model
}

// Service resolves model names and prices calls.
type Service struct {
	db     *sql.DB // nil: compiled-in catalogue only
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	cat      *catalogue
	loadedAt time.Time
}

// NewService creates a pricing service backed by the control store.
// db may be nil, in which case only the compiled-in catalogue is used.
func NewService(db *sql.DB, ttl time.Duration) *Service {
	return &Service{
		db:     db,
		ttl:    ttl,
		logger: slog.Default().With("component", "pricing"),
		cat:    buildCatalogue(defaultCatalogue),
	}
}

// buildCatalogue indexes rates by lowercase canonical name and alias.
func buildCatalogue(rates []Rate) *catalogue {
	cat := &catalogue{
		models:  make(map[string]Rate, len(rates)),
		aliases: make(map[string]string),
	}
	for _, r := range rates {
		name := strings.ToLower(r.Model)
		cat.models[name] = r
		for _, a := range r.Aliases {
			cat.aliases[strings.ToLower(a)] = name
		}
	}
	return cat
}

// current returns a fresh catalogue snapshot, reloading from the store when
// the TTL has expired. Load failures keep the previous snapshot.
func (s *Service) current(ctx context.Context) *catalogue {
	s.mu.RLock()
	cat, loadedAt := s.cat, s.loadedAt
	s.mu.RUnlock()

	if s.db == nil || time.Since(loadedAt) < s.ttl {
		return cat
	}

	rates, err := s.loadFromStore(ctx)
	if err != nil || len(rates) == 0 {
		if err != nil {
			s.logger.Warn("Pricing catalogue reload failed, keeping cached snapshot", "error", err)
		}
		// Push loadedAt forward so a broken store is not hammered on every call.
		s.mu.Lock()
		s.loadedAt = time.Now()
		cat = s.cat
		s.mu.Unlock()
		return cat
	}

	fresh := buildCatalogue(rates)
	s.mu.Lock()
	s.cat = fresh
	s.loadedAt = time.Now()
	s.mu.Unlock()
	return fresh
}

// loadFromStore reads the pricing catalogue from the control store.
func (s *Service) loadFromStore(ctx context.Context) ([]Rate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, provider, input_per_1m, output_per_1m, cached_input_per_1m, aliases
		   FROM pricing_models`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []Rate
	for rows.Next() {
		var r Rate
		var aliasesJSON []byte
		if err := rows.Scan(&r.Model, &r.Provider, &r.InputPer1M, &r.OutputPer1M,
			&r.CachedInputPer1M, &aliasesJSON); err != nil {
			return nil, err
		}
		if len(aliasesJSON) > 0 {
			if err := json.Unmarshal(aliasesJSON, &r.Aliases); err != nil {
				s.logger.Warn("Invalid aliases JSON in pricing row", "model", r.Model, "error", err)
			}
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// Resolve canonicalizes a model name: O(1) direct lookup, then alias
// lookup, then prefix match against canonical names and aliases. Returns
// the lowercased input when nothing matches.
func (s *Service) Resolve(ctx context.Context, model string) string {
	cat := s.current(ctx)
	return cat.resolve(model)
}

func (c *catalogue) resolve(model string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	if name == "" {
		return name
	}
	if _, ok := c.models[name]; ok {
		return name
	}
	if canonical, ok := c.aliases[name]; ok {
		return canonical
	}
	// Prefix fallback: the longest canonical name or alias that prefixes
	// the input wins, so "gpt-4o-2024-08-06" resolves to "gpt-4o" rather
	// than "gpt-4".
	best := ""
	for canonical := range c.models {
		if strings.HasPrefix(name, canonical) && len(canonical) > len(best) {
			best = canonical
		}
	}
	for alias, canonical := range c.aliases {
		if strings.HasPrefix(name, alias) && len(alias) > len(best) {
			best = canonical
		}
	}
	if best != "" {
		if canonical, ok := c.aliases[best]; ok {
			return canonical
		}
		return best
	}
	return name
}

// Quote returns the pricing for a model, optionally scoped to a provider.
// For bedrock/aws, cross-prefix matching against base model names is
// attempted before falling back to the default rate.
func (s *Service) Quote(ctx context.Context, model, provider string) Quote {
	cat := s.current(ctx)
	return cat.quote(model, provider)
}

func (c *catalogue) quote(model, provider string) Quote {
	canonical := c.resolve(model)
	if rate, ok := c.models[canonical]; ok {
		return Quote{
			InputPer1M:       rate.InputPer1M,
			OutputPer1M:      rate.OutputPer1M,
			CachedInputPer1M: rate.CachedInputPer1M,
			CanonicalModel:   canonical,
			Provider:         rate.Provider,
			Source:           SourceCatalogue,
		}
	}

	p := strings.ToLower(provider)
	if p == "bedrock" || p == "aws" {
		if rate, base, ok := c.bedrockMatch(model); ok {
			return Quote{
				InputPer1M:       rate.InputPer1M,
				OutputPer1M:      rate.OutputPer1M,
				CachedInputPer1M: rate.CachedInputPer1M,
				CanonicalModel:   base,
				Provider:         rate.Provider,
				Source:           SourceBedrockMatch,
			}
		}
	}

	return Quote{
		InputPer1M:       defaultRate.InputPer1M,
		OutputPer1M:      defaultRate.OutputPer1M,
		CachedInputPer1M: defaultRate.CachedInputPer1M,
		CanonicalModel:   canonical,
		Provider:         provider,
		Source:           SourceDefault,
	}
}

// bedrockMatch matches Bedrock model ids such as
// "us.anthropic.claude-3-5-sonnet-20241022-v2:0" against base model names
// in the catalogue by normalizing separators and searching for a contained
// canonical name or alias.
func (c *catalogue) bedrockMatch(model string) (Rate, string, bool) {
	normalized := strings.ToLower(model)
	normalized = strings.NewReplacer(".", "-", "_", "-", ":", "-").Replace(normalized)

	best := ""
	for canonical := range c.models {
		if strings.Contains(normalized, canonical) && len(canonical) > len(best) {
			best = canonical
		}
	}
	for alias, canonical := range c.aliases {
		if strings.Contains(normalized, alias) && len(alias) > len(best) {
			best = canonical
		}
	}
	if best == "" {
		return Rate{}, "", false
	}
	canonical := best
	if mapped, ok := c.aliases[best]; ok {
		canonical = mapped
	}
	return c.models[canonical], canonical, true
}

// Cost prices a call. Non-cached input is max(0, input − cached); each
// component is (tokens / 1e6) × rate.
func (s *Service) Cost(ctx context.Context, in CostInput) Cost {
	q := s.Quote(ctx, in.Model, "")

	nonCached := in.Input - in.Cached
	if nonCached < 0 {
		nonCached = 0
	}

	inputCost := float64(nonCached) / 1e6 * q.InputPer1M
	outputCost := float64(in.Output) / 1e6 * q.OutputPer1M
	cachedCost := float64(in.Cached) / 1e6 * q.CachedInputPer1M

	return Cost{
		Total:      inputCost + outputCost + cachedCost,
		InputCost:  inputCost,
		OutputCost: outputCost,
		CachedCost: cachedCost,
		Pricing:    q,
	}
}

// Target is one degradation candidate, cheapest first within its provider.
type Target struct {
	Model      string  `json:"model"`
	Label      string  `json:"label"`
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	AvgCost    float64 `json:"avg_cost"`
}

// DegradationTargets groups canonical models by provider, sorted by average
// cost ascending. When provider is non-empty only that provider's models
// are returned.
type DegradationTargets struct {
	Providers []string            `json:"providers"`
	Models    map[string][]Target `json:"models"`
}

// DegradationTargets lists the models budgets may degrade to.
func (s *Service) DegradationTargets(ctx context.Context, provider string) DegradationTargets {
	cat := s.current(ctx)

	byProvider := make(map[string][]Target)
	for name, rate := range cat.models {
		p := strings.ToLower(rate.Provider)
		if provider != "" && p != strings.ToLower(provider) {
			continue
		}
		byProvider[p] = append(byProvider[p], Target{
			Model:      name,
			Label:      rate.Model,
			InputCost:  rate.InputPer1M,
			OutputCost: rate.OutputPer1M,
			AvgCost:    (rate.InputPer1M + rate.OutputPer1M) / 2,
		})
	}

	providers := make([]string, 0, len(byProvider))
	for p, targets := range byProvider {
		sort.Slice(targets, func(i, j int) bool {
			if targets[i].AvgCost != targets[j].AvgCost {
				return targets[i].AvgCost < targets[j].AvgCost
			}
			return targets[i].Model < targets[j].Model
		})
		byProvider[p] = targets
		providers = append(providers, p)
	}
	sort.Strings(providers)

	return DegradationTargets{Providers: providers, Models: byProvider}
}

// KnownProviderModel reports whether model belongs to provider in the
// catalogue. Used to validate degrade targets on budget writes.
func (s *Service) KnownProviderModel(ctx context.Context, provider, model string) bool {
	cat := s.current(ctx)
	rate, ok := cat.models[cat.resolve(model)]
	return ok && strings.EqualFold(rate.Provider, provider)
}
