package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService() *Service {
	return NewService(nil, time.Minute)
}

func TestResolveDirect(t *testing.T) {
	s := testService()
	assert.Equal(t, "gpt-4o", s.Resolve(context.Background(), "gpt-4o"))
	assert.Equal(t, "gpt-4o", s.Resolve(context.Background(), "GPT-4o"))
}

func TestResolveAlias(t *testing.T) {
	s := testService()
	assert.Equal(t, "gpt-4o", s.Resolve(context.Background(), "gpt-4o-2024-08-06"))
	assert.Equal(t, "claude-3-5-sonnet", s.Resolve(context.Background(), "claude-3-5-sonnet-latest"))
}

func TestResolvePrefixFallback(t *testing.T) {
	s := testService()
	// A dated variant the alias graph does not know still resolves via the
	// longest matching prefix.
	assert.Equal(t, "gpt-4o-mini", s.Resolve(context.Background(), "gpt-4o-mini-2025-01-31"))
}

func TestResolveUnknownReturnsLowercasedInput(t *testing.T) {
	s := testService()
	assert.Equal(t, "frontier-model-x", s.Resolve(context.Background(), "Frontier-Model-X"))
}

func TestQuoteCatalogue(t *testing.T) {
	s := testService()
	q := s.Quote(context.Background(), "gpt-4o", "")
	assert.Equal(t, SourceCatalogue, q.Source)
	assert.Equal(t, "openai", q.Provider)
	assert.InDelta(t, 2.5, q.InputPer1M, 1e-9)
}

func TestQuoteBedrockMatch(t *testing.T) {
	s := testService()
	q := s.Quote(context.Background(), "us.anthropic.claude-3-5-sonnet-20241022-v2:0", "bedrock")
	assert.Equal(t, SourceBedrockMatch, q.Source)
	assert.Equal(t, "claude-3-5-sonnet", q.CanonicalModel)
	assert.Equal(t, "anthropic", q.Provider)

	q = s.Quote(context.Background(), "us.anthropic.claude-3-5-sonnet-20241022-v2:0", "aws")
	assert.Equal(t, SourceBedrockMatch, q.Source)
}

func TestQuoteUnknownDefaults(t *testing.T) {
	s := testService()
	q := s.Quote(context.Background(), "frontier-model-x", "")
	assert.Equal(t, SourceDefault, q.Source)
	assert.InDelta(t, defaultRate.InputPer1M, q.InputPer1M, 1e-9)
}

func TestCostFormula(t *testing.T) {
	s := testService()
	cases := []struct {
		name                       string
		input, output, cached      int64
	}{
		{"plain", 1_000_000, 500_000, 0},
		{"partially cached", 1_000_000, 500_000, 400_000},
		{"cached exceeds input", 100, 0, 500},
		{"zero everything", 0, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := s.Cost(context.Background(), CostInput{
				Model: "gpt-4o", Input: tc.input, Output: tc.output, Cached: tc.cached,
			})
			q := s.Quote(context.Background(), "gpt-4o", "")

			nonCached := tc.input - tc.cached
			if nonCached < 0 {
				nonCached = 0
			}
			want := float64(nonCached)/1e6*q.InputPer1M +
				float64(tc.output)/1e6*q.OutputPer1M +
				float64(tc.cached)/1e6*q.CachedInputPer1M
			assert.InDelta(t, want, c.Total, 1e-9)
			assert.InDelta(t, c.InputCost+c.OutputCost+c.CachedCost, c.Total, 1e-9)
		})
	}
}

func TestDegradationTargetsSortedByAvgCost(t *testing.T) {
	s := testService()
	targets := s.DegradationTargets(context.Background(), "")

	require.NotEmpty(t, targets.Providers)
	for _, provider := range targets.Providers {
		models := targets.Models[provider]
		require.NotEmpty(t, models)
		for i := 1; i < len(models); i++ {
			assert.LessOrEqual(t, models[i-1].AvgCost, models[i].AvgCost,
				"provider %s not sorted ascending", provider)
		}
		for _, m := range models {
			assert.InDelta(t, (m.InputCost+m.OutputCost)/2, m.AvgCost, 1e-9)
		}
	}
}

func TestDegradationTargetsProviderScoped(t *testing.T) {
	s := testService()
	targets := s.DegradationTargets(context.Background(), "openai")
	assert.Equal(t, []string{"openai"}, targets.Providers)
	_, hasAnthropic := targets.Models["anthropic"]
	assert.False(t, hasAnthropic)
}

func TestKnownProviderModel(t *testing.T) {
	s := testService()
	ctx := context.Background()
	assert.True(t, s.KnownProviderModel(ctx, "openai", "gpt-4o-mini"))
	assert.True(t, s.KnownProviderModel(ctx, "OpenAI", "gpt-4o-mini"))
	assert.False(t, s.KnownProviderModel(ctx, "anthropic", "gpt-4o-mini"))
	assert.False(t, s.KnownProviderModel(ctx, "openai", "frontier-model-x"))
}
