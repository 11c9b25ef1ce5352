package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveobs/hive/pkg/models"
)

func TestFilterForBudgetPerType(t *testing.T) {
	cases := []struct {
		typ        models.BudgetType
		wantClause string
		wantArgs   int
	}{
		{models.BudgetGlobal, "", 0},
		{models.BudgetAgent, "(agent = @1 OR metadata->>'agent' = @1)", 1},
		{models.BudgetTenant, "metadata->>'tenant_id' = @1", 1},
		{models.BudgetCustomer, "metadata->>'customer_id' = @1", 1},
		{models.BudgetFeature, "(metadata->>'feature' = @1 OR agent = @1)", 1},
		{models.BudgetTag, "metadata->'tags' ?| @1", 1},
	}

	for _, tc := range cases {
		t.Run(string(tc.typ), func(t *testing.T) {
			b := &models.Budget{Type: tc.typ, Name: "scope", Tags: []string{"a", "b"}}
			f := FilterForBudget(b)
			assert.Equal(t, tc.wantClause, f.Clause)
			assert.Len(t, f.Args, tc.wantArgs)
		})
	}
}

func TestFilterForBudgetTagArgsAreTags(t *testing.T) {
	b := &models.Budget{Type: models.BudgetTag, Name: "ignored", Tags: []string{"a", "b"}}
	f := FilterForBudget(b)
	require.Len(t, f.Args, 1)
	assert.Equal(t, []string{"a", "b"}, f.Args[0])
}

func TestBindRewritesPlaceholders(t *testing.T) {
	f := Filter{Clause: "(agent = @1 OR metadata->>'agent' = @1)", Args: []any{"worker"}}
	args := []any{"existing-1", "existing-2"}

	clause := bind(f, &args)

	assert.Equal(t, "(agent = $3 OR metadata->>'agent' = $3)", clause)
	require.Len(t, args, 3)
	assert.Equal(t, "worker", args[2])
}

func TestBindEmptyFilter(t *testing.T) {
	args := []any{1}
	assert.Empty(t, bind(Filter{}, &args))
	assert.Len(t, args, 1)
}

func TestFilterForContext(t *testing.T) {
	assert.True(t, FilterForContext("").Empty())

	f := FilterForContext("ctx-1")
	assert.Contains(t, f.Clause, "metadata->>'customer_id' = @1")
	require.Len(t, f.Args, 1)
	assert.Equal(t, "ctx-1", f.Args[0])
}
