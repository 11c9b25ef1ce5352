package analytics

import "github.com/hiveobs/hive/pkg/models"

// Filter is a SQL predicate fragment scoped to the hot table. Clause uses
// @N markers (1-based indexes into Args) that bind() rewrites to positional
// placeholders; Args supplies the values in order.
type Filter struct {
	Clause string
	Args   []any
}

// Empty reports whether the filter restricts nothing.
func (f Filter) Empty() bool {
	return f.Clause == ""
}

// FilterForBudget builds the type-aware hot-table predicate for a budget.
//
//	global   — none
//	agent    — agent = name OR metadata->>'agent' = name
//	tenant   — metadata->>'tenant_id' = name
//	customer — metadata->>'customer_id' = name
//	feature  — metadata->>'feature' = name OR agent = name
//	tag      — metadata->'tags' ?| tags
//
// Placeholders are written as @N markers resolved by bind().
func FilterForBudget(b *models.Budget) Filter {
	switch b.Type {
	case models.BudgetGlobal:
		return Filter{}
	case models.BudgetAgent:
		return Filter{Clause: "(agent = @1 OR metadata->>'agent' = @1)", Args: []any{b.Name}}
	case models.BudgetTenant:
		return Filter{Clause: "metadata->>'tenant_id' = @1", Args: []any{b.Name}}
	case models.BudgetCustomer:
		return Filter{Clause: "metadata->>'customer_id' = @1", Args: []any{b.Name}}
	case models.BudgetFeature:
		return Filter{Clause: "(metadata->>'feature' = @1 OR agent = @1)", Args: []any{b.Name}}
	case models.BudgetTag:
		return Filter{Clause: "metadata->'tags' ?| @1", Args: []any{b.Tags}}
	default:
		return Filter{}
	}
}

// FilterForContext builds a predicate for a raw context id: any of the
// context columns matching the id.
func FilterForContext(id string) Filter {
	if id == "" {
		return Filter{}
	}
	return Filter{
		Clause: "(agent = @1 OR metadata->>'agent' = @1 OR metadata->>'tenant_id' = @1 OR metadata->>'customer_id' = @1 OR metadata->>'feature' = @1)",
		Args:   []any{id},
	}
}
