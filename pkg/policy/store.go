package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hiveobs/hive/pkg/analytics"
	"github.com/hiveobs/hive/pkg/models"
	"github.com/hiveobs/hive/pkg/pricing"
)

// Rule kinds accepted by AppendRule.
const (
	KindBudgets      = "budgets"
	KindThrottles    = "throttles"
	KindBlocks       = "blocks"
	KindDegradations = "degradations"
	KindAlerts       = "alerts"
)

// Store persists tenant policies in the control store and enriches budgets
// with live spend on every read.
type Store struct {
	db        *sql.DB
	analytics *analytics.Engine
	pricing   *pricing.Service
	logger    *slog.Logger
}

// NewStore creates a policy store. analytics may be nil in tests, in which
// case budgets are returned without spend enrichment.
func NewStore(db *sql.DB, engine *analytics.Engine, p *pricing.Service) *Store {
	return &Store{
		db:        db,
		analytics: engine,
		pricing:   p,
		logger:    slog.Default().With("component", "policy-store"),
	}
}

// newVersion mints a short opaque version token. Rotated on every write;
// SDKs compare it to detect staleness.
func newVersion() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// normalizeID maps the absent id to the tenant's canonical policy.
func normalizeID(id string) string {
	if id == "" {
		return models.DefaultPolicyID
	}
	return id
}

const selectPolicySQL = `
SELECT team_id, policy_id, name, version, budgets, throttles, blocks, degradations, alerts,
       created_at, updated_at, created_by, updated_by
  FROM policies`

// Get returns a tenant policy, materializing an empty document on first
// read. Budgets come back enriched with live spend.
func (s *Store) Get(ctx context.Context, teamID, policyID string) (*models.Policy, error) {
	policyID = normalizeID(policyID)

	p, err := s.fetch(ctx, teamID, policyID)
	if err == ErrNotFound {
		p, err = s.materialize(ctx, teamID, policyID)
	}
	if err != nil {
		return nil, err
	}

	s.enrich(ctx, p)
	return p, nil
}

func (s *Store) fetch(ctx context.Context, teamID, policyID string) (*models.Policy, error) {
	row := s.db.QueryRowContext(ctx, selectPolicySQL+` WHERE team_id = $1 AND policy_id = $2`,
		teamID, policyID)
	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching policy %s/%s: %w", teamID, policyID, err)
	}
	return p, nil
}

// materialize inserts an empty policy document. A concurrent materialize
// is absorbed by ON CONFLICT DO NOTHING followed by a re-read.
func (s *Store) materialize(ctx context.Context, teamID, policyID string) (*models.Policy, error) {
	name := "New Policy"
	if policyID == models.DefaultPolicyID {
		name = "Default Policy"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (team_id, policy_id, name, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, policy_id) DO NOTHING`,
		teamID, policyID, name, newVersion())
	if err != nil {
		return nil, fmt.Errorf("materializing policy %s/%s: %w", teamID, policyID, err)
	}
	return s.fetch(ctx, teamID, policyID)
}

// List returns a page of the tenant's policies, enriched.
func (s *Store) List(ctx context.Context, teamID string, limit, offset int) ([]*models.Policy, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx, selectPolicySQL+`
		 WHERE team_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		teamID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning policy: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range policies {
		s.enrich(ctx, p)
	}
	return policies, nil
}

// Patch carries the fields a policy update may set. Nil slices leave the
// stored value untouched.
type Patch struct {
	Name         *string
	Budgets      *[]models.Budget
	Throttles    *[]map[string]any
	Blocks       *[]map[string]any
	Degradations *[]map[string]any
	Alerts       *[]map[string]any
	UpdatedBy    string
}

// Update applies a patch with upsert semantics: the document is created if
// absent, last writer wins, and the version rotates on every successful
// write.
func (s *Store) Update(ctx context.Context, teamID, policyID string, patch Patch) (*models.Policy, error) {
	policyID = normalizeID(policyID)

	if patch.Budgets != nil {
		for i := range *patch.Budgets {
			if err := s.ValidateBudget(ctx, &(*patch.Budgets)[i]); err != nil {
				return nil, err
			}
		}
	}

	current, err := s.fetch(ctx, teamID, policyID)
	if err == ErrNotFound {
		current = &models.Policy{ID: policyID, TeamID: teamID}
		if policyID == models.DefaultPolicyID {
			current.Name = "Default Policy"
		} else {
			current.Name = "New Policy"
		}
	} else if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		current.Name = *patch.Name
	}
	if patch.Budgets != nil {
		current.Budgets = *patch.Budgets
	}
	if patch.Throttles != nil {
		current.Throttles = *patch.Throttles
	}
	if patch.Blocks != nil {
		current.Blocks = *patch.Blocks
	}
	if patch.Degradations != nil {
		current.Degradations = *patch.Degradations
	}
	if patch.Alerts != nil {
		current.Alerts = *patch.Alerts
	}

	return s.write(ctx, current, patch.UpdatedBy)
}

// Clear resets every rule array on a policy, keeping the document.
func (s *Store) Clear(ctx context.Context, teamID, policyID string, updatedBy string) (*models.Policy, error) {
	empty := []map[string]any{}
	budgets := []models.Budget{}
	return s.Update(ctx, teamID, policyID, Patch{
		Budgets:      &budgets,
		Throttles:    &empty,
		Blocks:       &empty,
		Degradations: &empty,
		Alerts:       &empty,
		UpdatedBy:    updatedBy,
	})
}

// Delete removes a named policy. The default policy is protected.
func (s *Store) Delete(ctx context.Context, teamID, policyID string) error {
	if normalizeID(policyID) == models.DefaultPolicyID {
		return ErrProtectedPolicy
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM policies WHERE team_id = $1 AND policy_id = $2`, teamID, policyID)
	if err != nil {
		return fmt.Errorf("deleting policy %s/%s: %w", teamID, policyID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendRule appends one rule to a policy's rule array. Budget rules are
// validated; other kinds are stored verbatim.
func (s *Store) AppendRule(ctx context.Context, kind, teamID, policyID string, rule map[string]any, updatedBy string) (*models.Policy, error) {
	policyID = normalizeID(policyID)

	current, err := s.fetch(ctx, teamID, policyID)
	if err == ErrNotFound {
		current, err = s.materialize(ctx, teamID, policyID)
	}
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindBudgets:
		b, err := decodeBudget(rule)
		if err != nil {
			return nil, err
		}
		if err := s.ValidateBudget(ctx, b); err != nil {
			return nil, err
		}
		current.Budgets = append(current.Budgets, *b)
	case KindThrottles:
		current.Throttles = append(current.Throttles, rule)
	case KindBlocks:
		current.Blocks = append(current.Blocks, rule)
	case KindDegradations:
		current.Degradations = append(current.Degradations, rule)
	case KindAlerts:
		current.Alerts = append(current.Alerts, rule)
	default:
		return nil, NewValidationError("kind", fmt.Sprintf("unknown rule kind %q", kind))
	}

	return s.write(ctx, current, updatedBy)
}

// decodeBudget converts an opaque rule map into a typed budget.
func decodeBudget(rule map[string]any) (*models.Budget, error) {
	raw, err := json.Marshal(rule)
	if err != nil {
		return nil, NewValidationError("budget", "budget rule is not serializable")
	}
	var b models.Budget
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, NewValidationError("budget", "budget rule has invalid field types")
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return &b, nil
}

// ValidateBudget enforces the budget invariants:
//   - a known type and a positive limit,
//   - tag budgets carry at least one tag,
//   - degrade budgets name a model and provider that belong together in
//     the pricing catalogue.
func (s *Store) ValidateBudget(ctx context.Context, b *models.Budget) error {
	switch b.Type {
	case models.BudgetGlobal, models.BudgetAgent, models.BudgetTenant,
		models.BudgetCustomer, models.BudgetFeature, models.BudgetTag:
	default:
		return NewValidationError("type", fmt.Sprintf("unknown budget type %q", b.Type))
	}
	if b.Limit <= 0 {
		return NewValidationError("limit", "budget limit must be a positive USD amount")
	}
	if b.Type == models.BudgetTag && len(b.Tags) == 0 {
		return NewValidationError("tags", "tag budgets require at least one tag")
	}
	switch b.LimitAction {
	case models.LimitKill, models.LimitThrottle:
	case models.LimitDegrade:
		if b.DegradeToModel == "" || b.DegradeToProvider == "" {
			return NewValidationError("degradeToModel", "degrade budgets require degradeToModel and degradeToProvider")
		}
		if s.pricing != nil && !s.pricing.KnownProviderModel(ctx, b.DegradeToProvider, b.DegradeToModel) {
			return NewValidationError("degradeToModel",
				fmt.Sprintf("model %q does not belong to provider %q in the pricing catalogue",
					b.DegradeToModel, b.DegradeToProvider))
		}
	default:
		return NewValidationError("limitAction", fmt.Sprintf("unknown limit action %q", b.LimitAction))
	}
	for _, a := range b.Alerts {
		if a.Threshold < 0 || a.Threshold > 100 {
			return NewValidationError("alerts", "alert thresholds must be between 0 and 100")
		}
	}
	return nil
}

// write upserts the full document with a fresh version. created_* fields
// are only written on insert.
func (s *Store) write(ctx context.Context, p *models.Policy, updatedBy string) (*models.Policy, error) {
	version := newVersion()

	budgets, err := json.Marshal(orEmptyBudgets(p.Budgets))
	if err != nil {
		return nil, fmt.Errorf("encoding budgets: %w", err)
	}
	encoded := make(map[string][]byte, 4)
	for kind, rules := range map[string][]map[string]any{
		KindThrottles:    p.Throttles,
		KindBlocks:       p.Blocks,
		KindDegradations: p.Degradations,
		KindAlerts:       p.Alerts,
	} {
		raw, err := json.Marshal(orEmptyRules(rules))
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", kind, err)
		}
		encoded[kind] = raw
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO policies (team_id, policy_id, name, version, budgets, throttles, blocks, degradations, alerts, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (team_id, policy_id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			budgets = EXCLUDED.budgets,
			throttles = EXCLUDED.throttles,
			blocks = EXCLUDED.blocks,
			degradations = EXCLUDED.degradations,
			alerts = EXCLUDED.alerts,
			updated_at = now(),
			updated_by = EXCLUDED.updated_by
		RETURNING team_id, policy_id, name, version, budgets, throttles, blocks, degradations, alerts,
		          created_at, updated_at, created_by, updated_by`,
		p.TeamID, p.ID, p.Name, version,
		budgets, encoded[KindThrottles], encoded[KindBlocks], encoded[KindDegradations], encoded[KindAlerts],
		updatedBy)

	saved, err := scanPolicy(row)
	if err != nil {
		return nil, fmt.Errorf("writing policy %s/%s: %w", p.TeamID, p.ID, err)
	}

	s.enrich(ctx, saved)
	return saved, nil
}

func orEmptyBudgets(b []models.Budget) []models.Budget {
	if b == nil {
		return []models.Budget{}
	}
	return b
}

func orEmptyRules(r []map[string]any) []map[string]any {
	if r == nil {
		return []map[string]any{}
	}
	return r
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*models.Policy, error) {
	var p models.Policy
	var budgets, throttles, blocks, degradations, alerts []byte
	err := row.Scan(&p.TeamID, &p.ID, &p.Name, &p.Version,
		&budgets, &throttles, &blocks, &degradations, &alerts,
		&p.CreatedAt, &p.UpdatedAt, &p.CreatedBy, &p.UpdatedBy)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(budgets, &p.Budgets); err != nil {
		return nil, fmt.Errorf("decoding budgets: %w", err)
	}
	for raw, dst := range map[*[]byte]*[]map[string]any{
		&throttles:    &p.Throttles,
		&blocks:       &p.Blocks,
		&degradations: &p.Degradations,
		&alerts:       &p.Alerts,
	} {
		if err := json.Unmarshal(*raw, dst); err != nil {
			return nil, fmt.Errorf("decoding rules: %w", err)
		}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// enrich overwrites each budget's derived spend and burn-rate analytics.
// Enrichment is best-effort: a failing spend query leaves the budget with
// status unknown rather than failing the read.
func (s *Store) enrich(ctx context.Context, p *models.Policy) {
	if s.analytics == nil {
		return
	}
	now := time.Now().UTC()
	for i := range p.Budgets {
		b := &p.Budgets[i]
		spent, err := s.analytics.MonthToDateSpendForBudget(ctx, p.TeamID, b)
		if err != nil {
			s.logger.Warn("Budget spend enrichment failed",
				"team_id", p.TeamID, "budget_id", b.ID, "error", err)
			b.Analytics = &models.BudgetAnalytics{Status: models.BudgetStatusUnknown, Period: "monthly"}
			continue
		}
		b.Spent = spent
		b.Analytics = budgetAnalytics(b, now)
	}
}
