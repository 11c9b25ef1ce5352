package api

import "github.com/hiveobs/hive/pkg/models"

// policyWriteRequest is the body for creating or updating a policy. Nil
// slices leave the stored value untouched.
type policyWriteRequest struct {
	ID           string             `json:"id,omitempty"`
	Name         *string            `json:"name,omitempty"`
	Budgets      *[]models.Budget   `json:"budgets,omitempty"`
	Throttles    *[]map[string]any  `json:"throttles,omitempty"`
	Blocks       *[]map[string]any  `json:"blocks,omitempty"`
	Degradations *[]map[string]any  `json:"degradations,omitempty"`
	Alerts       *[]map[string]any  `json:"alerts,omitempty"`
}

// ingestRequest is the body for POST /v1/control/events.
type ingestRequest struct {
	Events []map[string]any `json:"events"`
}

// ingestResponse reports batch ingestion results to the SDK.
type ingestResponse struct {
	Success   bool `json:"success"`
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped,omitempty"`
}

// contentItemRequest is one SDK-captured content item.
type contentItemRequest struct {
	ContentID   string `json:"content_id"`
	ContentHash string `json:"content_hash"`
	Content     string `json:"content"`
	ByteSize    int    `json:"byte_size"`
}

// storeContentRequest is the body for POST /v1/control/content.
type storeContentRequest struct {
	Items []contentItemRequest `json:"items"`
}

// validateBudgetRequest is the body for POST /v1/control/budget/validate.
// Either BudgetID or Context scopes the check; with neither, every budget
// on the policy is validated.
type validateBudgetRequest struct {
	BudgetID      string                `json:"budget_id,omitempty"`
	Context       *models.BudgetContext `json:"context,omitempty"`
	EstimatedCost *float64              `json:"estimated_cost"`
	LocalSpend    *float64              `json:"local_spend,omitempty"`
}

// heartbeatRequest is the body for POST /v1/control/heartbeat.
type heartbeatRequest struct {
	InstanceID string `json:"sdk_instance_id"`
	AgentName  string `json:"agent_name,omitempty"`
	PolicyID   string `json:"policy_id,omitempty"`
	Status     string `json:"status,omitempty"`
}
