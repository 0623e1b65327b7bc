package repository

import (
	"context"
	"fmt"

	"github.com/vocalix/bookline/internal/model"
	"github.com/vocalix/bookline/internal/repository/base"
)

type EscalationRuleRepository struct {
	store *base.Store
}

func NewEscalationRuleRepository(store *base.Store) *EscalationRuleRepository {
	return &EscalationRuleRepository{store: store}
}

const ruleColumns = `id, tenant_id, agent_id, trigger_kind, destination, priority, enabled, wait_threshold_sec, sentiment_threshold, created_at`

func scanRule(row interface{ Scan(...any) error }) (*model.EscalationRule, error) {
	var rule model.EscalationRule
	err := row.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.AgentID,
		&rule.Trigger,
		&rule.Destination,
		&rule.Priority,
		&rule.Enabled,
		&rule.WaitThresholdSec,
		&rule.SentimentThreshold,
		&rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// Create создаёт правило эскалации
func (r *EscalationRuleRepository) Create(ctx context.Context, rule *model.EscalationRule) error {
	query := `
		INSERT INTO escalation_rules (id, tenant_id, agent_id, trigger_kind, destination, priority, enabled, wait_threshold_sec, sentiment_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.store.QueryRow(
		ctx, query,
		rule.ID,
		rule.TenantID,
		rule.AgentID,
		rule.Trigger,
		rule.Destination,
		rule.Priority,
		rule.Enabled,
		rule.WaitThresholdSec,
		rule.SentimentThreshold,
	).Scan(&rule.CreatedAt)

	if err != nil {
		return fmt.Errorf("create escalation rule: %w", err)
	}

	return nil
}

// ListEnabled активные правила агента в порядке приоритета
func (r *EscalationRuleRepository) ListEnabled(ctx context.Context, tenantID, agentID string) ([]*model.EscalationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM escalation_rules
		WHERE tenant_id = $1 AND agent_id = $2 AND enabled = true
		ORDER BY priority, created_at
	`

	rows, err := r.store.Query(ctx, query, tenantID, agentID)
	if err != nil {
		return nil, fmt.Errorf("list enabled escalation rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.EscalationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// ListByTenant все правила tenant'а для админки
func (r *EscalationRuleRepository) ListByTenant(ctx context.Context, tenantID string) ([]*model.EscalationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM escalation_rules
		WHERE tenant_id = $1
		ORDER BY agent_id, priority, created_at
	`

	rows, err := r.store.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list escalation rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.EscalationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// SetEnabled включает/выключает правило
func (r *EscalationRuleRepository) SetEnabled(ctx context.Context, tenantID, ruleID string, enabled bool) error {
	query := `
		UPDATE escalation_rules
		SET enabled = $1
		WHERE tenant_id = $2 AND id = $3
	`

	tag, err := r.store.Exec(ctx, query, enabled, tenantID, ruleID)
	if err != nil {
		return fmt.Errorf("set escalation rule enabled: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrRuleNotFound
	}

	return nil
}
