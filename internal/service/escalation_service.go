package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vocalix/bookline/internal/clock"
	"github.com/vocalix/bookline/internal/model"
)

// EscalationService stateless-оценка правил перевода на человека
// Правила идут в порядке приоритета, срабатывает первое подходящее
// Исход каждой оценки пишется в аудит, был перевод или нет
type EscalationService struct {
	tx        TxRunner
	ruleRepo  RuleStore
	auditRepo AuditStore
	clock     clock.Clock
	logger    *zap.Logger
}

func NewEscalationService(tx TxRunner, ruleRepo RuleStore, auditRepo AuditStore, clk clock.Clock, logger *zap.Logger) *EscalationService {
	return &EscalationService{
		tx:        tx,
		ruleRepo:  ruleRepo,
		auditRepo: auditRepo,
		clock:     clk,
		logger:    logger,
	}
}

// Evaluate прогоняет сигналы звонка через правила агента
// nil-решение — валидный исход: перевод не нужен
func (s *EscalationService) Evaluate(ctx context.Context, tenantID, agentID string, signals model.CallSignals) (*model.EscalationDecision, error) {
	now := s.clock.Now()
	var decision *model.EscalationDecision

	err := s.tx.WithTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		rules, err := s.ruleRepo.ListEnabled(txCtx, tenantID, agentID)
		if err != nil {
			return err
		}

		for _, rule := range rules {
			if matches(rule, signals, now) {
				decision = &model.EscalationDecision{
					RuleID:      rule.ID,
					Trigger:     rule.Trigger,
					Destination: rule.Destination,
				}
				break
			}
		}

		outcome := "no_match"
		detail := ""
		if decision != nil {
			outcome = "matched"
			detail = fmt.Sprintf("rule=%s trigger=%s dest=%s", decision.RuleID, decision.Trigger, decision.Destination)
		}

		return s.auditRepo.Insert(txCtx, &model.AuditEvent{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Kind:      model.AuditEscalationEval,
			SubjectID: signals.CallID,
			Outcome:   outcome,
			Detail:    detail,
		})
	})
	if err != nil {
		return nil, err
	}

	if decision != nil {
		s.logger.Info("Escalation triggered",
			zap.String("tenant_id", tenantID),
			zap.String("call_id", signals.CallID),
			zap.String("rule_id", decision.RuleID),
			zap.String("destination", decision.Destination),
		)
	}

	return decision, nil
}

// matches проверяет условие одного правила; вид триггера зафиксирован
// при создании правила, здесь только ветвление по нему
func matches(rule *model.EscalationRule, signals model.CallSignals, now time.Time) bool {
	switch rule.Trigger {
	case model.TriggerWaitTime:
		// Сигналы могли прийти раньше start-события звонка; без
		// известного начала время ожидания не определено
		if rule.WaitThresholdSec == nil || signals.StartedAt.IsZero() {
			return false
		}
		waited := now.Sub(signals.StartedAt)
		return waited >= time.Duration(*rule.WaitThresholdSec)*time.Second
	case model.TriggerSentiment:
		if rule.SentimentThreshold == nil || signals.Sentiment == nil {
			return false
		}
		return *signals.Sentiment < *rule.SentimentThreshold
	case model.TriggerAIRequest:
		return signals.TransferRequest
	case model.TriggerManual:
		return signals.ManualOverride
	default:
		return false
	}
}

// CreateRule валидирует и сохраняет правило; обязательные поля
// триггера проверяются на конструировании, не на оценке
func (s *EscalationService) CreateRule(ctx context.Context, rule *model.EscalationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	err := s.tx.WithTenantTx(ctx, rule.TenantID, func(txCtx context.Context) error {
		return s.ruleRepo.Create(txCtx, rule)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Escalation rule created",
		zap.String("tenant_id", rule.TenantID),
		zap.String("rule_id", rule.ID),
		zap.String("trigger", string(rule.Trigger)),
	)

	return nil
}

// ListRules все правила tenant'а
func (s *EscalationService) ListRules(ctx context.Context, tenantID string) ([]*model.EscalationRule, error) {
	var rules []*model.EscalationRule
	err := s.tx.WithTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		var err error
		rules, err = s.ruleRepo.ListByTenant(txCtx, tenantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// SetRuleEnabled включает/выключает правило
func (s *EscalationService) SetRuleEnabled(ctx context.Context, tenantID, ruleID string, enabled bool) error {
	return s.tx.WithTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		return s.ruleRepo.SetEnabled(txCtx, tenantID, ruleID, enabled)
	})
}
