package model

import (
	"fmt"
	"time"
)

type TriggerKind string

const (
	TriggerWaitTime  TriggerKind = "wait_time"  // Порог времени ожидания, секунды
	TriggerSentiment TriggerKind = "sentiment"  // Порог sentiment score
	TriggerAIRequest TriggerKind = "ai_request" // Звонящий явно попросил оператора
	TriggerManual    TriggerKind = "manual"     // Ручной перевод оператором
)

// EscalationRule правило перевода звонка на человека, принадлежит tenant'у
type EscalationRule struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	AgentID     string      `json:"agent_id"`
	Trigger     TriggerKind `json:"trigger"`
	Destination string      `json:"destination"` // очередь/номер, куда переводим
	Priority    int         `json:"priority"`    // меньше = раньше проверяется
	Enabled     bool        `json:"enabled"`

	// Параметры триггера, значимы только для своего kind'а
	WaitThresholdSec   *int     `json:"wait_threshold_sec,omitempty"`  // wait_time
	SentimentThreshold *float64 `json:"sentiment_threshold,omitempty"` // sentiment

	CreatedAt time.Time `json:"created_at"`
}

// Validate проверяет что обязательные поля триггера заполнены
// Вид триггера фиксируется при создании правила, не при оценке
func (r *EscalationRule) Validate() error {
	if r.Destination == "" {
		return fmt.Errorf("escalation rule: destination is required")
	}
	switch r.Trigger {
	case TriggerWaitTime:
		if r.WaitThresholdSec == nil || *r.WaitThresholdSec <= 0 {
			return fmt.Errorf("escalation rule: wait_time trigger requires positive wait_threshold_sec")
		}
	case TriggerSentiment:
		if r.SentimentThreshold == nil {
			return fmt.Errorf("escalation rule: sentiment trigger requires sentiment_threshold")
		}
	case TriggerAIRequest, TriggerManual:
		// Без параметров
	default:
		return fmt.Errorf("escalation rule: unknown trigger kind %q", r.Trigger)
	}
	return nil
}

// CallSignals живые сигналы звонка на момент оценки правил
type CallSignals struct {
	CallID          string    `json:"call_id"`
	StartedAt       time.Time `json:"started_at"`
	Sentiment       *float64  `json:"sentiment,omitempty"` // nil, если ещё не измерялся
	TransferRequest bool      `json:"transfer_request"`    // явная просьба позвать человека
	ManualOverride  bool      `json:"manual_override"`
}

// EscalationDecision результат оценки: первое сработавшее правило
type EscalationDecision struct {
	RuleID      string      `json:"rule_id"`
	Trigger     TriggerKind `json:"trigger"`
	Destination string      `json:"destination"`
}
