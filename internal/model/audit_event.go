package model

import "time"

type AuditKind string

const (
	AuditEscalationEval AuditKind = "escalation_eval" // Оценка правил эскалации
	AuditConfirmAttempt AuditKind = "confirm_attempt" // Попытка отправки подтверждения
	AuditSecurityEvent  AuditKind = "security_event"  // Попытка кросс-tenant доступа
	AuditHoldTransition AuditKind = "hold_transition" // Переход состояния hold'а
)

// AuditEvent append-only запись аудита; никогда не обновляется и не удаляется
type AuditEvent struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Kind      AuditKind `json:"kind"`
	SubjectID string    `json:"subject_id"` // call id, booking id, hold id
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
