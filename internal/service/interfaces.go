package service

import (
	"context"
	"time"

	"github.com/vocalix/bookline/internal/model"
)

// Интерфейсы хранилища, чтобы сервисы были проверяемы без Postgres
// Реализации — internal/repository, фейки — в тестах

// TxRunner запуск функции в транзакции, закреплённой за tenant'ом
type TxRunner interface {
	WithTenantTx(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
	WithSystemTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type SlotStore interface {
	GetForUpdate(ctx context.Context, tenantID, providerID string, startTime time.Time) (*model.Slot, error)
	GetByID(ctx context.Context, tenantID, slotID string) (*model.Slot, error)
	GetOpenRanges(ctx context.Context, tenantID, providerID string, from, to time.Time) ([]model.TimeRange, error)
	HasActiveConflict(ctx context.Context, tenantID, providerID string, from, to time.Time, excludeID string) (bool, error)
	UpdateStatus(ctx context.Context, tenantID, slotID string, status model.SlotStatus) error
}

type HoldStore interface {
	Create(ctx context.Context, hold *model.Hold) error
	GetForUpdate(ctx context.Context, tenantID, holdID string) (*model.Hold, error)
	GetByID(ctx context.Context, tenantID, holdID string) (*model.Hold, error)
	UpdateStatus(ctx context.Context, tenantID, holdID string, status model.HoldStatus) error
	SetCode(ctx context.Context, tenantID, holdID, code, destination string, issuedAt time.Time) error
	IncrementAttempts(ctx context.Context, tenantID, holdID string) (int, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type BookingStore interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, tenantID, bookingID string) (*model.Booking, error)
	UpdateNotifyStatus(ctx context.Context, tenantID, bookingID string, status model.NotifyStatus, confirmedAt *time.Time) error
	ListUnnotified(ctx context.Context, olderThan time.Time, limit int) ([]*model.Booking, error)
}

type RuleStore interface {
	Create(ctx context.Context, rule *model.EscalationRule) error
	ListEnabled(ctx context.Context, tenantID, agentID string) ([]*model.EscalationRule, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*model.EscalationRule, error)
	SetEnabled(ctx context.Context, tenantID, ruleID string, enabled bool) error
}

type AuditStore interface {
	Insert(ctx context.Context, event *model.AuditEvent) error
}
