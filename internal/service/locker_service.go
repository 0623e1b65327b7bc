package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vocalix/bookline/internal/clock"
	"github.com/vocalix/bookline/internal/model"
)

// LockerService атомарный захват слотов: из N конкурентных claim'ов
// на один слот выигрывает ровно один, остальные получают
// ErrSlotUnavailable как ожидаемый результат, не исключение
type LockerService struct {
	tx       TxRunner
	slotRepo SlotStore
	holdRepo HoldStore
	clock    clock.Clock
	holdTTL  time.Duration
	logger   *zap.Logger
}

const defaultHoldTTL = 10 * time.Minute

func NewLockerService(tx TxRunner, slotRepo SlotStore, holdRepo HoldStore, clk clock.Clock, logger *zap.Logger, opts ...LockerOption) *LockerService {
	s := &LockerService{
		tx:       tx,
		slotRepo: slotRepo,
		holdRepo: holdRepo,
		clock:    clk,
		holdTTL:  defaultHoldTTL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type LockerOption func(*LockerService)

// WithHoldTTL переопределяет TTL новых hold'ов
func WithHoldTTL(d time.Duration) LockerOption {
	return func(s *LockerService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// ClaimSlot захватывает слот под hold с блокировкой строки слота
// Конфликт по пересечению проверяется полуоткрытыми интервалами:
// смежные слоты одного провайдера не конфликтуют
func (s *LockerService) ClaimSlot(ctx context.Context, tenantID, providerID string, startTime time.Time, holderID string) (*model.Hold, error) {
	now := s.clock.Now()
	var result *model.Hold

	err := s.tx.WithTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		slot, err := s.slotRepo.GetForUpdate(txCtx, tenantID, providerID, startTime)
		if err != nil {
			return err
		}

		if slot.Status != model.SlotStatusOpen {
			return model.ErrSlotUnavailable
		}

		conflict, err := s.slotRepo.HasActiveConflict(txCtx, tenantID, providerID, slot.StartTime, slot.EndTime, slot.ID)
		if err != nil {
			return err
		}
		if conflict {
			return model.ErrSlotUnavailable
		}

		hold := &model.Hold{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			SlotID:    slot.ID,
			HolderID:  holderID,
			Status:    model.HoldStatusHeld,
			ExpiresAt: now.Add(s.holdTTL),
		}

		if err := s.holdRepo.Create(txCtx, hold); err != nil {
			return err
		}

		if err := s.slotRepo.UpdateStatus(txCtx, tenantID, slot.ID, model.SlotStatusHeld); err != nil {
			return err
		}

		result = hold
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot claimed",
		zap.String("tenant_id", tenantID),
		zap.String("provider_id", providerID),
		zap.String("hold_id", result.ID),
		zap.Time("start_time", startTime),
		zap.Time("expires_at", result.ExpiresAt),
	)

	return result, nil
}

// ReleaseHold явная отмена hold'а, слот возвращается в open
func (s *LockerService) ReleaseHold(ctx context.Context, tenantID, holdID string) error {
	err := s.tx.WithTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		hold, err := s.holdRepo.GetForUpdate(txCtx, tenantID, holdID)
		if err != nil {
			return err
		}

		if !hold.CanTransition(model.HoldStatusReleased) {
			return &model.TransitionError{Current: hold.Status, Requested: model.HoldStatusReleased}
		}

		if err := s.holdRepo.UpdateStatus(txCtx, tenantID, holdID, model.HoldStatusReleased); err != nil {
			return err
		}

		return s.slotRepo.UpdateStatus(txCtx, tenantID, hold.SlotID, model.SlotStatusOpen)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Hold released",
		zap.String("tenant_id", tenantID),
		zap.String("hold_id", holdID),
	)

	return nil
}

// SweepExpiredHolds переводит истёкшие hold'ы в expired и открывает их
// слоты; идемпотентен — повторный запуск ничего не меняет
func (s *LockerService) SweepExpiredHolds(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	var swept int64

	err := s.tx.WithSystemTx(ctx, func(txCtx context.Context) error {
		var err error
		swept, err = s.holdRepo.SweepExpired(txCtx, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	if swept > 0 {
		s.logger.Info("Expired holds swept", zap.Int64("count", swept))
	}

	return swept, nil
}

// CheckAvailability свободные интервалы провайдера на дату
func (s *LockerService) CheckAvailability(ctx context.Context, tenantID, providerID string, date time.Time) ([]model.TimeRange, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var ranges []model.TimeRange
	err := s.tx.WithTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		var err error
		ranges, err = s.slotRepo.GetOpenRanges(txCtx, tenantID, providerID, dayStart, dayEnd)
		return err
	})
	if err != nil {
		return nil, err
	}

	return ranges, nil
}
