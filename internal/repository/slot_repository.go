package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vocalix/bookline/internal/model"
	"github.com/vocalix/bookline/internal/repository/base"
)

type SlotRepository struct {
	store *base.Store
}

func NewSlotRepository(store *base.Store) *SlotRepository {
	return &SlotRepository{store: store}
}

const slotColumns = `id, tenant_id, provider_id, start_time, end_time, status, created_at`

func scanSlot(row interface{ Scan(...any) error }) (*model.Slot, error) {
	var slot model.Slot
	err := row.Scan(
		&slot.ID,
		&slot.TenantID,
		&slot.ProviderID,
		&slot.StartTime,
		&slot.EndTime,
		&slot.Status,
		&slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// GetForUpdate берёт эксклюзивную блокировку на строку слота
// Вызывается только внутри транзакции: из N конкурентных claim'ов
// на один слот дальше блокировки проходит ровно один
func (r *SlotRepository) GetForUpdate(ctx context.Context, tenantID, providerID string, startTime time.Time) (*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE tenant_id = $1 AND provider_id = $2 AND start_time = $3
		FOR UPDATE
	`

	slot, err := scanSlot(r.store.QueryRow(ctx, query, tenantID, providerID, startTime))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, model.ErrSlotNotFound
		}
		return nil, fmt.Errorf("get slot for update: %w", err)
	}

	return slot, nil
}

// GetByID получает слот по ID в рамках tenant'а
func (r *SlotRepository) GetByID(ctx context.Context, tenantID, slotID string) (*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE tenant_id = $1 AND id = $2
	`

	slot, err := scanSlot(r.store.QueryRow(ctx, query, tenantID, slotID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, model.ErrSlotNotFound
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// GetOpenRanges получает свободные интервалы провайдера за период
func (r *SlotRepository) GetOpenRanges(ctx context.Context, tenantID, providerID string, from, to time.Time) ([]model.TimeRange, error) {
	query := `
		SELECT start_time, end_time
		FROM slots
		WHERE tenant_id = $1
		  AND provider_id = $2
		  AND status = 'open'
		  AND start_time >= $3
		  AND start_time < $4
		ORDER BY start_time
	`

	rows, err := r.store.Query(ctx, query, tenantID, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get open ranges: %w", err)
	}
	defer rows.Close()

	var ranges []model.TimeRange
	for rows.Next() {
		var tr model.TimeRange
		if err := rows.Scan(&tr.Start, &tr.End); err != nil {
			return nil, fmt.Errorf("scan time range: %w", err)
		}
		ranges = append(ranges, tr)
	}

	return ranges, rows.Err()
}

// HasActiveConflict проверяет пересечение полуоткрытого интервала [from, to)
// с занятыми слотами провайдера, кроме самого слота excludeID
// Смежные интервалы (end == start) конфликтом не считаются
func (r *SlotRepository) HasActiveConflict(ctx context.Context, tenantID, providerID string, from, to time.Time, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM slots
			WHERE tenant_id = $1
			  AND provider_id = $2
			  AND id <> $3
			  AND status IN ('held', 'booked')
			  AND start_time < $5
			  AND end_time > $4
		)
	`

	var exists bool
	err := r.store.QueryRow(ctx, query, tenantID, providerID, excludeID, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active conflict: %w", err)
	}

	return exists, nil
}

// UpdateStatus обновляет статус слота
func (r *SlotRepository) UpdateStatus(ctx context.Context, tenantID, slotID string, status model.SlotStatus) error {
	query := `
		UPDATE slots
		SET status = $1
		WHERE tenant_id = $2 AND id = $3
	`

	tag, err := r.store.Exec(ctx, query, status, tenantID, slotID)
	if err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrSlotNotFound
	}

	return nil
}
