package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vocalix/bookline/internal/model"
	"github.com/vocalix/bookline/internal/repository/base"
)

type HoldRepository struct {
	store *base.Store
}

func NewHoldRepository(store *base.Store) *HoldRepository {
	return &HoldRepository{store: store}
}

const holdColumns = `id, tenant_id, slot_id, holder_id, status, code, code_issued_at, destination, attempts, expires_at, created_at`

func scanHold(row interface{ Scan(...any) error }) (*model.Hold, error) {
	var hold model.Hold
	err := row.Scan(
		&hold.ID,
		&hold.TenantID,
		&hold.SlotID,
		&hold.HolderID,
		&hold.Status,
		&hold.Code,
		&hold.CodeIssuedAt,
		&hold.Destination,
		&hold.Attempts,
		&hold.ExpiresAt,
		&hold.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// Create создаёт новый hold
func (r *HoldRepository) Create(ctx context.Context, hold *model.Hold) error {
	query := `
		INSERT INTO holds (id, tenant_id, slot_id, holder_id, status, attempts, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.store.QueryRow(
		ctx, query,
		hold.ID,
		hold.TenantID,
		hold.SlotID,
		hold.HolderID,
		hold.Status,
		hold.Attempts,
		hold.ExpiresAt,
	).Scan(&hold.CreatedAt)

	if err != nil {
		return fmt.Errorf("create hold: %w", err)
	}

	return nil
}

// GetForUpdate получает hold с блокировкой строки; tenant_id в WHERE —
// кросс-tenant запросы не отличимы от отсутствующей строки
func (r *HoldRepository) GetForUpdate(ctx context.Context, tenantID, holdID string) (*model.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM holds
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`

	hold, err := scanHold(r.store.QueryRow(ctx, query, tenantID, holdID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, model.ErrHoldNotFound
		}
		return nil, fmt.Errorf("get hold for update: %w", err)
	}

	return hold, nil
}

// GetByID получает hold без блокировки
func (r *HoldRepository) GetByID(ctx context.Context, tenantID, holdID string) (*model.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM holds
		WHERE tenant_id = $1 AND id = $2
	`

	hold, err := scanHold(r.store.QueryRow(ctx, query, tenantID, holdID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, model.ErrHoldNotFound
		}
		return nil, fmt.Errorf("get hold by id: %w", err)
	}

	return hold, nil
}

// UpdateStatus переводит hold в новое состояние
func (r *HoldRepository) UpdateStatus(ctx context.Context, tenantID, holdID string, status model.HoldStatus) error {
	query := `
		UPDATE holds
		SET status = $1
		WHERE tenant_id = $2 AND id = $3
	`

	tag, err := r.store.Exec(ctx, query, status, tenantID, holdID)
	if err != nil {
		return fmt.Errorf("update hold status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrHoldNotFound
	}

	return nil
}

// SetCode сохраняет выданный код, время выдачи и адрес доставки,
// переводя hold в otp_sent одним UPDATE'ом
func (r *HoldRepository) SetCode(ctx context.Context, tenantID, holdID, code, destination string, issuedAt time.Time) error {
	query := `
		UPDATE holds
		SET status = 'otp_sent', code = $1, code_issued_at = $2, destination = $3
		WHERE tenant_id = $4 AND id = $5
	`

	tag, err := r.store.Exec(ctx, query, code, issuedAt, destination, tenantID, holdID)
	if err != nil {
		return fmt.Errorf("set hold code: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrHoldNotFound
	}

	return nil
}

// IncrementAttempts увеличивает счётчик неудачных попыток, возвращает новое значение
func (r *HoldRepository) IncrementAttempts(ctx context.Context, tenantID, holdID string) (int, error) {
	query := `
		UPDATE holds
		SET attempts = attempts + 1
		WHERE tenant_id = $1 AND id = $2
		RETURNING attempts
	`

	var attempts int
	err := r.store.QueryRow(ctx, query, tenantID, holdID).Scan(&attempts)
	if err != nil {
		if base.IsNotFound(err) {
			return 0, model.ErrHoldNotFound
		}
		return 0, fmt.Errorf("increment hold attempts: %w", err)
	}

	return attempts, nil
}

// SweepExpired помечает истёкшие hold'ы и открывает их слоты одним
// statement'ом; идемпотентен и безопасен при конкурентных claim'ах —
// строки слотов блокируются в рамках того же UPDATE
func (r *HoldRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		WITH expired AS (
			UPDATE holds
			SET status = 'expired'
			WHERE status IN ('held', 'otp_sent')
			  AND expires_at <= $1
			RETURNING slot_id
		)
		UPDATE slots s
		SET status = 'open'
		FROM expired e
		WHERE s.id = e.slot_id AND s.status = 'held'
	`

	tag, err := r.store.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired holds: %w", err)
	}

	return tag.RowsAffected(), nil
}
