package repository

import (
	"context"
	"fmt"

	"github.com/vocalix/bookline/internal/model"
	"github.com/vocalix/bookline/internal/repository/base"
)

// AuditRepository append-only журнал: только INSERT и чтение,
// путей обновления или удаления нет намеренно
type AuditRepository struct {
	store *base.Store
}

func NewAuditRepository(store *base.Store) *AuditRepository {
	return &AuditRepository{store: store}
}

// Insert добавляет запись аудита
func (r *AuditRepository) Insert(ctx context.Context, event *model.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, tenant_id, kind, subject_id, outcome, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.store.QueryRow(
		ctx, query,
		event.ID,
		event.TenantID,
		event.Kind,
		event.SubjectID,
		event.Outcome,
		event.Detail,
	).Scan(&event.CreatedAt)

	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}

// ListBySubject записи аудита по объекту, новые первыми
func (r *AuditRepository) ListBySubject(ctx context.Context, tenantID, subjectID string) ([]*model.AuditEvent, error) {
	query := `
		SELECT id, tenant_id, kind, subject_id, outcome, detail, created_at
		FROM audit_events
		WHERE tenant_id = $1 AND subject_id = $2
		ORDER BY created_at DESC
	`

	rows, err := r.store.Query(ctx, query, tenantID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []*model.AuditEvent
	for rows.Next() {
		var event model.AuditEvent
		err := rows.Scan(
			&event.ID,
			&event.TenantID,
			&event.Kind,
			&event.SubjectID,
			&event.Outcome,
			&event.Detail,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}
