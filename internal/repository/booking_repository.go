package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vocalix/bookline/internal/model"
	"github.com/vocalix/bookline/internal/repository/base"
)

type BookingRepository struct {
	store *base.Store
}

func NewBookingRepository(store *base.Store) *BookingRepository {
	return &BookingRepository{store: store}
}

const bookingColumns = `id, tenant_id, slot_id, hold_id, contact, notify_status, created_at, confirmed_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var booking model.Booking
	err := row.Scan(
		&booking.ID,
		&booking.TenantID,
		&booking.SlotID,
		&booking.HoldID,
		&booking.Contact,
		&booking.NotifyStatus,
		&booking.CreatedAt,
		&booking.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// Create создаёт бронирование; hold_id уникален — один hold
// может породить максимум одно бронирование
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (id, tenant_id, slot_id, hold_id, contact, notify_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.store.QueryRow(
		ctx, query,
		booking.ID,
		booking.TenantID,
		booking.SlotID,
		booking.HoldID,
		booking.Contact,
		booking.NotifyStatus,
	).Scan(&booking.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("booking for hold %s already exists: %w", booking.HoldID, err)
		}
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID в рамках tenant'а
func (r *BookingRepository) GetByID(ctx context.Context, tenantID, bookingID string) (*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE tenant_id = $1 AND id = $2
	`

	booking, err := scanBooking(r.store.QueryRow(ctx, query, tenantID, bookingID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, model.ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// UpdateNotifyStatus фиксирует результат отправки подтверждения
func (r *BookingRepository) UpdateNotifyStatus(ctx context.Context, tenantID, bookingID string, status model.NotifyStatus, confirmedAt *time.Time) error {
	query := `
		UPDATE bookings
		SET notify_status = $1, confirmed_at = $2
		WHERE tenant_id = $3 AND id = $4
	`

	tag, err := r.store.Exec(ctx, query, status, confirmedAt, tenantID, bookingID)
	if err != nil {
		return fmt.Errorf("update booking notify status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrBookingNotFound
	}

	return nil
}

// ListUnnotified бронирования с неотправленным подтверждением для
// фонового retry; вызывается только из system-транзакции
func (r *BookingRepository) ListUnnotified(ctx context.Context, olderThan time.Time, limit int) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE notify_status IN ('pending', 'failed')
		  AND created_at <= $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.store.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list unnotified bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}
