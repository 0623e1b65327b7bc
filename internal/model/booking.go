package model

import "time"

type NotifyStatus string

const (
	NotifyStatusPending NotifyStatus = "pending" // Подтверждение ещё не отправлялось
	NotifyStatusSent    NotifyStatus = "sent"    // Провайдер принял сообщение
	NotifyStatusFailed  NotifyStatus = "failed"  // Отправка не удалась, будет retry
)

// Booking подтверждённая запись, создаётся только из verified hold'а
type Booking struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	SlotID       string       `json:"slot_id"`
	HoldID       string       `json:"hold_id"` // причинная связь с исходным hold'ом
	Contact      string       `json:"contact"`
	NotifyStatus NotifyStatus `json:"notify_status"`
	CreatedAt    time.Time    `json:"created_at"`
	ConfirmedAt  *time.Time   `json:"confirmed_at"`
}
