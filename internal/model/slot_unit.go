package model

import "time"

type SlotStatus string

const (
	SlotStatusOpen   SlotStatus = "open"
	SlotStatusHeld   SlotStatus = "held"
	SlotStatusBooked SlotStatus = "booked"
)

// Slot единица времени провайдера, которую можно забронировать
type Slot struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	ProviderID string     `json:"provider_id"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	Status     SlotStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Overlaps проверяет пересечение с полуоткрытым интервалом [from, to)
// Смежные слоты (end == start) не пересекаются
func (s *Slot) Overlaps(from, to time.Time) bool {
	return s.StartTime.Before(to) && from.Before(s.EndTime)
}

// TimeRange свободный интервал в ответе check_availability
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
