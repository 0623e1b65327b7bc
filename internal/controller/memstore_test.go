package controller

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vocalix/bookline/internal/model"
)

// memStore минимальное in-memory хранилище для HTTP-тестов
// Транзакции сериализуются мьютексом; изоляция tenant'ов воспроизводится
// фильтрацией по tenant_id в каждом методе, как это делают RLS-политики
type memStore struct {
	mu       sync.Mutex
	slots    map[string]*model.Slot
	holds    map[string]*model.Hold
	bookings map[string]*model.Booking
	rules    []*model.EscalationRule
	audits   []*model.AuditEvent
}

func newMemStore() *memStore {
	return &memStore{
		slots:    make(map[string]*model.Slot),
		holds:    make(map[string]*model.Hold),
		bookings: make(map[string]*model.Booking),
	}
}

func (m *memStore) addSlot(slot model.Slot) {
	m.slots[slot.ID] = &slot
}

func (m *memStore) addHold(hold model.Hold) {
	m.holds[hold.ID] = &hold
}

func (m *memStore) WithTenantTx(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

func (m *memStore) WithSystemTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

type memSlots struct{ m *memStore }

func (r *memSlots) GetForUpdate(ctx context.Context, tenantID, providerID string, startTime time.Time) (*model.Slot, error) {
	for _, slot := range r.m.slots {
		if slot.TenantID == tenantID && slot.ProviderID == providerID && slot.StartTime.Equal(startTime) {
			return slot, nil
		}
	}
	return nil, model.ErrSlotNotFound
}

func (r *memSlots) GetByID(ctx context.Context, tenantID, slotID string) (*model.Slot, error) {
	slot, ok := r.m.slots[slotID]
	if !ok || slot.TenantID != tenantID {
		return nil, model.ErrSlotNotFound
	}
	return slot, nil
}

func (r *memSlots) GetOpenRanges(ctx context.Context, tenantID, providerID string, from, to time.Time) ([]model.TimeRange, error) {
	var ranges []model.TimeRange
	for _, slot := range r.m.slots {
		if slot.TenantID != tenantID || slot.ProviderID != providerID || slot.Status != model.SlotStatusOpen {
			continue
		}
		if slot.StartTime.Before(from) || !slot.StartTime.Before(to) {
			continue
		}
		ranges = append(ranges, model.TimeRange{Start: slot.StartTime, End: slot.EndTime})
	}
	return ranges, nil
}

func (r *memSlots) HasActiveConflict(ctx context.Context, tenantID, providerID string, from, to time.Time, excludeID string) (bool, error) {
	for _, slot := range r.m.slots {
		if slot.TenantID != tenantID || slot.ProviderID != providerID || slot.ID == excludeID {
			continue
		}
		if slot.Status != model.SlotStatusHeld && slot.Status != model.SlotStatusBooked {
			continue
		}
		if slot.Overlaps(from, to) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memSlots) UpdateStatus(ctx context.Context, tenantID, slotID string, status model.SlotStatus) error {
	slot, ok := r.m.slots[slotID]
	if !ok || slot.TenantID != tenantID {
		return model.ErrSlotNotFound
	}
	slot.Status = status
	return nil
}

type memHolds struct{ m *memStore }

func (r *memHolds) holdFor(tenantID, holdID string) (*model.Hold, error) {
	hold, ok := r.m.holds[holdID]
	if !ok || hold.TenantID != tenantID {
		return nil, model.ErrHoldNotFound
	}
	return hold, nil
}

func (r *memHolds) Create(ctx context.Context, hold *model.Hold) error {
	copied := *hold
	r.m.holds[hold.ID] = &copied
	return nil
}

func (r *memHolds) GetForUpdate(ctx context.Context, tenantID, holdID string) (*model.Hold, error) {
	return r.holdFor(tenantID, holdID)
}

func (r *memHolds) GetByID(ctx context.Context, tenantID, holdID string) (*model.Hold, error) {
	return r.holdFor(tenantID, holdID)
}

func (r *memHolds) UpdateStatus(ctx context.Context, tenantID, holdID string, status model.HoldStatus) error {
	hold, err := r.holdFor(tenantID, holdID)
	if err != nil {
		return err
	}
	hold.Status = status
	return nil
}

func (r *memHolds) SetCode(ctx context.Context, tenantID, holdID, code, destination string, issuedAt time.Time) error {
	hold, err := r.holdFor(tenantID, holdID)
	if err != nil {
		return err
	}
	hold.Status = model.HoldStatusOTPSent
	hold.Code = &code
	hold.CodeIssuedAt = &issuedAt
	hold.Destination = &destination
	return nil
}

func (r *memHolds) IncrementAttempts(ctx context.Context, tenantID, holdID string) (int, error) {
	hold, err := r.holdFor(tenantID, holdID)
	if err != nil {
		return 0, err
	}
	hold.Attempts++
	return hold.Attempts, nil
}

func (r *memHolds) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var swept int64
	for _, hold := range r.m.holds {
		if hold.Status != model.HoldStatusHeld && hold.Status != model.HoldStatusOTPSent {
			continue
		}
		if now.Before(hold.ExpiresAt) {
			continue
		}
		hold.Status = model.HoldStatusExpired
		if slot, ok := r.m.slots[hold.SlotID]; ok && slot.Status == model.SlotStatusHeld {
			slot.Status = model.SlotStatusOpen
			swept++
		}
	}
	return swept, nil
}

type memBookings struct{ m *memStore }

func (r *memBookings) Create(ctx context.Context, booking *model.Booking) error {
	copied := *booking
	copied.CreatedAt = time.Now().UTC()
	r.m.bookings[booking.ID] = &copied
	return nil
}

func (r *memBookings) GetByID(ctx context.Context, tenantID, bookingID string) (*model.Booking, error) {
	booking, ok := r.m.bookings[bookingID]
	if !ok || booking.TenantID != tenantID {
		return nil, model.ErrBookingNotFound
	}
	return booking, nil
}

func (r *memBookings) UpdateNotifyStatus(ctx context.Context, tenantID, bookingID string, status model.NotifyStatus, confirmedAt *time.Time) error {
	booking, ok := r.m.bookings[bookingID]
	if !ok || booking.TenantID != tenantID {
		return model.ErrBookingNotFound
	}
	booking.NotifyStatus = status
	booking.ConfirmedAt = confirmedAt
	return nil
}

func (r *memBookings) ListUnnotified(ctx context.Context, olderThan time.Time, limit int) ([]*model.Booking, error) {
	var out []*model.Booking
	for _, booking := range r.m.bookings {
		if booking.NotifyStatus == model.NotifyStatusSent || booking.CreatedAt.After(olderThan) {
			continue
		}
		out = append(out, booking)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memRules struct{ m *memStore }

func (r *memRules) Create(ctx context.Context, rule *model.EscalationRule) error {
	copied := *rule
	r.m.rules = append(r.m.rules, &copied)
	return nil
}

func (r *memRules) ListEnabled(ctx context.Context, tenantID, agentID string) ([]*model.EscalationRule, error) {
	var out []*model.EscalationRule
	for _, rule := range r.m.rules {
		if rule.TenantID == tenantID && rule.AgentID == agentID && rule.Enabled {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *memRules) ListByTenant(ctx context.Context, tenantID string) ([]*model.EscalationRule, error) {
	var out []*model.EscalationRule
	for _, rule := range r.m.rules {
		if rule.TenantID == tenantID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *memRules) SetEnabled(ctx context.Context, tenantID, ruleID string, enabled bool) error {
	for _, rule := range r.m.rules {
		if rule.TenantID == tenantID && rule.ID == ruleID {
			rule.Enabled = enabled
			return nil
		}
	}
	return model.ErrRuleNotFound
}

type memAudits struct{ m *memStore }

func (r *memAudits) Insert(ctx context.Context, event *model.AuditEvent) error {
	copied := *event
	r.m.audits = append(r.m.audits, &copied)
	return nil
}
