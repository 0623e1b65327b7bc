package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vocalix/bookline/internal/model"
	"github.com/vocalix/bookline/internal/sms"
)

// fakeStore in-memory состояние хранилища для тестов сервисов
// Транзакции сериализуются мьютексом, как row lock в Postgres;
// откат восстанавливает снимок. Репозитории-обёртки фильтруют по
// tenant_id так же, как RLS-политики: чужая строка неотличима
// от отсутствующей
type fakeStore struct {
	mu       sync.Mutex
	slots    map[string]*model.Slot
	holds    map[string]*model.Hold
	bookings map[string]*model.Booking
	rules    []*model.EscalationRule
	audits   []*model.AuditEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		slots:    make(map[string]*model.Slot),
		holds:    make(map[string]*model.Hold),
		bookings: make(map[string]*model.Booking),
	}
}

func (f *fakeStore) addSlot(slot model.Slot) {
	f.slots[slot.ID] = &slot
}

func (f *fakeStore) addHold(hold model.Hold) {
	f.holds[hold.ID] = &hold
}

func (f *fakeStore) addBooking(booking model.Booking) {
	f.bookings[booking.ID] = &booking
}

func (f *fakeStore) addRule(rule model.EscalationRule) {
	f.rules = append(f.rules, &rule)
}

func (f *fakeStore) auditsOfKind(kind model.AuditKind) []*model.AuditEvent {
	var out []*model.AuditEvent
	for _, event := range f.audits {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}

// --- TxRunner ---

func (f *fakeStore) WithTenantTx(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := f.snapshot()
	if err := fn(ctx); err != nil {
		f.restore(snapshot)
		return err
	}
	return nil
}

func (f *fakeStore) WithSystemTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.WithTenantTx(ctx, "system:sweeper", fn)
}

type storeSnapshot struct {
	slots    map[string]*model.Slot
	holds    map[string]*model.Hold
	bookings map[string]*model.Booking
	rules    []*model.EscalationRule
	audits   []*model.AuditEvent
}

func (f *fakeStore) snapshot() storeSnapshot {
	s := storeSnapshot{
		slots:    make(map[string]*model.Slot, len(f.slots)),
		holds:    make(map[string]*model.Hold, len(f.holds)),
		bookings: make(map[string]*model.Booking, len(f.bookings)),
	}
	for id, slot := range f.slots {
		copied := *slot
		s.slots[id] = &copied
	}
	for id, hold := range f.holds {
		copied := *hold
		s.holds[id] = &copied
	}
	for id, booking := range f.bookings {
		copied := *booking
		s.bookings[id] = &copied
	}
	for _, rule := range f.rules {
		copied := *rule
		s.rules = append(s.rules, &copied)
	}
	s.audits = append(s.audits, f.audits...)
	return s
}

func (f *fakeStore) restore(s storeSnapshot) {
	f.slots = s.slots
	f.holds = s.holds
	f.bookings = s.bookings
	f.rules = s.rules
	f.audits = s.audits
}

// --- SlotStore ---

type fakeSlotRepo struct{ s *fakeStore }

func (r *fakeSlotRepo) GetForUpdate(ctx context.Context, tenantID, providerID string, startTime time.Time) (*model.Slot, error) {
	for _, slot := range r.s.slots {
		if slot.TenantID == tenantID && slot.ProviderID == providerID && slot.StartTime.Equal(startTime) {
			return slot, nil
		}
	}
	return nil, model.ErrSlotNotFound
}

func (r *fakeSlotRepo) GetByID(ctx context.Context, tenantID, slotID string) (*model.Slot, error) {
	slot, ok := r.s.slots[slotID]
	if !ok || slot.TenantID != tenantID {
		return nil, model.ErrSlotNotFound
	}
	return slot, nil
}

func (r *fakeSlotRepo) GetOpenRanges(ctx context.Context, tenantID, providerID string, from, to time.Time) ([]model.TimeRange, error) {
	var ranges []model.TimeRange
	for _, slot := range r.s.slots {
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

func (r *fakeSlotRepo) HasActiveConflict(ctx context.Context, tenantID, providerID string, from, to time.Time, excludeID string) (bool, error) {
	for _, slot := range r.s.slots {
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

func (r *fakeSlotRepo) UpdateStatus(ctx context.Context, tenantID, slotID string, status model.SlotStatus) error {
	slot, ok := r.s.slots[slotID]
	if !ok || slot.TenantID != tenantID {
		return model.ErrSlotNotFound
	}
	slot.Status = status
	return nil
}

// --- HoldStore ---

type fakeHoldRepo struct{ s *fakeStore }

func (r *fakeHoldRepo) holdFor(tenantID, holdID string) (*model.Hold, error) {
	hold, ok := r.s.holds[holdID]
	if !ok || hold.TenantID != tenantID {
		return nil, model.ErrHoldNotFound
	}
	return hold, nil
}

func (r *fakeHoldRepo) Create(ctx context.Context, hold *model.Hold) error {
	copied := *hold
	r.s.holds[hold.ID] = &copied
	return nil
}

func (r *fakeHoldRepo) GetForUpdate(ctx context.Context, tenantID, holdID string) (*model.Hold, error) {
	return r.holdFor(tenantID, holdID)
}

func (r *fakeHoldRepo) GetByID(ctx context.Context, tenantID, holdID string) (*model.Hold, error) {
	return r.holdFor(tenantID, holdID)
}

func (r *fakeHoldRepo) UpdateStatus(ctx context.Context, tenantID, holdID string, status model.HoldStatus) error {
	hold, err := r.holdFor(tenantID, holdID)
	if err != nil {
		return err
	}
	hold.Status = status
	return nil
}

func (r *fakeHoldRepo) SetCode(ctx context.Context, tenantID, holdID, code, destination string, issuedAt time.Time) error {
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

func (r *fakeHoldRepo) IncrementAttempts(ctx context.Context, tenantID, holdID string) (int, error) {
	hold, err := r.holdFor(tenantID, holdID)
	if err != nil {
		return 0, err
	}
	hold.Attempts++
	return hold.Attempts, nil
}

func (r *fakeHoldRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var swept int64
	for _, hold := range r.s.holds {
		if hold.Status != model.HoldStatusHeld && hold.Status != model.HoldStatusOTPSent {
			continue
		}
		if now.Before(hold.ExpiresAt) {
			continue
		}
		hold.Status = model.HoldStatusExpired
		if slot, ok := r.s.slots[hold.SlotID]; ok && slot.Status == model.SlotStatusHeld {
			slot.Status = model.SlotStatusOpen
			swept++
		}
	}
	return swept, nil
}

// --- BookingStore ---

type fakeBookingRepo struct{ s *fakeStore }

func (r *fakeBookingRepo) Create(ctx context.Context, booking *model.Booking) error {
	copied := *booking
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	r.s.bookings[booking.ID] = &copied
	return nil
}

func (r *fakeBookingRepo) GetByID(ctx context.Context, tenantID, bookingID string) (*model.Booking, error) {
	booking, ok := r.s.bookings[bookingID]
	if !ok || booking.TenantID != tenantID {
		return nil, model.ErrBookingNotFound
	}
	return booking, nil
}

func (r *fakeBookingRepo) UpdateNotifyStatus(ctx context.Context, tenantID, bookingID string, status model.NotifyStatus, confirmedAt *time.Time) error {
	booking, ok := r.s.bookings[bookingID]
	if !ok || booking.TenantID != tenantID {
		return model.ErrBookingNotFound
	}
	booking.NotifyStatus = status
	booking.ConfirmedAt = confirmedAt
	return nil
}

func (r *fakeBookingRepo) ListUnnotified(ctx context.Context, olderThan time.Time, limit int) ([]*model.Booking, error) {
	var out []*model.Booking
	for _, booking := range r.s.bookings {
		if booking.NotifyStatus == model.NotifyStatusSent {
			continue
		}
		if booking.CreatedAt.After(olderThan) {
			continue
		}
		out = append(out, booking)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- RuleStore ---

type fakeRuleRepo struct{ s *fakeStore }

func (r *fakeRuleRepo) Create(ctx context.Context, rule *model.EscalationRule) error {
	copied := *rule
	r.s.rules = append(r.s.rules, &copied)
	return nil
}

func (r *fakeRuleRepo) ListEnabled(ctx context.Context, tenantID, agentID string) ([]*model.EscalationRule, error) {
	var out []*model.EscalationRule
	for _, rule := range r.s.rules {
		if rule.TenantID == tenantID && rule.AgentID == agentID && rule.Enabled {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *fakeRuleRepo) ListByTenant(ctx context.Context, tenantID string) ([]*model.EscalationRule, error) {
	var out []*model.EscalationRule
	for _, rule := range r.s.rules {
		if rule.TenantID == tenantID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) SetEnabled(ctx context.Context, tenantID, ruleID string, enabled bool) error {
	for _, rule := range r.s.rules {
		if rule.TenantID == tenantID && rule.ID == ruleID {
			rule.Enabled = enabled
			return nil
		}
	}
	return model.ErrRuleNotFound
}

// --- AuditStore ---

type fakeAuditRepo struct{ s *fakeStore }

func (r *fakeAuditRepo) Insert(ctx context.Context, event *model.AuditEvent) error {
	copied := *event
	copied.CreatedAt = time.Now().UTC()
	r.s.audits = append(r.s.audits, &copied)
	return nil
}

// --- Dispatcher ---

type sentMessage struct {
	Destination string
	Body        string
}

type fakeDispatcher struct {
	mu       sync.Mutex
	sent     []sentMessage
	rejected bool
	err      error
}

func (d *fakeDispatcher) Send(ctx context.Context, destination, body string) (*sms.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	d.sent = append(d.sent, sentMessage{Destination: destination, Body: body})
	if d.rejected {
		return &sms.Result{Accepted: false, ProviderStatus: "rejected"}, nil
	}
	return &sms.Result{Accepted: true, MessageID: "msg-1"}, nil
}

// --- Clock ---

// stepClock управляемые часы: тесты двигают время вручную
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock(t time.Time) *stepClock {
	return &stepClock{now: t.UTC()}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
