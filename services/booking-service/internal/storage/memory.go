package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
)

type slotKey struct {
	providerID string
	slot       int64
}

// MemoryLedger is a mutex-guarded ledger with the same conflict and compare-and-set
// semantics as Ledger. Users passed at construction feed the provider projection.
type MemoryLedger struct {
	mu     sync.Mutex
	appts  map[string]model.Appointment
	active map[slotKey]string
	users  map[string]model.User
}

func NewMemoryLedger(users ...model.User) *MemoryLedger {
	m := &MemoryLedger{
		appts:  make(map[string]model.Appointment),
		active: make(map[slotKey]string),
		users:  make(map[string]model.User, len(users)),
	}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func keyOf(providerID string, slot time.Time) slotKey {
	return slotKey{providerID: providerID, slot: slot.UTC().Unix()}
}

func (m *MemoryLedger) IsSlotTaken(_ context.Context, providerID string, slot time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[keyOf(providerID, slot)]
	return ok, nil
}

func (m *MemoryLedger) Record(_ context.Context, appt model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(appt.ProviderID, appt.ScheduledAt)
	if _, ok := m.active[k]; ok {
		return ErrSlotTaken
	}
	m.appts[appt.ID] = appt
	if appt.Active() {
		m.active[k] = appt.ID
	}
	return nil
}

func (m *MemoryLedger) FindByID(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

// MarkCanceled calls then under the ledger lock with a nil Querier; a hook error leaves the
// appointment active.
func (m *MemoryLedger) MarkCanceled(ctx context.Context, id string, at time.Time, then CancelHook) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	if !appt.Active() {
		return model.Appointment{}, ErrAlreadyCanceled
	}
	canceledAt := at.UTC()
	appt.CanceledAt = &canceledAt
	if then != nil {
		if err := then(ctx, nil, appt); err != nil {
			return model.Appointment{}, err
		}
	}
	m.appts[id] = appt
	delete(m.active, keyOf(appt.ProviderID, appt.ScheduledAt))
	return appt, nil
}

func (m *MemoryLedger) ListActiveByCustomer(_ context.Context, customerID string, limit, offset int) ([]model.AppointmentView, error) {
	m.mu.Lock()
	var matched []model.Appointment
	for _, a := range m.appts {
		if a.CustomerID == customerID && a.Active() {
			matched = append(matched, a)
		}
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ScheduledAt.Equal(matched[j].ScheduledAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].ScheduledAt.Before(matched[j].ScheduledAt)
	})

	views := []model.AppointmentView{}
	if offset >= len(matched) {
		return views, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	for _, a := range matched {
		p := m.users[a.ProviderID]
		views = append(views, model.AppointmentView{
			Appointment: a,
			Provider:    model.ProviderSummary{ID: a.ProviderID, Name: p.Name, AvatarURL: p.AvatarPath},
		})
	}
	return views, nil
}

func (m *MemoryLedger) ListProviderSlots(_ context.Context, providerID string, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var slots []time.Time
	for k := range m.active {
		if k.providerID != providerID {
			continue
		}
		t := time.Unix(k.slot, 0).UTC()
		if !t.Before(from) && t.Before(to) {
			slots = append(slots, t)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}
