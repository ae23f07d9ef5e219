package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore backs the in-memory repository set. All repositories created from
// one MemStore share a single mutex, which makes multi-repository units of
// work atomic without a real transaction.
type MemStore struct {
	mu           sync.Mutex
	slots        map[uuid.UUID]*Slot
	appointments map[uuid.UUID]*Appointment
	meetings     map[uuid.UUID]*Meeting // keyed by appointment id
	waitlist     map[uuid.UUID]*WaitlistEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		slots:        make(map[uuid.UUID]*Slot),
		appointments: make(map[uuid.UUID]*Appointment),
		meetings:     make(map[uuid.UUID]*Meeting),
		waitlist:     make(map[uuid.UUID]*WaitlistEntry),
	}
}

func (s *MemStore) Slots() SlotRepository               { return &slotRepoMem{store: s} }
func (s *MemStore) Appointments() AppointmentRepository { return &appointmentRepoMem{store: s} }
func (s *MemStore) Meetings() MeetingRepository         { return &meetingRepoMem{store: s} }
func (s *MemStore) Waitlist() WaitlistRepository        { return &waitlistRepoMem{store: s} }

// InTx satisfies TxRunner. The store mutex is held for the whole unit of
// work, so repository calls inside fn must go through the repositories of
// this store (which recognize the lock via the context) rather than lock
// again.
func (s *MemStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inMemTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, true))
}

type memTxKey struct{}

func inMemTx(ctx context.Context) bool {
	held, _ := ctx.Value(memTxKey{}).(bool)
	return held
}

func (s *MemStore) lock(ctx context.Context) func() {
	if inMemTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// =========== Slot Repository ===========

type slotRepoMem struct{ store *MemStore }

func (r *slotRepoMem) Create(ctx context.Context, sl *Slot) error {
	defer r.store.lock(ctx)()
	if sl.ID == uuid.Nil {
		sl.ID = uuid.New()
	}
	now := time.Now().UTC()
	sl.CreatedAt = now
	sl.UpdatedAt = now
	cp := *sl
	r.store.slots[sl.ID] = &cp
	return nil
}

func (r *slotRepoMem) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	defer r.store.lock(ctx)()
	sl, ok := r.store.slots[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sl
	return &cp, nil
}

func (r *slotRepoMem) Claim(ctx context.Context, id, providerID uuid.UUID) (*Slot, error) {
	defer r.store.lock(ctx)()
	sl, ok := r.store.slots[id]
	if !ok || sl.ProviderID != providerID || sl.Claimed {
		return nil, ErrSlotUnavailable
	}
	sl.Claimed = true
	sl.UpdatedAt = time.Now().UTC()
	cp := *sl
	return &cp, nil
}

func (r *slotRepoMem) Release(ctx context.Context, id uuid.UUID) error {
	defer r.store.lock(ctx)()
	sl, ok := r.store.slots[id]
	if !ok {
		return ErrNotFound
	}
	sl.Claimed = false
	sl.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *slotRepoMem) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.store.lock(ctx)()
	sl, ok := r.store.slots[id]
	if !ok {
		return ErrNotFound
	}
	if sl.Claimed {
		return ErrSlotBooked
	}
	delete(r.store.slots, id)
	return nil
}

func (r *slotRepoMem) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	return r.list(ctx, providerID, false, limit, offset)
}

func (r *slotRepoMem) ListUnclaimedByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	return r.list(ctx, providerID, true, limit, offset)
}

func (r *slotRepoMem) list(ctx context.Context, providerID uuid.UUID, unclaimedOnly bool, limit, offset int) ([]*Slot, int, error) {
	defer r.store.lock(ctx)()
	var all []*Slot
	for _, sl := range r.store.slots {
		if sl.ProviderID != providerID {
			continue
		}
		if unclaimedOnly && sl.Claimed {
			continue
		}
		cp := *sl
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartAt.Before(all[j].StartAt) })
	return page(all, limit, offset), len(all), nil
}

// =========== Appointment Repository ===========

type appointmentRepoMem struct{ store *MemStore }

func (r *appointmentRepoMem) Create(ctx context.Context, a *Appointment) error {
	defer r.store.lock(ctx)()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.store.appointments[a.ID] = &cp
	return nil
}

func (r *appointmentRepoMem) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	defer r.store.lock(ctx)()
	a, ok := r.store.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *appointmentRepoMem) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	defer r.store.lock(ctx)()
	a, ok := r.store.appointments[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *appointmentRepoMem) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, func(a *Appointment) bool { return a.PatientID == patientID }, limit, offset)
}

func (r *appointmentRepoMem) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, func(a *Appointment) bool { return a.ProviderID == providerID }, limit, offset)
}

func (r *appointmentRepoMem) ListAll(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, func(*Appointment) bool { return true }, limit, offset)
}

func (r *appointmentRepoMem) list(ctx context.Context, match func(*Appointment) bool, limit, offset int) ([]*Appointment, int, error) {
	defer r.store.lock(ctx)()
	var all []*Appointment
	for _, a := range r.store.appointments {
		if match(a) {
			cp := *a
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartAt.After(all[j].StartAt) })
	return page(all, limit, offset), len(all), nil
}

// =========== Meeting Repository ===========

type meetingRepoMem struct{ store *MemStore }

func (r *meetingRepoMem) Create(ctx context.Context, m *Meeting) error {
	defer r.store.lock(ctx)()
	if existing, ok := r.store.meetings[m.AppointmentID]; ok {
		*m = *existing
		return nil
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	cp := *m
	r.store.meetings[m.AppointmentID] = &cp
	return nil
}

func (r *meetingRepoMem) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Meeting, error) {
	defer r.store.lock(ctx)()
	m, ok := r.store.meetings[appointmentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// =========== Waitlist Repository ===========

type waitlistRepoMem struct{ store *MemStore }

func (r *waitlistRepoMem) Add(ctx context.Context, slotID, patientID uuid.UUID) (*WaitlistEntry, error) {
	defer r.store.lock(ctx)()
	maxPos := 0
	for _, e := range r.store.waitlist {
		if e.SlotID != slotID {
			continue
		}
		if e.PatientID == patientID {
			cp := *e
			return &cp, nil
		}
		if e.Position > maxPos {
			maxPos = e.Position
		}
	}
	entry := &WaitlistEntry{
		ID:        uuid.New(),
		SlotID:    slotID,
		PatientID: patientID,
		Position:  maxPos + 1,
		CreatedAt: time.Now().UTC(),
	}
	r.store.waitlist[entry.ID] = entry
	cp := *entry
	return &cp, nil
}

func (r *waitlistRepoMem) ListBySlot(ctx context.Context, slotID uuid.UUID) ([]*WaitlistEntry, error) {
	defer r.store.lock(ctx)()
	var all []*WaitlistEntry
	for _, e := range r.store.waitlist {
		if e.SlotID == slotID {
			cp := *e
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Position < all[j].Position })
	return all, nil
}

func (r *waitlistRepoMem) First(ctx context.Context, slotID uuid.UUID) (*WaitlistEntry, error) {
	entries, err := r.ListBySlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries[0], nil
}

func (r *waitlistRepoMem) Remove(ctx context.Context, id uuid.UUID) error {
	defer r.store.lock(ctx)()
	if _, ok := r.store.waitlist[id]; !ok {
		return ErrNotFound
	}
	delete(r.store.waitlist, id)
	return nil
}

func page[T any](all []*T, limit, offset int) []*T {
	if offset >= len(all) {
		return nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}
