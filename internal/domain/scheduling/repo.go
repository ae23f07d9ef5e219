package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// TxRunner executes fn inside one atomic unit of work. Repositories called
// with the context fn receives operate on the same transaction; if fn
// returns an error the whole unit rolls back. Implementations must be
// linearizable per slot/appointment key.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type SlotRepository interface {
	Create(ctx context.Context, sl *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// Claim atomically marks the slot claimed if it exists, belongs to
	// providerID, and is currently unclaimed. Every other outcome is
	// ErrSlotUnavailable; under concurrent claimers exactly one wins.
	Claim(ctx context.Context, id, providerID uuid.UUID) (*Slot, error)
	// Release marks the slot unclaimed. Releasing an unclaimed slot is a
	// no-op, not an error.
	Release(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Slot, int, error)
	ListUnclaimedByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Slot, int, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateStatus applies from → to as a compare-and-set: it succeeds only
	// if the stored status still equals from. Returns false when the
	// precondition no longer holds (a concurrent transition won).
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListAll(ctx context.Context, limit, offset int) ([]*Appointment, int, error)
}

type MeetingRepository interface {
	Create(ctx context.Context, m *Meeting) error
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Meeting, error)
}

type WaitlistRepository interface {
	// Add appends the patient at the back of the slot's queue; if the
	// patient is already queued the existing entry is returned unchanged.
	Add(ctx context.Context, slotID, patientID uuid.UUID) (*WaitlistEntry, error)
	ListBySlot(ctx context.Context, slotID uuid.UUID) ([]*WaitlistEntry, error)
	// First returns the front of the queue, or ErrNotFound when empty.
	First(ctx context.Context, slotID uuid.UUID) (*WaitlistEntry, error)
	Remove(ctx context.Context, id uuid.UUID) error
}
