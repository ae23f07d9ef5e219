package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment. The zero value is not a
// valid status; persistence and the wire format use the lowercase token form.
type Status int

const (
	StatusRequested Status = iota + 1
	StatusConfirmed
	StatusCanceled
	StatusCompleted
)

var statusTokens = map[Status]string{
	StatusRequested: "requested",
	StatusConfirmed: "confirmed",
	StatusCanceled:  "canceled",
	StatusCompleted: "completed",
}

// ParseStatus converts a wire token into a Status.
func ParseStatus(token string) (Status, error) {
	for s, t := range statusTokens {
		if t == token {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrValidation, token)
}

func (s Status) String() string {
	if t, ok := statusTokens[s]; ok {
		return t
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no transition may leave this status.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusCompleted
}

func (s Status) MarshalJSON() ([]byte, error) {
	t, ok := statusTokens[s]
	if !ok {
		return nil, fmt.Errorf("cannot marshal status %d", int(s))
	}
	return json.Marshal(t)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	parsed, err := ParseStatus(token)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// validTransitions is the full edge set of the appointment state machine.
// Terminal states have no outgoing edges.
var validTransitions = map[Status][]Status{
	StatusRequested: {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusCanceled, StatusCompleted},
}

// CanTransition reports whether the edge from → to exists in the state
// machine, independent of who is asking.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Role identifies the kind of authenticated actor.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated principal a request acts as.
type Actor struct {
	UserID     uuid.UUID
	Role       Role
	ProviderID uuid.UUID // set when Role is RoleProvider
}

// MayTransition applies the authorization matrix: patients may only cancel
// their own appointments, providers may confirm, cancel, or complete their
// own, administrators may request any transition. Edge legality is checked
// separately by CanTransition.
func (a Actor) MayTransition(appt *Appointment, target Status) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RolePatient:
		return appt.PatientID == a.UserID && target == StatusCanceled
	case RoleProvider:
		if appt.ProviderID != a.ProviderID {
			return false
		}
		return target == StatusConfirmed || target == StatusCanceled || target == StatusCompleted
	}
	return false
}

// IsParty reports whether the actor may see the appointment: its patient,
// its provider, or an administrator.
func (a Actor) IsParty(appt *Appointment) bool {
	switch a.Role {
	case RolePatient:
		return appt.PatientID == a.UserID
	case RoleProvider:
		return appt.ProviderID == a.ProviderID
	case RoleAdmin:
		return true
	}
	return false
}

// Slot is a provider-published bookable time window. A slot is owned by its
// provider and referenced by at most one appointment once claimed.
type Slot struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ProviderID uuid.UUID `db:"provider_id" json:"provider_id"`
	StartAt    time.Time `db:"start_at" json:"start_at"`
	EndAt      time.Time `db:"end_at" json:"end_at"`
	Claimed    bool      `db:"claimed" json:"claimed"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Appointment is created only by a successful slot claim. Start and end are
// copied from the slot at creation and never change; status moves only
// through the state machine. Appointments are never deleted — cancellation
// is a status.
type Appointment struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	ProviderID   uuid.UUID `db:"provider_id" json:"provider_id"`
	SlotID       uuid.UUID `db:"slot_id" json:"slot_id"`
	StartAt      time.Time `db:"start_at" json:"start_at"`
	EndAt        time.Time `db:"end_at" json:"end_at"`
	Status       Status    `db:"status" json:"status"`
	ContactEmail *string   `db:"contact_email" json:"contact_email,omitempty"`
	Notes        *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Meeting holds the join credentials provisioned for a confirmed
// appointment. At most one per appointment, immutable after creation. The
// raw URLs are never serialized with the record; join-info retrieval hands
// out exactly one of them after the access checks pass.
type Meeting struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	ExternalID    string    `db:"external_id" json:"external_id"`
	JoinURL       string    `db:"join_url" json:"-"`
	StartURL      string    `db:"start_url" json:"-"`
	Provider      string    `db:"provider" json:"provider"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// WaitlistEntry records a patient's interest in a claimed slot. Positions
// are 1-based and dense per slot.
type WaitlistEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SlotID    uuid.UUID `db:"slot_id" json:"slot_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
