package scheduling

import "errors"

// Domain errors. Handlers map each to a distinct HTTP status; services wrap
// them with context via fmt.Errorf("...: %w", err) so errors.Is keeps
// working across layers.
var (
	// ErrNotFound: the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: the actor is authenticated but not allowed to act on
	// this entity.
	ErrForbidden = errors.New("forbidden")
	// ErrSlotUnavailable: the slot claim was lost to a concurrent booking,
	// or the slot is absent, already claimed, or owned by another provider.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrSlotBooked: a claimed slot cannot be deleted.
	ErrSlotBooked = errors.New("slot is booked")
	// ErrInvalidTransition: the requested status change violates the state
	// machine, including any change out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotConfirmed: meeting provisioning requires a confirmed appointment.
	ErrNotConfirmed = errors.New("appointment not confirmed")
	// ErrMeetingNotReady: join info requested before a meeting exists.
	ErrMeetingNotReady = errors.New("meeting not ready")
	// ErrAccessWindowClosed: join info requested outside the permitted
	// window around the appointment.
	ErrAccessWindowClosed = errors.New("access window closed")
	// ErrProvisioning: the meeting collaborator failed; the committed
	// appointment state stands and provisioning can be retried.
	ErrProvisioning = errors.New("meeting provisioning failed")
	// ErrValidation: malformed input, detected before any store access.
	ErrValidation = errors.New("validation failed")
)
