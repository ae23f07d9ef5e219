package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caresched/caresched/internal/platform/meeting"
)

// Notifier receives lifecycle events after the corresponding state change has
// committed. Implementations must not block the request path for long; send
// failures are logged, never surfaced to the caller.
type Notifier interface {
	AppointmentRequested(ctx context.Context, a *Appointment)
	AppointmentStatusChanged(ctx context.Context, a *Appointment, from Status)
	SlotFreed(ctx context.Context, e *WaitlistEntry, sl *Slot)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) AppointmentRequested(context.Context, *Appointment)            {}
func (NopNotifier) AppointmentStatusChanged(context.Context, *Appointment, Status) {}
func (NopNotifier) SlotFreed(context.Context, *WaitlistEntry, *Slot)              {}

type Service struct {
	tx           TxRunner
	slots        SlotRepository
	appointments AppointmentRepository
	meetings     MeetingRepository
	waitlist     WaitlistRepository
	provisioner  meeting.Provisioner
	notifier     Notifier
	window       AccessWindow

	now func() time.Time
}

func NewService(tx TxRunner, slots SlotRepository, appts AppointmentRepository, meetings MeetingRepository, wl WaitlistRepository, prov meeting.Provisioner, notifier Notifier, window AccessWindow) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		tx:           tx,
		slots:        slots,
		appointments: appts,
		meetings:     meetings,
		waitlist:     wl,
		provisioner:  prov,
		notifier:     notifier,
		window:       window,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// -- Slot --

func (s *Service) CreateSlot(ctx context.Context, actor Actor, sl *Slot) error {
	if actor.Role == RolePatient {
		return ErrForbidden
	}
	if actor.Role == RoleProvider {
		sl.ProviderID = actor.ProviderID
	}
	if sl.ProviderID == uuid.Nil {
		return fmt.Errorf("%w: provider_id is required", ErrValidation)
	}
	if sl.StartAt.IsZero() || sl.EndAt.IsZero() {
		return fmt.Errorf("%w: start_at and end_at are required", ErrValidation)
	}
	if !sl.EndAt.After(sl.StartAt) {
		return fmt.Errorf("%w: end_at must be after start_at", ErrValidation)
	}
	if sl.StartAt.Before(s.now()) {
		return fmt.Errorf("%w: slot must start in the future", ErrValidation)
	}
	sl.Claimed = false
	return s.slots.Create(ctx, sl)
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.slots.GetByID(ctx, id)
}

func (s *Service) DeleteSlot(ctx context.Context, actor Actor, id uuid.UUID) error {
	sl, err := s.slots.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != RoleAdmin && (actor.Role != RoleProvider || sl.ProviderID != actor.ProviderID) {
		return ErrForbidden
	}
	return s.slots.Delete(ctx, id)
}

func (s *Service) ListSlots(ctx context.Context, providerID uuid.UUID, availableOnly bool, limit, offset int) ([]*Slot, int, error) {
	if availableOnly {
		return s.slots.ListUnclaimedByProvider(ctx, providerID, limit, offset)
	}
	return s.slots.ListByProvider(ctx, providerID, limit, offset)
}

// -- Appointment --

// BookingRequest carries patient input for a new appointment.
type BookingRequest struct {
	SlotID       uuid.UUID `json:"slot_id"`
	ProviderID   uuid.UUID `json:"provider_id"`
	ContactEmail *string   `json:"contact_email,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
}

// CreateAppointment books a slot for the acting patient. The slot claim and
// the appointment insert commit atomically; of N concurrent requests for the
// same slot exactly one succeeds and the rest observe ErrSlotUnavailable.
func (s *Service) CreateAppointment(ctx context.Context, actor Actor, req BookingRequest) (*Appointment, error) {
	if actor.Role != RolePatient {
		return nil, ErrForbidden
	}
	if req.SlotID == uuid.Nil {
		return nil, fmt.Errorf("%w: slot_id is required", ErrValidation)
	}
	if req.ProviderID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider_id is required", ErrValidation)
	}
	if req.ContactEmail != nil && !validEmail(*req.ContactEmail) {
		return nil, fmt.Errorf("%w: invalid contact_email", ErrValidation)
	}

	var appt *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		sl, err := s.slots.Claim(ctx, req.SlotID, req.ProviderID)
		if err != nil {
			return err
		}
		appt = &Appointment{
			PatientID:    actor.UserID,
			ProviderID:   sl.ProviderID,
			SlotID:       sl.ID,
			StartAt:      sl.StartAt,
			EndAt:        sl.EndAt,
			Status:       StatusRequested,
			ContactEmail: req.ContactEmail,
			Notes:        req.Notes,
		}
		return s.appointments.Create(ctx, appt)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.AppointmentRequested(ctx, appt)
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsParty(a) {
		return nil, ErrForbidden
	}
	return a, nil
}

// ListAppointments returns the appointments visible to the actor: patients
// see their own, providers see their own, admins see everything.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, limit, offset int) ([]*Appointment, int, error) {
	switch actor.Role {
	case RolePatient:
		return s.appointments.ListByPatient(ctx, actor.UserID, limit, offset)
	case RoleProvider:
		return s.appointments.ListByProvider(ctx, actor.ProviderID, limit, offset)
	case RoleAdmin:
		return s.appointments.ListAll(ctx, limit, offset)
	default:
		return nil, 0, ErrForbidden
	}
}

// Transition moves an appointment to target on behalf of actor. The status
// write is a compare-and-set, so two concurrent transitions from the same
// state resolve to exactly one winner; the loser gets ErrInvalidTransition.
func (s *Service) Transition(ctx context.Context, actor Actor, id uuid.UUID, target Status) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsParty(a) {
		return nil, ErrForbidden
	}
	if !actor.MayTransition(a, target) {
		return nil, ErrForbidden
	}
	if !CanTransition(a.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, target)
	}

	from := a.Status
	ok, err := s.appointments.UpdateStatus(ctx, id, from, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race: the stored status moved since we loaded it.
		current, gerr := s.appointments.GetByID(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
	}
	a.Status = target
	a.UpdatedAt = s.now()

	if err := s.afterTransition(ctx, a, from); err != nil {
		return a, err
	}
	s.notifier.AppointmentStatusChanged(ctx, a, from)
	return a, nil
}

// afterTransition runs the side effects a committed transition owes. The
// transition itself already stands; only provisioning failures propagate so
// the caller can retry confirmation-dependent flows.
func (s *Service) afterTransition(ctx context.Context, a *Appointment, from Status) error {
	switch a.Status {
	case StatusCanceled:
		if err := s.slots.Release(ctx, a.SlotID); err != nil && !errors.Is(err, ErrNotFound) {
			zerolog.Ctx(ctx).Error().Err(err).
				Str("slot_id", a.SlotID.String()).
				Msg("release slot after cancellation")
		} else {
			s.notifyWaitlist(ctx, a.SlotID)
		}
	case StatusConfirmed:
		if _, err := s.EnsureMeeting(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// notifyWaitlist tells the patient at the front of the slot's queue that the
// slot is free again. The entry is consumed; the slot is not claimed on their
// behalf, the first booking after release wins as usual.
func (s *Service) notifyWaitlist(ctx context.Context, slotID uuid.UUID) {
	entry, err := s.waitlist.First(ctx, slotID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zerolog.Ctx(ctx).Error().Err(err).Str("slot_id", slotID.String()).Msg("read waitlist")
		}
		return
	}
	sl, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("slot_id", slotID.String()).Msg("load freed slot")
		return
	}
	if err := s.waitlist.Remove(ctx, entry.ID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("entry_id", entry.ID.String()).Msg("remove waitlist entry")
	}
	s.notifier.SlotFreed(ctx, entry, sl)
}

// -- Meeting --

// EnsureMeeting provisions the meeting for a confirmed appointment exactly
// once. Repeated calls return the stored meeting.
func (s *Service) EnsureMeeting(ctx context.Context, a *Appointment) (*Meeting, error) {
	if a.Status != StatusConfirmed {
		return nil, ErrNotConfirmed
	}
	if m, err := s.meetings.GetByAppointment(ctx, a.ID); err == nil {
		return m, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	details, err := s.provisioner.Provision(ctx, meeting.Request{
		Ref:      a.ID.String(),
		Topic:    "Appointment " + a.ID.String(),
		StartAt:  a.StartAt,
		Duration: a.EndAt.Sub(a.StartAt),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	m := &Meeting{
		AppointmentID: a.ID,
		ExternalID:    details.ExternalID,
		JoinURL:       details.JoinURL,
		StartURL:      details.StartURL,
		Provider:      details.Provider,
	}
	if err := s.meetings.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ProvisionMeeting is the explicit provisioning entry point, used to retry
// after a failed confirm-time provision. Only the owning provider or an
// admin may trigger it.
func (s *Service) ProvisionMeeting(ctx context.Context, actor Actor, appointmentID uuid.UUID) (*Meeting, error) {
	a, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin && (actor.Role != RoleProvider || a.ProviderID != actor.ProviderID) {
		return nil, ErrForbidden
	}
	return s.EnsureMeeting(ctx, a)
}

// JoinInfo holds what a party needs to enter the meeting.
type JoinInfo struct {
	URL      string    `json:"url"`
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
	Provider string    `json:"provider"`
}

// MeetingJoinInfo returns the join URL for a confirmed appointment, provided
// the current time falls inside the access window. Providers receive the
// host start URL, patients the attendee join URL.
func (s *Service) MeetingJoinInfo(ctx context.Context, actor Actor, appointmentID uuid.UUID) (*JoinInfo, error) {
	a, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsParty(a) {
		return nil, ErrForbidden
	}

	// An unconfirmed appointment has no meeting to hand out, so it reads the
	// same as one whose provisioning has not happened yet.
	m, err := s.meetings.GetByAppointment(ctx, a.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrMeetingNotReady
		}
		return nil, err
	}
	if a.Status != StatusConfirmed {
		return nil, ErrMeetingNotReady
	}
	if !s.window.Contains(a.StartAt, a.EndAt, s.now()) {
		return nil, ErrAccessWindowClosed
	}

	url := m.JoinURL
	if actor.Role == RoleProvider || (actor.Role == RoleAdmin && actor.ProviderID == a.ProviderID) {
		url = m.StartURL
	}
	return &JoinInfo{
		URL:      url,
		StartAt:  a.StartAt,
		EndAt:    a.EndAt,
		Provider: m.Provider,
	}, nil
}

// -- Waitlist --

// JoinWaitlist queues the acting patient on a claimed slot. Joining the
// queue of a slot that is still free is rejected, the patient should just
// book it.
func (s *Service) JoinWaitlist(ctx context.Context, actor Actor, slotID uuid.UUID) (*WaitlistEntry, error) {
	if actor.Role != RolePatient {
		return nil, ErrForbidden
	}
	sl, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !sl.Claimed {
		return nil, fmt.Errorf("%w: slot is still available", ErrValidation)
	}
	return s.waitlist.Add(ctx, slotID, actor.UserID)
}

func validEmail(addr string) bool {
	_, err := mail.ParseAddress(addr)
	return err == nil
}

// ListWaitlist returns the queue for a slot. The owning provider and admins
// see the whole queue; a patient sees only their own entry and position.
func (s *Service) ListWaitlist(ctx context.Context, actor Actor, slotID uuid.UUID) ([]*WaitlistEntry, error) {
	sl, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case RoleAdmin:
	case RoleProvider:
		if sl.ProviderID != actor.ProviderID {
			return nil, ErrForbidden
		}
	case RolePatient:
		entries, err := s.waitlist.ListBySlot(ctx, slotID)
		if err != nil {
			return nil, err
		}
		mine := entries[:0:0]
		for _, e := range entries {
			if e.PatientID == actor.UserID {
				mine = append(mine, e)
			}
		}
		return mine, nil
	default:
		return nil, ErrForbidden
	}
	return s.waitlist.ListBySlot(ctx, slotID)
}
