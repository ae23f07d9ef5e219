package scheduling

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/caresched/caresched/internal/platform/notification"
)

// EmailNotifier maps lifecycle events onto the booking email templates.
// Appointments without a contact email are skipped silently; delivery
// failures are logged and swallowed, notifications never fail a request.
type EmailNotifier struct {
	manager *notification.Manager
}

func NewEmailNotifier(manager *notification.Manager) *EmailNotifier {
	return &EmailNotifier{manager: manager}
}

var statusTemplates = map[Status]string{
	StatusConfirmed: "appointment-confirmed",
	StatusCanceled:  "appointment-canceled",
	StatusCompleted: "appointment-completed",
}

func (n *EmailNotifier) AppointmentRequested(ctx context.Context, a *Appointment) {
	n.send(ctx, a, "booking-requested")
}

func (n *EmailNotifier) AppointmentStatusChanged(ctx context.Context, a *Appointment, _ Status) {
	tpl, ok := statusTemplates[a.Status]
	if !ok {
		return
	}
	n.send(ctx, a, tpl)
}

func (n *EmailNotifier) SlotFreed(ctx context.Context, e *WaitlistEntry, sl *Slot) {
	// Waitlist entries carry no contact address of their own; the freed-slot
	// notice goes out through whatever channel resolves the patient id.
	// TODO: route through a patient directory lookup once one exists.
	zerolog.Ctx(ctx).Info().
		Str("patient_id", e.PatientID.String()).
		Str("slot_id", sl.ID.String()).
		Time("start_at", sl.StartAt).
		Msg("waitlisted slot freed")
}

func (n *EmailNotifier) send(ctx context.Context, a *Appointment, templateID string) {
	if a.ContactEmail == nil || *a.ContactEmail == "" {
		return
	}
	data := map[string]string{
		"date": a.StartAt.Format("Monday, January 2 2006"),
		"time": a.StartAt.Format("15:04 MST"),
	}
	if _, err := n.manager.SendFromTemplate(ctx, templateID, data, *a.ContactEmail); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("template", templateID).
			Str("appointment_id", a.ID.String()).
			Msg("send notification")
	}
}
