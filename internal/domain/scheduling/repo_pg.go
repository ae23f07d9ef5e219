package scheduling

import (
	"errors"

	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caresched/caresched/internal/platform/db"
)

// =========== Slot Repository ===========

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const slotCols = `id, provider_id, start_at, end_at, claimed, created_at, updated_at`

func (r *slotRepoPG) scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.ProviderID, &s.StartAt, &s.EndAt, &s.Claimed, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *slotRepoPG) Create(ctx context.Context, s *Slot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO slot (id, provider_id, start_at, end_at, claimed)
		VALUES ($1,$2,$3,$4,false)
		RETURNING created_at, updated_at`,
		s.ID, s.ProviderID, s.StartAt, s.EndAt).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return r.scanSlot(r.conn(ctx).QueryRow(ctx, `SELECT `+slotCols+` FROM slot WHERE id = $1`, id))
}

// Claim atomically marks an unclaimed slot of the given provider as claimed.
// The WHERE clause carries the concurrency guarantee: of two concurrent
// claims on the same slot, exactly one matches the NOT claimed predicate.
// A claim that matches nothing reads as unavailable whether the slot is
// contended, owned by another provider, or absent.
func (r *slotRepoPG) Claim(ctx context.Context, id, providerID uuid.UUID) (*Slot, error) {
	s, err := r.scanSlot(r.conn(ctx).QueryRow(ctx, `
		UPDATE slot SET claimed = true, updated_at = NOW()
		WHERE id = $1 AND provider_id = $2 AND NOT claimed
		RETURNING `+slotCols, id, providerID))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrSlotUnavailable
	}
	return s, err
}

func (r *slotRepoPG) Release(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE slot SET claimed = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *slotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM slot WHERE id = $1 AND NOT claimed`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrSlotBooked
	}
	return nil
}

func (r *slotRepoPG) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	return r.list(ctx, `WHERE provider_id = $1`, providerID, limit, offset)
}

func (r *slotRepoPG) ListUnclaimedByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	return r.list(ctx, `WHERE provider_id = $1 AND NOT claimed`, providerID, limit, offset)
}

func (r *slotRepoPG) list(ctx context.Context, where string, providerID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM slot `+where, providerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+slotCols+` FROM slot `+where+` ORDER BY start_at ASC LIMIT $2 OFFSET $3`, providerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		s, err := r.scanSlot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, patient_id, provider_id, slot_id, start_at, end_at, status,
	contact_email, notes, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.ProviderID, &a.SlotID, &a.StartAt, &a.EndAt,
		&status, &a.ContactEmail, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, provider_id, slot_id, start_at, end_at, status, contact_email, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.ProviderID, a.SlotID, a.StartAt, a.EndAt,
		a.Status.String(), a.ContactEmail, a.Notes).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

// UpdateStatus performs a compare-and-set on the status column. It reports
// false when the row no longer holds the expected status, which callers
// treat as a lost race.
func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from.String(), to.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, `WHERE patient_id = $1`, []interface{}{patientID, limit, offset}, `$2`, `$3`)
}

func (r *appointmentRepoPG) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, `WHERE provider_id = $1`, []interface{}{providerID, limit, offset}, `$2`, `$3`)
}

func (r *appointmentRepoPG) ListAll(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, ``, []interface{}{limit, offset}, `$1`, `$2`)
}

func (r *appointmentRepoPG) list(ctx context.Context, where string, args []interface{}, limitPh, offsetPh string) ([]*Appointment, int, error) {
	var total int
	countArgs := args[:len(args)-2]
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment `+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+apptCols+` FROM appointment `+where+` ORDER BY start_at DESC LIMIT `+limitPh+` OFFSET `+offsetPh, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// =========== Meeting Repository ===========

type meetingRepoPG struct{ pool *pgxpool.Pool }

func NewMeetingRepoPG(pool *pgxpool.Pool) MeetingRepository { return &meetingRepoPG{pool: pool} }

func (r *meetingRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const meetingCols = `id, appointment_id, external_id, join_url, start_url, provider, created_at`

func (r *meetingRepoPG) scanMeeting(row pgx.Row) (*Meeting, error) {
	var m Meeting
	err := row.Scan(&m.ID, &m.AppointmentID, &m.ExternalID, &m.JoinURL, &m.StartURL, &m.Provider, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts the meeting. A unique constraint on appointment_id keeps
// provisioning idempotent: when a concurrent insert won, the existing row is
// loaded back into m instead of failing.
func (r *meetingRepoPG) Create(ctx context.Context, m *Meeting) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO meeting (id, appointment_id, external_id, join_url, start_url, provider)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (appointment_id) DO NOTHING
		RETURNING created_at`,
		m.ID, m.AppointmentID, m.ExternalID, m.JoinURL, m.StartURL, m.Provider).Scan(&m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := r.GetByAppointment(ctx, m.AppointmentID)
		if getErr != nil {
			return getErr
		}
		*m = *existing
		return nil
	}
	return err
}

func (r *meetingRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Meeting, error) {
	return r.scanMeeting(r.conn(ctx).QueryRow(ctx,
		`SELECT `+meetingCols+` FROM meeting WHERE appointment_id = $1`, appointmentID))
}

// =========== Waitlist Repository ===========

type waitlistRepoPG struct{ pool *pgxpool.Pool }

func NewWaitlistRepoPG(pool *pgxpool.Pool) WaitlistRepository { return &waitlistRepoPG{pool: pool} }

func (r *waitlistRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const waitlistCols = `id, slot_id, patient_id, position, created_at`

func (r *waitlistRepoPG) scanEntry(row pgx.Row) (*WaitlistEntry, error) {
	var e WaitlistEntry
	err := row.Scan(&e.ID, &e.SlotID, &e.PatientID, &e.Position, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Add appends the patient to the end of the slot's waitlist. Re-adding an
// already waiting patient returns the existing entry unchanged.
func (r *waitlistRepoPG) Add(ctx context.Context, slotID, patientID uuid.UUID) (*WaitlistEntry, error) {
	existing, err := r.scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+waitlistCols+` FROM waitlist WHERE slot_id = $1 AND patient_id = $2`, slotID, patientID))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return r.scanEntry(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO waitlist (id, slot_id, patient_id, position)
		VALUES ($1, $2, $3, COALESCE((SELECT MAX(position) FROM waitlist WHERE slot_id = $2), 0) + 1)
		RETURNING `+waitlistCols,
		uuid.New(), slotID, patientID))
}

func (r *waitlistRepoPG) ListBySlot(ctx context.Context, slotID uuid.UUID) ([]*WaitlistEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+waitlistCols+` FROM waitlist WHERE slot_id = $1 ORDER BY position ASC`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*WaitlistEntry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *waitlistRepoPG) First(ctx context.Context, slotID uuid.UUID) (*WaitlistEntry, error) {
	return r.scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+waitlistCols+` FROM waitlist WHERE slot_id = $1 ORDER BY position ASC LIMIT 1`, slotID))
}

func (r *waitlistRepoPG) Remove(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM waitlist WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
