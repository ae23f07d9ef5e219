package scheduling

import "time"

// AccessWindow bounds when meeting credentials may be retrieved: from Lead
// before the appointment starts through Trail after it ends, both inclusive.
type AccessWindow struct {
	Lead  time.Duration
	Trail time.Duration
}

// DefaultAccessWindow allows joining ten minutes either side of the session.
var DefaultAccessWindow = AccessWindow{Lead: 10 * time.Minute, Trail: 10 * time.Minute}

// Contains reports whether now falls inside the window around [startAt,
// endAt]. Pure; callers supply the clock.
func (w AccessWindow) Contains(startAt, endAt, now time.Time) bool {
	opensAt := startAt.Add(-w.Lead)
	closesAt := endAt.Add(w.Trail)
	return !now.Before(opensAt) && !now.After(closesAt)
}
