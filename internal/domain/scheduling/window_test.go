package scheduling

import (
	"testing"
	"time"
)

func TestAccessWindowContains(t *testing.T) {
	w := AccessWindow{Lead: 10 * time.Minute, Trail: 10 * time.Minute}
	start := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well before", start.Add(-time.Hour), false},
		{"just before lead", start.Add(-10*time.Minute - time.Second), false},
		{"lead boundary", start.Add(-10 * time.Minute), true},
		{"at start", start, true},
		{"mid appointment", start.Add(15 * time.Minute), true},
		{"at end", end, true},
		{"trail boundary", end.Add(10 * time.Minute), true},
		{"just after trail", end.Add(10*time.Minute + time.Second), false},
		{"well after", end.Add(time.Hour), false},
	}
	for _, c := range cases {
		if got := w.Contains(start, end, c.now); got != c.want {
			t.Errorf("%s: Contains = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestDefaultAccessWindow(t *testing.T) {
	if DefaultAccessWindow.Lead != 10*time.Minute || DefaultAccessWindow.Trail != 10*time.Minute {
		t.Errorf("unexpected defaults: %+v", DefaultAccessWindow)
	}
}
