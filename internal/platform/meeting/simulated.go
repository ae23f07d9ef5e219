package meeting

import (
	"context"
	"fmt"
	"strings"
)

// Simulated issues deterministic meeting URLs without calling any external
// service. The same Ref always yields the same URLs, which keeps
// provisioning idempotent across retries.
type Simulated struct {
	baseURL string
}

// NewSimulated creates a simulated provider rooted at baseURL
// (e.g. "https://meet.example.com").
func NewSimulated(baseURL string) *Simulated {
	return &Simulated{baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) Provision(_ context.Context, req Request) (*Details, error) {
	if req.Ref == "" {
		return nil, fmt.Errorf("meeting ref is required")
	}
	return &Details{
		ExternalID: "sim-" + req.Ref,
		JoinURL:    fmt.Sprintf("%s/j/%s", s.baseURL, req.Ref),
		StartURL:   fmt.Sprintf("%s/s/%s?role=host", s.baseURL, req.Ref),
		Provider:   s.Name(),
	}, nil
}
