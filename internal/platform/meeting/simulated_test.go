package meeting

import (
	"context"
	"testing"
	"time"
)

func TestSimulatedProvision(t *testing.T) {
	p := NewSimulated("https://meet.example.com/")
	req := Request{
		Ref:      "abc-123",
		Topic:    "Checkup",
		StartAt:  time.Now().UTC(),
		Duration: 30 * time.Minute,
	}

	d, err := p.Provision(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ExternalID != "sim-abc-123" {
		t.Errorf("unexpected external id: %s", d.ExternalID)
	}
	if d.JoinURL != "https://meet.example.com/j/abc-123" {
		t.Errorf("unexpected join url: %s", d.JoinURL)
	}
	if d.StartURL != "https://meet.example.com/s/abc-123?role=host" {
		t.Errorf("unexpected start url: %s", d.StartURL)
	}
	if d.Provider != "simulated" {
		t.Errorf("unexpected provider: %s", d.Provider)
	}

	// Same ref yields the same URLs.
	again, err := p.Provision(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *again != *d {
		t.Error("provisioning must be deterministic per ref")
	}
}

func TestSimulatedProvision_RefRequired(t *testing.T) {
	p := NewSimulated("https://meet.example.com")
	if _, err := p.Provision(context.Background(), Request{}); err == nil {
		t.Error("expected error for empty ref")
	}
}
