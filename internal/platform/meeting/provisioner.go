// Package meeting provisions video meetings for confirmed appointments.
// Two implementations exist: a deterministic simulated provider for
// development and tests, and a Zoom-backed provider using server-to-server
// OAuth.
package meeting

import (
	"context"
	"time"
)

// Request describes the meeting to create. Ref is a stable caller-side
// identifier (the appointment id); providers that support idempotency keys
// derive them from it.
type Request struct {
	Ref      string
	Topic    string
	StartAt  time.Time
	Duration time.Duration
}

// Details is what a provider hands back. StartURL admits the host, JoinURL
// admits attendees; both are secrets and must never appear in logs or list
// payloads.
type Details struct {
	ExternalID string
	JoinURL    string
	StartURL   string
	Provider   string
}

type Provisioner interface {
	Provision(ctx context.Context, req Request) (*Details, error)
	Name() string
}
