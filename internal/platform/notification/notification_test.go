package notification

import (
	"context"
	"strings"
	"testing"
)

func TestTemplateRender(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render("appointment-confirmed", map[string]string{
		"date": "Monday, April 6 2026",
		"time": "09:30 UTC",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Appointment confirmed for Monday, April 6 2026" {
		t.Errorf("unexpected subject: %s", subject)
	}
	if !strings.Contains(body, "09:30 UTC") {
		t.Errorf("expected time in body, got: %s", body)
	}
}

func TestTemplateRender_MissingDataLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()
	subject, _, err := e.Render("appointment-canceled", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(subject, "{{date}}") {
		t.Errorf("expected untouched placeholder, got: %s", subject)
	}
}

func TestTemplateRender_NotFound(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestRegisterTemplate_Replaces(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{
		ID:      "appointment-confirmed",
		Subject: "custom: {{date}}",
		Body:    "custom body",
	})
	subject, body, err := e.Render("appointment-confirmed", map[string]string{"date": "today"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "custom: today" || body != "custom body" {
		t.Errorf("expected overridden template, got %q / %q", subject, body)
	}
}

func TestManagerSendFromTemplate(t *testing.T) {
	sender := &MockEmailSender{}
	m := NewManager(sender, NewTemplateEngine())

	n, err := m.SendFromTemplate(context.Background(), "booking-requested",
		map[string]string{"date": "Friday, May 1 2026", "time": "10:00 UTC"}, "pat@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != "sent" {
		t.Errorf("expected sent, got %s", n.Status)
	}
	if n.SentAt == nil {
		t.Error("expected a sent timestamp")
	}

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 send, got %d", len(calls))
	}
	if calls[0].To != "pat@example.com" {
		t.Errorf("unexpected recipient: %s", calls[0].To)
	}

	got, err := m.Get(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != n.ID {
		t.Error("stored notification mismatch")
	}
}

func TestManagerSend_FailureRecorded(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp unavailable"}
	m := NewManager(sender, NewTemplateEngine())

	n := &Notification{Recipient: "pat@example.com", Subject: "s", Body: "b"}
	if err := m.Send(context.Background(), n); err == nil {
		t.Fatal("expected send error")
	}
	if n.Status != "failed" {
		t.Errorf("expected failed, got %s", n.Status)
	}
	if n.Error != "smtp unavailable" {
		t.Errorf("unexpected error text: %s", n.Error)
	}
}

func TestManagerRetry(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp unavailable"}
	m := NewManager(sender, NewTemplateEngine())

	n := &Notification{Recipient: "pat@example.com", Subject: "s", Body: "b"}
	_ = m.Send(context.Background(), n)

	sender.ShouldFail = false
	if err := m.Retry(context.Background(), n.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n.Status != "sent" || n.Error != "" {
		t.Errorf("expected sent with cleared error, got %s / %q", n.Status, n.Error)
	}

	// Retrying a sent notification is rejected.
	if err := m.Retry(context.Background(), n.ID); err == nil {
		t.Error("expected error retrying a sent notification")
	}
}

func TestManagerStats(t *testing.T) {
	sender := &MockEmailSender{}
	m := NewManager(sender, NewTemplateEngine())

	_ = m.Send(context.Background(), &Notification{Recipient: "a@example.com", Body: "x"})
	_ = m.Send(context.Background(), &Notification{Recipient: "b@example.com", Body: "y"})
	sender.ShouldFail = true
	sender.FailError = "down"
	_ = m.Send(context.Background(), &Notification{Recipient: "c@example.com", Body: "z"})

	stats := m.Stats(context.Background())
	if stats["sent"] != 2 || stats["failed"] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}
