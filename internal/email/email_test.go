package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type captured struct {
	from       string
	recipients []string
	msg        string
}

func newTestService(t *testing.T) (*Service, *[]captured) {
	t.Helper()
	s := NewService(&Config{Host: "smtp.example", Port: 587, From: "noreply@example.com", FromName: "EvaCalendar"})
	var sent []captured
	s.deliver = func(from string, recipients []string, msg []byte) error {
		sent = append(sent, captured{from: from, recipients: recipients, msg: string(msg)})
		return nil
	}
	return s, &sent
}

func TestSendFamilyInvitation(t *testing.T) {
	s, sent := newTestService(t)

	err := s.SendFamilyInvitation(context.Background(), "bob@example.com", FamilyInvitationData{
		FamilyName:  "Smiths <3",
		InviterName: "alice",
		InviteURL:   "https://app.example/invite?token=abc",
		ExpiresAt:   time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("SendFamilyInvitation() error = %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(*sent))
	}

	got := (*sent)[0]
	if got.from != "noreply@example.com" {
		t.Errorf("from = %q", got.from)
	}
	if len(got.recipients) != 1 || got.recipients[0] != "bob@example.com" {
		t.Errorf("recipients = %v", got.recipients)
	}
	for _, want := range []string{
		"Subject: Invitation to join Smiths <3",
		"Content-Type: text/html",
		"<strong>alice</strong>",
		"Smiths &lt;3",
		"https://app.example/invite?token=abc",
		"8 Jan 2026",
	} {
		if !strings.Contains(got.msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendFamilyInvitationCancelled(t *testing.T) {
	s, sent := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SendFamilyInvitation(ctx, "bob@example.com", FamilyInvitationData{FamilyName: "Smiths"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(*sent) != 0 {
		t.Errorf("nothing should be sent after cancellation")
	}
}

func TestSendWithUnknownTemplate(t *testing.T) {
	s, _ := newTestService(t)
	if err := s.SendWithTemplate([]string{"a@example.com"}, "x", "missing", nil); err == nil {
		t.Fatal("expected an error for an unknown template")
	}
}

func TestSendRequiresRecipient(t *testing.T) {
	s, _ := newTestService(t)
	if err := s.Send(&Email{Subject: "x", Body: "y"}); err == nil {
		t.Fatal("expected an error without recipients")
	}
}

func TestPlainTextBody(t *testing.T) {
	s, sent := newTestService(t)
	if err := s.Send(&Email{To: []string{"a@example.com"}, Subject: "hi", Body: "plain"}); err != nil {
		t.Fatal(err)
	}
	msg := (*sent)[0].msg
	if !strings.Contains(msg, "Content-Type: text/plain") || !strings.HasSuffix(msg, "\r\n\r\nplain") {
		t.Errorf("unexpected message: %q", msg)
	}
}
