package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

func TestLocalServiceScheduleAndCancel(t *testing.T) {
	s := NewLocalService()
	handle, err := s.Schedule(context.Background(), models.PromptEnter, "f1", "Office", 5*time.Minute)
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if handle == "" {
		t.Fatal("expected a handle")
	}
	if len(s.Active()) != 1 {
		t.Fatalf("expected 1 active prompt, got %d", len(s.Active()))
	}

	if err := s.Cancel(handle); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if len(s.Active()) != 0 {
		t.Error("prompt should be gone after cancel")
	}
	// Canceling again (or an unknown handle) must succeed.
	if err := s.Cancel(handle); err != nil {
		t.Errorf("double cancel should be a no-op, got %v", err)
	}
	if err := s.Cancel("bogus"); err != nil {
		t.Errorf("unknown handle cancel should be a no-op, got %v", err)
	}
}

func TestLocalServiceDeliveredHistory(t *testing.T) {
	s := NewLocalService()
	s.Schedule(context.Background(), models.PromptEnter, "f1", "Office", 5*time.Minute)
	s.Schedule(context.Background(), models.PromptExit, "f1", "Office", 5*time.Minute)
	delivered := s.Delivered()
	if len(delivered) != 2 {
		t.Fatalf("expected 2 delivered prompts, got %d", len(delivered))
	}
	if delivered[0].Kind != models.PromptEnter || delivered[1].Kind != models.PromptExit {
		t.Error("delivered prompts out of order")
	}
}

func TestPromptBodies(t *testing.T) {
	cases := map[models.PromptKind]string{
		models.PromptEnter:      "Start",
		models.PromptExit:       "Stop",
		models.PromptReturn:     "Resume",
		models.PromptPauseAlarm: "break",
	}
	for kind, want := range cases {
		body := promptBody(kind, "Office", 5*time.Minute)
		if !strings.Contains(body, want) {
			t.Errorf("prompt body for %s should mention %q, got %q", kind, want, body)
		}
		if !strings.Contains(body, "Office") {
			t.Errorf("prompt body for %s should name the fence, got %q", kind, body)
		}
	}
}

func TestNewTwilioServiceValidation(t *testing.T) {
	if _, err := NewTwilioService(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewTwilioService(WithTwilioCredentials("sid", "token")); err == nil {
		t.Error("expected error without phone numbers")
	}
	s, err := NewTwilioService(
		WithTwilioCredentials("sid", "token"),
		WithTwilioNumbers("+10000000001", "+10000000002"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Cancel("unknown"); err != nil {
		t.Errorf("cancel of unknown handle should succeed, got %v", err)
	}
}
