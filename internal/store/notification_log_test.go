package store

import (
	"testing"
	"time"

	"github.com/zenphony/notifier/internal/database"
)

func setupLogStore(t *testing.T) *NotificationLogStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewNotificationLogStore(db)
}

func TestAppendLog(t *testing.T) {
	s := setupLogStore(t)

	sentAt := time.Date(2025, time.March, 7, 13, 0, 0, 0, time.UTC)
	entry, err := s.Append("session_start", 5, 4, 1, sentAt)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected generated id")
	}
	if entry.RecipientCount != 5 || entry.SuccessCount != 4 || entry.FailureCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 5/4/1", entry.RecipientCount, entry.SuccessCount, entry.FailureCount)
	}
	if !entry.SentAt.Equal(sentAt) {
		t.Errorf("sent_at = %v, want the supplied instant %v", entry.SentAt, sentAt)
	}
}

func TestSentBetween(t *testing.T) {
	s := setupLogStore(t)

	now := time.Now().UTC()
	dayStart := now.Add(-time.Hour)
	dayEnd := now.Add(time.Hour)

	sent, err := s.SentBetween("session_start", dayStart, dayEnd)
	if err != nil {
		t.Fatalf("sent between: %v", err)
	}
	if sent {
		t.Error("expected no entry before append")
	}

	if _, err := s.Append("session_start", 0, 0, 0, now); err != nil {
		t.Fatalf("append: %v", err)
	}

	sent, err = s.SentBetween("session_start", dayStart, dayEnd)
	if err != nil {
		t.Fatalf("sent between: %v", err)
	}
	if !sent {
		t.Error("expected entry inside interval")
	}

	// Other reminders are independent.
	sent, _ = s.SentBetween("news_release", dayStart, dayEnd)
	if sent {
		t.Error("expected no entry for a different reminder")
	}

	// Interval that excludes the entry.
	sent, _ = s.SentBetween("session_start", dayEnd, dayEnd.Add(time.Hour))
	if sent {
		t.Error("expected no entry outside interval")
	}
}

// The row is stamped from the caller's clock, not the wall clock, so a
// cycle run against an arbitrary instant is found by a window around that
// instant and by nothing else.
func TestSentBetweenHonorsSuppliedTimestamp(t *testing.T) {
	s := setupLogStore(t)

	sentAt := time.Date(2025, time.March, 7, 13, 0, 0, 0, time.UTC)
	if _, err := s.Append("session_start", 3, 3, 0, sentAt); err != nil {
		t.Fatalf("append: %v", err)
	}

	dayStart := time.Date(2025, time.March, 7, 0, 0, 0, 0, time.UTC)
	sent, err := s.SentBetween("session_start", dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("sent between: %v", err)
	}
	if !sent {
		t.Error("expected entry on the supplied day")
	}

	sent, _ = s.SentBetween("session_start", time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	if sent {
		t.Error("entry must not be stamped with the wall clock")
	}
}

func TestListRecent(t *testing.T) {
	s := setupLogStore(t)

	base := time.Date(2025, time.March, 7, 13, 0, 0, 0, time.UTC)
	s.Append("session_start", 1, 1, 0, base)
	s.Append("news_release", 2, 2, 0, base.Add(time.Minute))
	s.Append("indices_open", 3, 3, 0, base.Add(2*time.Minute))

	entries, err := s.ListRecent(2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ReminderID != "indices_open" {
		t.Errorf("first = %q, want newest entry", entries[0].ReminderID)
	}
}
