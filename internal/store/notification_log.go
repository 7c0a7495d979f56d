package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zenphony/notifier/internal/model"
)

// NotificationLogStore writes and reads the append-only dispatch audit log.
// Rows are never updated or deleted by the service.
type NotificationLogStore struct {
	db *sql.DB
}

func NewNotificationLogStore(db *sql.DB) *NotificationLogStore {
	return &NotificationLogStore{db: db}
}

// Append records one dispatch cycle. sentAt is the cycle's trigger instant,
// supplied by the dispatcher so the row lands on the same clock the
// duplicate check reads.
func (s *NotificationLogStore) Append(reminderID string, recipients, success, failure int, sentAt time.Time) (*model.NotificationLog, error) {
	entry := &model.NotificationLog{
		ID:             uuid.NewString(),
		ReminderID:     reminderID,
		RecipientCount: recipients,
		SuccessCount:   success,
		FailureCount:   failure,
		SentAt:         sentAt.UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO notification_logs (id, reminder_id, recipient_count, success_count, failure_count, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ReminderID, entry.RecipientCount, entry.SuccessCount, entry.FailureCount, entry.SentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("append notification log: %w", err)
	}
	return entry, nil
}

// SentBetween reports whether a log entry exists for the reminder in the
// half-open interval [from, to). The dispatcher uses the local calendar day
// as the interval to suppress duplicate cron invocations.
func (s *NotificationLogStore) SentBetween(reminderID string, from, to time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM notification_logs
		 WHERE reminder_id = ? AND sent_at >= ? AND sent_at < ?`,
		reminderID, from.UTC(), to.UTC(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check notification log: %w", err)
	}
	return count > 0, nil
}

// ListRecent returns the most recent log entries, newest first.
func (s *NotificationLogStore) ListRecent(limit int) ([]model.NotificationLog, error) {
	rows, err := s.db.Query(
		`SELECT id, reminder_id, recipient_count, success_count, failure_count, sent_at
		 FROM notification_logs ORDER BY sent_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notification logs: %w", err)
	}
	defer rows.Close()

	var entries []model.NotificationLog
	for rows.Next() {
		var e model.NotificationLog
		if err := rows.Scan(&e.ID, &e.ReminderID, &e.RecipientCount, &e.SuccessCount, &e.FailureCount, &e.SentAt); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
