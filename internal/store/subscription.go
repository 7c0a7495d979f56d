package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zenphony/notifier/internal/model"
)

// ErrInvalidAddressing is returned when upsert parameters do not carry
// exactly the addressing mechanism their transport type requires.
var ErrInvalidAddressing = errors.New("addressing inconsistent with transport type")

// SubscriptionStore is the durable registry of push endpoints.
type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// UpsertParams describes one registration call. Web rows carry Subscription;
// expo and fcm rows carry Token.
type UpsertParams struct {
	Type         model.Transport
	Token        string
	Subscription *model.WebPushSubscription
	UserID       string
	DeviceName   string
}

func (p UpsertParams) validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidAddressing, p.Type)
	}
	if p.Type == model.TransportWeb {
		if p.Subscription == nil || p.Subscription.Endpoint == "" {
			return fmt.Errorf("%w: web subscription requires an endpoint", ErrInvalidAddressing)
		}
		if p.Token != "" {
			return fmt.Errorf("%w: web subscription must not carry a token", ErrInvalidAddressing)
		}
		return nil
	}
	if p.Token == "" {
		return fmt.Errorf("%w: %s subscription requires a token", ErrInvalidAddressing, p.Type)
	}
	if p.Subscription != nil {
		return fmt.Errorf("%w: %s subscription must not carry a web subscription object", ErrInvalidAddressing, p.Type)
	}
	return nil
}

// Upsert registers a subscription, keyed by its natural key (endpoint for
// web, token otherwise). An existing row is updated in place — ownership,
// addressing and device name are refreshed and the row is re-enabled. The
// write is a single atomic ON CONFLICT statement, so concurrent
// registrations from the same device converge on one row.
func (s *SubscriptionStore) Upsert(p UpsertParams) (*model.PushSubscription, bool, error) {
	if err := p.validate(); err != nil {
		return nil, false, err
	}

	key := p.Token
	if p.Type == model.TransportWeb {
		key = p.Subscription.Endpoint
	}

	existing, err := s.GetByNaturalKey(key)
	if err != nil {
		return nil, false, err
	}

	if p.Type == model.TransportWeb {
		subJSON, err := json.Marshal(p.Subscription)
		if err != nil {
			return nil, false, fmt.Errorf("marshal web subscription: %w", err)
		}
		_, err = s.db.Exec(
			`INSERT INTO push_subscriptions (id, user_id, type, endpoint, subscription, device_name, enabled)
			 VALUES (?, ?, ?, ?, ?, ?, 1)
			 ON CONFLICT(endpoint) DO UPDATE SET
			   user_id = excluded.user_id,
			   subscription = excluded.subscription,
			   device_name = excluded.device_name,
			   enabled = 1,
			   disabled_at = NULL,
			   updated_at = CURRENT_TIMESTAMP`,
			uuid.NewString(), nullable(p.UserID), p.Type, p.Subscription.Endpoint, string(subJSON), nullable(p.DeviceName),
		)
		if err != nil {
			return nil, false, fmt.Errorf("upsert web subscription: %w", err)
		}
	} else {
		_, err = s.db.Exec(
			`INSERT INTO push_subscriptions (id, user_id, type, token, device_name, enabled)
			 VALUES (?, ?, ?, ?, ?, 1)
			 ON CONFLICT(token) DO UPDATE SET
			   user_id = excluded.user_id,
			   device_name = excluded.device_name,
			   enabled = 1,
			   disabled_at = NULL,
			   updated_at = CURRENT_TIMESTAMP`,
			uuid.NewString(), nullable(p.UserID), p.Type, p.Token, nullable(p.DeviceName),
		)
		if err != nil {
			return nil, false, fmt.Errorf("upsert token subscription: %w", err)
		}
	}

	sub, err := s.GetByNaturalKey(key)
	if err != nil {
		return nil, false, err
	}
	if sub == nil {
		return nil, false, fmt.Errorf("upsert subscription: row vanished after write")
	}
	return sub, existing == nil, nil
}

// GetByNaturalKey returns the row whose endpoint or token matches key, or
// nil when none does.
func (s *SubscriptionStore) GetByNaturalKey(key string) (*model.PushSubscription, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, type, token, subscription, device_name, enabled, created_at, updated_at
		 FROM push_subscriptions WHERE endpoint = ? OR token = ?`, key, key,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by natural key: %w", err)
	}
	return sub, nil
}

// Disable soft-deletes the row matching an endpoint or token. Disabled rows
// are excluded from delivery but retained for audit until purged. A missing
// match is a no-op, not an error.
func (s *SubscriptionStore) Disable(key string) error {
	_, err := s.db.Exec(
		`UPDATE push_subscriptions
		 SET enabled = 0, disabled_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE (endpoint = ? OR token = ?) AND enabled = 1`, key, key,
	)
	if err != nil {
		return fmt.Errorf("disable subscription: %w", err)
	}
	return nil
}

// DisableByID soft-deletes one row by primary key. Providers call this when
// a transport reports the subscription as permanently dead.
func (s *SubscriptionStore) DisableByID(id string) error {
	_, err := s.db.Exec(
		`UPDATE push_subscriptions
		 SET enabled = 0, disabled_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND enabled = 1`, id,
	)
	if err != nil {
		return fmt.Errorf("disable subscription by id: %w", err)
	}
	return nil
}

// ListEnabled returns all enabled subscriptions, optionally filtered by
// transport (pass "" for all). Backed by the (enabled, type) index; the
// dispatcher calls this on every trigger.
func (s *SubscriptionStore) ListEnabled(transport model.Transport) ([]model.PushSubscription, error) {
	query := `SELECT id, user_id, type, token, subscription, device_name, enabled, created_at, updated_at
		 FROM push_subscriptions WHERE enabled = 1`
	args := []any{}
	if transport != "" {
		query += ` AND type = ?`
		args = append(args, transport)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enabled subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// ListEnabledForUser returns one account's enabled subscriptions.
func (s *SubscriptionStore) ListEnabledForUser(userID string) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, type, token, subscription, device_name, enabled, created_at, updated_at
		 FROM push_subscriptions WHERE enabled = 1 AND user_id = ? ORDER BY created_at`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list enabled subscriptions for user: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// CountEnabledByType returns the number of enabled rows per transport.
func (s *SubscriptionStore) CountEnabledByType() (map[model.Transport]int, error) {
	rows, err := s.db.Query(
		`SELECT type, COUNT(*) FROM push_subscriptions WHERE enabled = 1 GROUP BY type`,
	)
	if err != nil {
		return nil, fmt.Errorf("count enabled subscriptions: %w", err)
	}
	defer rows.Close()

	counts := map[model.Transport]int{
		model.TransportWeb:  0,
		model.TransportExpo: 0,
		model.TransportFCM:  0,
	}
	for rows.Next() {
		var t model.Transport
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan subscription count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// PurgeDisabled hard-deletes rows that have been disabled since before the
// cutoff. Run periodically; enabled rows are never touched.
func (s *SubscriptionStore) PurgeDisabled(before time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM push_subscriptions WHERE enabled = 0 AND disabled_at < ?`, before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge disabled subscriptions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	var userID, token, subJSON, deviceName sql.NullString
	var enabled int

	err := row.Scan(&sub.ID, &userID, &sub.Type, &token, &subJSON, &deviceName, &enabled, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}

	sub.UserID = userID.String
	sub.Token = token.String
	sub.DeviceName = deviceName.String
	sub.Enabled = enabled != 0

	if subJSON.Valid && subJSON.String != "" {
		var ws model.WebPushSubscription
		if err := json.Unmarshal([]byte(subJSON.String), &ws); err != nil {
			return nil, fmt.Errorf("decode web subscription json: %w", err)
		}
		sub.Subscription = &ws
	}
	return &sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
