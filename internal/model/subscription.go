package model

import "time"

// Transport identifies the delivery mechanism for a push subscription.
type Transport string

const (
	TransportWeb  Transport = "web"
	TransportExpo Transport = "expo"
	TransportFCM  Transport = "fcm"
)

// Valid reports whether t is one of the known transports.
func (t Transport) Valid() bool {
	switch t {
	case TransportWeb, TransportExpo, TransportFCM:
		return true
	}
	return false
}

// WebPushKeys are the client encryption keys of a browser push subscription.
type WebPushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// WebPushSubscription is the subscription object produced by the browser's
// PushManager, stored verbatim as JSON.
type WebPushSubscription struct {
	Endpoint       string      `json:"endpoint"`
	ExpirationTime *int64      `json:"expirationTime,omitempty"`
	Keys           WebPushKeys `json:"keys"`
}

// PushSubscription is one registered device or browser endpoint. Exactly one
// addressing mechanism is populated: Subscription for web rows, Token for
// expo and fcm rows.
type PushSubscription struct {
	ID           string               `json:"id"`
	UserID       string               `json:"user_id,omitempty"`
	Type         Transport            `json:"type"`
	Token        string               `json:"token,omitempty"`
	Subscription *WebPushSubscription `json:"subscription,omitempty"`
	DeviceName   string               `json:"device_name,omitempty"`
	Enabled      bool                 `json:"enabled"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// NaturalKey returns the value a subscription is deduplicated by: the
// endpoint for web rows, the token otherwise.
func (s *PushSubscription) NaturalKey() string {
	if s.Type == TransportWeb && s.Subscription != nil {
		return s.Subscription.Endpoint
	}
	return s.Token
}

// NotificationLog is the append-only audit record written once per dispatch
// cycle per reminder.
type NotificationLog struct {
	ID             string    `json:"id"`
	ReminderID     string    `json:"reminder_id"`
	RecipientCount int       `json:"recipient_count"`
	SuccessCount   int       `json:"success_count"`
	FailureCount   int       `json:"failure_count"`
	SentAt         time.Time `json:"sent_at"`
}
