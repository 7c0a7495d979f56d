package provider

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/zenphony/notifier/internal/model"
)

const webPushTTL = 3600 // seconds; matches the 1h validity of the reminders

// WebPushProvider delivers browser notifications, one request per
// subscription, signed with the process-wide VAPID key pair. Without a key
// pair the provider is inert: every Send returns zero counts.
type WebPushProvider struct {
	publicKey  string
	privateKey string
	subscriber string
	pruner     Pruner
	client     webpush.HTTPClient
	logger     *slog.Logger
}

func NewWebPush(publicKey, privateKey, subscriber string, pruner Pruner, logger *slog.Logger) *WebPushProvider {
	return &WebPushProvider{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		pruner:     pruner,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (p *WebPushProvider) Transport() model.Transport {
	return model.TransportWeb
}

// Enabled reports whether the VAPID key pair is configured.
func (p *WebPushProvider) Enabled() bool {
	return p.publicKey != "" && p.privateKey != ""
}

// PublicKey returns the VAPID public key clients subscribe with.
func (p *WebPushProvider) PublicKey() string {
	return p.publicKey
}

func (p *WebPushProvider) Send(ctx context.Context, subs []model.PushSubscription, payload model.Payload) (Result, error) {
	if !p.Enabled() {
		p.logger.Warn("skipping web push, VAPID keys not configured")
		return Result{}, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal web push payload: %w", err)
	}

	var res Result
	for _, sub := range subs {
		if sub.Subscription == nil || sub.Subscription.Endpoint == "" {
			res.Failed++
			continue
		}

		resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
			Endpoint: sub.Subscription.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.Subscription.Keys.P256dh,
				Auth:   sub.Subscription.Keys.Auth,
			},
		}, &webpush.Options{
			HTTPClient:      p.client,
			VAPIDPublicKey:  p.publicKey,
			VAPIDPrivateKey: p.privateKey,
			Subscriber:      p.subscriber,
			TTL:             webPushTTL,
			Urgency:         webpush.UrgencyHigh,
		})
		if err != nil {
			res.Failed++
			p.logger.Error("web push send", "subscription", sub.ID, "error", err)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			// Endpoint permanently gone.
			res.Failed++
			if err := p.pruner.DisableByID(sub.ID); err != nil {
				p.logger.Error("disable expired web subscription", "subscription", sub.ID, "error", err)
			} else {
				p.logger.Info("disabled expired web subscription", "subscription", sub.ID)
			}
		case resp.StatusCode >= 400:
			res.Failed++
			p.logger.Error("web push rejected", "subscription", sub.ID, "status", resp.StatusCode)
		default:
			res.Sent++
		}
	}

	return res, nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.Bytes())

	return publicKey, privateKey, nil
}
