package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/zenphony/notifier/internal/model"
)

// FCM multicast requests accept at most 500 tokens.
const fcmChunkSize = 500

// multicastSender is the slice of the Firebase messaging client the
// provider uses; narrowed for tests.
type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMProvider delivers raw FCM notifications via multicast. The messaging
// client is built lazily from the service-account JSON on first send, so a
// malformed credential surfaces as a per-cycle failure rather than a
// startup crash. Without credentials the provider is inert.
type FCMProvider struct {
	credentialsJSON string
	pruner          Pruner
	logger          *slog.Logger

	mu     sync.Mutex
	sender multicastSender

	terminal func(error) bool
}

func NewFCM(credentialsJSON string, pruner Pruner, logger *slog.Logger) *FCMProvider {
	return &FCMProvider{
		credentialsJSON: credentialsJSON,
		pruner:          pruner,
		logger:          logger,
		terminal:        fcmTerminalError,
	}
}

func (p *FCMProvider) Transport() model.Transport {
	return model.TransportFCM
}

// Enabled reports whether service-account credentials are configured.
func (p *FCMProvider) Enabled() bool {
	return p.credentialsJSON != ""
}

func (p *FCMProvider) client(ctx context.Context) (multicastSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sender != nil {
		return p.sender, nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON([]byte(p.credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init fcm messaging client: %w", err)
	}

	p.sender = client
	p.logger.Info("fcm messaging client initialized")
	return p.sender, nil
}

func (p *FCMProvider) Send(ctx context.Context, subs []model.PushSubscription, payload model.Payload) (Result, error) {
	if !p.Enabled() {
		p.logger.Warn("skipping fcm, service account not configured")
		return Result{}, nil
	}

	var valid []model.PushSubscription
	for _, sub := range subs {
		if sub.Token != "" {
			valid = append(valid, sub)
		}
	}
	if len(valid) == 0 {
		return Result{}, nil
	}

	sender, err := p.client(ctx)
	if err != nil {
		return Result{Failed: len(valid)}, err
	}

	var res Result
	for start := 0; start < len(valid); start += fcmChunkSize {
		end := min(start+fcmChunkSize, len(valid))
		chunk := valid[start:end]

		resp, err := sender.SendEachForMulticast(ctx, p.buildMessage(chunk, payload))
		if err != nil {
			res.Failed += len(chunk)
			p.logger.Error("fcm multicast", "size", len(chunk), "error", err)
			continue
		}

		res.Sent += resp.SuccessCount
		res.Failed += resp.FailureCount

		for i, sr := range resp.Responses {
			if sr.Success || i >= len(chunk) {
				continue
			}
			if p.terminal(sr.Error) {
				sub := chunk[i]
				if err := p.pruner.DisableByID(sub.ID); err != nil {
					p.logger.Error("disable invalid fcm subscription", "subscription", sub.ID, "error", err)
				} else {
					p.logger.Info("disabled invalid fcm subscription", "subscription", sub.ID)
				}
			} else if sr.Error != nil {
				p.logger.Error("fcm send", "subscription", chunk[i].ID, "error", sr.Error)
			}
		}
	}

	return res, nil
}

func (p *FCMProvider) buildMessage(chunk []model.PushSubscription, payload model.Payload) *messaging.MulticastMessage {
	tokens := make([]string, 0, len(chunk))
	for _, sub := range chunk {
		tokens = append(tokens, sub.Token)
	}

	badge := 1
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: stringifyData(payload.Data),
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID:             expoAndroidChannel,
				DefaultSound:          true,
				DefaultVibrateTimings: true,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: &badge,
				},
			},
		},
	}
}

// fcmTerminalError reports whether a per-token error means the token can
// never succeed again.
func fcmTerminalError(err error) bool {
	if err == nil {
		return false
	}
	return messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err)
}

// stringifyData flattens the payload data map into the string-to-string
// form the FCM data field requires.
func stringifyData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = fmt.Sprint(v)
	}
	return out
}
