package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zenphony/notifier/internal/model"
)

const (
	defaultExpoPushURL = "https://exp.host/--/api/v2/push/send"

	// Batch size recommended by the Expo push service.
	expoChunkSize = 100

	expoAndroidChannel = "trading"
)

// ExpoProvider delivers mobile notifications through the Expo push HTTP
// API. Messages are batched and each per-recipient ticket is inspected:
// tickets reporting an unregistered device or invalid credentials
// deregister that one subscription.
type ExpoProvider struct {
	pushURL string
	client  *http.Client
	pruner  Pruner
	logger  *slog.Logger
}

func NewExpo(pruner Pruner, logger *slog.Logger) *ExpoProvider {
	return &ExpoProvider{
		pushURL: defaultExpoPushURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		pruner:  pruner,
		logger:  logger,
	}
}

func (p *ExpoProvider) Transport() model.Transport {
	return model.TransportExpo
}

type expoMessage struct {
	To        string         `json:"to"`
	Sound     string         `json:"sound,omitempty"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	ChannelID string         `json:"channelId,omitempty"`
}

type expoTicket struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

type expoPushResponse struct {
	Data []expoTicket `json:"data"`
}

func (p *ExpoProvider) Send(ctx context.Context, subs []model.PushSubscription, payload model.Payload) (Result, error) {
	// Subscriptions whose tokens are not syntactically valid Expo tokens
	// are excluded up front and do not count as failures.
	var valid []model.PushSubscription
	for _, sub := range subs {
		if IsExpoToken(sub.Token) {
			valid = append(valid, sub)
		}
	}
	if len(valid) == 0 {
		return Result{}, nil
	}

	var res Result
	for start := 0; start < len(valid); start += expoChunkSize {
		end := min(start+expoChunkSize, len(valid))
		chunk := valid[start:end]

		tickets, err := p.sendChunk(ctx, chunk, payload)
		if err != nil {
			res.Failed += len(chunk)
			p.logger.Error("expo push chunk", "size", len(chunk), "error", err)
			continue
		}

		for i, ticket := range tickets {
			if ticket.Status == "ok" {
				res.Sent++
				continue
			}
			res.Failed++
			if i < len(chunk) && expoTerminalTicket(ticket) {
				sub := chunk[i]
				if err := p.pruner.DisableByID(sub.ID); err != nil {
					p.logger.Error("disable invalid expo subscription", "subscription", sub.ID, "error", err)
				} else {
					p.logger.Info("disabled invalid expo subscription", "subscription", sub.ID)
				}
			}
		}
	}

	return res, nil
}

func (p *ExpoProvider) sendChunk(ctx context.Context, chunk []model.PushSubscription, payload model.Payload) ([]expoTicket, error) {
	messages := make([]expoMessage, 0, len(chunk))
	for _, sub := range chunk {
		messages = append(messages, expoMessage{
			To:        sub.Token,
			Sound:     "default",
			Title:     payload.Title,
			Body:      payload.Body,
			Data:      payload.Data,
			Priority:  "high",
			ChannelID: expoAndroidChannel,
		})
	}

	body, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshal expo messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.pushURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build expo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expo push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expo push service returned %d", resp.StatusCode)
	}

	var parsed expoPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode expo response: %w", err)
	}
	if len(parsed.Data) != len(chunk) {
		return nil, fmt.Errorf("expo returned %d tickets for %d messages", len(parsed.Data), len(chunk))
	}
	return parsed.Data, nil
}

// expoTerminalTicket reports whether a ticket means the token can never
// succeed again.
func expoTerminalTicket(t expoTicket) bool {
	if t.Details.Error == "DeviceNotRegistered" || t.Details.Error == "InvalidCredentials" {
		return true
	}
	return strings.Contains(t.Message, "DeviceNotRegistered") || strings.Contains(t.Message, "InvalidCredentials")
}

// IsExpoToken reports whether token has the shape of an Expo push token,
// e.g. "ExponentPushToken[xxxxxxxx]".
func IsExpoToken(token string) bool {
	if !strings.HasSuffix(token, "]") {
		return false
	}
	return strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")
}
