package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zenphony/notifier/internal/model"
	"github.com/zenphony/notifier/internal/store"
)

type SubscriptionHandler struct {
	subs   *store.SubscriptionStore
	logger *slog.Logger
}

func NewSubscriptionHandler(subs *store.SubscriptionStore, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, logger: logger}
}

type subscribeRequest struct {
	Subscription *model.WebPushSubscription `json:"subscription,omitempty"`
	Token        string                     `json:"token,omitempty"`
	UserID       string                     `json:"userId,omitempty"`
	Type         string                     `json:"type,omitempty"`
	DeviceName   string                     `json:"deviceName,omitempty"`
}

// Subscribe handles POST /api/notifications/subscribe. Registering the same
// endpoint or token again refreshes the existing row instead of duplicating
// it.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	transport := model.Transport(req.Type)
	if req.Type == "" {
		transport = model.TransportWeb
	}
	if !transport.Valid() {
		writeError(w, http.StatusBadRequest, "type must be web, expo, or fcm")
		return
	}

	sub, created, err := h.subs.Upsert(store.UpsertParams{
		Type:         transport,
		Token:        req.Token,
		Subscription: req.Subscription,
		UserID:       req.UserID,
		DeviceName:   req.DeviceName,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidAddressing) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("save subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	resp := map[string]any{"success": true, "id": sub.ID}
	status := http.StatusOK
	if created {
		resp["created"] = true
		status = http.StatusCreated
	} else {
		resp["updated"] = true
	}
	writeJSON(w, status, resp)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Unsubscribe handles POST /api/notifications/unsubscribe. The subscription
// is disabled, not removed, so delivery history stays attributable.
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	key := req.Endpoint
	if key == "" {
		key = req.Token
	}
	if key == "" {
		writeError(w, http.StatusBadRequest, "endpoint or token is required")
		return
	}

	if err := h.subs.Disable(key); err != nil {
		h.logger.Error("disable subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
