package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zenphony/notifier/internal/dispatch"
	"github.com/zenphony/notifier/internal/reminder"
)

const defaultReminderID = "session_start"

type DispatchHandler struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

func NewDispatchHandler(d *dispatch.Dispatcher, logger *slog.Logger) *DispatchHandler {
	return &DispatchHandler{dispatcher: d, logger: logger}
}

// Trigger handles GET /api/cron/dispatch. The type query parameter selects
// the reminder; force=true bypasses the quiet-hours and already-sent
// guards.
func (h *DispatchHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("type")
	if id == "" {
		id = defaultReminderID
	}

	rem, ok := reminder.ByID(id)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown reminder type: "+id)
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	res, err := h.dispatcher.Dispatch(r.Context(), rem, force)
	if err != nil {
		h.logger.Error("cron dispatch", "reminder", rem.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"reminder": res.Reminder,
		"sent":     res.Sent,
		"failed":   res.Failed,
		"total":    res.Total,
		"skipped":  res.Skipped,
	})
}

type testRequest struct {
	UserID string `json:"userId"`
}

// TestNotification handles POST /api/notifications/test, sending a test
// push to one user's devices.
func (h *DispatchHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	res, err := h.dispatcher.DispatchTest(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("test dispatch", "user", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "test dispatch failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"sent":    res.Sent,
		"failed":  res.Failed,
		"total":   res.Total,
	})
}
