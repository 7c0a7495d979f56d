package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/zenphony/notifier/internal/model"
	"github.com/zenphony/notifier/internal/reminder"
	"github.com/zenphony/notifier/internal/store"
)

const recentLogLimit = 10

type StatusHandler struct {
	engine *reminder.Engine
	subs   *store.SubscriptionStore
	logs   *store.NotificationLogStore
	logger *slog.Logger

	vapidPublicKey  string
	fcmConfigured   bool
	quietHoursStart string
	quietHoursEnd   string

	now func() time.Time
}

func NewStatusHandler(engine *reminder.Engine, subs *store.SubscriptionStore, logs *store.NotificationLogStore, vapidPublicKey string, fcmConfigured bool, quietStart, quietEnd string, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		engine:          engine,
		subs:            subs,
		logs:            logs,
		logger:          logger,
		vapidPublicKey:  vapidPublicKey,
		fcmConfigured:   fcmConfigured,
		quietHoursStart: quietStart,
		quietHoursEnd:   quietEnd,
		now:             time.Now,
	}
}

// Status handles GET /api/notifications/status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.subs.CountEnabledByType()
	if err != nil {
		h.logger.Error("count subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}

	recent, err := h.logs.ListRecent(recentLogLimit)
	if err != nil {
		h.logger.Error("list notification logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}

	now := h.now()

	reminders := make([]map[string]any, 0, len(reminder.Definitions))
	for _, rem := range reminder.Definitions {
		reminders = append(reminders, map[string]any{
			"id":      rem.ID,
			"title":   rem.Title,
			"time":    rem.Time(),
			"enabled": rem.Enabled,
		})
	}

	resp := map[string]any{
		"subscriptions": map[string]any{
			"web":   counts[model.TransportWeb],
			"expo":  counts[model.TransportExpo],
			"fcm":   counts[model.TransportFCM],
			"total": counts[model.TransportWeb] + counts[model.TransportExpo] + counts[model.TransportFCM],
		},
		"reminders":   reminders,
		"recent_logs": recent,
		"timezone": map[string]any{
			"zone":           reminder.ZoneName,
			"offset_minutes": h.engine.OffsetMinutes(now),
		},
		"providers": map[string]any{
			"web_push": h.vapidPublicKey != "",
			"fcm":      h.fcmConfigured,
			"expo":     true,
		},
	}

	if next, until, ok := h.engine.TimeUntilNext(now); ok {
		resp["next_reminder"] = map[string]any{
			"id":         next.ID,
			"title":      next.Title,
			"time":       next.Time(),
			"in_seconds": int(until.Seconds()),
		}
	}

	if h.quietHoursStart != "" && h.quietHoursEnd != "" {
		resp["quiet_hours"] = map[string]any{
			"start":  h.quietHoursStart,
			"end":    h.quietHoursEnd,
			"active": h.engine.WithinQuietHours(now, h.quietHoursStart, h.quietHoursEnd),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// VAPIDKey handles GET /api/notifications/vapid-key, exposing the public
// half of the signing key browsers subscribe with.
func (h *StatusHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		writeError(w, http.StatusNotFound, "web push is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.vapidPublicKey})
}
