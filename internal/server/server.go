package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/zenphony/notifier/internal/config"
	"github.com/zenphony/notifier/internal/dispatch"
	"github.com/zenphony/notifier/internal/handler"
	"github.com/zenphony/notifier/internal/middleware"
	"github.com/zenphony/notifier/internal/provider"
	"github.com/zenphony/notifier/internal/reminder"
	"github.com/zenphony/notifier/internal/store"
	ws "github.com/zenphony/notifier/internal/websocket"
)

const (
	subscribeLimit  = 10
	subscribeWindow = time.Minute
)

type Server struct {
	db          *sql.DB
	cfg         *config.Config
	hub         *ws.Hub
	dispatcher  *dispatch.Dispatcher
	subH        *handler.SubscriptionHandler
	dispatchH   *handler.DispatchHandler
	statusH     *handler.StatusHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, engine *reminder.Engine, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	subs := store.NewSubscriptionStore(db)
	logs := store.NewNotificationLogStore(db)

	providerLogger := logger.With("component", "provider")
	webPush := provider.NewWebPush(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDEmail, subs, providerLogger)
	providers := []provider.Provider{
		webPush,
		provider.NewExpo(subs, providerLogger),
		provider.NewFCM(cfg.FirebaseServiceAccount, subs, providerLogger),
	}

	dispatcher := dispatch.New(engine, subs, logs, providers, logger.With("component", "dispatch"), dispatch.Options{
		QuietHoursStart: cfg.QuietHoursStart,
		QuietHoursEnd:   cfg.QuietHoursEnd,
		OnResult: func(ev dispatch.Event) {
			hub.Broadcast(ws.DeliveryMessage(ev.Reminder, ev.Title, ev.Sent, ev.Failed, ev.Total, ev.Skipped, ev.Timestamp))
		},
	})

	return &Server{
		db:         db,
		cfg:        cfg,
		hub:        hub,
		dispatcher: dispatcher,
		subH:       handler.NewSubscriptionHandler(subs, logger.With("component", "subscription")),
		dispatchH:  handler.NewDispatchHandler(dispatcher, logger.With("component", "dispatch_handler")),
		statusH: handler.NewStatusHandler(engine, subs, logs,
			cfg.VAPIDPublicKey, cfg.FCMConfigured(), cfg.QuietHoursStart, cfg.QuietHoursEnd,
			logger.With("component", "status")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Dispatcher returns the dispatcher so the entrypoint can start and stop
// its schedule.
func (s *Server) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("POST /api/notifications/subscribe", s.rateLimitedHandler(s.subH.Subscribe))
	mux.HandleFunc("POST /api/notifications/unsubscribe", s.rateLimitedHandler(s.subH.Unsubscribe))
	mux.HandleFunc("POST /api/notifications/test", s.rateLimitedHandler(s.dispatchH.TestNotification))
	mux.HandleFunc("GET /api/notifications/status", s.statusH.Status)
	mux.HandleFunc("GET /api/notifications/vapid-key", s.statusH.VAPIDKey)

	cronAuth := middleware.CronAuth(s.cfg.CronSecret, s.cfg.IsProduction(), s.logger.With("component", "cron_auth"))
	mux.Handle("GET /api/cron/dispatch", cronAuth(http.HandlerFunc(s.dispatchH.Trigger)))

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, subscribeLimit, subscribeWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
