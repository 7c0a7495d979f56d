package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zenphony/notifier/internal/model"
	"github.com/zenphony/notifier/internal/provider"
	"github.com/zenphony/notifier/internal/reminder"
)

const (
	defaultProviderTimeout = 30 * time.Second

	// Disabled subscriptions older than this are removed for good by the
	// nightly purge.
	defaultRetention = 30 * 24 * time.Hour

	purgeSpec = "0 3 * * *"
)

// SubscriptionLister is the slice of the subscription store the dispatcher
// reads from.
type SubscriptionLister interface {
	ListEnabled(transport model.Transport) ([]model.PushSubscription, error)
	ListEnabledForUser(userID string) ([]model.PushSubscription, error)
	PurgeDisabled(before time.Time) (int64, error)
}

// AuditLog records one row per delivery cycle. Append receives the cycle's
// trigger instant so the row is stamped from the dispatcher's clock, which
// the same-day duplicate check also reads.
type AuditLog interface {
	Append(reminderID string, recipients, success, failure int, sentAt time.Time) (*model.NotificationLog, error)
	SentBetween(reminderID string, from, to time.Time) (bool, error)
}

// Result summarizes one delivery cycle.
type Result struct {
	Reminder string `json:"reminder"`
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
	Total    int    `json:"total"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// Event is the broadcast form of a cycle result.
type Event struct {
	Reminder  string    `json:"reminder"`
	Title     string    `json:"title,omitempty"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
	Skipped   bool      `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Options tune a Dispatcher. The zero value is usable.
type Options struct {
	QuietHoursStart string
	QuietHoursEnd   string
	ProviderTimeout time.Duration
	Retention       time.Duration

	// OnResult, when set, receives an event after every completed or
	// skipped cycle.
	OnResult func(Event)
}

// Dispatcher owns the cron schedule and fans each reminder out to every
// registered provider. Providers run concurrently per cycle; one slow or
// failing transport never blocks the others, and every cycle appends
// exactly one audit row.
type Dispatcher struct {
	engine    *reminder.Engine
	subs      SubscriptionLister
	logs      AuditLog
	providers []provider.Provider
	logger    *slog.Logger
	opts      Options

	cron *cron.Cron
	now  func() time.Time
}

func New(engine *reminder.Engine, subs SubscriptionLister, logs AuditLog, providers []provider.Provider, logger *slog.Logger, opts Options) *Dispatcher {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = defaultProviderTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	return &Dispatcher{
		engine:    engine,
		subs:      subs,
		logs:      logs,
		providers: providers,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Start registers one cron entry per enabled reminder, plus the nightly
// purge, and launches the schedule. All entries fire in the engine's zone
// regardless of server local time.
func (d *Dispatcher) Start() error {
	c := cron.New(cron.WithLocation(d.engine.Location()))

	for _, r := range reminder.EnabledReminders() {
		spec := reminder.CronSpec(r)
		if _, err := c.AddFunc(spec, func() { d.runScheduled(r) }); err != nil {
			return fmt.Errorf("schedule reminder %s: %w", r.ID, err)
		}
		d.logger.Info("scheduled reminder", "reminder", r.ID, "cron", spec, "time", r.Time())
	}
	if _, err := c.AddFunc(purgeSpec, d.purgeDisabled); err != nil {
		return fmt.Errorf("schedule purge: %w", err)
	}

	c.Start()
	d.cron = c
	d.logger.Info("dispatcher started", "zone", d.engine.Location().String())
	return nil
}

// Stop halts the schedule and waits for any in-flight cycle to finish.
func (d *Dispatcher) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) runScheduled(r reminder.Reminder) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.ProviderTimeout)
	defer cancel()

	res, err := d.Dispatch(ctx, r, false)
	if err != nil {
		d.logger.Error("scheduled dispatch", "reminder", r.ID, "error", err)
		return
	}
	d.logger.Info("scheduled dispatch complete",
		"reminder", r.ID, "sent", res.Sent, "failed", res.Failed, "total", res.Total, "skipped", res.Skipped)
}

// Dispatch runs one delivery cycle for a reminder. With force false the
// cycle is skipped inside quiet hours and when an audit row already exists
// for the reminder on the current local day; force bypasses both guards.
// Listing subscribers is the only fatal error: provider failures are
// absorbed into the failure count and still produce an audit row.
func (d *Dispatcher) Dispatch(ctx context.Context, r reminder.Reminder, force bool) (Result, error) {
	now := d.now()

	if !force {
		if d.engine.WithinQuietHours(now, d.opts.QuietHoursStart, d.opts.QuietHoursEnd) {
			d.logger.Info("skipping reminder inside quiet hours", "reminder", r.ID)
			return d.skip(r, now), nil
		}
		dayStart, dayEnd := d.engine.DayBounds(now)
		sent, err := d.logs.SentBetween(r.ID, dayStart, dayEnd)
		if err != nil {
			// Advisory check only; deliver rather than drop the cycle.
			d.logger.Warn("duplicate check failed", "reminder", r.ID, "error", err)
		} else if sent {
			d.logger.Info("skipping already-sent reminder", "reminder", r.ID)
			return d.skip(r, now), nil
		}
	}

	subs, err := d.subs.ListEnabled("")
	if err != nil {
		return Result{Reminder: r.ID}, fmt.Errorf("list subscriptions: %w", err)
	}

	sent, failed := d.fanOut(ctx, subs, buildPayload(r, now))

	if _, err := d.logs.Append(r.ID, len(subs), sent, failed, now); err != nil {
		d.logger.Error("append notification log", "reminder", r.ID, "error", err)
	}

	res := Result{Reminder: r.ID, Sent: sent, Failed: failed, Total: len(subs)}
	d.emit(Event{
		Reminder:  r.ID,
		Title:     r.Title,
		Sent:      res.Sent,
		Failed:    res.Failed,
		Total:     res.Total,
		Timestamp: now.UTC(),
	})
	return res, nil
}

// DispatchTest sends a test notification to a single user's devices. Test
// cycles are audited under their own id and never deduplicated.
func (d *Dispatcher) DispatchTest(ctx context.Context, userID string) (Result, error) {
	subs, err := d.subs.ListEnabledForUser(userID)
	if err != nil {
		return Result{Reminder: "test"}, fmt.Errorf("list user subscriptions: %w", err)
	}

	now := d.now()
	payload := model.Payload{
		Title: "🧪 Test Notification",
		Body:  "If you can read this, push delivery is working.",
		Tag:   "test",
		URL:   "/",
		Data: map[string]any{
			"reminderId": "test",
			"timestamp":  now.UnixMilli(),
		},
	}

	sent, failed := d.fanOut(ctx, subs, payload)

	if _, err := d.logs.Append("test", len(subs), sent, failed, now); err != nil {
		d.logger.Error("append notification log", "reminder", "test", "error", err)
	}

	return Result{Reminder: "test", Sent: sent, Failed: failed, Total: len(subs)}, nil
}

// fanOut partitions subscriptions by transport and sends through every
// provider concurrently, waiting for all of them. A provider that returns
// an error counts its unsent remainder as failures.
func (d *Dispatcher) fanOut(ctx context.Context, subs []model.PushSubscription, payload model.Payload) (sent, failed int) {
	if len(subs) == 0 {
		return 0, 0
	}

	byTransport := make(map[model.Transport][]model.PushSubscription)
	for _, sub := range subs {
		byTransport[sub.Type] = append(byTransport[sub.Type], sub)
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range d.providers {
		part := byTransport[p.Transport()]
		if len(part) == 0 {
			continue
		}
		wg.Add(1)
		go func(p provider.Provider, part []model.PushSubscription) {
			defer wg.Done()
			res, err := p.Send(ctx, part, payload)
			if err != nil {
				d.logger.Error("provider send", "transport", p.Transport(), "error", err)
				res.Failed = len(part) - res.Sent
			}
			mu.Lock()
			sent += res.Sent
			failed += res.Failed
			mu.Unlock()
		}(p, part)
	}
	wg.Wait()
	return sent, failed
}

func (d *Dispatcher) skip(r reminder.Reminder, now time.Time) Result {
	d.emit(Event{Reminder: r.ID, Title: r.Title, Skipped: true, Timestamp: now.UTC()})
	return Result{Reminder: r.ID, Skipped: true}
}

func (d *Dispatcher) emit(ev Event) {
	if d.opts.OnResult != nil {
		d.opts.OnResult(ev)
	}
}

func (d *Dispatcher) purgeDisabled() {
	cutoff := d.now().Add(-d.opts.Retention)
	n, err := d.subs.PurgeDisabled(cutoff)
	if err != nil {
		d.logger.Error("purge disabled subscriptions", "error", err)
		return
	}
	if n > 0 {
		d.logger.Info("purged disabled subscriptions", "count", n, "cutoff", cutoff)
	}
}

func buildPayload(r reminder.Reminder, now time.Time) model.Payload {
	return model.Payload{
		Title: r.Title,
		Body:  r.Body,
		Tag:   r.ID,
		URL:   "/",
		Data: map[string]any{
			"reminderId": r.ID,
			"timestamp":  now.UnixMilli(),
		},
	}
}
