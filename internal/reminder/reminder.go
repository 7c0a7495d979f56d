package reminder

import "fmt"

// ZoneName is the civil time zone every reminder is defined against.
const ZoneName = "America/New_York"

// Reminder is a named recurring trigger with a fixed local time and
// notification text. The set is static for the lifetime of the process.
type Reminder struct {
	ID           string
	Hour         int
	Minute       int
	Title        string
	Body         string
	WeekdaysOnly bool
	Enabled      bool
}

// Time returns the reminder's local trigger time as "HH:MM".
func (r Reminder) Time() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

// Definitions is the fixed set of session reminders, in trigger order.
var Definitions = []Reminder{
	{
		ID:           "session_start",
		Hour:         8,
		Minute:       0,
		Title:        "🔔 NY Session Started",
		Body:         "Get on the charts! NY session is now live.",
		WeekdaysOnly: true,
		Enabled:      true,
	},
	{
		ID:           "news_release",
		Hour:         8,
		Minute:       30,
		Title:        "📰 News Release",
		Body:         "Economic news incoming - check the calendar!",
		WeekdaysOnly: true,
		Enabled:      true,
	},
	{
		ID:           "indices_open",
		Hour:         9,
		Minute:       30,
		Title:        "📈 Indices Open",
		Body:         "US indices are now open for trading.",
		WeekdaysOnly: true,
		Enabled:      true,
	},
}

// ByID looks up a reminder definition by its slug.
func ByID(id string) (Reminder, bool) {
	for _, r := range Definitions {
		if r.ID == id {
			return r, true
		}
	}
	return Reminder{}, false
}

// EnabledReminders returns the definitions that are currently switched on.
func EnabledReminders() []Reminder {
	var out []Reminder
	for _, r := range Definitions {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// CronSpec returns the five-field cron expression for a reminder. The
// expression is evaluated in the engine's zone, never in server local time.
func CronSpec(r Reminder) string {
	dow := "*"
	if r.WeekdaysOnly {
		dow = "1-5"
	}
	return fmt.Sprintf("%d %d * * %s", r.Minute, r.Hour, dow)
}
