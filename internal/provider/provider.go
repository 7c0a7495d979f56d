package provider

import (
	"context"

	"github.com/zenphony/notifier/internal/model"
)

// Result counts the outcome of one provider batch.
type Result struct {
	Sent   int
	Failed int
}

// Pruner disables a subscription the remote transport has reported as
// permanently dead, so future cycles stop paying for it. Satisfied by
// *store.SubscriptionStore.
type Pruner interface {
	DisableByID(id string) error
}

// Provider delivers one logical notification to a batch of subscriptions of
// its transport. Implementations deregister terminally dead subscriptions
// through their Pruner as a side effect; transient failures only count
// toward Result.Failed. A non-nil error means the batch as a whole could
// not be attempted — the dispatcher converts it into failure counts and
// carries on with the other transports.
type Provider interface {
	Transport() model.Transport
	Send(ctx context.Context, subs []model.PushSubscription, payload model.Payload) (Result, error)
}
