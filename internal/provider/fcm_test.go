package provider

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"

	"github.com/zenphony/notifier/internal/model"
)

var errTokenGone = errors.New("registration token not registered")

// fakeMulticastSender records multicast messages and answers each with
// per-token responses from the respond callback.
type fakeMulticastSender struct {
	messages []*messaging.MulticastMessage
	respond  func(token string) *messaging.SendResponse
}

func (f *fakeMulticastSender) SendEachForMulticast(_ context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.messages = append(f.messages, msg)
	resp := &messaging.BatchResponse{}
	for _, token := range msg.Tokens {
		sr := f.respond(token)
		resp.Responses = append(resp.Responses, sr)
		if sr.Success {
			resp.SuccessCount++
		} else {
			resp.FailureCount++
		}
	}
	return resp, nil
}

func newTestFCM(pruner Pruner, sender *fakeMulticastSender) *FCMProvider {
	p := NewFCM(`{"type":"service_account"}`, pruner, testLogger())
	p.sender = sender
	p.terminal = func(err error) bool { return errors.Is(err, errTokenGone) }
	return p
}

func allOK(string) *messaging.SendResponse {
	return &messaging.SendResponse{Success: true, MessageID: "projects/x/messages/1"}
}

func fcmSub(id, token string) model.PushSubscription {
	return model.PushSubscription{ID: id, Type: model.TransportFCM, Token: token}
}

func TestFCMInertWithoutCredentials(t *testing.T) {
	sender := &fakeMulticastSender{respond: allOK}
	p := NewFCM("", &fakePruner{}, testLogger())
	p.sender = sender

	if p.Enabled() {
		t.Fatal("provider without credentials reports enabled")
	}
	res, err := p.Send(context.Background(), []model.PushSubscription{fcmSub("a", "token-a")}, model.Payload{Title: "News Release"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 0 || res.Failed != 0 {
		t.Errorf("result = %+v, want zero counts when unconfigured", res)
	}
	if len(sender.messages) != 0 {
		t.Errorf("sent %d multicasts, want none", len(sender.messages))
	}
}

func TestFCMSendCountsAndMessageShape(t *testing.T) {
	sender := &fakeMulticastSender{respond: func(token string) *messaging.SendResponse {
		if token == "token-flaky" {
			return &messaging.SendResponse{Error: errors.New("internal error")}
		}
		return allOK(token)
	}}
	pruner := &fakePruner{}
	p := newTestFCM(pruner, sender)

	res, err := p.Send(context.Background(), []model.PushSubscription{
		fcmSub("a", "token-a"),
		fcmSub("b", "token-flaky"),
		fcmSub("c", "token-c"),
	}, model.Payload{
		Title: "📈 Indices Open",
		Body:  "US indices are now open for trading.",
		Data:  map[string]any{"reminderId": "indices_open"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 2 || res.Failed != 1 {
		t.Errorf("result = %+v, want 2 sent, 1 failed", res)
	}
	if len(pruner.disabledIDs()) != 0 {
		t.Errorf("transient error disabled %v", pruner.disabledIDs())
	}

	if len(sender.messages) != 1 {
		t.Fatalf("multicasts = %d, want 1", len(sender.messages))
	}
	msg := sender.messages[0]
	if msg.Notification == nil || msg.Notification.Title != "📈 Indices Open" {
		t.Errorf("notification = %+v, want payload title", msg.Notification)
	}
	if msg.Data["reminderId"] != "indices_open" {
		t.Errorf("data = %v, want stringified payload data", msg.Data)
	}
	if msg.Android == nil || msg.Android.Priority != "high" {
		t.Error("expected high-priority android config")
	}
	if msg.Android.Notification == nil || msg.Android.Notification.ChannelID != "trading" {
		t.Error("expected trading notification channel")
	}
	if msg.APNS == nil || msg.APNS.Payload == nil || msg.APNS.Payload.Aps.Sound != "default" {
		t.Error("expected default APNS sound")
	}
}

func TestFCMTerminalErrorPrunes(t *testing.T) {
	sender := &fakeMulticastSender{respond: func(token string) *messaging.SendResponse {
		if token == "token-gone" {
			return &messaging.SendResponse{Error: errTokenGone}
		}
		return allOK(token)
	}}
	pruner := &fakePruner{}
	p := newTestFCM(pruner, sender)

	res, err := p.Send(context.Background(), []model.PushSubscription{
		fcmSub("gone", "token-gone"),
		fcmSub("alive", "token-alive"),
	}, model.Payload{Title: "News Release"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Errorf("result = %+v, want 1 sent, 1 failed", res)
	}
	if got := pruner.disabledIDs(); len(got) != 1 || got[0] != "gone" {
		t.Errorf("disabled = %v, want only the unregistered token", got)
	}
}

func TestFCMSendChunksLargeBatches(t *testing.T) {
	sender := &fakeMulticastSender{respond: allOK}
	p := newTestFCM(&fakePruner{}, sender)

	subs := make([]model.PushSubscription, 0, 600)
	for i := 0; i < 600; i++ {
		subs = append(subs, fcmSub("id", "token"))
	}

	res, err := p.Send(context.Background(), subs, model.Payload{Title: "NY Session Started"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 600 {
		t.Errorf("sent = %d, want 600", res.Sent)
	}
	if len(sender.messages) != 2 {
		t.Fatalf("multicasts = %d, want 2 chunks", len(sender.messages))
	}
	if len(sender.messages[0].Tokens) != 500 || len(sender.messages[1].Tokens) != 100 {
		t.Errorf("chunk sizes = %d/%d, want 500/100",
			len(sender.messages[0].Tokens), len(sender.messages[1].Tokens))
	}
}

func TestFCMSkipsEmptyTokens(t *testing.T) {
	sender := &fakeMulticastSender{respond: allOK}
	p := newTestFCM(&fakePruner{}, sender)

	res, err := p.Send(context.Background(), []model.PushSubscription{{ID: "a", Type: model.TransportFCM}}, model.Payload{})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 0 || res.Failed != 0 {
		t.Errorf("result = %+v, want zero counts", res)
	}
	if len(sender.messages) != 0 {
		t.Errorf("sent %d multicasts, want none", len(sender.messages))
	}
}
