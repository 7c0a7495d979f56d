package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zenphony/notifier/internal/database"
	"github.com/zenphony/notifier/internal/model"
	"github.com/zenphony/notifier/internal/store"
)

// expoServer answers the push endpoint with one ticket per message,
// chosen by the ticketFor callback.
func expoServer(t *testing.T, ticketFor func(token string) expoTicket, requests *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			*requests++
		}
		var messages []expoMessage
		if err := json.NewDecoder(r.Body).Decode(&messages); err != nil {
			t.Errorf("decode expo request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var resp expoPushResponse
		for _, m := range messages {
			resp.Data = append(resp.Data, ticketFor(m.To))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func expoSub(id, token string) model.PushSubscription {
	return model.PushSubscription{ID: id, Type: model.TransportExpo, Token: token}
}

func okTicket(string) expoTicket {
	return expoTicket{Status: "ok"}
}

func TestExpoSendCountsTickets(t *testing.T) {
	srv := expoServer(t, func(token string) expoTicket {
		if token == "ExponentPushToken[bad]" {
			return expoTicket{Status: "error", Message: "recipient error"}
		}
		return expoTicket{Status: "ok"}
	}, nil)
	defer srv.Close()

	pruner := &fakePruner{}
	p := NewExpo(pruner, testLogger())
	p.pushURL = srv.URL

	res, err := p.Send(context.Background(), []model.PushSubscription{
		expoSub("a", "ExponentPushToken[one]"),
		expoSub("b", "ExponentPushToken[bad]"),
		expoSub("c", "ExpoPushToken[two]"),
	}, model.Payload{Title: "News Release"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 2 || res.Failed != 1 {
		t.Errorf("result = %+v, want 2 sent, 1 failed", res)
	}
	if len(pruner.disabledIDs()) != 0 {
		t.Errorf("non-terminal error disabled %v", pruner.disabledIDs())
	}
}

func TestExpoSendSkipsMalformedTokens(t *testing.T) {
	var requests int
	srv := expoServer(t, okTicket, &requests)
	defer srv.Close()

	p := NewExpo(&fakePruner{}, testLogger())
	p.pushURL = srv.URL

	res, err := p.Send(context.Background(), []model.PushSubscription{
		expoSub("a", "not-a-token"),
		expoSub("b", "fcm-token-ab12"),
	}, model.Payload{Title: "Indices Open"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 0 || res.Failed != 0 {
		t.Errorf("result = %+v, want zero counts for malformed tokens", res)
	}
	if requests != 0 {
		t.Errorf("made %d requests, want none", requests)
	}
}

func TestExpoSendChunksLargeBatches(t *testing.T) {
	var requests int
	srv := expoServer(t, okTicket, &requests)
	defer srv.Close()

	p := NewExpo(&fakePruner{}, testLogger())
	p.pushURL = srv.URL

	subs := make([]model.PushSubscription, 0, 150)
	for i := 0; i < 150; i++ {
		subs = append(subs, expoSub(string(rune('a'+i%26)), "ExponentPushToken[tok]"))
	}

	res, err := p.Send(context.Background(), subs, model.Payload{Title: "NY Session Started"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 150 {
		t.Errorf("sent = %d, want 150", res.Sent)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2 chunks", requests)
	}
}

func TestExpoTicketCountMismatchFailsChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(expoPushResponse{Data: []expoTicket{{Status: "ok"}}})
	}))
	defer srv.Close()

	p := NewExpo(&fakePruner{}, testLogger())
	p.pushURL = srv.URL

	res, err := p.Send(context.Background(), []model.PushSubscription{
		expoSub("a", "ExponentPushToken[one]"),
		expoSub("b", "ExponentPushToken[two]"),
	}, model.Payload{})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Failed != 2 {
		t.Errorf("failed = %d, want whole chunk on ticket mismatch", res.Failed)
	}
}

// A DeviceNotRegistered ticket must remove the subscription from future
// delivery rounds, not just count a failure.
func TestExpoDeviceNotRegisteredPrunesFromStore(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	subs := store.NewSubscriptionStore(db)

	if _, _, err := subs.Upsert(store.UpsertParams{Type: model.TransportExpo, Token: "ExponentPushToken[gone]"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, _, err := subs.Upsert(store.UpsertParams{Type: model.TransportExpo, Token: "ExponentPushToken[alive]"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	srv := expoServer(t, func(token string) expoTicket {
		if token == "ExponentPushToken[gone]" {
			tk := expoTicket{Status: "error", Message: "device gone"}
			tk.Details.Error = "DeviceNotRegistered"
			return tk
		}
		return expoTicket{Status: "ok"}
	}, nil)
	defer srv.Close()

	p := NewExpo(subs, testLogger())
	p.pushURL = srv.URL

	enabled, err := subs.ListEnabled(model.TransportExpo)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	res, err := p.Send(context.Background(), enabled, model.Payload{Title: "News Release"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Errorf("result = %+v, want 1 sent, 1 failed", res)
	}

	remaining, err := subs.ListEnabled(model.TransportExpo)
	if err != nil {
		t.Fatalf("list after send: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("enabled after prune = %d, want 1", len(remaining))
	}
	if remaining[0].Token != "ExponentPushToken[alive]" {
		t.Errorf("surviving token = %q, want the registered device", remaining[0].Token)
	}
}

func TestIsExpoToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"ExponentPushToken[abc123]", true},
		{"ExpoPushToken[abc123]", true},
		{"ExponentPushToken[abc123", false},
		{"abc123]", false},
		{"fcm-registration-token", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsExpoToken(tt.token); got != tt.want {
			t.Errorf("IsExpoToken(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}
