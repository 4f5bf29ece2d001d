package stream_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/college-market/internal/model"
	"github.com/atmx/college-market/internal/stream"
)

func startHub(t *testing.T, allowed []string) (*stream.Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := stream.NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub.NewHandler(allowed))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForClients(t *testing.T, hub *stream.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastsTradeExecuted(t *testing.T) {
	hub, url := startHub(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	m := &model.Market{ID: 3, Status: model.StatusOpen, YesPrice: 52, NoPrice: 48}
	hub.Broadcast(stream.TradeExecuted(m, model.OutcomeYes, 250))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got stream.Message
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != stream.TypeTradeExecuted || got.MarketID != 3 {
		t.Errorf("unexpected message: %+v", got)
	}
	if got.YesPrice != 52 || got.NoPrice != 48 || got.Shares != 250 {
		t.Errorf("unexpected prices: %+v", got)
	}
	if got.ID == "" {
		t.Error("expected broadcast to assign an event id")
	}
}

func TestMarketResolved_CarriesOutcome(t *testing.T) {
	yes := model.OutcomeYes
	msg := stream.MarketResolved(&model.Market{ID: 1, Status: model.StatusResolved, ResolvedOutcome: &yes, YesPrice: 50, NoPrice: 50})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"resolved_outcome":"YES"`) {
		t.Errorf("expected resolved outcome in %s", data)
	}
	if strings.Contains(string(data), `"shares"`) {
		t.Errorf("resolution event should omit shares: %s", data)
	}
}

func TestHub_RejectsUnknownOrigin(t *testing.T) {
	_, url := startHub(t, []string{"http://localhost:5173"})

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected dial to fail for disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %+v", resp)
	}
}
