package bybit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSpotStreamHandleMessage(t *testing.T) {
	s := NewSpotStream("ws://unused", []string{"btcusdt"})

	var gotSym string
	var gotPrice float64
	s.OnTick(func(sym string, p float64) {
		gotSym, gotPrice = sym, p
	})

	s.handleMessage([]byte(`{"success":true,"op":"subscribe"}`))
	s.handleMessage([]byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"symbol":"BTCUSDT","lastPrice":"bad"}}`))
	if _, err := s.SpotPrice(context.Background(), "BTCUSDT"); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice, got %v", err)
	}

	s.handleMessage([]byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","ts":1,"data":{"symbol":"BTCUSDT","lastPrice":"61000.5"}}`))
	p, err := s.SpotPrice(context.Background(), "btcusdt")
	if err != nil || p != 61000.5 {
		t.Fatalf("SpotPrice = %v, %v", p, err)
	}
	if gotSym != "BTCUSDT" || gotPrice != 61000.5 {
		t.Fatalf("callback got %s %v", gotSym, gotPrice)
	}
}

func TestSpotStreamEndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub wsRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub.Op != "subscribe" || len(sub.Args) != 1 || sub.Args[0] != "tickers.ETHUSDT" {
			t.Errorf("unexpected subscribe: %+v", sub)
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"topic":"tickers.ETHUSDT","type":"snapshot","data":{"symbol":"ETHUSDT","lastPrice":"3001.25"}}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewSpotStream("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"ETHUSDT"})
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := s.Price("ETHUSDT"); ok {
			if p != 3001.25 {
				t.Fatalf("price = %v", p)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no price received")
}

func TestSpotStreamStopWithoutStart(t *testing.T) {
	s := NewSpotStream("ws://unused", []string{"BTCUSDT"})
	s.Stop()
}
