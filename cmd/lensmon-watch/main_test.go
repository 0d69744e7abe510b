package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestLiveURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:5000", "ws://localhost:5000/ws/live"},
		{"https://lensmon.example.com/", "wss://lensmon.example.com/ws/live"},
		{"http://host/prefix", "ws://host/prefix/ws/live"},
	}
	for _, tt := range tests {
		got, err := liveURL(tt.base)
		if err != nil {
			t.Fatalf("liveURL(%q): %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("liveURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

// oneShotServer sends a single frame on each connection and hangs up.
func oneShotServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"hello"}`))
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWatch_ConnectionDrop(t *testing.T) {
	wsURL := oneShotServer(t)
	ctx := context.Background()

	before := runtime.NumGoroutine()
	for i := 0; i < 5; i++ {
		var frames int
		connected, err := watch(ctx, wsURL, func([]byte) { frames++ })
		if !connected || err == nil {
			t.Fatalf("watch = %v, %v; want connected with a read error", connected, err)
		}
		if frames != 1 {
			t.Errorf("frames = %d, want 1", frames)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+2 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d after reconnects, started with %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatch_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	connected, err := watch(ctx, "ws://127.0.0.1:1/ws/live", func([]byte) {})
	if connected || err == nil {
		t.Errorf("watch = %v, %v; want dial error", connected, err)
	}
}
