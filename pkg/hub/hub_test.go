package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_FanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test")
	go h.Run(ctx)
	waitFor(t, h.IsRunning)

	a := &Client{hub: h, send: make(chan Message, 4)}
	b := &Client{hub: h, send: make(chan Message, 4)}
	h.register <- a
	h.register <- b
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	if err := h.Publish(KindReading, "brightness", map[string]float64{"value": 0.4}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			var env struct {
				Kind   Kind               `json:"kind"`
				Metric string             `json:"metric"`
				Data   map[string]float64 `json:"data"`
			}
			if err := json.Unmarshal(msg.Data, &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if env.Kind != KindReading || env.Metric != "brightness" || env.Data["value"] != 0.4 {
				t.Errorf("envelope = %+v", env)
			}
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test")
	go h.Run(ctx)

	slow := &Client{hub: h, send: make(chan Message)}
	h.register <- slow
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Broadcast(Message{Data: []byte(`{}`)})
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	if _, ok := <-slow.send; ok {
		t.Error("slow client's channel should be closed")
	}
}

func TestHub_UnregisterAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New("test")
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	a := &Client{hub: h, send: make(chan Message, 1)}
	b := &Client{hub: h, send: make(chan Message, 1)}
	h.register <- a
	h.register <- b
	h.unregister <- a
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	<-done
	if h.IsRunning() || h.ClientCount() != 0 {
		t.Error("hub should be stopped and empty")
	}
	if _, ok := <-b.send; ok {
		t.Error("remaining client should be closed on shutdown")
	}
}

func TestHub_AddRemoveAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test")
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	waitFor(t, h.IsRunning)

	live := &Client{hub: h, send: make(chan Message, 4)}
	h.add(live)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}

	removed := make(chan struct{})
	go func() {
		h.remove(live)
		close(removed)
	}()
	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatal("remove blocked after shutdown")
	}

	created := make(chan *Client)
	go func() { created <- NewClient(h, nil) }()
	var late *Client
	select {
	case late = <-created:
	case <-time.After(time.Second):
		t.Fatal("NewClient blocked after shutdown")
	}

	if msg, ok := <-late.send; !ok || len(msg.Data) == 0 {
		t.Errorf("late client should still get its hello, got %v %v", msg, ok)
	}
	if _, ok := <-late.send; ok {
		t.Error("late client send channel should be closed")
	}
}
