package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPayload_MarshalJSON(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := Payload{
		Metric:    "brightness",
		Value:     0.5234,
		Context:   map[string]any{"category": "medium", "frame": 999},
		Timestamp: ts,
		Frame:     123,
		Device:    "spectacles",
	}

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["brightness"] != 0.5234 {
		t.Errorf("brightness = %v", got["brightness"])
	}
	if got["category"] != "medium" {
		t.Errorf("category = %v", got["category"])
	}
	if got["frame"] != float64(123) {
		t.Errorf("frame = %v, context must not override it", got["frame"])
	}
	if got["device"] != "spectacles" {
		t.Errorf("device = %v", got["device"])
	}
	if got["timestamp"] != "2024-01-01T12:00:00Z" {
		t.Errorf("timestamp = %v", got["timestamp"])
	}
}

func TestPayload_EmptyMetric(t *testing.T) {
	_, err := json.Marshal(Payload{Value: 1})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestNewSender_RequiresURL(t *testing.T) {
	if _, err := NewSender(); !errors.Is(err, ErrNoURL) {
		t.Errorf("err = %v, want ErrNoURL", err)
	}
	if _, err := NewSender(WithEnabled(false)); err != nil {
		t.Errorf("disabled sender without URL should be fine: %v", err)
	}
}

func TestSender_Send(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewSender(WithURL(srv.URL), WithDevice("test-rig"))
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	res := <-s.Send(context.Background(), Payload{Metric: "pitch", Value: 12.5, Frame: 60})
	if !res.OK() || res.StatusCode != http.StatusOK {
		t.Fatalf("result = %+v", res)
	}
	if body["pitch"] != 12.5 || body["device"] != "test-rig" {
		t.Errorf("backend saw %v", body)
	}
	if st := s.Stats(); st.Sent != 1 || st.Failed != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSender_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"status":"error"}`)
	}))
	defer srv.Close()

	s, _ := NewSender(WithURL(srv.URL))
	res := <-s.Send(context.Background(), Payload{Metric: "brightness", Value: 7})

	var se *StatusError
	if !errors.As(res.Err, &se) {
		t.Fatalf("err = %v, want *StatusError", res.Err)
	}
	if !se.IsClientError() || se.IsServerError() {
		t.Errorf("classification wrong for %d", se.StatusCode)
	}
	if s.Stats().Failed != 1 {
		t.Errorf("Failed = %d", s.Stats().Failed)
	}
}

func TestSender_UnreachableIsDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	s, _ := NewSender(WithURL(url), WithTimeout(500*time.Millisecond), WithVerbose(true))
	res := <-s.Send(context.Background(), Payload{Metric: "pitch", Value: 1})
	if res.OK() {
		t.Fatal("expected failure against closed server")
	}
}

func TestSender_DoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s, _ := NewSender(WithURL(srv.URL))

	start := time.Now()
	for i := 0; i < 3; i++ {
		s.Send(context.Background(), Payload{Metric: "pitch", Value: float64(i), Frame: i})
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("Send blocked for %v", elapsed)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hits.Load() != 3 {
		t.Errorf("in-flight sends = %d, want 3 concurrent", hits.Load())
	}
}

func TestSender_Disabled(t *testing.T) {
	s, _ := NewSender(WithEnabled(false))
	res := <-s.Send(context.Background(), Payload{Metric: "pitch"})
	if !errors.Is(res.Err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", res.Err)
	}
}
