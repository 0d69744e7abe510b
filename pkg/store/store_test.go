package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndRecent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, Reading{
			Metric:   "brightness",
			Value:    float64(i) / 10,
			Device:   "desk",
			Frame:    i * 30,
			Received: base.Add(time.Duration(i) * time.Second),
			Context:  map[string]any{"category": "dark"},
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if _, err := s.Insert(ctx, Reading{Metric: "pitch", Value: 12}); err != nil {
		t.Fatalf("insert pitch: %v", err)
	}

	got, err := s.Recent(ctx, "brightness", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(got))
	}
	// newest three, oldest first
	for i, want := range []float64{0.2, 0.3, 0.4} {
		if math.Abs(got[i].Value-want) > 1e-9 {
			t.Errorf("reading %d value = %v, want %v", i, got[i].Value, want)
		}
	}
	last := got[2]
	if last.ID == "" || last.Device != "desk" || last.Frame != 120 {
		t.Errorf("unexpected reading: %+v", last)
	}
	if !last.Received.Equal(base.Add(4 * time.Second)) {
		t.Errorf("received = %v", last.Received)
	}
	if !last.Timestamp.Equal(last.Received) {
		t.Errorf("timestamp should default to receive time, got %v", last.Timestamp)
	}
	if last.Context["category"] != "dark" {
		t.Errorf("context = %v", last.Context)
	}

	n, err := s.Count(ctx, "pitch")
	if err != nil || n != 1 {
		t.Errorf("count pitch = %d, %v", n, err)
	}
}

func TestInsert_EmptyMetric(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.Insert(context.Background(), Reading{Value: 1}); !errors.Is(err, ErrEmptyMetric) {
		t.Errorf("err = %v, want ErrEmptyMetric", err)
	}
}

func TestPrune(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		s.Insert(ctx, Reading{Metric: "pitch", Value: float64(i), Received: base.Add(time.Duration(i) * time.Millisecond)})
	}

	removed, err := s.Prune(ctx, "pitch", 4)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 6 {
		t.Errorf("removed %d, want 6", removed)
	}
	got, _ := s.Recent(ctx, "pitch", 100)
	if len(got) != 4 || got[0].Value != 6 {
		t.Errorf("after prune: %+v", got)
	}
}

func TestOpen_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Insert(ctx, Reading{Metric: "brightness", Value: 0.5}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	n, _ := s.Count(ctx, "brightness")
	if n != 1 {
		t.Errorf("expected 1 reading after reopen, got %d", n)
	}
}

func TestRecent_SameReceiveTimeKeepsInsertOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		if _, err := s.Insert(ctx, Reading{Metric: "pitch", Value: float64(i), Received: at}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	got, err := s.Recent(ctx, "pitch", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Value != 2 || got[1].Value != 3 {
		t.Errorf("recent = %+v, want values 2 then 3", got)
	}
}

func TestRecent_BadTimestamp(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (id, metric, value, recorded_at, received_at) VALUES ('r1', 'pitch', 1, 'yesterday', 'yesterday')`)
	if err != nil {
		t.Fatalf("raw insert: %v", err)
	}

	if _, err := s.Recent(ctx, "pitch", 10); err == nil {
		t.Error("expected error for unparsable timestamp")
	}
}
