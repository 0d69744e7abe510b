package httpc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostJSON(t *testing.T) {
	var gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	resp, err := PostJSON(context.Background(), nil, srv.URL, []byte(`{"pitch":12.5}`))
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody != `{"pitch":12.5}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestPostJSON_BadURL(t *testing.T) {
	if _, err := PostJSON(context.Background(), nil, "://bad", nil); err == nil {
		t.Error("expected error for malformed URL")
	}
}
