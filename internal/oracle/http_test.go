package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPClientCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/complete" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req completeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Prompt == "" {
			t.Errorf("empty prompt")
		}
		json.NewEncoder(w).Encode(completeResponse{Text: "a mossy tunnel"})
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Timeout: time.Second, Retries: 1}, nil)
	got, err := c.Complete(context.Background(), "describe the space")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "a mossy tunnel" {
		t.Fatalf("text = %q", got)
	}
}

func TestHTTPClientRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(completeResponse{Text: "ok"})
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Timeout: time.Second, Retries: 3}, nil)
	got, err := c.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "ok" || calls.Load() != 3 {
		t.Fatalf("got %q after %d calls", got, calls.Load())
	}
}

func TestHTTPClientReportsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Timeout: time.Second, Retries: 1}, nil)
	_, err := c.Complete(context.Background(), "p")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestScriptOracle(t *testing.T) {
	s := NewScript(
		Rule{Match: "exits:", Reply: "EXIT:north"},
		Rule{Match: "describe", Reply: "a narrow ledge"},
	)
	if got, err := s.Complete(context.Background(), "describe this cavern"); err != nil || got != "a narrow ledge" {
		t.Fatalf("got (%q,%v)", got, err)
	}
	if _, err := s.Complete(context.Background(), "no matching rule"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("miss should be ErrUnavailable, got %v", err)
	}
	s.Fail(ErrUnavailable)
	if _, err := s.Complete(context.Background(), "describe again"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("failed script should error, got %v", err)
	}
	if s.Calls() != 3 {
		t.Fatalf("calls = %d, want 3", s.Calls())
	}
}
