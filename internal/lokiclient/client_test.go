package lokiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ausimian/loki-logger-handler/internal/buffer"
)

func TestPushEmptyEntriesIsNoop(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(time.Second)
	if err := c.Push(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("Push with no entries: %v", err)
	}
	if called {
		t.Fatal("expected no network call for empty entries")
	}
}

func TestPushSuccessOn2xx(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(time.Second)
	err := c.Push(context.Background(), server.URL, []buffer.Item{item(1, "hi", map[string]string{"level": "info"}, nil)})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if gotPath != "/loki/api/v1/push" {
		t.Fatalf("expected push path, got %q", gotPath)
	}
}

func TestPushClassifiesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer server.Close()

	c := New(time.Second)
	err := c.Push(context.Background(), server.URL, []buffer.Item{item(1, "hi", map[string]string{"level": "info"}, nil)})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v (%T)", err, err)
	}
	if httpErr.Status != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", httpErr.Status)
	}
	if httpErr.Code() != ErrCodeHTTPError {
		t.Fatalf("expected code %s, got %s", ErrCodeHTTPError, httpErr.Code())
	}
}

func TestPushClassifiesRequestFailed(t *testing.T) {
	c := New(50 * time.Millisecond)
	err := c.Push(context.Background(), "http://127.0.0.1:1", []buffer.Item{item(1, "hi", map[string]string{"level": "info"}, nil)})
	var reqErr *RequestFailed
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestFailed, got %v (%T)", err, err)
	}
	if reqErr.Code() != ErrCodeRequestFailed {
		t.Fatalf("expected code %s, got %s", ErrCodeRequestFailed, reqErr.Code())
	}
}

func TestPushSendsTenantHeader(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Scope-OrgID")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(time.Second)
	c.TenantID = "team-a"
	err := c.Push(context.Background(), server.URL, []buffer.Item{item(1, "hi", map[string]string{"level": "info"}, nil)})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if gotHeader != "team-a" {
		t.Fatalf("expected tenant header, got %q", gotHeader)
	}
}
