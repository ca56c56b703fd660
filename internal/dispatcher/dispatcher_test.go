package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ausimian/loki-logger-handler/internal/buffer"
	"github.com/ausimian/loki-logger-handler/internal/logentry"
	"github.com/ausimian/loki-logger-handler/internal/lokiclient"
)

func testParams() Params {
	return Params{
		BatchSize:       100,
		BatchIntervalMs: 60_000,
		BackoffBaseMs:   1_000,
		BackoffMaxMs:    60_000,
		RequestTimeout:  2 * time.Second,
	}
}

func TestFlushEmptyBufferIsIdempotentAndNetworkless(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	buf := buffer.OpenMemory(buffer.Config{})
	defer buf.Stop()

	d := New(buf, lokiclient.New(time.Second), server.URL, testParams(), nil)
	defer d.Stop()

	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush on empty buffer: %v", err)
	}
	if requests.Load() != 0 {
		t.Fatalf("expected no network calls, got %d", requests.Load())
	}
}

func TestFlushHappyPath(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	buf := buffer.OpenMemory(buffer.Config{})
	defer buf.Stop()

	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		buf.Store(context.Background(), logentry.Entry{
			Message: msg,
			Labels:  map[string]string{"level": "info"},
		})
	}

	waitForBufferCount(t, buf, 5)

	d := New(buf, lokiclient.New(time.Second), server.URL, testParams(), nil)
	defer d.Stop()

	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected 1 push, got %d", requests.Load())
	}

	n, err := buf.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected buffer drained, got count %d", n)
	}
}

func TestFlushFailureIncrementsFailuresAndLeavesBuffer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	buf := buffer.OpenMemory(buffer.Config{})
	defer buf.Stop()

	buf.Store(context.Background(), logentry.Entry{Message: "x", Labels: map[string]string{"level": "info"}})
	waitForBufferCount(t, buf, 1)

	d := New(buf, lokiclient.New(time.Second), server.URL, testParams(), nil)
	defer d.Stop()

	if err := d.Flush(context.Background()); err == nil {
		t.Fatal("expected push failure to surface from Flush")
	}

	state := d.GetState()
	if state.ConsecutiveFailures != 1 {
		t.Fatalf("expected 1 consecutive failure, got %d", state.ConsecutiveFailures)
	}

	n, err := buf.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected entry to remain buffered after failed push, got count %d", n)
	}
}

func TestBackoffProgressionAndRecovery(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	buf := buffer.OpenMemory(buffer.Config{})
	defer buf.Stop()

	params := Params{
		BatchSize:       100,
		BatchIntervalMs: 60_000,
		BackoffBaseMs:   100,
		BackoffMaxMs:    1_000,
		RequestTimeout:  2 * time.Second,
	}
	d := New(buf, lokiclient.New(time.Second), server.URL, params, nil)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		buf.Store(context.Background(), logentry.Entry{Message: "x", Labels: map[string]string{"level": "info"}})
		// Failed pushes leave earlier entries buffered, so the count
		// grows by one per iteration.
		waitForBufferCount(t, buf, i+1)
		_ = d.Flush(context.Background())
	}

	state := d.GetState()
	if state.ConsecutiveFailures != 5 {
		t.Fatalf("expected 5 consecutive failures, got %d", state.ConsecutiveFailures)
	}
	if state.NextIntervalMs != 1000 {
		t.Fatalf("expected next interval 1000ms (min(100*2^4,1000)), got %d", state.NextIntervalMs)
	}

	healthy.Store(true)
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("expected recovery push to succeed: %v", err)
	}

	state = d.GetState()
	if state.ConsecutiveFailures != 0 {
		t.Fatalf("expected failures reset to 0 after recovery, got %d", state.ConsecutiveFailures)
	}
	if state.NextIntervalMs != params.BatchIntervalMs {
		t.Fatalf("expected next interval to revert to base %d, got %d", params.BatchIntervalMs, state.NextIntervalMs)
	}

	n, err := buf.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected buffer drained after recovery, got count %d", n)
	}
}

func waitForBufferCount(t *testing.T, buf buffer.Buffer, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := buf.Count(context.Background())
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for buffer count to reach %d", want)
}
