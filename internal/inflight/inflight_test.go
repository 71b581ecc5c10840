package inflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCounterWaitForZero(t *testing.T) {
	var c Counter
	if !c.WaitForZero(context.Background()) {
		t.Fatalf("zero value should already be at zero")
	}
	c.Inc()
	c.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if c.WaitForZero(ctx) {
		t.Fatalf("expected timeout while requests are in flight")
	}

	done := make(chan bool, 1)
	go func() { done <- c.WaitForZero(context.Background()) }()
	c.Dec()
	c.Dec()
	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("wait returned false")
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not return after count reached zero")
	}
	c.Dec()
	if got := c.Load(); got != 0 {
		t.Fatalf("count %d", got)
	}
}

func TestCounterMiddleware(t *testing.T) {
	var c Counter
	var during int64
	h := c.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = c.Load()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if during != 1 {
		t.Fatalf("count during request %d", during)
	}
	if c.Load() != 0 {
		t.Fatalf("count after request %d", c.Load())
	}
}
