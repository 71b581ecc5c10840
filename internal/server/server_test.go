package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gaspardpetit/chatrelay/internal/api"
	"github.com/gaspardpetit/chatrelay/internal/config"
	"github.com/gaspardpetit/chatrelay/internal/ollama"
	"github.com/gaspardpetit/chatrelay/internal/serverstate"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, "{\"message\":{\"content\":\"He\"}}\n{\"message\":{\"content\":\"llo\"},\"done\":true}\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newHandler(t *testing.T, cfg config.ServerConfig, tracker *serverstate.Tracker) http.Handler {
	t.Helper()
	up := newUpstream(t)
	a := api.New(ollama.New(up.URL, 0), api.Options{DefaultModel: config.DefaultModel, ServiceName: config.DefaultServiceName, State: tracker})
	return New(cfg, a)
}

func TestMetricsEndpointDefaultPort(t *testing.T) {
	cfg := config.ServerConfig{Port: 8080}
	ts := httptest.NewServer(newHandler(t, cfg, nil))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(`{"messages":[{"role":"user","content":"Hi"}]}`))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "chatrelay_requests_total") {
		t.Fatalf("request counter not exported")
	}
}

func TestMetricsEndpointSeparatePort(t *testing.T) {
	cfg := config.ServerConfig{Port: 8080, MetricsAddr: ":9090"}
	ts := httptest.NewServer(newHandler(t, cfg, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRoutes(t *testing.T) {
	ts := httptest.NewServer(newHandler(t, config.ServerConfig{Port: 8080}, nil))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(`{"messages":[{"role":"user","content":"Hi"}]}`))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(b) != "Hello" {
		t.Fatalf("expected Hello, got %q", b)
	}

	for _, p := range []string{"/health", "/api/state", "/api/openapi.json", "/api/docs"} {
		resp, err := http.Get(ts.URL + p)
		if err != nil {
			t.Fatalf("GET %s: %v", p, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", p, resp.StatusCode)
		}
	}
}

func TestDrainingRejectsRelayRoutes(t *testing.T) {
	tracker := serverstate.NewTracker(nil)
	tracker.StartDrain(context.Background())
	ts := httptest.NewServer(newHandler(t, config.ServerConfig{Port: 8080}, tracker))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chat/once", "application/json", strings.NewReader(`{"messages":[{"role":"user","content":"Hi"}]}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health must stay up while draining, got %d", resp.StatusCode)
	}
}

func TestCORSAllowedOrigins(t *testing.T) {
	cfg := config.ServerConfig{Port: 8080, AllowedOrigins: []string{"https://example.com"}}
	ts := httptest.NewServer(newHandler(t, cfg, nil))
	defer ts.Close()

	req, _ := http.NewRequest("GET", ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	_ = resp.Body.Close()
	if ao := resp.Header.Get("Access-Control-Allow-Origin"); ao != "https://example.com" {
		t.Fatalf("expected allowed origin header, got %q", ao)
	}

	req2, _ := http.NewRequest("GET", ts.URL+"/health", nil)
	req2.Header.Set("Origin", "https://evil.com")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	_ = resp2.Body.Close()
	if ao := resp2.Header.Get("Access-Control-Allow-Origin"); ao != "" {
		t.Fatalf("expected no allowed origin header, got %q", ao)
	}
}

func TestCORSWildcardPreflight(t *testing.T) {
	cfg := config.ServerConfig{Port: 8080, AllowedOrigins: []string{"*"}}
	ts := httptest.NewServer(newHandler(t, cfg, nil))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	_ = resp.Body.Close()
	if ao := resp.Header.Get("Access-Control-Allow-Origin"); ao != "*" {
		t.Fatalf("expected wildcard origin, got %q", ao)
	}
}
