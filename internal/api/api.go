// Package api implements the HTTP surface of the relay: request decoding,
// the streaming and buffered chat and generate endpoints, the WebSocket
// stream, and the informational routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gaspardpetit/chatrelay/internal/inflight"
	"github.com/gaspardpetit/chatrelay/internal/logx"
	"github.com/gaspardpetit/chatrelay/internal/metrics"
	"github.com/gaspardpetit/chatrelay/internal/ollama"
	"github.com/gaspardpetit/chatrelay/internal/relay"
	"github.com/gaspardpetit/chatrelay/internal/serverstate"
)

// Upstream is the inference service the handlers relay to.
type Upstream interface {
	ChatStream(ctx context.Context, req ollama.ChatRequest) (io.ReadCloser, error)
	Chat(ctx context.Context, req ollama.ChatRequest) (ollama.ChatResponse, error)
	GenerateStream(ctx context.Context, req ollama.GenerateRequest) (io.ReadCloser, error)
	Generate(ctx context.Context, req ollama.GenerateRequest) (ollama.GenerateResponse, error)
	Tags(ctx context.Context) ([]string, error)
}

// Options configure an API.
type Options struct {
	DefaultModel   string
	ServiceName    string
	Relay          relay.Options
	State          *serverstate.Tracker
	Inflight       *inflight.Counter
	AllowedOrigins []string
	// MetricModels are reported under their own name in metrics along with
	// DefaultModel; every other model is reported as "other".
	MetricModels []string
}

// API holds the handlers. Its fields are fixed after New.
type API struct {
	up             Upstream
	opts           Options
	originPatterns []string
	modelLabels    metrics.ModelLabels
}

// New returns an API relaying to up.
func New(up Upstream, opts Options) *API {
	if opts.State == nil {
		opts.State = serverstate.NewTracker(nil)
	}
	if opts.Inflight == nil {
		opts.Inflight = &inflight.Counter{}
	}
	return &API{
		up:             up,
		opts:           opts,
		originPatterns: originPatterns(opts.AllowedOrigins),
		modelLabels:    metrics.NewModelLabels(append([]string{opts.DefaultModel}, opts.MetricModels...)...),
	}
}

// Inflight returns the counter tracking relay requests.
func (a *API) Inflight() *inflight.Counter { return a.opts.Inflight }

// Tracker returns the server state tracker.
func (a *API) Tracker() *serverstate.Tracker { return a.opts.State }

// Request outcomes reported to metrics.
const (
	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

// errorKind classifies an upstream failure for metrics.
func errorKind(err error, fallback string) string {
	var se *ollama.StatusError
	switch {
	case errors.As(err, &se):
		return "status"
	case errors.Is(err, relay.ErrMalformedLine):
		return "malformed"
	default:
		return fallback
	}
}

// originPatterns turns CORS origins into websocket origin host patterns.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logx.Log.Debug().Err(err).Msg("write json response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
