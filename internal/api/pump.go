package api

import (
	"context"
	"io"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/chatrelay/internal/logx"
	"github.com/gaspardpetit/chatrelay/internal/metrics"
	"github.com/gaspardpetit/chatrelay/internal/relay"
)

// streamCall describes one streaming exchange with the upstream.
type streamCall struct {
	endpoint string
	model    string
	extract  relay.Extractor
	open     func(ctx context.Context) (io.ReadCloser, error)
}

// onceResult is a completed buffered exchange.
type onceResult struct {
	text             string
	promptTokens     uint64
	completionTokens uint64
}

// relayHTTP answers with a text/plain body carrying the fragments of call as
// they arrive. The status is always 200; failures surface as a trailing
// error fragment.
func (a *API) relayHTTP(w http.ResponseWriter, r *http.Request, call streamCall) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	a.pump(r.Context(), chiMiddleware.GetReqID(r.Context()), call, relay.HTTPEmitter(w))
}

// pump opens call upstream and drains it into emit, recording metrics and
// logs for the exchange.
func (a *API) pump(ctx context.Context, reqID string, call streamCall, emit relay.Emit) {
	start := time.Now()
	metrics.StreamStart()
	defer metrics.StreamEnd()
	log := logx.Log.With().Str("request_id", reqID).Str("endpoint", call.endpoint).Str("model", call.model).Logger()
	log.Info().Msg("relay request")
	label := a.modelLabels.Label(call.model)

	body, err := call.open(ctx)
	if err != nil {
		outcome := outcomeCanceled
		if ctx.Err() == nil {
			outcome = outcomeError
			metrics.RecordUpstreamError(errorKind(err, "connect"))
			log.Warn().Err(err).Msg("upstream request failed")
			if emitErr := emit(relay.ErrorFragment(err)); emitErr != nil {
				log.Debug().Err(emitErr).Msg("write error fragment")
			}
		}
		metrics.RecordRequest(call.endpoint, label, outcome, time.Since(start))
		return
	}

	s := relay.NewStream(body, call.extract, a.opts.Relay)
	n, err := relay.Pump(ctx, s, emit)
	prompt, completion := s.Usage()
	metrics.AddFragments(label, n)
	metrics.RecordModelTokens(label, "in", prompt)
	metrics.RecordModelTokens(label, "out", completion)

	outcome := outcomeSuccess
	var ev *zerolog.Event
	switch {
	case err == nil:
		ev = log.Info()
	case ctx.Err() != nil || s.Err() == nil:
		outcome = outcomeCanceled
		ev = log.Info().AnErr("cause", err)
	default:
		outcome = outcomeError
		metrics.RecordUpstreamError(errorKind(err, "read"))
		ev = log.Warn().Err(err)
	}
	dur := time.Since(start)
	metrics.RecordRequest(call.endpoint, label, outcome, dur)
	ev.Str("stream_id", s.ID).
		Int("fragments", n).
		Int("skipped", s.Skipped()).
		Str("outcome", outcome).
		Dur("duration", dur).
		Msg("relay finished")
}

// relayOnce answers with {"response": text} once the upstream reply is
// complete, or 500 with the failure.
func (a *API) relayOnce(w http.ResponseWriter, r *http.Request, endpoint, model string, call func(ctx context.Context) (onceResult, error)) {
	ctx := r.Context()
	start := time.Now()
	log := logx.Log.With().Str("request_id", chiMiddleware.GetReqID(ctx)).Str("endpoint", endpoint).Str("model", model).Logger()
	log.Info().Msg("relay request")
	label := a.modelLabels.Label(model)

	res, err := call(ctx)
	if err != nil {
		outcome := outcomeCanceled
		if ctx.Err() == nil {
			outcome = outcomeError
			metrics.RecordUpstreamError(errorKind(err, "connect"))
			log.Warn().Err(err).Msg("upstream request failed")
			writeError(w, http.StatusInternalServerError, err)
		}
		metrics.RecordRequest(endpoint, label, outcome, time.Since(start))
		return
	}
	metrics.RecordModelTokens(label, "in", res.promptTokens)
	metrics.RecordModelTokens(label, "out", res.completionTokens)
	dur := time.Since(start)
	metrics.RecordRequest(endpoint, label, outcomeSuccess, dur)
	log.Info().Dur("duration", dur).Msg("relay finished")
	writeJSON(w, http.StatusOK, ResponseBody{Response: res.text})
}
