package api

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/chatrelay/internal/logx"
)

var errDraining = errors.New("draining")

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (lw *loggingResponseWriter) WriteHeader(status int) {
	lw.status = status
	lw.ResponseWriter.WriteHeader(status)
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	if zerolog.GlobalLevel() <= zerolog.TraceLevel {
		logx.Log.Trace().Bytes("body", b).Msg("http response chunk")
	}
	return lw.ResponseWriter.Write(b)
}

func (lw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := lw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacker not supported")
}

func (lw *loggingResponseWriter) Flush() {
	if f, ok := lw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MiddlewareChain returns the middleware applied to every route.
func MiddlewareChain() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		chiMiddleware.RequestID,
		requestLogger,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lvl := zerolog.GlobalLevel()
		reqID := chiMiddleware.GetReqID(r.Context())
		lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		if lvl <= zerolog.DebugLevel {
			var body []byte
			if r.Body != nil {
				body, _ = io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			logx.Log.Debug().Str("request_id", reqID).Str("method", r.Method).Str("url", r.URL.String()).Interface("headers", r.Header).Bytes("body", body).Msg("http request")
		}
		next.ServeHTTP(lrw, r)
		if lvl <= zerolog.DebugLevel {
			logx.Log.Debug().Str("request_id", reqID).Str("url", r.URL.String()).Int("status", lrw.status).Interface("headers", lrw.Header()).Msg("http response")
		} else if lvl <= zerolog.InfoLevel {
			logx.Log.Info().Str("request_id", reqID).Str("method", r.Method).Str("url", r.URL.String()).Int("status", lrw.status).Msg("http")
		}
	})
}

// RejectWhenDraining answers 503 {"error":"draining"} once the server has
// started draining.
func (a *API) RejectWhenDraining(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.opts.State.IsDraining(r.Context()) {
			writeError(w, http.StatusServiceUnavailable, errDraining)
			return
		}
		next.ServeHTTP(w, r)
	})
}
