package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gaspardpetit/chatrelay/internal/relay"
)

// Generate handles POST /api/generate by streaming response fragments.
func (a *API) Generate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerateRequest(r.Body, a.opts.DefaultModel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	up := req.upstream()
	a.relayHTTP(w, r, streamCall{
		endpoint: "generate",
		model:    req.Model,
		extract:  relay.GenerateResponse,
		open: func(ctx context.Context) (io.ReadCloser, error) {
			return a.up.GenerateStream(ctx, up)
		},
	})
}

// GenerateOnce handles POST /api/generate/once.
func (a *API) GenerateOnce(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerateRequest(r.Body, a.opts.DefaultModel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	up := req.upstream()
	a.relayOnce(w, r, "generate_once", req.Model, func(ctx context.Context) (onceResult, error) {
		resp, err := a.up.Generate(ctx, up)
		if err != nil {
			return onceResult{}, err
		}
		return onceResult{text: resp.Response, promptTokens: resp.PromptEvalCount, completionTokens: resp.EvalCount}, nil
	})
}
