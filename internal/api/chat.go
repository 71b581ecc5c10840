package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gaspardpetit/chatrelay/internal/relay"
)

// Chat handles POST /api/chat by streaming message.content fragments.
func (a *API) Chat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r.Body, a.opts.DefaultModel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	up := req.upstream()
	a.relayHTTP(w, r, streamCall{
		endpoint: "chat",
		model:    req.Model,
		extract:  relay.ChatContent,
		open: func(ctx context.Context) (io.ReadCloser, error) {
			return a.up.ChatStream(ctx, up)
		},
	})
}

// ChatOnce handles POST /api/chat/once with a single buffered reply.
func (a *API) ChatOnce(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r.Body, a.opts.DefaultModel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	up := req.upstream()
	a.relayOnce(w, r, "chat_once", req.Model, func(ctx context.Context) (onceResult, error) {
		resp, err := a.up.Chat(ctx, up)
		if err != nil {
			return onceResult{}, err
		}
		return onceResult{text: resp.Message.Content, promptTokens: resp.PromptEvalCount, completionTokens: resp.EvalCount}, nil
	})
}
