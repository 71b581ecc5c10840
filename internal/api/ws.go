package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/coder/websocket"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/chatrelay/internal/logx"
	"github.com/gaspardpetit/chatrelay/internal/relay"
)

// maxCloseReason is the longest reason a close frame can carry.
const maxCloseReason = 123

// ChatWS handles GET /api/chat/ws. The client sends one ChatRequest as a
// text message; every fragment comes back as one text message and the
// server then closes normally.
func (a *API) ChatWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: a.originPatterns})
	if err != nil {
		logx.Log.Debug().Err(err).Msg("websocket accept")
		return
	}
	defer func() {
		_ = c.CloseNow()
	}()
	c.SetReadLimit(maxRequestBody)

	ctx := r.Context()
	_, data, err := c.Read(ctx)
	if err != nil {
		return
	}
	req, err := decodeChatRequest(bytes.NewReader(data), a.opts.DefaultModel)
	if err != nil {
		_ = c.Close(websocket.StatusPolicyViolation, closeReason(err.Error()))
		return
	}

	// The client sends nothing more; CloseRead cancels ctx when it goes away.
	ctx = c.CloseRead(ctx)
	up := req.upstream()
	a.pump(ctx, chiMiddleware.GetReqID(r.Context()), streamCall{
		endpoint: "chat_ws",
		model:    req.Model,
		extract:  relay.ChatContent,
		open: func(ctx context.Context) (io.ReadCloser, error) {
			return a.up.ChatStream(ctx, up)
		},
	}, wsEmitter(ctx, c))
	_ = c.Close(websocket.StatusNormalClosure, "")
}

func wsEmitter(ctx context.Context, c *websocket.Conn) relay.Emit {
	return func(fragment string) error {
		if fragment == "" {
			return nil
		}
		return c.Write(ctx, websocket.MessageText, []byte(fragment))
	}
}

// closeReason truncates s to fit a close frame without splitting a rune.
func closeReason(s string) string {
	if len(s) <= maxCloseReason {
		return s
	}
	n := maxCloseReason
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
