package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
)

func dialWS(t *testing.T, a *API) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(a.ChatWS))
	t.Cleanup(srv.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c, ctx
}

func readAll(ctx context.Context, c *websocket.Conn) ([]string, error) {
	var msgs []string
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return msgs, err
		}
		if typ != websocket.MessageText {
			return msgs, errors.New("unexpected binary message")
		}
		msgs = append(msgs, string(data))
	}
}

func TestChatWSRoundTrip(t *testing.T) {
	a := newTestAPI(&fakeUpstream{body: helloBody})
	c, ctx := dialWS(t, a)
	if err := c.Write(ctx, websocket.MessageText, []byte(`{"messages":[{"role":"user","content":"Hi"}]}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	msgs, err := readAll(ctx, c)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", err)
	}
	if strings.Join(msgs, "|") != "He|llo" {
		t.Fatalf("unexpected fragments %q", msgs)
	}
}

func TestChatWSUpstreamFailure(t *testing.T) {
	a := newTestAPI(&fakeUpstream{err: errUpstreamDown})
	c, ctx := dialWS(t, a)
	if err := c.Write(ctx, websocket.MessageText, []byte(`{"messages":[{"role":"user","content":"Hi"}]}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	msgs, err := readAll(ctx, c)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", err)
	}
	if len(msgs) != 1 || msgs[0] != "Error: connection refused" {
		t.Fatalf("unexpected messages %q", msgs)
	}
}

func TestChatWSInvalidRequest(t *testing.T) {
	up := &fakeUpstream{body: helloBody}
	a := newTestAPI(up)
	c, ctx := dialWS(t, a)
	if err := c.Write(ctx, websocket.MessageText, []byte(`{"messages":[]}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := readAll(ctx, c)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if up.calls != 0 {
		t.Fatalf("upstream called")
	}
}

func TestOriginPatterns(t *testing.T) {
	if got := originPatterns([]string{"http://a.example", "*"}); len(got) != 1 || got[0] != "*" {
		t.Fatalf("wildcard not kept: %v", got)
	}
	got := originPatterns([]string{" https://app.example:3000 ", "", "b.example"})
	if strings.Join(got, ",") != "app.example:3000,b.example" {
		t.Fatalf("unexpected patterns %v", got)
	}
}

func TestCloseReasonTruncated(t *testing.T) {
	if got := closeReason(strings.Repeat("x", 200)); len(got) != maxCloseReason {
		t.Fatalf("expected %d bytes, got %d", maxCloseReason, len(got))
	}
	// 122 ASCII bytes then a 3-byte rune straddling the limit.
	s := strings.Repeat("x", maxCloseReason-1) + "€tail"
	got := closeReason(s)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated reason is not valid UTF-8: %q", got)
	}
	if len(got) != maxCloseReason-1 {
		t.Fatalf("expected %d bytes, got %d", maxCloseReason-1, len(got))
	}
	multi := strings.Repeat("é", 100)
	if got := closeReason(multi); !utf8.ValidString(got) || len(got) > maxCloseReason {
		t.Fatalf("bad truncation of two-byte runes: %d bytes valid=%v", len(got), utf8.ValidString(got))
	}
}
