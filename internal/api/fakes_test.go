package api

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gaspardpetit/chatrelay/internal/ollama"
)

// fakeUpstream replays canned NDJSON bodies and records what it was asked.
type fakeUpstream struct {
	body   string
	err    error
	models []string
	calls  int
	chat   ollama.ChatRequest
	gen    ollama.GenerateRequest
}

func (f *fakeUpstream) ChatStream(_ context.Context, req ollama.ChatRequest) (io.ReadCloser, error) {
	f.calls++
	f.chat = req
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *fakeUpstream) Chat(_ context.Context, req ollama.ChatRequest) (ollama.ChatResponse, error) {
	f.calls++
	f.chat = req
	if f.err != nil {
		return ollama.ChatResponse{}, f.err
	}
	return ollama.ChatResponse{Model: req.Model, Message: ollama.Message{Role: "assistant", Content: f.body}, Done: true}, nil
}

func (f *fakeUpstream) GenerateStream(_ context.Context, req ollama.GenerateRequest) (io.ReadCloser, error) {
	f.calls++
	f.gen = req
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *fakeUpstream) Generate(_ context.Context, req ollama.GenerateRequest) (ollama.GenerateResponse, error) {
	f.calls++
	f.gen = req
	if f.err != nil {
		return ollama.GenerateResponse{}, f.err
	}
	return ollama.GenerateResponse{Model: req.Model, Response: f.body, Done: true}, nil
}

func (f *fakeUpstream) Tags(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.models, nil
}

var errUpstreamDown = errors.New("connection refused")
