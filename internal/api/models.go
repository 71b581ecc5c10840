package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/gaspardpetit/chatrelay/internal/ollama"
)

// maxRequestBody bounds inbound JSON bodies.
const maxRequestBody = 4 << 20

// ChatMessage is one conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the inbound body of the chat endpoints.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
}

// GenerateRequest is the inbound body of the prompt-shaped endpoints.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// ResponseBody is the buffered reply.
type ResponseBody struct {
	Response string `json:"response"`
}

// ValidationError describes an inbound request rejected before any upstream call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

var errEmptyBody = &ValidationError{Reason: "request body is required"}

// decodeChatRequest reads and validates a ChatRequest. Messages must be
// non-empty and every message must carry both role and content.
func decodeChatRequest(r io.Reader, defaultModel string) (ChatRequest, error) {
	var wire struct {
		Messages []struct {
			Role    *string `json:"role"`
			Content *string `json:"content"`
		} `json:"messages"`
		Model *string `json:"model"`
	}
	if err := decodeJSON(r, &wire); err != nil {
		return ChatRequest{}, err
	}
	if len(wire.Messages) == 0 {
		return ChatRequest{}, &ValidationError{Field: "messages", Reason: "at least one message is required"}
	}
	req := ChatRequest{Messages: make([]ChatMessage, 0, len(wire.Messages)), Model: defaultModel}
	for i, m := range wire.Messages {
		if m.Role == nil {
			return ChatRequest{}, &ValidationError{Field: fmt.Sprintf("messages[%d].role", i), Reason: "field required"}
		}
		if m.Content == nil {
			return ChatRequest{}, &ValidationError{Field: fmt.Sprintf("messages[%d].content", i), Reason: "field required"}
		}
		req.Messages = append(req.Messages, ChatMessage{Role: *m.Role, Content: *m.Content})
	}
	if wire.Model != nil && *wire.Model != "" {
		req.Model = *wire.Model
	}
	return req, nil
}

// decodeGenerateRequest reads and validates a GenerateRequest.
func decodeGenerateRequest(r io.Reader, defaultModel string) (GenerateRequest, error) {
	var wire struct {
		Prompt *string `json:"prompt"`
		Model  *string `json:"model"`
	}
	if err := decodeJSON(r, &wire); err != nil {
		return GenerateRequest{}, err
	}
	if wire.Prompt == nil {
		return GenerateRequest{}, &ValidationError{Field: "prompt", Reason: "field required"}
	}
	req := GenerateRequest{Prompt: *wire.Prompt, Model: defaultModel}
	if wire.Model != nil && *wire.Model != "" {
		req.Model = *wire.Model
	}
	return req, nil
}

func decodeJSON(r io.Reader, v any) error {
	if r == nil {
		return errEmptyBody
	}
	err := json.NewDecoder(io.LimitReader(r, maxRequestBody)).Decode(v)
	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return errEmptyBody
	case errors.As(err, &typeErr):
		return &ValidationError{Field: typeErr.Field, Reason: "expected " + jsonKind(typeErr.Type) + ", got " + typeErr.Value}
	default:
		return &ValidationError{Reason: "invalid JSON: " + err.Error()}
	}
}

// jsonKind names t the way a JSON document would.
func jsonKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Struct, reflect.Map:
		return "object"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	default:
		return "value"
	}
}

// upstream converts the request into the upstream chat contract.
func (c ChatRequest) upstream() ollama.ChatRequest {
	msgs := make([]ollama.Message, len(c.Messages))
	for i, m := range c.Messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	return ollama.ChatRequest{Model: c.Model, Messages: msgs}
}

// upstream converts the request into the upstream generate contract.
func (g GenerateRequest) upstream() ollama.GenerateRequest {
	return ollama.GenerateRequest{Model: g.Model, Prompt: g.Prompt}
}
