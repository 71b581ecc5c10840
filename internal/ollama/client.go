package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StatusError reports a non-success HTTP status from the upstream server.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream returned %s: %s", e.Status, e.Body)
	}
	return "upstream returned " + e.Status
}

// Client is a tiny HTTP client for talking to a local Ollama server.
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// New returns a client for the server at base. A positive timeout bounds each
// upstream exchange including the time spent reading a streamed body.
func New(base string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ChatStream posts req with streaming enabled and returns the open NDJSON body.
// The caller must close it.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	req.Stream = true
	return c.stream(ctx, "/api/chat", req)
}

// Chat posts req with streaming disabled and decodes the complete reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	req.Stream = false
	var out ChatResponse
	err := c.once(ctx, "/api/chat", req, &out)
	return out, err
}

// GenerateStream posts req to the prompt-shaped endpoint with streaming enabled.
// The caller must close the returned body.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (io.ReadCloser, error) {
	req.Stream = true
	return c.stream(ctx, "/api/generate", req)
}

// Generate posts req to the prompt-shaped endpoint and decodes the complete reply.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	req.Stream = false
	var out GenerateResponse
	err := c.once(ctx, "/api/generate", req, &out)
	return out, err
}

// Tags lists the models installed upstream.
func (c *Client) Tags(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var v struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	models := make([]string, 0, len(v.Models))
	for _, m := range v.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

func (c *Client) stream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	httpReq, err := c.newPost(ctx, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) once(ctx context.Context, path string, body, out any) error {
	httpReq, err := c.newPost(ctx, path, body)
	if err != nil {
		return err
	}
	resp, err := c.do(httpReq)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) newPost(ctx context.Context, path string, body any) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// do sends req and converts non-2xx replies into a *StatusError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() {
			_ = resp.Body.Close()
		}()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(b))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: msg}
	}
	return resp, nil
}
