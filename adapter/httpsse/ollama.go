package httpsse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwkim/roundtable"
)

const (
	ollamaDefaultEndpoint = "http://localhost:11434"
	ollamaDefaultModel    = "llama3.1:70b"
	ollamaProbeTimeout    = 5 * time.Second
)

// OllamaOption configures an Ollama adapter.
type OllamaOption func(*Ollama)

// WithOllamaLogger sets a structured logger for the adapter.
func WithOllamaLogger(l *slog.Logger) OllamaOption {
	return func(o *Ollama) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOllamaHTTPClient replaces the HTTP client, for tests.
func WithOllamaHTTPClient(c *http.Client) OllamaOption {
	return func(o *Ollama) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// Ollama streams completions from a local Ollama server. It implements
// roundtable.ModelCloner so the selector can derive per-model instances
// sharing one server.
type Ollama struct {
	name        string
	displayName string
	endpoint    string
	model       string
	cfg         roundtable.AdapterConfig
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ roundtable.ModelCloner = (*Ollama)(nil)

// NewOllama creates an Ollama adapter. Endpoint and model come from the
// config, with local defaults.
func NewOllama(cfg *roundtable.AdapterConfig, opts ...OllamaOption) *Ollama {
	o := &Ollama{
		name:        "ollama",
		displayName: "Ollama",
		endpoint:    ollamaDefaultEndpoint,
		model:       ollamaDefaultModel,
		logger:      slog.New(slog.DiscardHandler),
	}
	if cfg != nil {
		o.cfg = *cfg
	}
	o.cfg.Normalize()
	if o.cfg.Endpoint != "" {
		o.endpoint = strings.TrimRight(o.cfg.Endpoint, "/")
	}
	if o.cfg.Model != "" {
		o.model = o.cfg.Model
	}
	o.httpClient = &http.Client{Timeout: o.cfg.Timeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Ollama) Name() string        { return o.name }
func (o *Ollama) DisplayName() string { return o.displayName }
func (o *Ollama) Icon() string        { return "🦙" }
func (o *Ollama) Color() string       { return "blue" }

// WithModel returns a derived adapter bound to another local model. The
// derived instance keeps the ollama name prefix so roster logic treats
// it as the same family.
func (o *Ollama) WithModel(model, displayName string) roundtable.Adapter {
	clone := *o
	clone.model = model
	clone.displayName = displayName
	clone.name = strings.ToLower(displayName)
	return &clone
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Send streams one chat completion, writing content deltas to ch. The
// channel is closed before Send returns.
func (o *Ollama) Send(ctx context.Context, prompt string, ch chan<- string) error {
	defer close(ch)
	start := time.Now()

	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	resp, err := o.post(ctx, "/api/chat", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &roundtable.ErrHTTP{Status: resp.StatusCode, Body: string(errBody)}
	}

	sent := 0
	err = scanNDJSON(resp.Body, func(line []byte) (bool, error) {
		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return false, nil
		}
		if chunk.Message.Content != "" {
			sent += len(chunk.Message.Content)
			select {
			case ch <- chunk.Message.Content:
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		return chunk.Done, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &roundtable.ErrAdapter{Name: o.name, Kind: roundtable.KindConnection, Message: "read stream", Err: err}
	}
	o.logger.Debug("ollama stream complete", "model", o.model, "bytes", sent, "duration", time.Since(start))
	return nil
}

// Generate streams a raw completion through /api/generate, for callers
// that want completion semantics instead of chat.
func (o *Ollama) Generate(ctx context.Context, prompt string, ch chan<- string) error {
	defer close(ch)

	body, err := json.Marshal(ollamaGenerateRequest{Model: o.model, Prompt: prompt, Stream: true})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	resp, err := o.post(ctx, "/api/generate", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &roundtable.ErrHTTP{Status: resp.StatusCode, Body: string(errBody)}
	}

	return scanNDJSON(resp.Body, func(line []byte) (bool, error) {
		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return false, nil
		}
		if chunk.Response != "" {
			select {
			case ch <- chunk.Response:
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		return chunk.Done, nil
	})
}

func (o *Ollama) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &roundtable.ErrAdapter{Name: o.name, Kind: roundtable.KindConnection, Message: "request failed", Err: err}
	}
	return resp, nil
}

// scanNDJSON feeds each newline-delimited JSON line to fn until fn
// reports done or the stream ends.
func scanNDJSON(r io.Reader, fn func(line []byte) (bool, error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), sseBufferSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		done, err := fn(line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return scanner.Err()
}

// Available reports whether the server answers /api/tags.
func (o *Ollama) Available(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, ollamaProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(pctx, http.MethodGet, o.endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode == http.StatusOK
}

// Version returns the server version from /api/version.
func (o *Ollama) Version(ctx context.Context) string {
	pctx, cancel := context.WithTimeout(ctx, ollamaProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(pctx, http.MethodGet, o.endpoint+"/api/version", nil)
	if err != nil {
		return "unknown"
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "unknown"
	}
	defer resp.Body.Close()
	var v struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil || v.Version == "" {
		return "unknown"
	}
	return "Ollama " + v.Version
}
