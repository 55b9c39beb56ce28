// Package httpsse adapts HTTP streaming backends to the
// roundtable.Adapter interface: the Z.AI GLM endpoint speaking the
// Anthropic messages protocol over SSE, and a local Ollama server
// speaking NDJSON.
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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jwkim/roundtable"
)

const (
	glmDefaultBaseURL = "https://api.z.ai/api/anthropic/v1"
	glmDefaultModel   = "claude-3-5-sonnet-20241022"
	anthropicVersion  = "2023-06-01"
	probeTimeout      = 10 * time.Second

	// sseBufferSize caps one SSE line; large deltas fit comfortably.
	sseBufferSize = 1024 * 1024
)

// GLMOption configures a GLM adapter.
type GLMOption func(*GLM)

// WithGLMLogger sets a structured logger for the adapter.
func WithGLMLogger(l *slog.Logger) GLMOption {
	return func(g *GLM) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithGLMHTTPClient replaces the HTTP client, for tests.
func WithGLMHTTPClient(c *http.Client) GLMOption {
	return func(g *GLM) {
		if c != nil {
			g.httpClient = c
		}
	}
}

// GLM streams completions from the Z.AI Anthropic-compatible endpoint.
type GLM struct {
	apiKey     string
	baseURL    string
	model      string
	cfg        roundtable.AdapterConfig
	httpClient *http.Client
	logger     *slog.Logger
}

var _ roundtable.Adapter = (*GLM)(nil)

// NewGLM creates a GLM adapter. The API key comes from the config's
// Extra["api_key"] or the ZAI_API_KEY / GLM_API_KEY environment
// variables; the base URL from config Endpoint or ZAI_BASE_URL.
func NewGLM(cfg *roundtable.AdapterConfig, opts ...GLMOption) *GLM {
	g := &GLM{
		baseURL: glmDefaultBaseURL,
		model:   glmDefaultModel,
		logger:  slog.New(slog.DiscardHandler),
	}
	if cfg != nil {
		g.cfg = *cfg
	}
	g.cfg.Normalize()
	if g.cfg.Model != "" {
		g.model = g.cfg.Model
	}
	if g.cfg.Endpoint != "" {
		g.baseURL = g.cfg.Endpoint
	} else if v := os.Getenv("ZAI_BASE_URL"); v != "" {
		g.baseURL = v
	}
	g.apiKey = g.cfg.Extra["api_key"]
	if g.apiKey == "" {
		g.apiKey = os.Getenv("ZAI_API_KEY")
	}
	if g.apiKey == "" {
		g.apiKey = os.Getenv("GLM_API_KEY")
	}
	g.httpClient = &http.Client{Timeout: g.cfg.Timeout}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *GLM) Name() string        { return "glm" }
func (g *GLM) DisplayName() string { return "GLM" }
func (g *GLM) Icon() string        { return "🌐" }
func (g *GLM) Color() string       { return "yellow" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// Send streams one completion, writing text deltas to ch. The channel is
// closed before Send returns.
func (g *GLM) Send(ctx context.Context, prompt string, ch chan<- string) error {
	defer close(ch)
	if g.apiKey == "" {
		return &roundtable.ErrAdapter{Name: g.Name(), Kind: roundtable.KindAuth, Message: "no API key configured"}
	}
	start := time.Now()

	resp, err := g.post(ctx, g.cfg.MaxTokens, prompt)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return g.httpError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), sseBufferSize)
	sent := 0
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		if ev.Type == "content_block_delta" && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
			sent += len(ev.Delta.Text)
			select {
			case ch <- ev.Delta.Text:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &roundtable.ErrAdapter{Name: g.Name(), Kind: roundtable.KindConnection, Message: "read stream", Err: err}
	}
	g.logger.Debug("glm stream complete", "bytes", sent, "duration", time.Since(start))
	return nil
}

func (g *GLM) post(ctx context.Context, maxTokens int, prompt string) (*http.Response, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     g.model,
		MaxTokens: maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &roundtable.ErrAdapter{Name: g.Name(), Kind: roundtable.KindConnection, Message: "request failed", Err: err}
	}
	return resp, nil
}

func (g *GLM) httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	httpErr := &roundtable.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			httpErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	g.logger.Error("glm request failed", "status", resp.StatusCode, "body_len", len(body))
	return httpErr
}

// Available probes the endpoint with a tiny request.
func (g *GLM) Available(ctx context.Context) bool {
	if g.apiKey == "" {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	resp, err := g.post(pctx, 5, "hi")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode == http.StatusOK
}

// Version identifies the backing model.
func (g *GLM) Version(ctx context.Context) string {
	return "GLM-4.7 (via Z.AI)"
}
