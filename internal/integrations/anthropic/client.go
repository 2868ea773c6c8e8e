// Package anthropic adapts the Anthropic Messages API to the provider
// contract. It classifies and replies; it does not transcribe.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"glass-voice/internal/domain"
	"glass-voice/internal/integrations/paramstore"
	"glass-voice/internal/metrics"
	"glass-voice/internal/provider"
)

const (
	Name = "anthropic"

	defaultBaseURL    = "https://api.anthropic.com"
	defaultModel      = "claude-3-5-haiku-latest"
	apiVersion        = "2023-06-01"
	maxTokens         = 512
	defaultConfidence = 0.85
)

// ErrTranscriptionUnsupported is wrapped by Transcribe.
var ErrTranscriptionUnsupported = errors.New("anthropic: transcription not supported")

type messagesRequest struct {
	Model     string               `json:"model"`
	MaxTokens int                  `json:"max_tokens"`
	System    string               `json:"system,omitempty"`
	Messages  []domain.ChatMessage `json:"messages"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("anthropic: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client implements provider.Adapter over the Messages endpoint.
type Client struct {
	baseURL     string
	model       string
	httpClient  *http.Client
	tokens      paramstore.TokenSource
	paramPrefix string

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

// WithAPIKey skips the parameter store lookup.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// NewClient creates a Client. Unless WithAPIKey is given, the key is read
// from paramPrefix+"/anthropic-token" on first use.
func NewClient(tokens paramstore.TokenSource, paramPrefix string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		tokens:      tokens,
		paramPrefix: strings.TrimRight(strings.TrimSpace(paramPrefix), "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		if c.tokens == nil {
			return nil, errors.New("anthropic: token source must not be nil")
		}
		if c.paramPrefix == "" {
			return nil, errors.New("anthropic: parameter prefix must not be empty")
		}
	}
	return c, nil
}

func (c *Client) Name() string { return Name }

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := c.tokens.Token(ctx, c.paramPrefix+"/anthropic-token")
	if err != nil {
		return "", fmt.Errorf("anthropic: resolve api key: %w", err)
	}
	c.apiKey = key
	return key, nil
}

func messagesURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/messages"
	}
	return base + "/v1/messages"
}

func (c *Client) Transcribe(context.Context, []byte) (provider.Transcription, error) {
	return provider.Transcription{}, provider.Unavailable(Name, "transcribe", ErrTranscriptionUnsupported)
}

func (c *Client) ClassifyIntent(ctx context.Context, text string, turns []domain.Turn) (provider.Classification, error) {
	started := time.Now()
	system, messages := provider.ClassificationMessages(text, turns)
	raw, err := c.messages(ctx, "classify", system, messages)
	if err != nil {
		return provider.Classification{}, err
	}
	out, err := provider.ParseClassification(raw)
	if err != nil {
		return provider.Classification{}, provider.Failed(Name, "classify", err)
	}
	out.Provider = Name
	out.Duration = time.Since(started)
	return out, nil
}

func (c *Client) GenerateReply(ctx context.Context, req provider.ReplyRequest) (out provider.Reply, err error) {
	started := time.Now()
	defer func() { metrics.ObserveProviderCall(Name, "reply", started, err) }()

	system, messages := provider.ReplyMessages(req)
	raw, err := c.messages(ctx, "reply", system, messages)
	if err != nil {
		return provider.Reply{}, err
	}
	out, err = provider.ParseReply(raw)
	if err != nil {
		return provider.Reply{}, provider.Failed(Name, "reply", err)
	}
	out.Provider = Name
	out.Confidence = defaultConfidence
	out.Duration = time.Since(started)
	return out, nil
}

func (c *Client) messages(ctx context.Context, op, system string, messages []domain.ChatMessage) (string, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", provider.Unavailable(Name, op, err)
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  alternate(messages),
	})
	if err != nil {
		return "", provider.Failed(Name, op, fmt.Errorf("marshal request: %w", err))
	}

	url := messagesURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", provider.Failed(Name, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", provider.Classify(Name, op, err)
	}

	var payload messagesResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", provider.Failed(Name, op, fmt.Errorf("decode response: %w", err))
	}
	var sb strings.Builder
	for _, block := range payload.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", provider.Failed(Name, op, errors.New("no text content in response"))
	}
	return sb.String(), nil
}

// alternate drops leading assistant messages and merges consecutive messages
// from the same role; the Messages API requires a user-first alternation.
func alternate(in []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(in))
	for _, m := range in {
		if len(out) == 0 && m.Role != "user" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	hc := c.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	res, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
