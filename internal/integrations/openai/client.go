// Package openai adapts the OpenAI API to the provider contract: Whisper for
// speech-to-text and chat completions for intent and reply generation.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"glass-voice/internal/domain"
	"glass-voice/internal/integrations/paramstore"
	"glass-voice/internal/metrics"
	"glass-voice/internal/provider"
)

// Name identifies this adapter in results, logs and metrics.
const Name = "openai"

const (
	defaultModel              = goopenai.GPT4oMini
	defaultTranscriptionModel = goopenai.Whisper1
	defaultConfidence         = 0.9
)

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// api is the subset of *goopenai.Client used by Client.
type api interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req goopenai.AudioRequest) (goopenai.AudioResponse, error)
}

// Client implements provider.Adapter.
type Client struct {
	tokens      paramstore.TokenSource
	paramPrefix string
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	model       string
	sttModel    string

	mu  sync.Mutex
	api api
}

type Option func(*Client)

// WithAPIKey skips the parameter store lookup.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
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

func WithTranscriptionModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.sttModel = m
		}
	}
}

// NewClient creates a Client. Unless WithAPIKey is given, the key is read
// from paramPrefix+"/open-ai-token" on first use.
func NewClient(tokens paramstore.TokenSource, paramPrefix string, opts ...Option) (*Client, error) {
	c := &Client{
		tokens:      tokens,
		paramPrefix: strings.TrimRight(strings.TrimSpace(paramPrefix), "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		model:       defaultModel,
		sttModel:    defaultTranscriptionModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		if c.tokens == nil {
			return nil, errors.New("openai: token source must not be nil")
		}
		if c.paramPrefix == "" {
			return nil, errors.New("openai: parameter prefix must not be empty")
		}
	}
	return c, nil
}

func (c *Client) Name() string { return Name }

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

// client builds the SDK client on first successful key resolution.
func (c *Client) client(ctx context.Context) (api, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api != nil {
		return c.api, nil
	}
	key := c.apiKey
	if key == "" {
		tok, err := c.tokens.Token(ctx, c.tokenParameterName())
		if err != nil {
			return nil, fmt.Errorf("openai: resolve api key: %w", err)
		}
		key = tok
	}
	cfg := goopenai.DefaultConfig(key)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	c.api = goopenai.NewClientWithConfig(cfg)
	return c.api, nil
}

// Transcribe sends audio to the transcription endpoint. Confidence is derived
// from the mean segment log-probability when the backend reports it.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (out provider.Transcription, err error) {
	started := time.Now()
	defer func() { metrics.ObserveProviderCall(Name, "transcribe", started, err) }()

	if len(audio) == 0 {
		return provider.Transcription{}, provider.Failed(Name, "transcribe", errors.New("empty audio"))
	}
	cl, err := c.client(ctx)
	if err != nil {
		return provider.Transcription{}, provider.Unavailable(Name, "transcribe", err)
	}
	res, err := cl.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    c.sttModel,
		Reader:   bytes.NewReader(audio),
		FilePath: "utterance.wav",
		Format:   goopenai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return provider.Transcription{}, classify("transcribe", err)
	}
	return provider.Transcription{
		Text:       strings.TrimSpace(res.Text),
		Confidence: transcriptConfidence(res),
		Provider:   Name,
		Duration:   time.Since(started),
	}, nil
}

func transcriptConfidence(res goopenai.AudioResponse) float64 {
	if len(res.Segments) == 0 {
		return defaultConfidence
	}
	var sum float64
	for _, s := range res.Segments {
		sum += s.AvgLogprob
	}
	conf := math.Exp(sum / float64(len(res.Segments)))
	return math.Max(0, math.Min(1, conf))
}

// ClassifyIntent is timed by the ensemble, not here.
func (c *Client) ClassifyIntent(ctx context.Context, text string, turns []domain.Turn) (provider.Classification, error) {
	started := time.Now()

	system, messages := provider.ClassificationMessages(text, turns)
	raw, err := c.chat(ctx, "classify", system, messages)
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
	raw, err := c.chat(ctx, "reply", system, messages)
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

func (c *Client) chat(ctx context.Context, op, system string, messages []domain.ChatMessage) (string, error) {
	cl, err := c.client(ctx)
	if err != nil {
		return "", provider.Unavailable(Name, op, err)
	}

	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(system, messages),
		Temperature: 0.2,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	res, err := cl.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(op, err)
	}
	if len(res.Choices) == 0 {
		return "", provider.Failed(Name, op, errors.New("no choices in response"))
	}
	return res.Choices[0].Message.Content, nil
}

func toChatMessages(system string, messages []domain.ChatMessage) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages)+1)
	out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	for _, m := range messages {
		role := goopenai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = goopenai.ChatMessageRoleAssistant
		}
		out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// classify maps SDK errors onto HTTPStatusError before handing them to the
// provider taxonomy.
func classify(op string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		err = &HTTPStatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		err = &HTTPStatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error(), Err: err}
	}
	return provider.Classify(Name, op, err)
}
