// Package reportgen calls the PDF and report rendering service.
package reportgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"glass-voice/internal/domain"
)

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("reportgen: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client implements action.ReportGenerator.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("reportgen: base URL must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) GenerateOrderPDF(ctx context.Context, order domain.Order) (domain.Document, error) {
	if order.OrderNumber == "" {
		return domain.Document{}, errors.New("reportgen: order number is required")
	}
	return c.post(ctx, "/orders/pdf", order)
}

func (c *Client) GenerateReport(ctx context.Context, data domain.ReportData) (domain.Document, error) {
	return c.post(ctx, "/reports", data)
}

func (c *Client) post(ctx context.Context, path string, payload any) (domain.Document, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Document{}, fmt.Errorf("reportgen: marshal request: %w", err)
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Document{}, fmt.Errorf("reportgen: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	hc := c.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	res, err := hc.Do(req)
	if err != nil {
		return domain.Document{}, fmt.Errorf("reportgen: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return domain.Document{}, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	var doc domain.Document
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&doc); err != nil {
		return domain.Document{}, fmt.Errorf("reportgen: decode response: %w", err)
	}
	if doc.URL == "" {
		return domain.Document{}, errors.New("reportgen: response missing url")
	}
	return doc, nil
}
