package reportgen

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glass-voice/internal/domain"
)

func TestNewClient_EmptyBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
}

func TestGenerateOrderPDF(t *testing.T) {
	var got domain.Order
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/orders/pdf", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"doc-1","url":"https://files.example/doc-1.pdf"}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)
	doc, err := c.GenerateOrderPDF(context.Background(), domain.Order{OrderNumber: "ORD-20240110-001", Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, "https://files.example/doc-1.pdf", doc.URL)
	require.Equal(t, "ORD-20240110-001", got.OrderNumber)
	require.Equal(t, 3, got.Quantity)
}

func TestGenerateOrderPDF_RequiresNumber(t *testing.T) {
	c, err := NewClient("http://unused")
	require.NoError(t, err)
	_, err = c.GenerateOrderPDF(context.Background(), domain.Order{})
	require.ErrorContains(t, err, "order number")
}

func TestGenerateReport(t *testing.T) {
	var got domain.ReportData
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reports", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"rep-1","url":"https://files.example/rep-1.pdf"}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	doc, err := c.GenerateReport(context.Background(), domain.ReportData{
		Title:       "Orders",
		GeneratedAt: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		ByStatus:    map[string]int{"pending": 2},
		Revenue:     240,
	})
	require.NoError(t, err)
	require.Equal(t, "rep-1", doc.ID)
	require.Equal(t, "Orders", got.Title)
	require.Equal(t, 2, got.ByStatus["pending"])
}

func TestGenerateReport_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "renderer busy")
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.GenerateReport(context.Background(), domain.ReportData{})
	var se *HTTPStatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusServiceUnavailable, se.HTTPStatusCode())
	require.Contains(t, se.Body, "renderer busy")
}

func TestGenerateReport_MissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"id":"rep-1"}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.GenerateReport(context.Background(), domain.ReportData{})
	require.ErrorContains(t, err, "missing url")
}
