// Package handler adapts API Gateway proxy events to the conversation
// service.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"glass-voice/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// UseCase is the conversation service as seen by the transport.
type UseCase interface {
	Process(ctx context.Context, in usecase.ProcessInput) (usecase.Response, error)
	ProcessAudio(ctx context.Context, audio []byte, in usecase.ProcessInput) (usecase.Response, error)
	Interrupt(ctx context.Context, key string) usecase.InterruptResult
	End(ctx context.Context, key string) usecase.EndResult
}

type utteranceRequest struct {
	SessionKey string `json:"sessionKey"`
	Text       string `json:"text"`
	Final      *bool  `json:"final"`
	Interim    bool   `json:"interim"`
}

type sessionRequest struct {
	SessionKey string `json:"sessionKey"`
}

type errorResponse struct {
	Error         string `json:"error"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlationId"`
}

type Handler struct {
	uc     UseCase
	logger *slog.Logger
}

func NewHandler(uc UseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc, logger: slog.Default()}, nil
}

// Handle routes POST /utterance, /audio, /interrupt and /end. Transport
// failures are reported in the response; the returned error is always nil.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	cid := correlationID(req.Headers)
	logger := h.logger.With("correlation_id", cid, "path", req.Path)

	if req.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, cid, errorResponse{Error: "METHOD_NOT_ALLOWED", CorrelationID: cid}), nil
	}

	switch route(req.Path) {
	case "utterance":
		var in utteranceRequest
		if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
			return invalidBody(cid), nil
		}
		final := in.Final == nil || *in.Final
		out, err := h.uc.Process(ctx, usecase.ProcessInput{SessionKey: in.SessionKey, Text: in.Text, Final: final, Interim: in.Interim})
		if err != nil {
			return h.errorResponse(logger, cid, err), nil
		}
		return jsonResponse(http.StatusOK, cid, out), nil

	case "audio":
		audio, err := requestBody(req)
		if err != nil {
			return invalidBody(cid), nil
		}
		key := req.QueryStringParameters["sessionKey"]
		out, err := h.uc.ProcessAudio(ctx, audio, usecase.ProcessInput{SessionKey: key, Final: true})
		if err != nil {
			return h.errorResponse(logger, cid, err), nil
		}
		return jsonResponse(http.StatusOK, cid, out), nil

	case "interrupt", "end":
		var in sessionRequest
		if err := json.Unmarshal([]byte(req.Body), &in); err != nil || strings.TrimSpace(in.SessionKey) == "" {
			return invalidBody(cid), nil
		}
		if route(req.Path) == "interrupt" {
			return jsonResponse(http.StatusOK, cid, h.uc.Interrupt(ctx, in.SessionKey)), nil
		}
		return jsonResponse(http.StatusOK, cid, h.uc.End(ctx, in.SessionKey)), nil
	}
	return jsonResponse(http.StatusNotFound, cid, errorResponse{Error: "NOT_FOUND", CorrelationID: cid}), nil
}

func (h *Handler) errorResponse(logger *slog.Logger, cid string, err error) events.APIGatewayProxyResponse {
	code := usecase.CodeOf(err)
	status := StatusFor(code)
	var reason string
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		reason = ucErr.Reason
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", code, "err", err)
	} else {
		logger.Info("request rejected", "code", code, "reason", reason)
	}
	return jsonResponse(status, cid, errorResponse{Error: string(code), Reason: reason, CorrelationID: cid})
}

// StatusFor maps a usecase error code to an HTTP status.
func StatusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func route(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

func invalidBody(cid string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusBadRequest, cid, errorResponse{
		Error:         string(usecase.ErrorInvalidInput),
		Reason:        "invalid_body",
		CorrelationID: cid,
	})
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func jsonResponse(status int, cid string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: cid,
		},
		Body: string(raw),
	}
}
