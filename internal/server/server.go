// Package server exposes the conversation service over plain HTTP and a
// WebSocket stream for local and container deployments.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"glass-voice/handler"
	"glass-voice/internal/usecase"
)

const maxBodyBytes = 10 << 20

// Message is one WebSocket frame in either direction.
type Message struct {
	Type       string `json:"type"`
	SessionKey string `json:"sessionKey,omitempty"`
	Text       string `json:"text,omitempty"`
	// Final defaults to true for utterance frames.
	Final *bool `json:"final,omitempty"`

	Response  *usecase.Response        `json:"response,omitempty"`
	Interrupt *usecase.InterruptResult `json:"interrupt,omitempty"`
	End       *usecase.EndResult       `json:"end,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Reason    string                   `json:"reason,omitempty"`
}

// Frame types.
const (
	TypeSession     = "session"
	TypeUtterance   = "utterance"
	TypeInterim     = "interim"
	TypeInterrupt   = "interrupt"
	TypeEnd         = "end"
	TypeReply       = "reply"
	TypeFiller      = "filler"
	TypeInterrupted = "interrupted"
	TypeEnded       = "ended"
	TypeError       = "error"
)

type Server struct {
	conv     handler.UseCase
	api      *handler.Handler
	upgrader websocket.Upgrader
	logger   *slog.Logger
	mux      *http.ServeMux
}

func New(conv handler.UseCase, logger *slog.Logger) (*Server, error) {
	api, err := handler.NewHandler(conv)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		conv:   conv,
		api:    api,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("/utterance", s.serveAPI)
	s.mux.HandleFunc("/audio", s.serveAPI)
	s.mux.HandleFunc("/interrupt", s.serveAPI)
	s.mux.HandleFunc("/end", s.serveAPI)
	s.mux.HandleFunc("/ws", s.serveWS)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// serveAPI runs a plain HTTP request through the API Gateway handler so both
// deployments share one request contract.
func (s *Server) serveAPI(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	query := make(map[string]string)
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}

	resp, err := s.api.Handle(r.Context(), events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		Headers:               headers,
		QueryStringParameters: query,
		Body:                  string(body),
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

// serveWS holds one session per connection. The session ends when the
// client disconnects.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	key := strings.TrimSpace(r.URL.Query().Get("sessionKey"))
	if key == "" {
		key = uuid.NewString()
	}
	ctx := context.WithoutCancel(r.Context())
	logger := s.logger.With("session", key)
	logger.Debug("websocket connected")

	defer func() {
		s.conv.End(ctx, key)
		logger.Debug("websocket closed")
	}()

	if err := conn.WriteJSON(Message{Type: TypeSession, SessionKey: key}); err != nil {
		return
	}

	for {
		var in Message
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", "err", err)
			}
			return
		}
		out := s.dispatch(ctx, key, in)
		if err := conn.WriteJSON(out); err != nil {
			logger.Warn("websocket write failed", "err", err)
			return
		}
		if out.Type == TypeEnded {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, key string, in Message) Message {
	switch in.Type {
	case TypeUtterance, TypeInterim:
		final := in.Type == TypeUtterance && (in.Final == nil || *in.Final)
		resp, err := s.conv.Process(ctx, usecase.ProcessInput{
			SessionKey: key,
			Text:       in.Text,
			Final:      final,
			Interim:    !final,
		})
		if err != nil {
			return errorMessage(key, err)
		}
		if !final {
			return Message{Type: TypeFiller, SessionKey: key, Text: resp.Filler}
		}
		return Message{Type: TypeReply, SessionKey: key, Response: &resp}
	case TypeInterrupt:
		res := s.conv.Interrupt(ctx, key)
		return Message{Type: TypeInterrupted, SessionKey: key, Interrupt: &res}
	case TypeEnd:
		res := s.conv.End(ctx, key)
		return Message{Type: TypeEnded, SessionKey: key, End: &res}
	}
	return Message{Type: TypeError, SessionKey: key, Error: string(usecase.ErrorInvalidInput), Reason: "unknown_type"}
}

func errorMessage(key string, err error) Message {
	msg := Message{Type: TypeError, SessionKey: key, Error: string(usecase.CodeOf(err))}
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		msg.Reason = ucErr.Reason
	}
	return msg
}
