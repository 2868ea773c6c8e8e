package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"glass-voice/internal/usecase"
)

type stubUseCase struct {
	out   usecase.Response
	err   error
	in    usecase.ProcessInput
	audio []byte
	ended string
}

func (s *stubUseCase) Process(_ context.Context, in usecase.ProcessInput) (usecase.Response, error) {
	s.in = in
	return s.out, s.err
}

func (s *stubUseCase) ProcessAudio(_ context.Context, audio []byte, in usecase.ProcessInput) (usecase.Response, error) {
	s.audio = audio
	s.in = in
	return s.out, s.err
}

func (s *stubUseCase) Interrupt(_ context.Context, key string) usecase.InterruptResult {
	return usecase.InterruptResult{SessionKey: key, Found: key == "known", Interruptions: 1}
}

func (s *stubUseCase) End(_ context.Context, key string) usecase.EndResult {
	s.ended = key
	return usecase.EndResult{SessionKey: key, Found: true, Reply: "Goodbye!"}
}

func makeEvent(path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_Utterance(t *testing.T) {
	uc := &stubUseCase{out: usecase.Response{SessionKey: "s1", Reply: "Hello!", ShouldSpeak: true, Intent: "greeting"}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/utterance", `{"sessionKey":"s1","text":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ProcessInput{SessionKey: "s1", Text: "hi", Final: true}, uc.in)

	out := parseBody[usecase.Response](t, resp.Body)
	require.Equal(t, "Hello!", out.Reply)
	require.True(t, out.ShouldSpeak)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_InterimUtterance(t *testing.T) {
	uc := &stubUseCase{out: usecase.Response{SessionKey: "s1", Filler: "Mm-hmm."}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/prod/utterance", `{"sessionKey":"s1","text":"I want","final":false,"interim":true}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, uc.in.Final)
	require.True(t, uc.in.Interim)
}

func TestHandle_InvalidBody(t *testing.T) {
	h, err := NewHandler(&stubUseCase{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/utterance", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Equal(t, "invalid_body", out.Reason)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_utterance"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "provider_rate_limited"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "transcription_unavailable"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "no_transcriber"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := NewHandler(&stubUseCase{err: tc.err})
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), makeEvent("/utterance", `{"text":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_Audio(t *testing.T) {
	uc := &stubUseCase{out: usecase.Response{SessionKey: "s9", Transcript: "hello"}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	event := makeEvent("/audio", base64.StdEncoding.EncodeToString([]byte("RIFF")))
	event.IsBase64Encoded = true
	event.QueryStringParameters = map[string]string{"sessionKey": "s9"}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []byte("RIFF"), uc.audio)
	require.Equal(t, "s9", uc.in.SessionKey)

	event.Body = "%%%not-base64"
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_InterruptAndEnd(t *testing.T) {
	uc := &stubUseCase{}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/interrupt", `{"sessionKey":"known"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, parseBody[usecase.InterruptResult](t, resp.Body).Found)

	resp, err = h.Handle(context.Background(), makeEvent("/end", `{"sessionKey":"s1"}`))
	require.NoError(t, err)
	require.Equal(t, "Goodbye!", parseBody[usecase.EndResult](t, resp.Body).Reply)
	require.Equal(t, "s1", uc.ended)

	resp, err = h.Handle(context.Background(), makeEvent("/end", `{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_RoutingErrors(t *testing.T) {
	h, err := NewHandler(&stubUseCase{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/orders", `{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	event := makeEvent("/utterance", `{}`)
	event.HTTPMethod = http.MethodGet
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, err := NewHandler(&stubUseCase{out: usecase.Response{Reply: "ok"}})
	require.NoError(t, err)

	event := makeEvent("/utterance", `{"text":"hi"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
