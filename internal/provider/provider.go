// Package provider defines the uniform contract over external AI backends:
// speech-to-text, intent classification and reply generation.
package provider

import (
	"context"
	"time"

	"glass-voice/internal/domain"
)

// Transcription is the result of a speech-to-text call.
type Transcription struct {
	Text       string
	Confidence float64
	Provider   string
	Duration   time.Duration
}

// Classification is a provider's raw intent decision. Intent uses the
// provider's own vocabulary; normalization happens in the intent package.
type Classification struct {
	Intent        string
	Confidence    float64
	Entities      map[string]string
	ShouldRespond bool
	Provider      string
	Duration      time.Duration
}

// ReplyRequest carries what a provider needs to phrase an answer.
type ReplyRequest struct {
	Text   string
	Intent string
	Turns  []domain.Turn
	Data   map[string]any
}

// Reply is a generated natural-language response.
type Reply struct {
	Text            string
	Confidence      float64
	Provider        string
	SuggestedAction string
	Duration        time.Duration
}

// Transcriber turns audio into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte) (Transcription, error)
}

// Classifier decides what the user wants.
type Classifier interface {
	Name() string
	ClassifyIntent(ctx context.Context, text string, turns []domain.Turn) (Classification, error)
}

// Responder phrases a reply.
type Responder interface {
	Name() string
	GenerateReply(ctx context.Context, req ReplyRequest) (Reply, error)
}

// Adapter is implemented by every concrete backend. Adapters never retry;
// fallback is the caller's job.
type Adapter interface {
	Transcriber
	Classifier
	Responder
}
