package intent

import (
	"context"
	"log/slog"
	"strings"

	"glass-voice/internal/domain"
	"glass-voice/internal/metrics"
	"glass-voice/internal/provider"
)

// Resolver is the multi-provider classification seam, satisfied by
// ensemble.Resolver.
type Resolver interface {
	Len() int
	Resolve(ctx context.Context, text string, turns []domain.Turn) (provider.Classification, error)
}

// Classifier resolves an utterance to a canonical Intent, falling back to the
// rule-based classifier when no provider answers.
type Classifier struct {
	resolver Resolver
	logger   *slog.Logger
}

func NewClassifier(resolver Resolver, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{resolver: resolver, logger: logger}
}

// Classify never fails and never returns an empty intent.
func (c *Classifier) Classify(ctx context.Context, text string, turns []domain.Turn) Intent {
	in := c.classify(ctx, text, turns)
	metrics.Intents.WithLabelValues(string(in.Name), sourceLabel(in.Source)).Inc()
	return in
}

func (c *Classifier) classify(ctx context.Context, text string, turns []domain.Turn) Intent {
	if c.resolver == nil || c.resolver.Len() == 0 {
		return Fallback(text)
	}
	res, err := c.resolver.Resolve(ctx, text, turns)
	if err != nil {
		c.logger.Info("falling back to pattern intent classification", "err", err)
		return Fallback(text)
	}
	return FromProvider(res, text)
}

// FromProvider normalizes a provider classification. Unrecognized intents
// become general_inquiry with the provider's confidence.
func FromProvider(res provider.Classification, text string) Intent {
	name, ok := Normalize(res.Intent)
	if !ok {
		name = GeneralInquiry
	}
	in := New(name, res.Confidence, res.Provider)
	for k, v := range res.Entities {
		in.Entities[strings.ToLower(k)] = v
	}
	if _, has := in.Entities[EntityOrderNumber]; !has {
		addPatternEntities(in.Entities, text)
	}
	in.ShouldRespond = res.ShouldRespond
	return in
}

func sourceLabel(source string) string {
	if source == SourcePattern {
		return SourcePattern
	}
	return "provider"
}
