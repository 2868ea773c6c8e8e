// Package ensemble fans an intent classification out to every configured
// provider and reduces the answers to one.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"glass-voice/internal/domain"
	"glass-voice/internal/metrics"
	"glass-voice/internal/provider"
)

const defaultTimeout = 4 * time.Second

// ErrAllProvidersFailed is returned when no provider produced a result.
var ErrAllProvidersFailed = errors.New("ensemble: all providers failed")

// Attempt is one provider's settled outcome.
type Attempt struct {
	Provider string
	Result   provider.Classification
	Err      error
}

// Resolver issues classification calls concurrently with a bounded wait.
type Resolver struct {
	providers []provider.Classifier
	timeout   time.Duration
	logger    *slog.Logger
}

type Option func(*Resolver)

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Resolver over providers in priority order. Nil entries are
// skipped.
func New(providers []provider.Classifier, opts ...Option) *Resolver {
	r := &Resolver{timeout: defaultTimeout, logger: slog.Default()}
	for _, p := range providers {
		if p != nil {
			r.providers = append(r.providers, p)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Len reports how many providers are configured.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.providers)
}

// Resolve classifies text with every provider and returns the reduced result.
func (r *Resolver) Resolve(ctx context.Context, text string, turns []domain.Turn) (provider.Classification, error) {
	if r.Len() == 0 {
		return provider.Classification{}, ErrAllProvidersFailed
	}
	attempts := r.fanOut(ctx, text, turns)
	for _, a := range attempts {
		if a.Err != nil {
			r.logger.Warn("intent provider failed", "provider", a.Provider, "err", a.Err)
		}
	}
	res, err := Reduce(attempts)
	metrics.EnsembleResolutions.WithLabelValues(resolutionKind(attempts, err)).Inc()
	return res, err
}

func (r *Resolver) fanOut(ctx context.Context, text string, turns []domain.Turn) []Attempt {
	attempts := make([]Attempt, len(r.providers))
	var g errgroup.Group
	for i, p := range r.providers {
		i, p := i, p
		g.Go(func() error {
			started := time.Now()
			res, err := r.call(ctx, p, text, turns)
			if err == nil {
				if res.Provider == "" {
					res.Provider = p.Name()
				}
				if res.Duration == 0 {
					res.Duration = time.Since(started)
				}
			}
			metrics.ObserveProviderCall(p.Name(), "classify", started, err)
			attempts[i] = Attempt{Provider: p.Name(), Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return attempts
}

// call bounds a single provider call. A provider that ignores ctx still
// cannot hold the turn past the timeout; its late result is discarded.
func (r *Resolver) call(ctx context.Context, p provider.Classifier, text string, turns []domain.Turn) (provider.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		res provider.Classification
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.ClassifyIntent(ctx, text, turns)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return provider.Classification{}, provider.Unavailable(p.Name(), "classify", fmt.Errorf("timed out after %s: %w", r.timeout, ctx.Err()))
	}
}

// Reduce picks the winning classification: the highest confidence among the
// successes, regardless of whether their intents agree. Ties keep the
// earlier provider.
func Reduce(attempts []Attempt) (provider.Classification, error) {
	var (
		best  provider.Classification
		found bool
	)
	for _, a := range attempts {
		if a.Err != nil {
			continue
		}
		if !found || a.Result.Confidence > best.Confidence {
			best = a.Result
			found = true
		}
	}
	if !found {
		return provider.Classification{}, ErrAllProvidersFailed
	}
	return best, nil
}

func resolutionKind(attempts []Attempt, err error) string {
	if err != nil {
		return "none"
	}
	ok := 0
	intents := map[string]struct{}{}
	for _, a := range attempts {
		if a.Err == nil {
			ok++
			intents[a.Result.Intent] = struct{}{}
		}
	}
	switch {
	case ok == 1:
		return "single"
	case len(intents) == 1:
		return "agreement"
	default:
		return "disagreement"
	}
}
