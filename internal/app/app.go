// Package app assembles the conversation service from configuration. It is
// shared by the Lambda entry point and the voicectl CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"glass-voice/internal/action"
	"glass-voice/internal/config"
	"glass-voice/internal/domain"
	"glass-voice/internal/ensemble"
	"glass-voice/internal/integrations/anthropic"
	"glass-voice/internal/integrations/openai"
	"glass-voice/internal/integrations/paramstore"
	"glass-voice/internal/integrations/reportgen"
	"glass-voice/internal/integrations/supabase"
	"glass-voice/internal/intent"
	"glass-voice/internal/provider"
	"glass-voice/internal/repository"
	"glass-voice/internal/session"
	"glass-voice/internal/usecase"
)

// errNotConfigured backs the order and report ports when no collaborator is
// configured, so every action degrades to demo mode.
var errNotConfigured = errors.New("collaborator not configured")

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Sessions *session.Store
	Service  *usecase.ConversationService
	// Journal is nil unless journal.table is set and AWS is available.
	Journal *repository.Journal

	closers []func() error
}

// New wires every component. awsCfg may be nil, in which case parameter
// store secrets and the DynamoDB journal are unavailable.
func New(ctx context.Context, cfg *config.Config, awsCfg *aws.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	var tokens paramstore.TokenSource
	if awsCfg != nil {
		ps, err := paramstore.New(awsssm.NewFromConfig(*awsCfg))
		if err != nil {
			return nil, fmt.Errorf("app: paramstore: %w", err)
		}
		tokens = ps
	}

	adapters := a.providers(tokens)
	classifiers := make([]provider.Classifier, 0, len(adapters))
	responders := make([]provider.Responder, 0, len(adapters))
	transcribers := make([]provider.Transcriber, 0, len(adapters))
	for _, ad := range adapters {
		classifiers = append(classifiers, ad)
		responders = append(responders, ad)
		transcribers = append(transcribers, ad)
	}
	resolver := ensemble.New(classifiers,
		ensemble.WithTimeout(cfg.Providers.Timeout),
		ensemble.WithLogger(logger))

	storeOpts := []session.Option{
		session.WithLimits(cfg.Session.MaxTurns, cfg.Session.RetainTurns),
		session.WithLogger(logger),
	}
	if cfg.Session.Snapshot == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable; snapshots will fail until it recovers", "addr", cfg.Redis.Addr, "err", err)
		}
		a.closers = append(a.closers, rdb.Close)
		storeOpts = append(storeOpts, session.WithSnapshotter(session.NewRedisSnapshotter(rdb, cfg.Redis.TTL)))
	}
	a.Sessions = session.NewStore(storeOpts...)

	orders, reports, err := a.collaborators()
	if err != nil {
		return nil, err
	}
	executor, err := action.NewExecutor(orders, reports,
		action.WithBasePrice(cfg.Pricing.BasePrice),
		action.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("app: executor: %w", err)
	}

	svcOpts := []usecase.Option{
		usecase.WithTranscribers(transcribers...),
		usecase.WithResponders(responders...),
		usecase.WithLogger(logger),
		usecase.WithLimits(cfg.Conversation.MaxLength, cfg.Conversation.MaxUtterance),
	}
	if cfg.Journal.Table != "" && awsCfg != nil {
		j, err := repository.New(awsdynamodb.NewFromConfig(*awsCfg), cfg.Journal.Table)
		if err != nil {
			return nil, fmt.Errorf("app: journal: %w", err)
		}
		a.Journal = j
		svcOpts = append(svcOpts, usecase.WithJournal(j))
	}

	svc, err := usecase.NewConversationService(a.Sessions, intent.NewClassifier(resolver, logger), executor, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: conversation service: %w", err)
	}
	a.Service = svc
	return a, nil
}

// providers builds the enabled adapters in priority order. A provider that
// cannot be built is skipped; the pattern classifier covers for it.
func (a *App) providers(tokens paramstore.TokenSource) []provider.Adapter {
	cfg := a.Config
	var out []provider.Adapter
	for _, name := range cfg.Providers.Enabled {
		var (
			ad  provider.Adapter
			err error
		)
		switch name {
		case openai.Name:
			ad, err = openai.NewClient(tokens, cfg.ParamPrefix,
				openai.WithAPIKey(cfg.OpenAI.APIKey),
				openai.WithBaseURL(cfg.OpenAI.BaseURL),
				openai.WithModel(cfg.OpenAI.Model),
				openai.WithTranscriptionModel(cfg.OpenAI.STTModel))
		case anthropic.Name:
			ad, err = anthropic.NewClient(tokens, cfg.ParamPrefix,
				anthropic.WithAPIKey(cfg.Anthropic.APIKey),
				anthropic.WithBaseURL(cfg.Anthropic.BaseURL),
				anthropic.WithModel(cfg.Anthropic.Model))
		default:
			err = fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			a.Logger.Warn("provider disabled", "provider", name, "err", err)
			continue
		}
		out = append(out, ad)
	}
	return out
}

func (a *App) collaborators() (action.OrderStore, action.ReportGenerator, error) {
	cfg := a.Config
	var orders action.OrderStore = offlineOrders{}
	if cfg.Supabase.URL != "" {
		sb, err := supabase.New(supabase.Config{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.Key, CacheTTL: cfg.Supabase.CacheTTL})
		if err != nil {
			return nil, nil, fmt.Errorf("app: supabase: %w", err)
		}
		orders = sb
	} else {
		a.Logger.Warn("no order service configured; orders run in demo mode")
	}

	var reports action.ReportGenerator = offlineReports{}
	if cfg.Report.BaseURL != "" {
		rg, err := reportgen.NewClient(cfg.Report.BaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("app: reportgen: %w", err)
		}
		reports = rg
	}
	return orders, reports, nil
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewLogger builds the service logger. format is "json" or "text".
func NewLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(lc.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type offlineOrders struct{}

func (offlineOrders) CreateOrder(context.Context, domain.Order) (domain.Order, error) {
	return domain.Order{}, errNotConfigured
}

func (offlineOrders) GetOrderByNumber(context.Context, string) (domain.Order, error) {
	return domain.Order{}, errNotConfigured
}

func (offlineOrders) UpdateOrderStatus(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, errNotConfigured
}

func (offlineOrders) ListOrders(context.Context, int) ([]domain.Order, error) {
	return nil, errNotConfigured
}

func (offlineOrders) NextOrderNumber(context.Context) (string, error) {
	return "", errNotConfigured
}

func (offlineOrders) FindOrCreateCustomer(context.Context, string) (domain.Customer, error) {
	return domain.Customer{}, errNotConfigured
}

type offlineReports struct{}

func (offlineReports) GenerateOrderPDF(context.Context, domain.Order) (domain.Document, error) {
	return domain.Document{}, errNotConfigured
}

func (offlineReports) GenerateReport(context.Context, domain.ReportData) (domain.Document, error) {
	return domain.Document{}, errNotConfigured
}
