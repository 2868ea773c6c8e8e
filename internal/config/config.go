// Package config loads service configuration from defaults, an optional
// config file and GLASSVOICE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "GLASSVOICE"

// Known provider names for providers.enabled.
var knownProviders = map[string]bool{"openai": true, "anthropic": true}

type Config struct {
	Session      SessionConfig      `mapstructure:"session"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Providers    ProvidersConfig    `mapstructure:"providers"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	ParamPrefix  string             `mapstructure:"param_prefix"`
	Journal      JournalConfig      `mapstructure:"journal"`
	Supabase     SupabaseConfig     `mapstructure:"supabase"`
	Report       ReportConfig       `mapstructure:"report"`
	Pricing      PricingConfig      `mapstructure:"pricing"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Log          LogConfig          `mapstructure:"log"`
}

type SessionConfig struct {
	MaxTurns      int           `mapstructure:"max_turns"`
	RetainTurns   int           `mapstructure:"retain_turns"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// Snapshot selects the snapshot backend: "none" or "redis".
	Snapshot string `mapstructure:"snapshot"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ConversationConfig struct {
	MaxLength    int `mapstructure:"max_length"`
	MaxUtterance int `mapstructure:"max_utterance"`
}

type ProvidersConfig struct {
	// Enabled is in priority order.
	Enabled []string      `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	STTModel string `mapstructure:"stt_model"`
}

type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type JournalConfig struct {
	Table string `mapstructure:"table"`
}

type SupabaseConfig struct {
	URL      string        `mapstructure:"url"`
	Key      string        `mapstructure:"key"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type ReportConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type PricingConfig struct {
	BasePrice float64 `mapstructure:"base_price"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session.max_turns", 20)
	v.SetDefault("session.retain_turns", 10)
	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.sweep_interval", time.Minute)
	v.SetDefault("session.snapshot", "none")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("conversation.max_length", 60)
	v.SetDefault("conversation.max_utterance", 500)
	v.SetDefault("providers.enabled", []string{"openai", "anthropic"})
	v.SetDefault("providers.timeout", 4*time.Second)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.stt_model", "whisper-1")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("param_prefix", "/glass-voice")
	v.SetDefault("journal.table", "")
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.key", "")
	v.SetDefault("supabase.cache_ttl", 5*time.Minute)
	v.SetDefault("report.base_url", "")
	v.SetDefault("pricing.base_price", 50.0)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads configuration. An empty path searches for voice.{yaml,toml,json}
// in the working directory and tolerates its absence; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("voice")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Providers.Enabled = normalizeList(cfg.Providers.Enabled)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Session.MaxTurns <= 0:
		return errors.New("config: session.max_turns must be positive")
	case c.Session.RetainTurns <= 0 || c.Session.RetainTurns >= c.Session.MaxTurns:
		return fmt.Errorf("config: session.retain_turns must be in (0, %d)", c.Session.MaxTurns)
	case c.Session.IdleTTL <= 0:
		return errors.New("config: session.idle_ttl must be positive")
	case c.Providers.Timeout <= 0:
		return errors.New("config: providers.timeout must be positive")
	case c.Conversation.MaxLength <= 0:
		return errors.New("config: conversation.max_length must be positive")
	case c.Conversation.MaxUtterance <= 0:
		return errors.New("config: conversation.max_utterance must be positive")
	case c.Pricing.BasePrice <= 0:
		return errors.New("config: pricing.base_price must be positive")
	}
	switch c.Session.Snapshot {
	case "none", "":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("config: redis.addr is required for redis snapshots")
		}
	default:
		return fmt.Errorf("config: unknown session.snapshot %q", c.Session.Snapshot)
	}
	for _, p := range c.Providers.Enabled {
		if !knownProviders[p] {
			return fmt.Errorf("config: unknown provider %q", p)
		}
	}
	return nil
}

// normalizeList lowercases and de-duplicates entries, keeping order. Env
// values arrive as one comma-separated string.
func normalizeList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, item := range strings.Split(raw, ",") {
			item = strings.ToLower(strings.TrimSpace(item))
			if item == "" || seen[item] {
				continue
			}
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
