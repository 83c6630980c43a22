package tangguh

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config carries client settings loadable from the environment, for services
// that configure the client per deployment rather than in code.
type Config struct {
	Timeout           time.Duration `env:"TANGGUH_TIMEOUT, default=30s"`
	MaxRetries        int           `env:"TANGGUH_MAX_RETRIES, default=3"`
	InitialBackoff    time.Duration `env:"TANGGUH_INITIAL_BACKOFF, default=100ms"`
	MaxBackoff        time.Duration `env:"TANGGUH_MAX_BACKOFF, default=10s"`
	BackoffMultiplier float64       `env:"TANGGUH_BACKOFF_MULTIPLIER, default=2.0"`
	Jitter            float64       `env:"TANGGUH_JITTER, default=0.1"`
	RetryOn429        bool          `env:"TANGGUH_RETRY_ON_429"`

	CacheEnabled    bool          `env:"TANGGUH_CACHE_ENABLED"`
	CacheTTL        time.Duration `env:"TANGGUH_CACHE_TTL, default=5m"`
	CacheControlTTL bool          `env:"TANGGUH_CACHE_CONTROL_TTL"`

	DedupeDisabled bool `env:"TANGGUH_DEDUPE_DISABLED"`

	BreakerEnabled          bool          `env:"TANGGUH_BREAKER_ENABLED"`
	BreakerFailureThreshold int           `env:"TANGGUH_BREAKER_FAILURE_THRESHOLD, default=5"`
	BreakerRecoveryTimeout  time.Duration `env:"TANGGUH_BREAKER_RECOVERY_TIMEOUT, default=60s"`
	BreakerSuccessThreshold int           `env:"TANGGUH_BREAKER_SUCCESS_THRESHOLD, default=2"`

	RateLimitEnabled bool          `env:"TANGGUH_RATE_LIMIT_ENABLED"`
	RateLimitTokens  int           `env:"TANGGUH_RATE_LIMIT_TOKENS, default=100"`
	RateLimitRefill  time.Duration `env:"TANGGUH_RATE_LIMIT_REFILL, default=10ms"`
	RateLimitPerHost bool          `env:"TANGGUH_RATE_LIMIT_PER_HOST"`

	MetricsEnabled bool `env:"TANGGUH_METRICS_ENABLED"`
	Debug          bool `env:"TANGGUH_DEBUG"`
}

// FromEnv loads a Config from process environment variables.
func FromEnv(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Options converts the config into the equivalent client options.
func (cfg Config) Options() []Option {
	opts := []Option{
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
		WithInitialBackoff(cfg.InitialBackoff),
		WithMaxBackoff(cfg.MaxBackoff),
		WithBackoffMultiplier(cfg.BackoffMultiplier),
		WithJitter(cfg.Jitter),
	}
	if cfg.RetryOn429 {
		opts = append(opts, WithRetryOn429())
	}
	if cfg.CacheEnabled {
		opts = append(opts, WithCache(cfg.CacheTTL))
	}
	if cfg.CacheControlTTL {
		opts = append(opts, WithCacheControlTTL())
	}
	if cfg.DedupeDisabled {
		opts = append(opts, WithoutDeduplication())
	}
	if cfg.BreakerEnabled {
		opts = append(opts, WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
		}))
	}
	if cfg.RateLimitEnabled {
		if cfg.RateLimitPerHost {
			opts = append(opts, WithPerHostRateLimiter(cfg.RateLimitTokens, cfg.RateLimitRefill))
		} else {
			opts = append(opts, WithRateLimiter(cfg.RateLimitTokens, cfg.RateLimitRefill))
		}
	}
	if cfg.MetricsEnabled {
		opts = append(opts, WithMetrics())
	}
	if cfg.Debug {
		opts = append(opts, WithDebug())
	}
	return opts
}
