package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-escrow/escrow/backoff"
	"github.com/LerianStudio/lib-escrow/escrow/circuitbreaker"
	"github.com/LerianStudio/lib-escrow/escrow/zap"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid escrow config")

// Config is the escrow engine configuration.
type Config struct {
	Env             string `env:"ESCROW_ENV"               envDefault:"development" validate:"oneof=production staging uat development local"`
	LogLevel        string `env:"ESCROW_LOG_LEVEL"         envDefault:"info"        validate:"oneof=debug info warn warning error"`
	OTelLibraryName string `env:"ESCROW_OTEL_LIBRARY_NAME" envDefault:"lib-escrow"  validate:"required"`

	// RevalidateOnCommit re-checks offer safety of every staging at reallocate time.
	RevalidateOnCommit bool `env:"ESCROW_REVALIDATE_ON_COMMIT" envDefault:"false"`

	PayoutConcurrency int `env:"ESCROW_PAYOUT_CONCURRENCY" envDefault:"4" validate:"gte=1,lte=64"`

	PurseRetryAttempts int           `env:"ESCROW_PURSE_RETRY_ATTEMPTS" envDefault:"3"     validate:"gte=1,lte=10"`
	PurseRetryBase     time.Duration `env:"ESCROW_PURSE_RETRY_BASE"     envDefault:"50ms"  validate:"gt=0"`
	PurseRetryMax      time.Duration `env:"ESCROW_PURSE_RETRY_MAX"      envDefault:"2s"    validate:"gtefield=PurseRetryBase"`

	BreakerConsecutiveFailures uint32        `env:"ESCROW_BREAKER_CONSECUTIVE_FAILURES" envDefault:"5"   validate:"gte=1"`
	BreakerTimeout             time.Duration `env:"ESCROW_BREAKER_TIMEOUT"              envDefault:"10s" validate:"gt=0"`

	RedisAddr      string `env:"ESCROW_REDIS_ADDR"`
	RedisKeyPrefix string `env:"ESCROW_REDIS_KEY_PREFIX" envDefault:"escrow:purse" validate:"required"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	return nil
}

// Load parses and validates the escrow configuration.
func Load() (Config, error) {
	var cfg Config

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the struct tags of cfg.
func (cfg Config) Validate() error {
	vld := validator.New(validator.WithRequiredStructEnabled())

	if err := vld.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]

			return fmt.Errorf("%w: %s failed on %q", ErrInvalidConfig, first.Field(), first.Tag())
		}

		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// LoggerConfig returns the zap logger settings.
func (cfg Config) LoggerConfig() zap.Config {
	return zap.Config{
		Environment:     zap.Environment(cfg.Env),
		Level:           cfg.LogLevel,
		OTelLibraryName: cfg.OTelLibraryName,
	}
}

// BreakerConfig returns the purse circuit breaker settings.
func (cfg Config) BreakerConfig() circuitbreaker.Config {
	c := circuitbreaker.PurseConfig()
	c.ConsecutiveFailures = cfg.BreakerConsecutiveFailures
	c.Timeout = cfg.BreakerTimeout

	return c
}

// RetryPolicy returns the purse retry policy. retryable decides which errors
// are transient; nil retries every error.
func (cfg Config) RetryPolicy(retryable func(error) bool) backoff.Policy {
	return backoff.Policy{
		Attempts:  cfg.PurseRetryAttempts,
		Base:      cfg.PurseRetryBase,
		Max:       cfg.PurseRetryMax,
		Retryable: retryable,
	}
}
