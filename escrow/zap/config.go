package zap

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment selects the baseline encoder and default level.
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentStaging     Environment = "staging"
	EnvironmentUAT         Environment = "uat"
	EnvironmentDevelopment Environment = "development"
	EnvironmentLocal       Environment = "local"
)

var environments = []Environment{
	EnvironmentProduction, EnvironmentStaging, EnvironmentUAT, EnvironmentDevelopment, EnvironmentLocal,
}

func (e Environment) verbose() bool {
	return e == EnvironmentDevelopment || e == EnvironmentLocal
}

// Config holds the logger settings. OTelLibraryName names the otelzap
// bridge scope every entry is teed into.
type Config struct {
	Environment     Environment
	Level           string
	OTelLibraryName string
}

// New builds a JSON logger teed into the OpenTelemetry log bridge. An empty
// Level means debug in verbose environments and info elsewhere.
func New(cfg Config) (*Logger, error) {
	if strings.TrimSpace(cfg.OTelLibraryName) == "" {
		return nil, errors.New("invalid zap config: OTelLibraryName is required")
	}

	if !slices.Contains(environments, cfg.Environment) {
		return nil, fmt.Errorf("invalid zap config: invalid environment %q", cfg.Environment)
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Environment.verbose() {
		level.SetLevel(zapcore.DebugLevel)
	}

	if s := strings.TrimSpace(cfg.Level); s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("invalid level %q: %w", cfg.Level, err)
		}
	}

	zc := zap.NewProductionConfig()
	if cfg.Environment.verbose() {
		zc = zap.NewDevelopmentConfig()
	}

	zc.Encoding = "json"
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zc.Level = level
	zc.DisableStacktrace = true

	bridge := otelzap.NewCore(cfg.OTelLibraryName)

	built, err := zc.Build(
		zap.AddCallerSkip(1),
		zap.WrapCore(func(core zapcore.Core) zapcore.Core { return zapcore.NewTee(core, bridge) }),
	)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return &Logger{base: built, level: level}, nil
}
