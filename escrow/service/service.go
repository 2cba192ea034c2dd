package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LerianStudio/lib-escrow/escrow"
	"github.com/LerianStudio/lib-escrow/escrow/amount"
	"github.com/LerianStudio/lib-escrow/escrow/circuitbreaker"
	"github.com/LerianStudio/lib-escrow/escrow/config"
	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry"
	"github.com/LerianStudio/lib-escrow/escrow/opentelemetry/metrics"
	"github.com/LerianStudio/lib-escrow/escrow/purse"
	"github.com/LerianStudio/lib-escrow/escrow/purse/redispurse"
	"github.com/LerianStudio/lib-escrow/escrow/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "escrow.service"

// PurseFactory creates the pooled purse of a brand.
type PurseFactory func(m amount.Math) (purse.Purse, error)

// Service is the escrow host shared by every instance it starts.
type Service struct {
	registry          *amount.Registry
	logger            log.Logger
	tracer            trace.Tracer
	metrics           *metrics.MetricsFactory
	payoutConcurrency int
	revalidate        bool
	newPurse          PurseFactory

	mu          sync.Mutex
	purses      map[amount.Brand]purse.Purse
	invitations map[string]*invitation
	closers     []func() error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. Instances inherit it.
func WithLogger(logger log.Logger) Option {
	return func(s *Service) {
		s.logger = log.OrNop(logger)
	}
}

// WithTracer sets the tracer for offer and payout spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithMetrics sets the metrics factory shared with instances.
func WithMetrics(factory *metrics.MetricsFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.metrics = factory
		}
	}
}

// WithTelemetry takes the tracer and metrics factory from t.
func WithTelemetry(t *opentelemetry.Telemetry) Option {
	return func(s *Service) {
		if t == nil {
			return
		}

		WithTracer(t.Tracer)(s)
		WithMetrics(t.Metrics)(s)
	}
}

// WithPayoutConcurrency bounds concurrent withdrawals of one seat payout.
func WithPayoutConcurrency(n int) Option {
	return func(s *Service) {
		s.payoutConcurrency = n
	}
}

// WithRevalidateOnCommit turns on commit-time offer-safety checks in every
// instance started afterwards.
func WithRevalidateOnCommit(enabled bool) Option {
	return func(s *Service) {
		s.revalidate = enabled
	}
}

// WithPurseFactory replaces the in-memory pooled purses.
func WithPurseFactory(factory PurseFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newPurse = factory
		}
	}
}

// New creates a service whose pool holds every brand in registry.
func New(registry *amount.Registry, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, escrow.InvalidInput("registry", "brand registry is required")
	}

	s := &Service{
		registry:          registry,
		logger:            log.NewNop(),
		tracer:            otel.Tracer(tracerName),
		metrics:           metrics.NewNopFactory(),
		payoutConcurrency: 4,
		newPurse: func(m amount.Math) (purse.Purse, error) {
			return purse.NewMemory(m), nil
		},
		purses:      make(map[amount.Brand]purse.Purse),
		invitations: make(map[string]*invitation),
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, brand := range registry.Brands() {
		if err := s.initPurse(brand); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// NewFromConfig builds a service from cfg. Pooled purses live in Redis when
// cfg.RedisAddr is set and in memory otherwise; either way they are guarded
// by the configured retry policy and circuit breaker.
func NewFromConfig(cfg config.Config, registry *amount.Registry, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := &Service{logger: log.NewNop()}
	for _, opt := range opts {
		opt(base)
	}

	runtime.SetProductionMode(cfg.Env == "production")

	if base.metrics != nil {
		runtime.InitPanicMetrics(base.metrics, base.logger)
	}

	breakers := circuitbreaker.NewManager(base.logger)
	breakers.RegisterStateChangeListener(breakerLogger{logger: base.logger})
	policy := cfg.RetryPolicy(func(err error) bool { return !purse.IsDomainError(err) })

	var client redis.UniversalClient
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	factory := func(m amount.Math) (purse.Purse, error) {
		var backend purse.Purse = purse.NewMemory(m)

		if client != nil {
			rp, err := redispurse.New(client, m, cfg.RedisKeyPrefix, base.logger)
			if err != nil {
				return nil, err
			}

			backend = rp
		}

		return purse.NewGuarded(backend, breakers, cfg.BreakerConfig(), policy, base.logger), nil
	}

	all := append([]Option{
		WithPayoutConcurrency(cfg.PayoutConcurrency),
		WithRevalidateOnCommit(cfg.RevalidateOnCommit),
		WithPurseFactory(factory),
	}, opts...)

	svc, err := New(registry, all...)
	if err != nil {
		if client != nil {
			_ = client.Close()
		}

		return nil, err
	}

	if client != nil {
		svc.closers = append(svc.closers, client.Close)
	}

	return svc, nil
}

type breakerLogger struct {
	logger log.Logger
}

func (b breakerLogger) OnStateChange(name string, from, to circuitbreaker.State) {
	level := log.LevelInfo
	if to == circuitbreaker.StateOpen {
		level = log.LevelWarn
	}

	b.logger.Log(context.Background(), level, "purse breaker changed state",
		log.String("breaker", name), log.String("from", string(from)), log.String("to", string(to)))
}

// Close releases the purse backends opened by NewFromConfig.
func (s *Service) Close() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error

	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// RegisterBrand adds m to the registry and opens its pooled purse.
func (s *Service) RegisterBrand(m amount.Math) error {
	if err := s.registry.Register(m); err != nil {
		return err
	}

	return s.initPurse(m.Brand())
}

// Registry returns the brand registry.
func (s *Service) Registry() *amount.Registry {
	return s.registry
}

// Purse returns the pooled purse of brand.
func (s *Service) Purse(brand amount.Brand) (purse.Purse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purses[brand]
	if !ok {
		return nil, escrow.NewDomainError(escrow.ErrorUnknownBrand, string(brand), "no pooled purse for brand")
	}

	return p, nil
}

func (s *Service) initPurse(brand amount.Brand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.purses[brand]; ok {
		return nil
	}

	m, err := s.registry.MathFor(brand)
	if err != nil {
		return err
	}

	p, err := s.newPurse(m)
	if err != nil {
		return fmt.Errorf("open purse for %s: %w", brand, err)
	}

	s.purses[brand] = p

	s.logger.Log(context.Background(), log.LevelDebug, "pooled purse opened", log.Brand(string(brand)))

	return nil
}
