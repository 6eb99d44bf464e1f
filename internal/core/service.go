package core

import (
	"context"
	"errors"
	"time"

	"hadilab/internal/blob"
	"hadilab/internal/infra/persistence/memory"
	"hadilab/pkg/domain"
)

// Service exposes the hypothesis lifecycle and scoring operations. Every
// mutating operation takes the acting user explicitly and runs its
// precondition checks and writes inside one store transaction.
type Service struct {
	store     PersistentStore
	evaluator domain.Evaluator
	activity  ActivityRecorder
	blobs     blob.Store
	logger    Logger
	clock     Clock
	metrics   MetricsRecorder
	tracer    Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the service clock used for export names and timings.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder installs an operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer installs an operation tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithActivityRecorder replaces the default store-backed activity recorder.
func WithActivityRecorder(rec ActivityRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.activity = rec
		}
	}
}

// WithPolicy sets the permission policy.
func WithPolicy(policy domain.Policy) Option {
	return func(s *Service) { s.evaluator = domain.NewEvaluator(policy) }
}

// WithBlobStore sets the object store used by ExportHistory.
func WithBlobStore(store blob.Store) Option {
	return func(s *Service) { s.blobs = store }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	if store == nil {
		panic("core: nil store")
	}
	s := &Service{
		store:     store,
		evaluator: domain.NewEvaluator(domain.DefaultPolicy),
		logger:    noopLogger{},
		clock:     ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics:   noopMetricsRecorder{},
		tracer:    noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.activity == nil {
		s.activity = NewStoreActivityRecorder(store)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Policy returns the permission policy in force.
func (s *Service) Policy() domain.Policy {
	return s.evaluator.Policy
}

// run wraps one operation with tracing, metrics and error classification.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := s.classify(op, fn(ctx))
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindStoreFailure:
			s.logger.Error("operation failed", "operation", op, "error", err)
		default:
			s.logger.Debug("operation rejected", "operation", op, "kind", string(domain.KindOf(err)), "error", err)
		}
	}
	return err
}

// classify maps store-level failures onto the domain taxonomy. Domain
// errors pass through untouched.
func (s *Service) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var perr *domain.PermissionError
	if errors.As(err, &perr) {
		return err
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	var violation domain.RuleViolationError
	if errors.As(err, &violation) {
		e := &domain.Error{Kind: domain.KindIllegalTransition, Op: op, Message: violation.Error()}
		for _, v := range violation.Result.Violations {
			if v.Severity == domain.SeverityBlock {
				e.Entity = v.Entity
				e.ID = v.EntityID
				break
			}
		}
		return e
	}
	return domain.StoreFailureError(op, err)
}

// transact runs fn in a store transaction and reports non-blocking rule
// findings at Warn.
func (s *Service) transact(ctx context.Context, op string, fn func(tx Transaction) error) error {
	res, err := s.store.RunInTransaction(ctx, fn)
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityWarn {
			s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity", string(v.Entity), "id", v.EntityID, "message", v.Message)
		}
	}
	return err
}

func (s *Service) view(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

func liveHypothesis(view TransactionView, id string) (Hypothesis, error) {
	h, ok := view.FindHypothesis(id)
	if !ok || h.Deleted() {
		return Hypothesis{}, domain.NotFoundError(domain.EntityHypothesis, id)
	}
	return h, nil
}
