package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pokedex/internal/infra/persistence/memory"
	"pokedex/pkg/domain"
)

// ErrPersistence marks a committed mutation whose durable write failed. The
// in-memory state keeps the mutation.
var ErrPersistence = errors.New("persist store")

// Service exposes the record operations over a persistent store.
type Service struct {
	store   domain.PersistentStore
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source used for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a non-durable store holding the seed records.
func NewInMemoryService(opts ...Option) *Service {
	store := memory.NewStore(domain.IDPolicyMax)
	store.ImportState(memory.Snapshot{Records: domain.Seed()})
	return NewService(store, opts...)
}

// List returns the records matching filter in ascending id order.
func (s *Service) List(ctx context.Context, filter domain.Filter) (domain.Collection, error) {
	var out domain.Collection
	err := s.run(ctx, "list", func(ctx context.Context) (int, error) {
		if err := filter.Validate(); err != nil {
			return -1, err
		}
		n := -1
		err := s.store.View(ctx, func(v domain.TransactionView) error {
			out = v.List(filter)
			n = v.Len()
			return nil
		})
		return n, err
	})
	return out, err
}

// Get returns the record stored under id.
func (s *Service) Get(ctx context.Context, id int) (domain.Pokemon, error) {
	var out domain.Pokemon
	err := s.run(ctx, "get", func(ctx context.Context) (int, error) {
		if err := domain.ValidateID(id); err != nil {
			return -1, err
		}
		var found bool
		if err := s.store.View(ctx, func(v domain.TransactionView) error {
			out, found = v.Find(id)
			return nil
		}); err != nil {
			return -1, err
		}
		if !found {
			return -1, domain.NotFound(id)
		}
		return -1, nil
	}, zap.Int("id", id))
	return out, err
}

// Create stores candidate under a newly assigned id.
func (s *Service) Create(ctx context.Context, candidate domain.Pokemon) (domain.Entry, error) {
	var created domain.Entry
	err := s.run(ctx, "create", func(ctx context.Context) (int, error) {
		return s.mutate(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.Create(candidate)
			return err
		})
	})
	return created, err
}

// Update replaces every field of the record stored under id.
func (s *Service) Update(ctx context.Context, id int, replacement domain.Pokemon) (domain.Entry, error) {
	var updated domain.Entry
	err := s.run(ctx, "update", func(ctx context.Context) (int, error) {
		return s.mutate(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.Replace(id, replacement)
			return err
		})
	}, zap.Int("id", id))
	return updated, err
}

// Delete removes the record stored under id.
func (s *Service) Delete(ctx context.Context, id int) error {
	return s.run(ctx, "delete", func(ctx context.Context) (int, error) {
		return s.mutate(ctx, func(tx domain.Transaction) error {
			return tx.Delete(id)
		})
	}, zap.Int("id", id))
}

// mutate runs fn in a transaction and reports the committed record count.
// A failure after commit is wrapped with ErrPersistence.
func (s *Service) mutate(ctx context.Context, fn func(domain.Transaction) error) (int, error) {
	n := -1
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := fn(tx); err != nil {
			return err
		}
		n = tx.Snapshot().Len()
		return nil
	})
	if err != nil && len(res.Changes) > 0 {
		return n, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return n, err
}

// run wraps an operation with latency metrics and logging. fn returns the
// store size when it knows it, or -1.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (int, error), fields ...zap.Field) error {
	start := s.now()
	n, err := fn(ctx)
	elapsed := s.now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if gauge, ok := s.metrics.(RecordGauge); ok && n >= 0 {
		gauge.SetRecords(n)
	}
	fields = append(fields, zap.String("operation", op), zap.Duration("duration", elapsed))
	switch {
	case err == nil:
		s.logger.Debug("operation completed", fields...)
	case errors.Is(err, ErrPersistence):
		s.logger.Error("persistence failed; in-memory commit kept", append(fields, zap.Error(err))...)
	default:
		s.logger.Warn("operation rejected", append(fields, zap.Error(err))...)
	}
	return err
}
