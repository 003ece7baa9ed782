package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"smsinbox/internal/config"
	"smsinbox/pkg/circuitbreaker"
	"smsinbox/pkg/metrics"
	"smsinbox/pkg/models"
)

// ErrCircuitOpen is returned while the breaker rejects store calls.
var ErrCircuitOpen = errors.New("message store circuit breaker is open")

// CircuitBreakerStore guards a Store with a circuit breaker. Conflicts and
// misses pass through without counting as failures.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig, reg *metrics.Registry) *CircuitBreakerStore {
	if !cfg.Enabled {
		return &CircuitBreakerStore{store: store}
	}

	cbConfig := circuitbreaker.DefaultConfig("message-store")
	cbConfig.Metrics = reg
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || IsDomainError(err)
	}

	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerStore) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if s.cb == nil {
		return fn()
	}

	result, err := s.cb.ExecuteWithContext(ctx, fn)
	s.cb.RecordRequest(err == nil || IsDomainError(err))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return result, err
}

func (s *CircuitBreakerStore) Insert(ctx context.Context, msg *models.Message) error {
	_, err := s.execute(ctx, func() (interface{}, error) {
		return nil, s.store.Insert(ctx, msg)
	})
	return err
}

func (s *CircuitBreakerStore) GetByID(ctx context.Context, messageID string) (*models.Message, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.store.GetByID(ctx, messageID)
	})
	if err != nil {
		return nil, err
	}

	msg, ok := result.(*models.Message)
	if !ok {
		return nil, fmt.Errorf("store returned invalid result type")
	}
	return msg, nil
}

type queryResult struct {
	messages []models.Message
	total    int64
}

func (s *CircuitBreakerStore) Query(ctx context.Context, filter models.Filter, page models.Pagination) ([]models.Message, int64, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		messages, total, err := s.store.Query(ctx, filter, page)
		if err != nil {
			return nil, err
		}
		return queryResult{messages: messages, total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	qr, ok := result.(queryResult)
	if !ok {
		return nil, 0, fmt.Errorf("store returned invalid result type")
	}
	return qr.messages, qr.total, nil
}

func (s *CircuitBreakerStore) Aggregate(ctx context.Context, topN int) (*models.Stats, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.store.Aggregate(ctx, topN)
	})
	if err != nil {
		return nil, err
	}

	stats, ok := result.(*models.Stats)
	if !ok {
		return nil, fmt.Errorf("store returned invalid result type")
	}
	return stats, nil
}

// Ping bypasses the breaker so readiness reflects the backend itself.
func (s *CircuitBreakerStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *CircuitBreakerStore) Close() error {
	return s.store.Close()
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}
