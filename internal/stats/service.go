package stats

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"smsinbox/internal/constants"
	"smsinbox/internal/logger"
	"smsinbox/internal/storage"
	"smsinbox/pkg/metrics"
	"smsinbox/pkg/models"
)

type Service struct {
	store   storage.Store
	cache   Cache
	logger  logger.Logger
	metrics *metrics.Registry
	tracer  trace.Tracer
	topN    int
}

// NewService builds the aggregator. cache may be nil.
func NewService(store storage.Store, cache Cache, log logger.Logger, reg *metrics.Registry) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		logger:  log,
		metrics: reg,
		tracer:  otel.Tracer("smsinbox/stats"),
		topN:    constants.TopSenders,
	}
}

// Compute returns corpus-wide stats. Cache failures are logged and the
// store is read instead. The generation is read before the store so a
// message stored during Aggregate lands in a newer generation.
func (s *Service) Compute(ctx context.Context) (*models.Stats, error) {
	ctx, span := s.tracer.Start(ctx, "stats.Compute")
	defer span.End()

	gen, cacheable := s.cachedGeneration(ctx)
	if cacheable {
		cached, err := s.cache.Get(ctx, gen)
		switch {
		case err == nil:
			s.metrics.IncStatsCache("hit")
			return cached, nil
		case errors.Is(err, ErrCacheMiss):
			s.metrics.IncStatsCache("miss")
		default:
			s.metrics.IncStatsCache("error")
			s.logger.WarnwCtx(ctx, "Stats cache read failed", "error", err)
		}
	}

	stats, err := s.store.Aggregate(ctx, s.topN)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	if stats.MessagesPerSender == nil {
		stats.MessagesPerSender = []models.SenderCount{}
	}

	if cacheable {
		if err := s.cache.Set(ctx, gen, stats); err != nil {
			s.logger.WarnwCtx(ctx, "Stats cache write failed", "error", err)
		}
	}

	return stats, nil
}

func (s *Service) cachedGeneration(ctx context.Context) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.metrics.IncStatsCache("error")
		s.logger.WarnwCtx(ctx, "Stats cache generation read failed", "error", err)
		return 0, false
	}
	return gen, true
}

// MessageStored advances the cache generation so the next Compute sees the
// new message.
func (s *Service) MessageStored(ctx context.Context, _ *models.Message) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnwCtx(ctx, "Stats cache invalidation failed", "error", err)
	}
}
