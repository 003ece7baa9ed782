package storage

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"smsinbox/pkg/metrics"
	"smsinbox/pkg/models"
)

// InstrumentedStore records a span, a counter and a latency sample for
// every call of the wrapped Store.
type InstrumentedStore struct {
	store   Store
	backend string
	metrics *metrics.Registry
	tracer  trace.Tracer
}

func NewInstrumentedStore(store Store, backend string, reg *metrics.Registry) *InstrumentedStore {
	return &InstrumentedStore{
		store:   store,
		backend: backend,
		metrics: reg,
		tracer:  otel.Tracer("smsinbox/storage"),
	}
}

func (s *InstrumentedStore) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", s.backend),
			attribute.String("db.operation", operation),
		),
	)
	start := time.Now()

	return ctx, func(err error) {
		status := "ok"
		switch {
		case errors.Is(err, ErrConflict):
			status = "conflict"
		case errors.Is(err, ErrNotFound):
			status = "not_found"
		case err != nil:
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.IncDatabaseQuery(s.backend, operation, status)
		s.metrics.ObserveDatabaseQueryDuration(s.backend, operation, time.Since(start))
		span.End()
	}
}

func (s *InstrumentedStore) Insert(ctx context.Context, msg *models.Message) (err error) {
	ctx, done := s.observe(ctx, "insert")
	defer func() { done(err) }()
	return s.store.Insert(ctx, msg)
}

func (s *InstrumentedStore) GetByID(ctx context.Context, messageID string) (msg *models.Message, err error) {
	ctx, done := s.observe(ctx, "get_by_id")
	defer func() { done(err) }()
	return s.store.GetByID(ctx, messageID)
}

func (s *InstrumentedStore) Query(ctx context.Context, filter models.Filter, page models.Pagination) (messages []models.Message, total int64, err error) {
	ctx, done := s.observe(ctx, "query")
	defer func() { done(err) }()
	return s.store.Query(ctx, filter, page)
}

func (s *InstrumentedStore) Aggregate(ctx context.Context, topN int) (stats *models.Stats, err error) {
	ctx, done := s.observe(ctx, "aggregate")
	defer func() { done(err) }()
	return s.store.Aggregate(ctx, topN)
}

func (s *InstrumentedStore) Ping(ctx context.Context) (err error) {
	ctx, done := s.observe(ctx, "ping")
	defer func() { done(err) }()
	return s.store.Ping(ctx)
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}
