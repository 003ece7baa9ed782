package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"smsinbox/internal/logger"
	"smsinbox/internal/storage"
	"smsinbox/pkg/models"
)

// Page is one window of the ordered, filtered message set. Total counts
// the whole filtered set.
type Page struct {
	Data   []models.Message `json:"data"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type Service struct {
	store  storage.Store
	logger logger.Logger
	limits Limits
	tracer trace.Tracer
}

func NewService(store storage.Store, log logger.Logger, limits Limits) *Service {
	return &Service{
		store:  store,
		logger: log,
		limits: limits,
		tracer: otel.Tracer("smsinbox/query"),
	}
}

func (s *Service) Limits() Limits {
	return s.limits
}

// List returns messages ordered by ts then message_id.
func (s *Service) List(ctx context.Context, p Params) (*Page, error) {
	ctx, span := s.tracer.Start(ctx, "query.List", trace.WithAttributes(
		attribute.Int("query.limit", p.Limit),
		attribute.Int("query.offset", p.Offset),
		attribute.Bool("query.has_q", p.Filter.Q != ""),
	))
	defer span.End()

	messages, total, err := s.store.Query(ctx, p.Filter, models.Pagination{Limit: p.Limit, Offset: p.Offset})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}

	s.logger.DebugwCtx(ctx, "Messages listed",
		"from", p.Filter.From,
		"to", p.Filter.To,
		"since", p.Filter.Since,
		"returned", len(messages),
		"total", total,
	)

	return &Page{
		Data:   messages,
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
	}, nil
}
