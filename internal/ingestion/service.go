package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"smsinbox/internal/logger"
	"smsinbox/internal/storage"
	"smsinbox/pkg/logging"
	"smsinbox/pkg/metrics"
	"smsinbox/pkg/models"
)

type Outcome string

const (
	OutcomeStored          Outcome = "stored"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeInvalidPayload  Outcome = "invalid_payload"
	OutcomeStorageError    Outcome = "storage_error"
)

// Result of one webhook delivery. Message is the stored row for stored and
// duplicate outcomes; for a duplicate it is the row from the first delivery.
type Result struct {
	Outcome    Outcome
	MessageID  string
	Message    *models.Message
	Validation *ValidationError
	Err        error

	missingSignature bool
}

// Label is the webhook_requests_total result label.
func (r Result) Label() string {
	switch r.Outcome {
	case OutcomeStored:
		return "created"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUnauthenticated:
		if r.missingSignature {
			return "missing_signature"
		}
		return "invalid_signature"
	case OutcomeInvalidPayload:
		return "validation_error"
	default:
		return "db_error"
	}
}

// StoreListener is notified after a message has been stored for the first
// time. It is not called for duplicates.
type StoreListener interface {
	MessageStored(ctx context.Context, msg *models.Message)
}

type StoreListenerFunc func(ctx context.Context, msg *models.Message)

func (f StoreListenerFunc) MessageStored(ctx context.Context, msg *models.Message) {
	f(ctx, msg)
}

type Service struct {
	verifier  *Verifier
	validator *Validator
	store     storage.Store
	logger    logger.Logger
	metrics   *metrics.Registry
	tracer    trace.Tracer
	listeners []StoreListener
	now       func() time.Time
}

type Option func(*Service)

func WithListener(l StoreListener) Option {
	return func(s *Service) {
		s.listeners = append(s.listeners, l)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(
	verifier *Verifier,
	validator *Validator,
	store storage.Store,
	log logger.Logger,
	reg *metrics.Registry,
	opts ...Option,
) *Service {
	s := &Service{
		verifier:  verifier,
		validator: validator,
		store:     store,
		logger:    log,
		metrics:   reg,
		tracer:    otel.Tracer("smsinbox/ingestion"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest verifies, validates and idempotently stores one delivery. raw must
// be the request body exactly as received.
func (s *Service) Ingest(ctx context.Context, raw []byte, signature string) Result {
	ctx, span := s.tracer.Start(ctx, "ingestion.Ingest")
	defer span.End()

	res := s.ingest(ctx, raw, signature)

	span.SetAttributes(
		attribute.String("webhook.result", res.Label()),
		attribute.String("message.id", res.MessageID),
	)
	if res.Outcome == OutcomeStorageError {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "storage error")
	}
	s.metrics.IncWebhookOutcome(res.Label())

	return res
}

func (s *Service) ingest(ctx context.Context, raw []byte, signature string) Result {
	if ok, _ := s.verifier.Verify(raw, signature); !ok {
		res := Result{Outcome: OutcomeUnauthenticated, missingSignature: signature == ""}
		s.logger.WarnwCtx(ctx, "Webhook signature rejected",
			"reason", res.Label(),
			"body_bytes", len(raw),
		)
		return res
	}

	msg, verr := s.validator.Validate(raw)
	if verr != nil {
		s.logger.WarnwCtx(ctx, "Webhook payload rejected",
			"kind", verr.Kind,
			"fields", verr.Fields,
		)
		return Result{Outcome: OutcomeInvalidPayload, Validation: verr}
	}

	ctx = logging.WithMessageID(ctx, msg.MessageID)
	msg.CreatedAt = models.FormatCreatedAt(s.now())

	return s.persist(ctx, msg)
}

// persist inserts msg and classifies a conflict by looking the id up, so a
// lost race against a concurrent delivery reads as a duplicate.
func (s *Service) persist(ctx context.Context, msg *models.Message) Result {
	err := s.store.Insert(ctx, msg)
	if err == nil {
		s.logger.InfowCtx(ctx, "Message stored", "from", msg.From, "ts", msg.TS)
		for _, l := range s.listeners {
			l.MessageStored(ctx, msg)
		}
		return Result{Outcome: OutcomeStored, MessageID: msg.MessageID, Message: msg}
	}

	if !errors.Is(err, storage.ErrConflict) {
		return s.storageError(ctx, msg.MessageID, fmt.Errorf("failed to store message: %w", err))
	}

	existing, getErr := s.store.GetByID(ctx, msg.MessageID)
	switch {
	case getErr == nil:
		s.logger.InfowCtx(ctx, "Duplicate message ignored")
		return Result{Outcome: OutcomeDuplicate, MessageID: msg.MessageID, Message: existing}
	case errors.Is(getErr, storage.ErrNotFound):
		return s.storageError(ctx, msg.MessageID, fmt.Errorf("constraint violation without existing message: %w", err))
	default:
		return s.storageError(ctx, msg.MessageID, fmt.Errorf("failed to confirm duplicate: %w", getErr))
	}
}

func (s *Service) storageError(ctx context.Context, messageID string, err error) Result {
	s.logger.ErrorwCtx(ctx, "Failed to persist message", "error", err)
	return Result{Outcome: OutcomeStorageError, MessageID: messageID, Err: err}
}
