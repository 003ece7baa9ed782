package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"smsinbox/internal/logger"
	"smsinbox/internal/storage"
	"smsinbox/internal/storage/mock"
	"smsinbox/pkg/metrics"
	"smsinbox/pkg/models"
)

const testSecret = "testsecret"

var fixedNow = time.Date(2025, 1, 15, 10, 0, 1, 250*int(time.Millisecond), time.UTC)

func newTestService(t *testing.T, store storage.Store, opts ...Option) (*Service, *Verifier, *metrics.Registry) {
	t.Helper()

	verifier, err := NewVerifier(testSecret)
	require.NoError(t, err)

	reg := metrics.NewRegistry()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	svc := NewService(verifier, NewValidator(), store, logger.NopLogger(), reg, opts...)
	return svc, verifier, reg
}

func payload(id, text string) []byte {
	return []byte(fmt.Sprintf(`{"message_id":%q,"from":"+919876543210","to":"+14155550100","ts":"2025-01-15T10:00:00Z","text":%q}`, id, text))
}

func TestService_Ingest_Stored(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, verifier, reg := newTestService(t, store)
	ctx := context.Background()

	body := payload("m1", "Hello")
	res := svc.Ingest(ctx, body, verifier.Sign(body))

	require.Equal(t, OutcomeStored, res.Outcome)
	assert.Equal(t, "created", res.Label())
	assert.Equal(t, "m1", res.MessageID)

	stored, err := store.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15T10:00:01.250Z", stored.CreatedAt)
	assert.Equal(t, "Hello", *stored.Text)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.WebhookRequestsTotal.WithLabelValues("created")))
}

func TestService_Ingest_Idempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, verifier, reg := newTestService(t, store)
	ctx := context.Background()

	first := payload("m1", "Hello")
	require.Equal(t, OutcomeStored, svc.Ingest(ctx, first, verifier.Sign(first)).Outcome)

	res := svc.Ingest(ctx, first, verifier.Sign(first))
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	// A different body under the same id keeps the first row.
	second := payload("m1", "Changed")
	res = svc.Ingest(ctx, second, verifier.Sign(second))
	require.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, "Hello", *res.Message.Text)

	_, total, err := store.Query(ctx, models.Filter{}, models.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.WebhookRequestsTotal.WithLabelValues("duplicate")))
}

func TestService_Ingest_Unauthenticated(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, _, reg := newTestService(t, store)
	ctx := context.Background()

	body := payload("m1", "Hello")

	res := svc.Ingest(ctx, body, "")
	assert.Equal(t, OutcomeUnauthenticated, res.Outcome)
	assert.Equal(t, "missing_signature", res.Label())

	res = svc.Ingest(ctx, body, "sha256=deadbeef")
	assert.Equal(t, OutcomeUnauthenticated, res.Outcome)
	assert.Equal(t, "invalid_signature", res.Label())

	// Invalid payloads with bad signatures are still reported as 401.
	res = svc.Ingest(ctx, []byte("not json"), "sha256=deadbeef")
	assert.Equal(t, OutcomeUnauthenticated, res.Outcome)

	_, err := store.GetByID(ctx, "m1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.WebhookRequestsTotal.WithLabelValues("missing_signature")))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.WebhookRequestsTotal.WithLabelValues("invalid_signature")))
}

func TestService_Ingest_InvalidPayload(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, verifier, _ := newTestService(t, store)

	body := []byte(`{"message_id":"m1","from":"bad","to":"+1","ts":"2025-01-15T10:00:00Z"}`)
	res := svc.Ingest(context.Background(), body, verifier.Sign(body))

	require.Equal(t, OutcomeInvalidPayload, res.Outcome)
	assert.Equal(t, "validation_error", res.Label())
	require.NotNil(t, res.Validation)
	assert.Equal(t, "from", res.Validation.Fields[0].Field)
}

func TestService_Ingest_ConcurrentDeliveries(t *testing.T) {
	store := storage.NewMemoryStore()

	var mu sync.Mutex
	notified := 0
	listener := StoreListenerFunc(func(ctx context.Context, msg *models.Message) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	svc, verifier, _ := newTestService(t, store, WithListener(listener))
	body := payload("m1", "Hello")
	sig := verifier.Sign(body)

	const workers = 20
	outcomes := make([]Outcome, workers)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			outcomes[i] = svc.Ingest(context.Background(), body, sig).Outcome
			return nil
		})
	}
	require.NoError(t, g.Wait())

	counts := map[Outcome]int{}
	for _, o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, 1, counts[OutcomeStored])
	assert.Equal(t, workers-1, counts[OutcomeDuplicate])
	assert.Equal(t, 1, notified)
}

func TestService_Ingest_StorageErrors(t *testing.T) {
	driverErr := errors.New("connection refused")

	tests := []struct {
		name   string
		expect func(m *mock.MockStore)
	}{
		{
			name: "insert fails",
			expect: func(m *mock.MockStore) {
				m.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(driverErr).Times(1)
			},
		},
		{
			name: "conflict without existing row",
			expect: func(m *mock.MockStore) {
				m.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(fmt.Errorf("%w: %w", storage.ErrConflict, driverErr)).Times(1)
				m.EXPECT().GetByID(gomock.Any(), "m1").Return(nil, storage.ErrNotFound).Times(1)
			},
		},
		{
			name: "conflict lookup fails",
			expect: func(m *mock.MockStore) {
				m.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(storage.ErrConflict).Times(1)
				m.EXPECT().GetByID(gomock.Any(), "m1").Return(nil, driverErr).Times(1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			store := mock.NewMockStore(ctrl)
			tt.expect(store)

			svc, verifier, reg := newTestService(t, store)
			body := payload("m1", "Hello")
			res := svc.Ingest(context.Background(), body, verifier.Sign(body))

			assert.Equal(t, OutcomeStorageError, res.Outcome)
			assert.Equal(t, "db_error", res.Label())
			assert.Error(t, res.Err)
			assert.Equal(t, 1.0, testutil.ToFloat64(reg.WebhookRequestsTotal.WithLabelValues("db_error")))
		})
	}
}

func TestService_Ingest_ConflictReadsAsDuplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	existing := models.NewMessageBuilder().
		WithID("m1").WithFrom("+1").WithTo("+2").WithTS("2025-01-15T10:00:00Z").
		Build()

	store := mock.NewMockStore(ctrl)
	store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(storage.ErrConflict).Times(1)
	store.EXPECT().GetByID(gomock.Any(), "m1").Return(existing, nil).Times(1)

	svc, verifier, _ := newTestService(t, store)
	body := payload("m1", "Hello")
	res := svc.Ingest(context.Background(), body, verifier.Sign(body))

	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Same(t, existing, res.Message)
}
