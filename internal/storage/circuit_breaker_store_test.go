package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"smsinbox/internal/config"
	"smsinbox/internal/storage/mock"
	"smsinbox/pkg/metrics"
	"smsinbox/pkg/models"
)

func testBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
}

func TestCircuitBreakerStore_OpensOnBackendErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	backendErr := errors.New("connection reset")
	inner := mock.NewMockStore(ctrl)
	inner.EXPECT().Aggregate(gomock.Any(), 10).Return(nil, backendErr).Times(2)

	reg := metrics.NewRegistry()
	store := NewCircuitBreakerStore(inner, testBreakerConfig(), reg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.Aggregate(ctx, 10)
		assert.ErrorIs(t, err, backendErr)
	}
	assert.Equal(t, "open", store.State())

	_, err := store.Aggregate(ctx, 10)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.CircuitBreakerState.WithLabelValues("message-store")))
}

func TestCircuitBreakerStore_DomainErrorsDoNotTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inner := mock.NewMockStore(ctrl)
	inner.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(ErrConflict).Times(5)
	inner.EXPECT().GetByID(gomock.Any(), "m1").Return(nil, ErrNotFound).Times(5)

	store := NewCircuitBreakerStore(inner, testBreakerConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, store.Insert(ctx, &models.Message{MessageID: "m1"}), ErrConflict)
		_, err := store.GetByID(ctx, "m1")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, "closed", store.State())
}

func TestCircuitBreakerStore_PassesQueryResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	page := []models.Message{{MessageID: "a"}, {MessageID: "b"}}
	inner := mock.NewMockStore(ctrl)
	inner.EXPECT().Query(gomock.Any(), models.Filter{From: "+1"}, models.Pagination{Limit: 2}).Return(page, int64(7), nil).Times(1)

	store := NewCircuitBreakerStore(inner, testBreakerConfig(), nil)

	got, total, err := store.Query(context.Background(), models.Filter{From: "+1"}, models.Pagination{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, page, got)
	assert.Equal(t, int64(7), total)
}

func TestCircuitBreakerStore_Disabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	backendErr := errors.New("down")
	inner := mock.NewMockStore(ctrl)
	inner.EXPECT().Ping(gomock.Any()).Return(backendErr).Times(1)
	inner.EXPECT().Aggregate(gomock.Any(), 10).Return(nil, backendErr).Times(10)

	store := NewCircuitBreakerStore(inner, config.CircuitBreakerConfig{}, nil)
	assert.Equal(t, "disabled", store.State())

	for i := 0; i < 10; i++ {
		_, err := store.Aggregate(context.Background(), 10)
		assert.ErrorIs(t, err, backendErr)
	}
	assert.ErrorIs(t, store.Ping(context.Background()), backendErr)
}
