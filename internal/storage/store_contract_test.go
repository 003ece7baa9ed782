package storage_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"smsinbox/internal/storage"
	"smsinbox/pkg/models"
)

// runStoreContract exercises the behaviour every Store backend must share.
// newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("InsertAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		msg := newMessage("m1", "+111", "+999", "2025-01-15T10:00:00Z", strPtr("Hello"))
		require.NoError(t, store.Insert(ctx, msg))

		got, err := store.GetByID(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, msg, got)

		noText := newMessage("m2", "+111", "+999", "2025-01-15T10:00:00Z", nil)
		require.NoError(t, store.Insert(ctx, noText))
		got, err = store.GetByID(ctx, "m2")
		require.NoError(t, err)
		assert.Nil(t, got.Text)

		_, err = store.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("InsertConflict", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Insert(ctx, newMessage("m1", "+111", "+999", "2025-01-15T10:00:00Z", strPtr("first"))))

		err := store.Insert(ctx, newMessage("m1", "+222", "+888", "2025-01-16T10:00:00Z", strPtr("second")))
		assert.ErrorIs(t, err, storage.ErrConflict)

		got, err := store.GetByID(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "first", *got.Text)
		assert.Equal(t, "+111", got.From)
	})

	t.Run("ConcurrentInsert", func(t *testing.T) {
		store := newStore(t)

		const workers = 10
		results := make([]error, workers)

		var g errgroup.Group
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				results[i] = store.Insert(context.Background(), newMessage("m1", "+111", "+999", "2025-01-15T10:00:00Z", nil))
				return nil
			})
		}
		require.NoError(t, g.Wait())

		created := 0
		for _, err := range results {
			if err == nil {
				created++
				continue
			}
			assert.ErrorIs(t, err, storage.ErrConflict)
		}
		assert.Equal(t, 1, created)
	})

	t.Run("QueryOrderingAndFilters", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seedMessages(t, store)

		all, total, err := store.Query(ctx, models.Filter{}, models.Pagination{Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
		assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, ids(all))

		tests := []struct {
			name   string
			filter models.Filter
			want   []string
		}{
			{name: "from", filter: models.Filter{From: "+111"}, want: []string{"a", "b", "d"}},
			{name: "to", filter: models.Filter{To: "+888"}, want: []string{"e"}},
			{name: "since inclusive", filter: models.Filter{Since: "2025-01-15T10:00:00Z"}, want: []string{"b", "c", "d", "e", "f"}},
			{name: "q case insensitive", filter: models.Filter{Q: "HELLO"}, want: []string{"a", "b"}},
			{name: "q percent literal", filter: models.Filter{Q: "%"}, want: []string{"d"}},
			{name: "q underscore literal", filter: models.Filter{Q: "_"}, want: []string{"e"}},
			{name: "q skips null text", filter: models.Filter{Q: "o"}, want: []string{"a", "b", "c", "d"}},
			{name: "combined", filter: models.Filter{From: "+111", Since: "2025-01-15T10:00:00Z", Q: "hello"}, want: []string{"b"}},
			{name: "no match", filter: models.Filter{From: "+000"}, want: []string{}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, total, err := store.Query(ctx, tt.filter, models.Pagination{Limit: 100})
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(got))
				assert.Equal(t, int64(len(tt.want)), total)
			})
		}
	})

	t.Run("QueryUnicodeCaseInsensitive", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, newMessage("u1", "+111", "+999", "2025-01-15T09:00:00Z", strPtr("Café ÉTÉ"))))
		require.NoError(t, store.Insert(ctx, newMessage("u2", "+111", "+999", "2025-01-15T10:00:00Z", strPtr("plain ascii"))))
		require.NoError(t, store.Insert(ctx, newMessage("u3", "+111", "+999", "2025-01-15T11:00:00Z", nil)))

		for _, q := range []string{"été", "ÉTÉ", "CAFÉ", "café é"} {
			got, total, err := store.Query(ctx, models.Filter{Q: q}, models.Pagination{Limit: 100})
			require.NoError(t, err, q)
			assert.Equal(t, []string{"u1"}, ids(got), q)
			assert.Equal(t, int64(1), total, q)
		}
	})

	t.Run("QueryPagination", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seedMessages(t, store)

		var walked []string
		for offset := 0; ; offset++ {
			page, total, err := store.Query(ctx, models.Filter{}, models.Pagination{Limit: 1, Offset: offset})
			require.NoError(t, err)
			assert.Equal(t, int64(6), total)
			if len(page) == 0 {
				break
			}
			require.Len(t, page, 1)
			walked = append(walked, page[0].MessageID)
		}
		assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, walked)

		page, total, err := store.Query(ctx, models.Filter{}, models.Pagination{Limit: 2, Offset: 100})
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.NotNil(t, page)
		assert.Equal(t, int64(6), total)
	})

	t.Run("AggregateEmpty", func(t *testing.T) {
		store := newStore(t)

		stats, err := store.Aggregate(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.TotalMessages)
		assert.Equal(t, int64(0), stats.SendersCount)
		assert.NotNil(t, stats.MessagesPerSender)
		assert.Empty(t, stats.MessagesPerSender)
		assert.Nil(t, stats.FirstMessageTS)
		assert.Nil(t, stats.LastMessageTS)
	})

	t.Run("Aggregate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seedMessages(t, store)

		stats, err := store.Aggregate(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(6), stats.TotalMessages)
		assert.Equal(t, int64(3), stats.SendersCount)
		assert.Equal(t, []models.SenderCount{
			{From: "+111", Count: 3},
			{From: "+222", Count: 2},
		}, stats.MessagesPerSender)
		require.NotNil(t, stats.FirstMessageTS)
		require.NotNil(t, stats.LastMessageTS)
		assert.Equal(t, "2025-01-15T09:00:00Z", *stats.FirstMessageTS)
		assert.Equal(t, "2025-01-15T13:00:00Z", *stats.LastMessageTS)
	})

	t.Run("AggregateTieBreak", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i, from := range []string{"+30", "+10", "+20"} {
			msg := newMessage(fmt.Sprintf("m%d", i), from, "+999", "2025-01-15T10:00:00Z", nil)
			require.NoError(t, store.Insert(ctx, msg))
		}

		stats, err := store.Aggregate(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []models.SenderCount{
			{From: "+10", Count: 1},
			{From: "+20", Count: 1},
			{From: "+30", Count: 1},
		}, stats.MessagesPerSender)
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(context.Background()))
	})
}

// seedMessages stores six messages whose ts order differs from insert order.
// "b" and "c" share a ts so message_id breaks the tie.
func seedMessages(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	msgs := []*models.Message{
		newMessage("f", "+333", "+999", "2025-01-15T13:00:00Z", nil),
		newMessage("c", "+222", "+999", "2025-01-15T10:00:00Z", strPtr("good morning")),
		newMessage("a", "+111", "+999", "2025-01-15T09:00:00Z", strPtr("Hello there")),
		newMessage("b", "+111", "+999", "2025-01-15T10:00:00Z", strPtr("hello again")),
		newMessage("e", "+222", "+888", "2025-01-15T12:00:00Z", strPtr("key a_b set")),
		newMessage("d", "+111", "+999", "2025-01-15T11:00:00Z", strPtr("100% done")),
	}
	for _, msg := range msgs {
		require.NoError(t, store.Insert(ctx, msg))
	}
}

func newMessage(id, from, to, ts string, text *string) *models.Message {
	return &models.Message{
		MessageID: id,
		From:      from,
		To:        to,
		TS:        ts,
		Text:      text,
		CreatedAt: "2025-01-15T10:00:00.000Z",
	}
}

func strPtr(s string) *string {
	return &s
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.MessageID)
	}
	return out
}
