package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"smsinbox/pkg/models"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string]models.Message)}
}

func (s *MemoryStore) Backend() string {
	return BackendMemory
}

func (s *MemoryStore) Insert(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.MessageID]; ok {
		return ErrConflict
	}
	s.messages[msg.MessageID] = copyMessage(*msg)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, messageID string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyMessage(msg)
	return &out, nil
}

func (s *MemoryStore) Query(ctx context.Context, filter models.Filter, page models.Pagination) ([]models.Message, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	q := strings.ToLower(filter.Q)

	s.mu.RLock()
	matched := make([]models.Message, 0)
	for _, msg := range s.messages {
		if filter.From != "" && msg.From != filter.From {
			continue
		}
		if filter.To != "" && msg.To != filter.To {
			continue
		}
		if filter.Since != "" && msg.TS < filter.Since {
			continue
		}
		if q != "" && (msg.Text == nil || !strings.Contains(strings.ToLower(*msg.Text), q)) {
			continue
		}
		matched = append(matched, copyMessage(msg))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].TS != matched[j].TS {
			return matched[i].TS < matched[j].TS
		}
		return matched[i].MessageID < matched[j].MessageID
	})

	total := int64(len(matched))
	return lo.Subset(matched, page.Offset, uint(page.Limit)), total, nil
}

func (s *MemoryStore) Aggregate(ctx context.Context, topN int) (*models.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	all := lo.Values(s.messages)
	s.mu.RUnlock()

	stats := &models.Stats{MessagesPerSender: make([]models.SenderCount, 0, topN)}
	if len(all) == 0 {
		return stats, nil
	}

	first, last := all[0].TS, all[0].TS
	for _, msg := range all[1:] {
		if msg.TS < first {
			first = msg.TS
		}
		if msg.TS > last {
			last = msg.TS
		}
	}

	counts := lo.CountValuesBy(all, func(m models.Message) string { return m.From })
	senders := lo.MapToSlice(counts, func(from string, n int) models.SenderCount {
		return models.SenderCount{From: from, Count: int64(n)}
	})
	sort.Slice(senders, func(i, j int) bool {
		if senders[i].Count != senders[j].Count {
			return senders[i].Count > senders[j].Count
		}
		return senders[i].From < senders[j].From
	})

	stats.TotalMessages = int64(len(all))
	stats.SendersCount = int64(len(counts))
	stats.FirstMessageTS = &first
	stats.LastMessageTS = &last
	stats.MessagesPerSender = append(stats.MessagesPerSender, lo.Subset(senders, 0, uint(topN))...)

	return stats, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

func copyMessage(m models.Message) models.Message {
	if m.Text != nil {
		text := *m.Text
		m.Text = &text
	}
	return m
}
