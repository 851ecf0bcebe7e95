package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
)

// Store is an in-memory implementation of ports.WebhookEventStore.
// Events are lost on restart.
type Store struct {
	mu     sync.RWMutex
	events map[string]*domain.WebhookEvent
}

var _ ports.WebhookEventStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		events: make(map[string]*domain.WebhookEvent),
	}
}

func (s *Store) RecordWebhookEvent(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	if event.ID == "" {
		return false, errors.New("webhook event id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.ID]; exists {
		return false, nil
	}

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	stored := *event
	stored.Payload = append([]byte(nil), event.Payload...)
	s.events[event.ID] = &stored
	return true, nil
}

func (s *Store) GetWebhookEvent(ctx context.Context, id string) (*domain.WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, exists := s.events[id]
	if !exists {
		return nil, ports.ErrEventNotFound
	}
	out := *event
	return &out, nil
}

func (s *Store) ListWebhookEvents(ctx context.Context, opts ports.ListOptions) ([]*domain.WebhookEvent, error) {
	s.mu.RLock()
	all := make([]*domain.WebhookEvent, 0, len(s.events))
	for _, event := range s.events {
		out := *event
		all = append(all, &out)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].ReceivedAt.Equal(all[j].ReceivedAt) {
			return all[i].ReceivedAt.After(all[j].ReceivedAt)
		}
		return all[i].ID > all[j].ID
	})

	if opts.Offset >= len(all) {
		return []*domain.WebhookEvent{}, nil
	}
	all = all[opts.Offset:]

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) Close() error {
	return nil
}
