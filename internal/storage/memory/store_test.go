package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
)

func TestStore_RecordWebhookEvent(t *testing.T) {
	store := New()
	ctx := context.Background()

	payload := []byte(`{"id":"evt_1"}`)
	event := &domain.WebhookEvent{ID: "evt_1", Type: "charge.succeeded", Provider: "stripe", Payload: payload}

	created, err := store.RecordWebhookEvent(ctx, event)
	if err != nil || !created {
		t.Fatalf("RecordWebhookEvent() = %v, %v; want true, nil", created, err)
	}

	payload[0] = 'X'
	got, err := store.GetWebhookEvent(ctx, "evt_1")
	if err != nil {
		t.Fatalf("GetWebhookEvent() error = %v", err)
	}
	if string(got.Payload) != `{"id":"evt_1"}` {
		t.Errorf("stored payload aliased caller buffer: %q", got.Payload)
	}

	created, err = store.RecordWebhookEvent(ctx, &domain.WebhookEvent{ID: "evt_1", Type: "other"})
	if err != nil || created {
		t.Errorf("replay RecordWebhookEvent() = %v, %v; want false, nil", created, err)
	}
}

func TestStore_GetWebhookEvent_NotFound(t *testing.T) {
	_, err := New().GetWebhookEvent(context.Background(), "nope")
	if !errors.Is(err, ports.ErrEventNotFound) {
		t.Errorf("error = %v, want ErrEventNotFound", err)
	}
}

func TestStore_RecordWebhookEvent_RequiresID(t *testing.T) {
	if _, err := New().RecordWebhookEvent(context.Background(), &domain.WebhookEvent{}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestStore_ListWebhookEvents(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, _ = store.RecordWebhookEvent(ctx, &domain.WebhookEvent{
			ID:         fmt.Sprintf("evt_%d", i),
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	tests := []struct {
		name string
		opts ports.ListOptions
		want []string
	}{
		{name: "all newest first", opts: ports.ListOptions{}, want: []string{"evt_3", "evt_2", "evt_1", "evt_0"}},
		{name: "limit", opts: ports.ListOptions{Limit: 2}, want: []string{"evt_3", "evt_2"}},
		{name: "offset", opts: ports.ListOptions{Limit: 2, Offset: 3}, want: []string{"evt_0"}},
		{name: "past end", opts: ports.ListOptions{Offset: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := store.ListWebhookEvents(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListWebhookEvents() error = %v", err)
			}
			if len(events) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(events), len(tt.want))
			}
			for i, id := range tt.want {
				if events[i].ID != id {
					t.Errorf("events[%d] = %s, want %s", i, events[i].ID, id)
				}
			}
		})
	}
}

func TestStore_ConcurrentReplays(t *testing.T) {
	store := New()
	var created atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.RecordWebhookEvent(context.Background(), &domain.WebhookEvent{ID: "evt_race"})
			if err != nil {
				t.Errorf("RecordWebhookEvent() error = %v", err)
			}
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Errorf("created = %d, want 1", created.Load())
	}
}
