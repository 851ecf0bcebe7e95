package sqldb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordWebhookEvent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := &domain.WebhookEvent{
		ID:        "evt_123",
		Type:      "payment_intent.succeeded",
		Provider:  "stripe",
		Payload:   []byte(`{"id":"evt_123",  "type":"payment_intent.succeeded"}`),
		RequestID: "req-1",
	}

	created, err := store.RecordWebhookEvent(ctx, event)
	if err != nil {
		t.Fatalf("RecordWebhookEvent() error = %v", err)
	}
	if !created {
		t.Error("first delivery should be new")
	}
	if event.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be stamped")
	}

	replay := *event
	replay.Type = "changed"
	created, err = store.RecordWebhookEvent(ctx, &replay)
	if err != nil {
		t.Fatalf("RecordWebhookEvent() replay error = %v", err)
	}
	if created {
		t.Error("replay should not be new")
	}

	got, err := store.GetWebhookEvent(ctx, "evt_123")
	if err != nil {
		t.Fatalf("GetWebhookEvent() error = %v", err)
	}
	if got.Type != "payment_intent.succeeded" {
		t.Errorf("Type = %q, replay must not overwrite", got.Type)
	}
	if string(got.Payload) != string(event.Payload) {
		t.Errorf("Payload = %q, want exact bytes %q", got.Payload, event.Payload)
	}
	if got.RequestID != "req-1" {
		t.Errorf("RequestID = %q", got.RequestID)
	}
}

func TestStore_GetWebhookEvent_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetWebhookEvent(context.Background(), "missing")
	if !errors.Is(err, ports.ErrEventNotFound) {
		t.Errorf("GetWebhookEvent() error = %v, want ErrEventNotFound", err)
	}
}

func TestStore_RecordWebhookEvent_RequiresID(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.RecordWebhookEvent(context.Background(), &domain.WebhookEvent{Provider: "stripe"}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestStore_ListWebhookEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := store.RecordWebhookEvent(ctx, &domain.WebhookEvent{
			ID:         fmt.Sprintf("evt_%d", i),
			Type:       "charge.succeeded",
			Provider:   "stripe",
			Payload:    []byte(`{}`),
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordWebhookEvent() error = %v", err)
		}
	}

	events, err := store.ListWebhookEvents(ctx, ports.ListOptions{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListWebhookEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].ID != "evt_3" || events[1].ID != "evt_2" {
		t.Errorf("order = %s, %s; want evt_3, evt_2", events[0].ID, events[1].ID)
	}
}

func TestStore_ConcurrentReplays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.RecordWebhookEvent(ctx, &domain.WebhookEvent{
				ID: "evt_race", Type: "t", Provider: "stripe", Payload: []byte(`{}`),
			})
			if err != nil {
				t.Errorf("RecordWebhookEvent() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
}

func TestNewSQLite_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")

	store, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if store.Dialect().Name() != "sqlite" {
		t.Errorf("dialect = %s", store.Dialect().Name())
	}
}

func TestNewPostgres(t *testing.T) {
	dsn := os.Getenv("STOREFRONT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STOREFRONT_TEST_POSTGRES_DSN not set")
	}

	store, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres() error = %v", err)
	}
	defer store.Close()

	id := fmt.Sprintf("evt_pg_%d", time.Now().UnixNano())
	created, err := store.RecordWebhookEvent(context.Background(), &domain.WebhookEvent{
		ID: id, Type: "t", Provider: "stripe", Payload: []byte(`{"a":1}`),
	})
	if err != nil || !created {
		t.Fatalf("RecordWebhookEvent() = %v, %v", created, err)
	}
	created, err = store.RecordWebhookEvent(context.Background(), &domain.WebhookEvent{
		ID: id, Type: "t", Provider: "stripe", Payload: []byte(`{"a":1}`),
	})
	if err != nil || created {
		t.Errorf("replay RecordWebhookEvent() = %v, %v; want false, nil", created, err)
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(Config{Driver: "mysql", DSN: "x"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
