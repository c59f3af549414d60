package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func mustCreate(t *testing.T, s *MemoryStore, coll string, data string) Document {
	t.Helper()
	doc, err := s.Create(context.Background(), coll, NewDocument{Data: json.RawMessage(data)})
	if err != nil {
		t.Fatalf("create %s: %v", data, err)
	}
	return doc
}

func TestMemoryStore_ListFiltersAndOrders(t *testing.T) {
	s := NewMemoryStore()
	mustCreate(t, s, "matches", `{"scheduled":"2030-01-03T10:00:00Z","speculative":true}`)
	mustCreate(t, s, "matches", `{"scheduled":"2020-01-01T10:00:00Z","speculative":true}`)
	mustCreate(t, s, "matches", `{"scheduled":"2030-01-01T10:00:00Z","speculative":true}`)
	mustCreate(t, s, "matches", `{"scheduled":"2030-01-02T10:00:00Z","speculative":false}`)

	docs, err := s.List(context.Background(), "matches", Query{
		Filters: []Filter{
			GreaterThan("scheduled", "2025-01-01T00:00:00Z"),
			Equal("speculative", true),
		},
		OrderBy: []Order{Asc("scheduled")},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 docs, got %d", len(docs))
	}
	var first struct{ Scheduled string }
	_ = json.Unmarshal(docs[0].Data, &first)
	if first.Scheduled != "2030-01-01T10:00:00Z" {
		t.Fatalf("wrong order, first = %s", first.Scheduled)
	}
}

func TestMemoryStore_CreatedAtDescWithLimit(t *testing.T) {
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return base })
	for i := 0; i < 5; i++ {
		mustCreate(t, s, "chat", `{"text":"x"}`)
	}
	docs, err := s.List(context.Background(), "chat", Query{OrderBy: []Order{Desc(FieldCreatedAt)}, Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("want 3, got %d", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		if !docs[i-1].CreatedAt.After(docs[i].CreatedAt) {
			t.Fatalf("timestamps not strictly descending at %d", i)
		}
	}
}

func TestMemoryStore_SearchIsCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	mustCreate(t, s, "clubs", `{"name":"SL Benfica"}`)
	mustCreate(t, s, "clubs", `{"name":"Sporting CP"}`)

	docs, err := s.List(context.Background(), "clubs", Query{Filters: []Filter{Search("name", "benf")}})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("want 1 match, got %d", len(docs))
	}
}

func TestMemoryStore_PrivateDocumentsNeedOwner(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Create(context.Background(), "predictions", NewDocument{OwnerID: "u1", Private: true, Data: json.RawMessage(`{"a":1}`)})
	if err != nil {
		t.Fatal(err)
	}
	if docs, _ := s.List(context.Background(), "predictions", Query{}); len(docs) != 0 {
		t.Fatalf("anonymous viewer saw %d private docs", len(docs))
	}
	if docs, _ := s.List(context.Background(), "predictions", Query{Viewer: "u2"}); len(docs) != 0 {
		t.Fatalf("other user saw %d private docs", len(docs))
	}
	if docs, _ := s.List(context.Background(), "predictions", Query{Viewer: "u1"}); len(docs) != 1 {
		t.Fatalf("owner saw %d docs, want 1", len(docs))
	}
}

func TestMemoryStore_CreateUniqueIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	const workers = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateUnique(context.Background(), "predictions", "u1/m1", NewDocument{Data: json.RawMessage(`{"outcome":"home"}`)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != workers-1 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
}

func TestMemoryStore_UpdateMergesAndPublishes(t *testing.T) {
	s := NewMemoryStore()
	doc := mustCreate(t, s, "profiles", `{"name":"Ana","bio":""}`)

	sub, err := s.Subscribe(context.Background(), Topic("profiles"))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	updated, err := s.Update(context.Background(), "profiles", doc.ID, json.RawMessage(`{"bio":"Defesa"}`))
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	_ = json.Unmarshal(updated.Data, &body)
	if body["name"] != "Ana" || body["bio"] != "Defesa" {
		t.Fatalf("merge failed: %v", body)
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != EventUpdated || ev.Document.ID != doc.ID {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no update event")
	}

	if _, err := s.Update(context.Background(), "profiles", "missing", json.RawMessage(`{}`)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_RejectsNonObjectData(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Create(context.Background(), "chat", NewDocument{Data: json.RawMessage(`[1,2]`)}); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("want ErrInvalidDocument, got %v", err)
	}
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewBus()
	sub, err := b.Subscribe(context.Background(), "t")
	if err != nil {
		t.Fatal(err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe()

	if _, open := <-sub.Events(); open {
		t.Fatal("events channel still open")
	}
	if sub.Err() != nil {
		t.Fatalf("Err after Unsubscribe = %v", sub.Err())
	}
	if n := b.Subscribers("t"); n != 0 {
		t.Fatalf("subscribers left: %d", n)
	}
}

func TestBus_SlowSubscriberIsDisconnected(t *testing.T) {
	b := NewBus()
	sub, _ := b.Subscribe(context.Background(), "t")
	for i := 0; i < subscriberBuffer+1; i++ {
		_ = b.Publish(context.Background(), Event{Topic: "t", Kind: EventCreated})
	}
	for range sub.Events() {
	}
	if !errors.Is(sub.Err(), ErrStreamDisconnected) {
		t.Fatalf("want ErrStreamDisconnected, got %v", sub.Err())
	}
}

func TestBus_ContextCancelEndsSubscription(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := b.Subscribe(ctx, "t")
	cancel()

	select {
	case _, open := <-sub.Events():
		if open {
			t.Fatal("unexpected event")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed on cancel")
	}
	if !errors.Is(sub.Err(), context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", sub.Err())
	}
}

func TestMergePatch(t *testing.T) {
	out, err := MergePatch(json.RawMessage(`{"a":1,"b":2}`), json.RawMessage(`{"b":3,"c":4}`))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]int
	_ = json.Unmarshal(out, &m)
	if m["a"] != 1 || m["b"] != 3 || m["c"] != 4 {
		t.Fatalf("got %v", m)
	}
	if _, err := MergePatch(nil, json.RawMessage(`"x"`)); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("want ErrInvalidDocument, got %v", err)
	}
}
