package docstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. The core packages test
// against it; the server always runs on gorm (postgres or sqlite).
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]Document
	order  map[string][]string
	unique map[string]map[string]string
	last   time.Time

	bus *Bus
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]map[string]Document),
		order:  make(map[string][]string),
		unique: make(map[string]map[string]string),
		bus:    NewBus(),
		now:    time.Now,
	}
}

// WithClock replaces the timestamp source. Timestamps stay strictly
// increasing in insert order whatever the clock returns.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Bus exposes the store's change stream, e.g. to inject events in tests.
func (s *MemoryStore) Bus() *Bus { return s.bus }

func (s *MemoryStore) List(_ context.Context, collection string, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := s.order[collection]
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, s.docs[collection][id])
	}
	s.mu.RUnlock()

	return Apply(docs, q), nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) Create(ctx context.Context, collection string, nd NewDocument) (Document, error) {
	return s.insert(ctx, collection, "", nd)
}

func (s *MemoryStore) CreateUnique(ctx context.Context, collection, key string, nd NewDocument) (Document, error) {
	if key == "" {
		return Document{}, ErrInvalidDocument
	}
	return s.insert(ctx, collection, key, nd)
}

func (s *MemoryStore) insert(ctx context.Context, collection, key string, nd NewDocument) (Document, error) {
	if err := CheckObject(nd.Data); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	if key != "" {
		if _, taken := s.unique[collection][key]; taken {
			s.mu.Unlock()
			return Document{}, ErrConflict
		}
	}
	id := nd.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, taken := s.docs[collection][id]; taken {
		s.mu.Unlock()
		return Document{}, ErrConflict
	}

	ts := s.tick()
	doc := Document{
		ID:         id,
		Collection: collection,
		CreatedAt:  ts,
		UpdatedAt:  ts,
		OwnerID:    nd.OwnerID,
		Private:    nd.Private,
		UniqueKey:  key,
		Data:       append(json.RawMessage(nil), nd.Data...),
	}
	if _, ok := s.docs[collection]; !ok {
		s.docs[collection] = make(map[string]Document)
	}
	s.docs[collection][id] = doc
	s.order[collection] = append(s.order[collection], id)
	if key != "" {
		if _, ok := s.unique[collection]; !ok {
			s.unique[collection] = make(map[string]string)
		}
		s.unique[collection][key] = id
	}
	s.mu.Unlock()

	_ = s.bus.Publish(ctx, Event{Kind: EventCreated, Topic: Topic(collection), Document: doc})
	return doc, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch json.RawMessage) (Document, error) {
	s.mu.Lock()
	doc, ok := s.docs[collection][id]
	if !ok {
		s.mu.Unlock()
		return Document{}, ErrNotFound
	}
	merged, err := MergePatch(doc.Data, patch)
	if err != nil {
		s.mu.Unlock()
		return Document{}, err
	}
	doc.Data = merged
	doc.UpdatedAt = s.tick()
	s.docs[collection][id] = doc
	s.mu.Unlock()

	_ = s.bus.Publish(ctx, Event{Kind: EventUpdated, Topic: Topic(collection), Document: doc})
	return doc, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	return s.bus.Subscribe(ctx, topic)
}

// tick must be called with mu held.
func (s *MemoryStore) tick() time.Time {
	ts := s.now().UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Microsecond)
	}
	s.last = ts
	return ts
}
