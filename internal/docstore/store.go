// Package docstore defines the document store the league core talks to and
// ships an in-memory implementation of it.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("document not found")
	ErrConflict            = errors.New("document already exists")
	ErrInvalidDocument     = errors.New("document data must be a JSON object")
	ErrStreamDisconnected  = errors.New("realtime stream disconnected")
	// ErrSubscriptionRefused marks subscribe failures that retrying cannot fix.
	ErrSubscriptionRefused = errors.New("subscription refused")
)

// Pseudo-fields that address document metadata inside a Query.
const (
	FieldID        = "$id"
	FieldCreatedAt = "$createdAt"
	FieldUpdatedAt = "$updatedAt"
)

type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	OwnerID    string          `json:"ownerId,omitempty"`
	Private    bool            `json:"private,omitempty"`
	UniqueKey  string          `json:"uniqueKey,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// NewDocument is the caller-controlled part of a document. An empty ID asks
// the store to assign one.
type NewDocument struct {
	ID      string          `json:"id,omitempty"`
	OwnerID string          `json:"ownerId,omitempty"`
	Private bool            `json:"private,omitempty"`
	Data    json.RawMessage `json:"data"`
}

type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

type Event struct {
	Kind     EventKind `json:"kind"`
	Topic    string    `json:"topic"`
	Document Document  `json:"document"`
}

// Subscription is a live view of one topic. Events is closed when the stream
// ends; Err then reports why (nil after Unsubscribe).
type Subscription interface {
	Events() <-chan Event
	Err() error
	Unsubscribe()
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Broker carries change events between stores and realtime clients.
type Broker interface {
	Publisher
	Subscriber
}

// Store is the document backend used by the feed, the prediction guard and the
// catalog. Implementations must be safe for concurrent use.
type Store interface {
	Subscriber

	List(ctx context.Context, collection string, q Query) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Create(ctx context.Context, collection string, doc NewDocument) (Document, error)
	// CreateUnique inserts doc only if no document of the collection carries
	// key; otherwise it fails with ErrConflict. Check and insert are atomic.
	CreateUnique(ctx context.Context, collection, key string, doc NewDocument) (Document, error)
	// Update shallow-merges patch into the document body.
	Update(ctx context.Context, collection, id string, patch json.RawMessage) (Document, error)
}

// Topic names the change stream of a collection.
func Topic(collection string) string {
	return "collections." + collection + ".documents"
}
