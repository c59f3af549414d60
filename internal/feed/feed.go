// Package feed keeps the chat timeline: an initial page of recent messages
// merged with the live stream of newly created ones.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/league"
)

const DefaultPageSize = 50

// Update is delivered to Follow callers after every change of the timeline
// and whenever the live stream drops.
type Update struct {
	Messages     []league.ChatMessage
	Disconnected bool
	Err          error
}

// Reconnect configures how Follow re-subscribes after the stream drops.
type Reconnect struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

var DefaultReconnect = Reconnect{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
	MaxElapsedTime:  2 * time.Minute,
}

func (r Reconnect) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval
	b.MaxElapsedTime = r.MaxElapsedTime
	b.Reset()
	return backoff.WithContext(b, ctx)
}

type Synchronizer struct {
	store     docstore.Store
	log       *slog.Logger
	pageSize  int
	reconnect Reconnect

	mu       sync.Mutex
	messages []league.ChatMessage
	seen     map[string]struct{}
}

type Option func(*Synchronizer)

func WithPageSize(n int) Option { return func(s *Synchronizer) { s.pageSize = n } }

func WithReconnect(r Reconnect) Option { return func(s *Synchronizer) { s.reconnect = r } }

func New(store docstore.Store, log *slog.Logger, opts ...Option) *Synchronizer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Synchronizer{
		store:     store,
		log:       log.With("component", "feed"),
		pageSize:  DefaultPageSize,
		reconnect: DefaultReconnect,
		seen:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadInitial fetches the newest limit messages and returns them oldest
// first. The page is also merged into the timeline.
func (s *Synchronizer) LoadInitial(ctx context.Context, limit int) ([]league.ChatMessage, error) {
	if limit <= 0 {
		return nil, &league.ValidationError{Field: "limit", Reason: "must be positive"}
	}
	docs, err := s.store.List(ctx, league.ChatMessages, docstore.Query{
		OrderBy: []docstore.Order{docstore.Desc(docstore.FieldCreatedAt)},
		Limit:   limit,
	})
	if err != nil {
		return nil, &league.FetchError{Op: "list " + league.ChatMessages, Err: err}
	}

	page := make([]league.ChatMessage, 0, len(docs))
	ids := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		msg, err := league.ParseChatMessage(doc)
		if err != nil {
			return nil, err
		}
		if _, dup := ids[msg.ID]; dup {
			continue
		}
		ids[msg.ID] = struct{}{}
		page = append(page, msg)
	}
	if len(page) > limit {
		page = page[:limit]
	}
	// The page arrives newest first; reverse before the stable sort so equal
	// timestamps keep store insertion order.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	sortByCreatedAt(page)

	s.mu.Lock()
	for _, msg := range page {
		s.addLocked(msg)
	}
	sortByCreatedAt(s.messages)
	s.mu.Unlock()

	return page, nil
}

// OnMessageCreated applies a created event. Redelivery of a known id leaves
// the timeline unchanged.
func (s *Synchronizer) OnMessageCreated(ev docstore.Event) ([]league.ChatMessage, error) {
	msg, err := league.ParseChatMessage(ev.Document)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addLocked(msg) {
		sortByCreatedAt(s.messages)
	}
	return s.snapshotLocked(), nil
}

// SendMessage persists a message. It does not touch the timeline; the message
// shows up when the live stream echoes it back.
func (s *Synchronizer) SendMessage(ctx context.Context, text string, author league.User) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &league.ValidationError{Field: "text", Reason: "message is empty"}
	}
	if author.ID == "" {
		return &league.ValidationError{Field: "authorId", Reason: "not signed in"}
	}
	_, err := s.store.Create(ctx, league.ChatMessages, docstore.NewDocument{
		OwnerID: author.ID,
		Data:    league.ChatMessageBody(text, author),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (s *Synchronizer) Messages() []league.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Follow subscribes to the chat stream and calls onUpdate after every applied
// event until ctx is done. Every subscription, the first one included, reloads
// the newest page once it is live, so nothing posted before it is missed. When
// the stream drops, onUpdate receives a Disconnected update and Follow
// re-subscribes with exponential backoff. It returns nil when ctx is
// cancelled, the refusal when the store rejects the subscription outright
// (docstore.ErrSubscriptionRefused), or an error wrapping
// docstore.ErrStreamDisconnected once the reconnect policy gives up.
func (s *Synchronizer) Follow(ctx context.Context, onUpdate func(Update)) error {
	policy := s.reconnect.backOff(ctx)
	for {
		err := s.followOnce(ctx, onUpdate, policy.Reset)
		if ctx.Err() != nil {
			return nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			s.log.Warn("chat stream refused", "error", permanent.Err)
			return fmt.Errorf("follow chat: %w", permanent.Err)
		}
		s.log.Warn("chat stream dropped", "error", err)
		onUpdate(Update{Messages: s.Messages(), Disconnected: true, Err: err})

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%w: giving up: %v", docstore.ErrStreamDisconnected, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// followOnce holds one subscription until it ends and returns why. The
// subscription is released exactly once on every path. A refused subscription
// comes back as a backoff.PermanentError.
func (s *Synchronizer) followOnce(ctx context.Context, onUpdate func(Update), healthy func()) error {
	sub, err := s.store.Subscribe(ctx, docstore.Topic(league.ChatMessages))
	if err != nil {
		if errors.Is(err, docstore.ErrSubscriptionRefused) {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("%w: %v", docstore.ErrStreamDisconnected, err)
	}
	defer sub.Unsubscribe()

	if _, err := s.LoadInitial(ctx, s.pageSize); err != nil {
		return err
	}
	onUpdate(Update{Messages: s.Messages()})
	healthy()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return docstore.ErrStreamDisconnected
			}
			if ev.Kind != docstore.EventCreated {
				continue
			}
			msgs, err := s.OnMessageCreated(ev)
			if err != nil {
				s.log.Warn("dropping malformed chat event", "id", ev.Document.ID, "error", err)
				continue
			}
			onUpdate(Update{Messages: msgs})
		}
	}
}

// addLocked appends msg unless its id is known and reports whether it did.
func (s *Synchronizer) addLocked(msg league.ChatMessage) bool {
	if _, dup := s.seen[msg.ID]; dup {
		return false
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	return true
}

func (s *Synchronizer) snapshotLocked() []league.ChatMessage {
	out := make([]league.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func sortByCreatedAt(msgs []league.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
