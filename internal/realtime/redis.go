package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/thereayou/ligabpi/internal/docstore"
)

const (
	channelPrefix    = "liga:"
	redisEventBuffer = 256
)

// RedisBus разносит события между экземплярами сервера через Redis pub/sub.
type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisBus(rdb *redis.Client, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RedisBus{rdb: rdb, log: log.With("component", "redis-bus")}
}

func (b *RedisBus) Publish(ctx context.Context, ev docstore.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+ev.Topic, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (docstore.Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channelPrefix+topic)
	// Ждём подтверждения, чтобы не потерять события сразу после подписки
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	sub := &redisSubscription{
		ps:     ps,
		log:    b.log,
		events: make(chan docstore.Event, redisEventBuffer),
		done:   make(chan struct{}),
	}
	go sub.loop(ctx)
	return sub, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	log    *slog.Logger
	events chan docstore.Event
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *redisSubscription) Events() <-chan docstore.Event { return s.events }

func (s *redisSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSubscription) Unsubscribe() { s.terminate(nil) }

func (s *redisSubscription) terminate(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		s.ps.Close()
	})
}

// loop единственный писатель в events и закрывает его на выходе.
func (s *redisSubscription) loop(ctx context.Context) {
	defer close(s.events)

	ch := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.terminate(ctx.Err())
			return
		case msg, ok := <-ch:
			if !ok {
				s.terminate(docstore.ErrStreamDisconnected)
				return
			}
			var ev docstore.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.log.Warn("skipping malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case s.events <- ev:
			default:
				s.terminate(docstore.ErrStreamDisconnected)
				return
			}
		}
	}
}
