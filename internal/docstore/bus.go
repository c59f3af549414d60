package docstore

import (
	"context"
	"sync"
)

const subscriberBuffer = 256

// Bus is an in-process Publisher and Subscriber. A subscriber whose buffer is
// full is cut off with ErrStreamDisconnected instead of blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[*busSubscription]struct{}
	closed bool
}

func NewBus() *Bus {
	return &Bus{topics: make(map[string]map[*busSubscription]struct{})}
}

func (b *Bus) Publish(_ context.Context, ev Event) error {
	var slow []*busSubscription

	b.mu.RLock()
	for sub := range b.topics[ev.Topic] {
		select {
		case sub.events <- ev:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		sub.terminate(ErrStreamDisconnected)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &busSubscription{
		bus:    b,
		topic:  topic,
		events: make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrStreamDisconnected
	}
	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = make(map[*busSubscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.terminate(ctx.Err())
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close disconnects every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*busSubscription
	for _, subs := range b.topics {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.terminate(ErrStreamDisconnected)
	}
}

func (b *Bus) remove(sub *busSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	// Closing under the write lock keeps Publish from sending on a closed channel.
	close(sub.events)
}

type busSubscription struct {
	bus    *Bus
	topic  string
	events chan Event
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *busSubscription) Events() <-chan Event { return s.events }

func (s *busSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *busSubscription) Unsubscribe() { s.terminate(nil) }

func (s *busSubscription) terminate(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.bus.remove(s)
		close(s.done)
	})
}
