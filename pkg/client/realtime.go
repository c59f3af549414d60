package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/realtime"
)

const eventBuffer = 256

// Subscribe opens a websocket to the server and waits for the subscription to
// be acknowledged. Each call uses its own connection. Failures a retry cannot
// fix (no token, a rejected token, a rejected topic) wrap
// docstore.ErrSubscriptionRefused.
func (c *Client) Subscribe(ctx context.Context, topic string) (docstore.Subscription, error) {
	token := c.Token()
	if token == "" {
		return nil, fmt.Errorf("%w: %w", docstore.ErrSubscriptionRefused, ErrNotSignedIn)
	}

	u, err := url.Parse(c.baseURL + apiPrefix + "/realtime")
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %w", docstore.ErrSubscriptionRefused, ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	if err := conn.WriteJSON(realtime.Message{Type: realtime.TypeSubscribe, Topic: topic, Timestamp: time.Now()}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	if err := awaitAck(ctx, conn, topic); err != nil {
		conn.Close()
		return nil, err
	}

	sub := &wsSubscription{
		conn:   conn,
		topic:  topic,
		events: make(chan docstore.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	go sub.watch(ctx)
	go sub.loop()
	return sub, nil
}

func awaitAck(ctx context.Context, conn *websocket.Conn, topic string) error {
	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		switch msg.Type {
		case realtime.TypeSubscribed:
			if msg.Topic == topic {
				return nil
			}
		case realtime.TypeError:
			var data realtime.ErrorData
			json.Unmarshal(msg.Data, &data)
			return fmt.Errorf("%w: %s: %s", docstore.ErrSubscriptionRefused, topic, data.Error)
		}
	}
}

type wsSubscription struct {
	conn   *websocket.Conn
	topic  string
	events chan docstore.Event
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *wsSubscription) Events() <-chan docstore.Event { return s.events }

func (s *wsSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSubscription) Unsubscribe() { s.terminate(nil) }

func (s *wsSubscription) terminate(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		s.conn.Close()
	})
}

func (s *wsSubscription) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.terminate(ctx.Err())
	case <-s.done:
	}
}

// loop is the only reader and the only writer after the handshake; it closes
// events on exit.
func (s *wsSubscription) loop() {
	defer close(s.events)

	for {
		var msg realtime.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				continue
			}
			s.terminate(docstore.ErrStreamDisconnected)
			return
		}

		switch msg.Type {
		case realtime.TypePing:
			if err := s.conn.WriteJSON(realtime.Message{Type: realtime.TypePong, Timestamp: time.Now()}); err != nil {
				s.terminate(docstore.ErrStreamDisconnected)
				return
			}
		case realtime.TypeError:
			if msg.Topic == s.topic {
				s.terminate(docstore.ErrStreamDisconnected)
				return
			}
		case realtime.TypeEvent:
			if msg.Topic != s.topic {
				continue
			}
			var ev docstore.Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			default:
				s.terminate(docstore.ErrStreamDisconnected)
				return
			}
		}
	}
}
