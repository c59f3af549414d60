package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/thereayou/ligabpi/internal/docstore"
)

const (
	// Время ожидания записи
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	// Интервал отправки ping
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего кадра
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

type Client struct {
	ID     uuid.UUID
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	topics map[string]docstore.Subscription
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(hub.ctx)
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		Hub:    hub,
		ctx:    ctx,
		cancel: cancel,
		topics: make(map[string]docstore.Subscription),
	}
}

// ReadPump читает кадры клиента
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.Conn.ReadJSON(&msg)
		if err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.SendError("", ErrInvalidMessage.Error())
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("websocket read failed", "client", c.ID, "error", err)
			}
			return
		}

		switch msg.Type {
		case TypePong:
			c.Conn.SetReadDeadline(time.Now().Add(pongWait))

		case TypeSubscribe:
			if err := c.Hub.Subscribe(c, msg.Topic); err != nil {
				c.SendError(msg.Topic, err.Error())
			}

		case TypeUnsubscribe:
			if err := c.Hub.Unsubscribe(c, msg.Topic); err != nil {
				c.SendError(msg.Topic, err.Error())
				continue
			}
			c.reply(TypeUnsubscribed, msg.Topic)

		default:
			c.SendError(msg.Topic, ErrInvalidMessage.Error())
		}
	}
}

// WritePump отправляет кадры клиенту
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendError(topic, errorMsg string) {
	data, _ := json.Marshal(ErrorData{Error: errorMsg})
	_ = c.send(Message{Type: TypeError, Topic: topic, Data: data, Timestamp: time.Now()})
}

func (c *Client) reply(t MessageType, topic string) {
	_ = c.send(Message{Type: t, Topic: topic, Timestamp: time.Now()})
}

// send кладёт кадр в очередь, не блокируясь
func (c *Client) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientQueueFull
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	return topics
}

func (c *Client) hasTopic(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *Client) addTopic(topic string, sub docstore.Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; ok || c.closed {
		return false
	}
	c.topics[topic] = sub
	return true
}

func (c *Client) removeTopic(topic string) (docstore.Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.topics[topic]
	delete(c.topics, topic)
	return sub, ok
}

// close снимает все подписки и закрывает очередь отправки
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.topics
	c.topics = make(map[string]docstore.Subscription)
	close(c.Send)
	c.mu.Unlock()

	c.cancel()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
