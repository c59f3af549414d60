// Package realtime раздаёт события об изменениях документов клиентам по WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thereayou/ligabpi/internal/docstore"
)

// MessageType определяет типы кадров
type MessageType string

const (
	// От клиента
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypePong        MessageType = "pong"

	// От сервера
	TypeEvent        MessageType = "event"
	TypePing         MessageType = "ping"
	TypeError        MessageType = "error"
	TypeSubscribed   MessageType = "subscribed"
	TypeUnsubscribed MessageType = "unsubscribed"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorData тело кадра TypeError
type ErrorData struct {
	Error string `json:"error"`
}

// Observer получает уведомления для метрик.
type Observer interface {
	ClientConnected()
	ClientDisconnected()
	EventDelivered(topic string)
}

type nopObserver struct{}

func (nopObserver) ClientConnected()      {}
func (nopObserver) ClientDisconnected()   {}
func (nopObserver) EventDelivered(string) {}

type Hub struct {
	source   docstore.Subscriber
	log      *slog.Logger
	observer Observer

	clients map[uuid.UUID]*Client

	// Клиенты по UserID (один пользователь может иметь несколько соединений)
	userClients map[string]map[uuid.UUID]*Client

	// Каналы для регистрации/отмены регистрации
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub создает новый Hub, события берутся из source
func NewHub(source docstore.Subscriber, log *slog.Logger, observer Observer) *Hub {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if observer == nil {
		observer = nopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		source:      source,
		log:         log.With("component", "realtime"),
		observer:    observer,
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[string]map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run запускает hub
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop останавливает hub и закрывает все соединения
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.userClients = make(map[string]map[uuid.UUID]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
		client.Conn.Close()
	}
}

// Register регистрирует нового клиента
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.close()
	}
}

// Unregister отменяет регистрацию клиента
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.UserID][client.ID] = client

	h.observer.ClientConnected()
	h.log.Debug("client registered", "client", client.ID, "user", client.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		if userClients, ok := h.userClients[client.UserID]; ok {
			delete(userClients, client.ID)
			if len(userClients) == 0 {
				delete(h.userClients, client.UserID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		client.close()
		h.observer.ClientDisconnected()
		h.log.Debug("client unregistered", "client", client.ID, "user", client.UserID)
	}
}

// Subscribe подписывает клиента на топик и пересылает ему события,
// которые он вправе видеть.
func (h *Hub) Subscribe(client *Client, topic string) error {
	if !ValidTopic(topic) {
		return ErrInvalidTopic
	}
	if client.hasTopic(topic) {
		client.reply(TypeSubscribed, topic)
		return nil
	}

	sub, err := h.source.Subscribe(client.ctx, topic)
	if err != nil {
		return err
	}
	if !client.addTopic(topic, sub) {
		sub.Unsubscribe()
		return nil
	}

	// Подтверждение уходит раньше первого события топика.
	client.reply(TypeSubscribed, topic)
	go h.forward(client, topic, sub)
	return nil
}

// Unsubscribe снимает подписку клиента с топика
func (h *Hub) Unsubscribe(client *Client, topic string) error {
	sub, ok := client.removeTopic(topic)
	if !ok {
		return ErrNotSubscribed
	}
	sub.Unsubscribe()
	return nil
}

func (h *Hub) forward(client *Client, topic string, sub docstore.Subscription) {
	for ev := range sub.Events() {
		if !docstore.Visible(ev.Document, client.UserID) {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := client.send(Message{Type: TypeEvent, Topic: topic, Data: data, Timestamp: time.Now()}); err != nil {
			h.log.Warn("dropping slow client", "client", client.ID, "error", err)
			client.Conn.Close()
			return
		}
		h.observer.EventDelivered(topic)
	}

	// Поток закончился не по запросу клиента: сообщаем, чтобы он переподписался.
	if err := sub.Err(); err != nil && client.ctx.Err() == nil {
		client.removeTopic(topic)
		client.SendError(topic, docstore.ErrStreamDisconnected.Error())
	}
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		_ = client.send(Message{Type: TypePing, Timestamp: time.Now()})
	}
}

// OnlineUsers возвращает список пользователей с открытыми соединениями
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	return users
}

// ValidTopic принимает только топики коллекций.
func ValidTopic(topic string) bool {
	const prefix, suffix = "collections.", ".documents"
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, suffix) {
		return false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), suffix)
	return name != "" && !strings.ContainsAny(name, ". ")
}
