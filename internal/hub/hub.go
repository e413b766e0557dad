// Package hub рассылает владельцам актуальное состояние их питомцев по WebSocket.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmeshcher/tamagotchi-server/internal/model"
)

// Типы событий.
const (
	EventPetUpdate = "pet-update"
	EventRefresh   = "refresh"
)

const (
	writeTimeout = 5 * time.Second
	// sendBuffer ограничивает очередь неотправленных событий одного подключения.
	sendBuffer = 64
)

var (
	errClientClosed = errors.New("websocket client closed")
	errBufferFull   = errors.New("websocket send buffer full")
)

// PetLister возвращает питомцев владельца для начальной отправки состояния.
type PetLister interface {
	ListPets(ctx context.Context, ownerID string) ([]model.Pet, error)
}

// OwnerFunc извлекает идентификатор владельца из запроса.
type OwnerFunc func(r *http.Request) (string, bool)

// Message описывает исходящее событие.
type Message struct {
	Event string     `json:"event"`
	Pet   *model.Pet `json:"pet,omitempty"`
}

type incoming struct {
	Event string `json:"event"`
}

type client struct {
	conn    *websocket.Conn
	ownerID string
	events  chan Message

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, ownerID string) *client {
	return &client{
		conn:    conn,
		ownerID: ownerID,
		events:  make(chan Message, sendBuffer),
	}
}

// push ставит событие в очередь подключения, не дожидаясь записи в сокет.
func (c *client) push(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}
	select {
	case c.events <- msg:
		return nil
	default:
		return errBufferFull
	}
}

// close закрывает очередь; writeLoop дописывает оставшиеся события и выходит.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// writeLoop единственный писатель в соединение: gorilla/websocket не допускает
// конкурентной записи.
func (c *client) writeLoop() error {
	for msg := range c.events {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

// Hub хранит подключения, сгруппированные по владельцу.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	pets     PetLister
	owner    OwnerFunc
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New создаёт хаб.
func New(pets PetLister, owner OwnerFunc, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		pets:    pets,
		owner:   owner,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP принимает WebSocket-подключение владельца и сразу отправляет
// состояние всех его питомцев.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(r)
	if !ok {
		http.Error(w, "owner required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn, ownerID)
	h.add(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.writeLoop(); err != nil {
			h.logger.Debug("websocket write failed", zap.String("owner_id", ownerID), zap.Error(err))
			_ = conn.Close()
		}
	}()

	defer func() {
		h.remove(c)
		c.close()
		<-done
		_ = conn.Close()
	}()

	h.sendState(r.Context(), c)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg incoming
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid websocket message", zap.String("owner_id", ownerID), zap.Error(err))
			continue
		}
		if msg.Event == EventRefresh {
			h.sendState(r.Context(), c)
		}
	}
}

func (h *Hub) sendState(ctx context.Context, c *client) {
	pets, err := h.pets.ListPets(ctx, c.ownerID)
	if err != nil {
		h.logger.Warn("load pets for websocket", zap.String("owner_id", c.ownerID), zap.Error(err))
		return
	}
	for i := range pets {
		if err := c.push(Message{Event: EventPetUpdate, Pet: &pets[i]}); err != nil {
			h.logger.Debug("websocket state not queued", zap.String("owner_id", c.ownerID), zap.Error(err))
			return
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.ownerID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.ownerID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.ownerID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.ownerID)
	}
}

// NotifyPet ставит новое состояние питомца в очередь всех подключений его владельца
// и не ждёт записи в сокеты. Подключение с переполненной очередью закрывается.
func (h *Hub) NotifyPet(p model.Pet) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[p.OwnerID]))
	for c := range h.clients[p.OwnerID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.push(Message{Event: EventPetUpdate, Pet: &p}); err != nil {
			h.logger.Warn("drop websocket client",
				zap.String("owner_id", p.OwnerID),
				zap.Error(err),
			)
			h.remove(c)
			c.close()
			_ = c.conn.Close()
		}
	}
}

// Connections возвращает число активных подключений владельца.
func (h *Hub) Connections(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}
