package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/goroutine"
)

// NotificationSaver сохраняет отправленное событие в истории уведомлений.
type NotificationSaver interface {
	CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// Hub держит реестр активных WebSocket подключений по пользователям.
// Через него сервисы доставляют события по сделкам и спорам, а
// мониторинг пушит critical алерты администраторам.
type Hub struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]map[*Client]struct{}
	saver  NotificationSaver
	outbox chan envelope
	ctx    context.Context
	log    *logrus.Logger
}

type envelope struct {
	userID  uuid.UUID
	payload []byte
}

// NewHub создаёт хаб. Контекст ограничивает время жизни цикла Run.
func NewHub(ctx context.Context, log *logrus.Logger) *Hub {
	return &Hub{
		conns:  make(map[uuid.UUID]map[*Client]struct{}),
		outbox: make(chan envelope, 64),
		ctx:    ctx,
		log:    log,
	}
}

// SetNotificationSaver подключает сервис истории уведомлений.
func (h *Hub) SetNotificationSaver(saver NotificationSaver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saver = saver
}

// Run доставляет события из очереди подключённым клиентам.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case env := <-h.outbox:
			h.deliver(env.userID, env.payload)
		}
	}
}

// Register добавляет подключение в реестр.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[client.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.conns[client.userID] = set
	}
	set[client] = struct{}{}
}

// Unregister убирает подключение из реестра.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[client.userID]
	if !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.conns, client.userID)
	}
}

// BroadcastToUser ставит событие в очередь доставки и сохраняет его в
// истории уведомлений. Формат кадра: "type" с именем события, "data"
// с полезной нагрузкой.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	raw, err := json.Marshal(map[string]any{
		"type": event,
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}

	h.mu.RLock()
	saver := h.saver
	h.mu.RUnlock()

	if saver != nil {
		// История пишется асинхронно и не блокирует доставку.
		goroutine.SafeGo(func() {
			if err := saver.CreateNotification(h.ctx, userID, event, data); err != nil {
				h.log.WithError(err).WithField("user_id", userID).Warn("ws: не удалось сохранить уведомление")
			}
		})
	}

	select {
	case h.outbox <- envelope{userID: userID, payload: raw}:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

func (h *Hub) deliver(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.conns[userID] {
		select {
		case client.send <- payload:
		default:
			// Клиент не вычитывает буфер, соединение закрывается.
			goroutine.SafeGo(client.Close)
		}
	}
}
