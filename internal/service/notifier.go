package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NotificationHub доставляет события подключённым пользователям.
type NotificationHub interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// HubNotifier реализует Notifier поверх WebSocket хаба.
// Хаб сохраняет уведомление и доставляет его онлайн-клиентам; сбой
// доставки логируется и не влияет на вызвавшую операцию.
type HubNotifier struct {
	hub NotificationHub
	log *logrus.Logger
}

func NewHubNotifier(hub NotificationHub, log *logrus.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, log: log}
}

// Notify отправляет событие пользователю.
func (n *HubNotifier) Notify(ctx context.Context, userID uuid.UUID, event, msg string, metadata map[string]interface{}) {
	payload := map[string]interface{}{
		"message":  msg,
		"metadata": metadata,
	}
	if err := n.hub.BroadcastToUser(userID, event, payload); err != nil {
		n.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"event":   event,
		}).Warn("не удалось доставить уведомление")
	}
}
