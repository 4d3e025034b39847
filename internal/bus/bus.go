// Package bus — групповая рассылка событий подписчикам (соединениям).
package bus

import (
	"context"

	"github.com/cwrk-planet/realtime-service/internal/protocol"
)

// Subscriber — получатель событий группы. Deliver не должен блокироваться:
// false означает, что событие отброшено (очередь подписчика заполнена или закрыта).
type Subscriber interface {
	ID() string
	Deliver(ev protocol.Event) bool
}

// Bus рассылает события всем подписчикам группы.
// Порядок Publish в одну группу совпадает с порядком доставки каждому подписчику.
type Bus interface {
	Join(group string, sub Subscriber)
	Leave(group, subscriberID string)
	Publish(ctx context.Context, group string, ev protocol.Event) error
	// PublishExcluding рассылает всем, кроме подписчика с id excludeID.
	PublishExcluding(ctx context.Context, group string, ev protocol.Event, excludeID string) error
	Close() error
}
