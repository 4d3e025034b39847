package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/cwrk-planet/realtime-service/internal/metrics"
	"github.com/cwrk-planet/realtime-service/internal/protocol"
)

const DefaultChannelPrefix = "realtime"

type envelope struct {
	Exclude string          `json:"exclude,omitempty"`
	Event   json.RawMessage `json:"event"`
}

// RedisBus раздаёт события между инстансами через Redis Pub/Sub.
// Локальные подписчики живут в MemoryBus; публикация уходит в канал {prefix}:{group}
// и возвращается в каждый инстанс через общий PSUBSCRIBE.
type RedisBus struct {
	local  *MemoryBus
	client *redis.Client
	prefix string
	pubsub *redis.PubSub

	once sync.Once
	done chan struct{}
}

// NewRedisBus подписывается на {prefix}:* и запускает цикл приёма.
func NewRedisBus(ctx context.Context, client *redis.Client, prefix string) (*RedisBus, error) {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	ps := client.PSubscribe(ctx, prefix+":*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis psubscribe: %w", err)
	}

	b := &RedisBus{
		local:  NewMemoryBus(),
		client: client,
		prefix: prefix,
		pubsub: ps,
		done:   make(chan struct{}),
	}
	go b.receive()
	return b, nil
}

func (b *RedisBus) Join(group string, sub Subscriber) { b.local.Join(group, sub) }

func (b *RedisBus) Leave(group, subscriberID string) { b.local.Leave(group, subscriberID) }

func (b *RedisBus) Publish(ctx context.Context, group string, ev protocol.Event) error {
	return b.PublishExcluding(ctx, group, ev, "")
}

func (b *RedisBus) PublishExcluding(ctx context.Context, group string, ev protocol.Event, excludeID string) error {
	data, err := encodeEnvelope(ev, excludeID)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel(group), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", group, err)
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type())).Inc()
	return nil
}

func (b *RedisBus) receive() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		group, ok := strings.CutPrefix(msg.Channel, b.prefix+":")
		if !ok {
			continue
		}
		ev, exclude, err := decodeEnvelope([]byte(msg.Payload))
		if err != nil {
			slog.Warn("bus.redis: drop message", "channel", msg.Channel, "err", err)
			continue
		}
		b.local.fanOut(group, ev, exclude)
	}
}

func (b *RedisBus) channel(group string) string {
	return b.prefix + ":" + group
}

// Close останавливает приём; клиент Redis закрывает владелец.
func (b *RedisBus) Close() error {
	var err error
	b.once.Do(func() {
		err = b.pubsub.Close()
		<-b.done
		_ = b.local.Close()
	})
	return err
}

func encodeEnvelope(ev protocol.Event, excludeID string) ([]byte, error) {
	raw, err := protocol.Encode(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return json.Marshal(envelope{Exclude: excludeID, Event: raw})
}

func decodeEnvelope(data []byte) (protocol.Event, string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("decode envelope: %w", err)
	}
	ev, err := protocol.DecodeEvent(env.Event)
	if err != nil {
		return nil, "", err
	}
	return ev, env.Exclude, nil
}
