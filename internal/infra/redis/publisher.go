package redis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"quiz-arena/internal/domain"
)

const channelPrefix = "arena:"

// Publisher relays sealed events over Redis pub/sub so every instance can push
// them to its own websocket clients.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish implements app.Publisher: PUBLISH arena:{topic} {envelope json}.
func (p *Publisher) Publish(ctx context.Context, topic string, ev domain.Event) error {
	env, err := domain.Seal(topic, ev)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channelPrefix+topic, raw).Err()
}

// Subscribe returns envelopes published on topic by any instance. The caller
// must invoke cancel, which closes the channel.
func (p *Publisher) Subscribe(topic string) (<-chan domain.Envelope, func()) {
	ctx, stop := context.WithCancel(context.Background())
	sub := p.client.Subscribe(ctx, channelPrefix+topic)
	out := make(chan domain.Envelope, 64)

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env domain.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = sub.Close()
		})
	}
	return out, cancel
}
