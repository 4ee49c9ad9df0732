package memory

import (
	"context"
	"sync"

	"quiz-arena/internal/domain"
)

const subscriberBuffer = 64

// Broker is an in-process pub/sub of sealed events keyed by topic. It backs the
// websocket transport.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.Envelope]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan domain.Envelope]struct{}),
	}
}

// Subscribe returns a channel receiving events for topic. The caller must invoke
// the returned cancel function to avoid leaks; cancel closes the channel.
func (b *Broker) Subscribe(topic string) (<-chan domain.Envelope, func()) {
	ch := make(chan domain.Envelope, subscriberBuffer)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan domain.Envelope]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], ch)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish implements app.Publisher.
func (b *Broker) Publish(_ context.Context, topic string, ev domain.Event) error {
	env, err := domain.Seal(topic, ev)
	if err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- env:
		default:
			// A full buffer means a slow client: drop its oldest event so it keeps up with the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- env:
			default:
			}
		}
	}
	return nil
}

// Subscribers reports how many channels listen on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
