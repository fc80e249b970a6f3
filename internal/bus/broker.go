// Package bus is the in-process Live Delivery Bus: best-effort topic fan-out to
// currently attached subscribers, with no persistence or replay.
package bus

import (
	"context"
	"log"
	"sync"
)

// Predicate decides whether one subscriber receives a payload. ctx is the
// subscription's own context, so it carries the subscriber's caller identity.
type Predicate func(ctx context.Context, payload interface{}) bool

type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 1
	}
	return &Broker{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Publish delivers payload to every matching subscriber attached right now.
// It never blocks: a subscriber whose buffer is full misses the event.
func (b *Broker) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic] {
		if sub.predicate != nil && !sub.predicate(sub.ctx, payload) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			log.Printf("Subscriber buffer full on %s, dropping event", topic)
		}
	}
}

// Subscribe attaches a new subscription to topic. It ends when ctx is done or
// Close is called, after which its channel is closed.
func (b *Broker) Subscribe(ctx context.Context, topic string, predicate Predicate) *Subscription {
	sub := &Subscription{
		broker:    b,
		topic:     topic,
		predicate: predicate,
		ctx:       ctx,
		ch:        make(chan interface{}, b.buffer),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.closeOnce.Do(func() {
			close(sub.ch)
			close(sub.done)
		})
		return sub
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*Subscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub
}

func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Shutdown closes every subscription and rejects new ones.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	b.closed = true
	var subs []*Subscription
	for _, set := range b.topics {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	log.Println("Live delivery bus shutdown complete")
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.topics[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	close(sub.ch)
}

// Subscription is one connection's view of a topic.
type Subscription struct {
	broker    *Broker
	topic     string
	predicate Predicate
	ctx       context.Context
	ch        chan interface{}
	done      chan struct{}
	closeOnce sync.Once
}

// C yields matching payloads until the subscription ends.
func (s *Subscription) C() <-chan interface{} {
	return s.ch
}

func (s *Subscription) Topic() string {
	return s.topic
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}
