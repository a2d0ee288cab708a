package api

import (
    "sync"

    "fleetsolve/internal/metrics"
)

// Event is a solve lifecycle notification fanned out to SSE and
// WebSocket subscribers.
type Event struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// EventBroker fans solve events out to live subscribers. Publishing never
// blocks; events to slow subscribers are dropped and counted.
type EventBroker interface {
    Subscribe() chan Event
    Unsubscribe(chan Event)
    Publish(Event)
}

// Broker is the in-process EventBroker used when Redis is not configured.
type Broker struct {
    mu   sync.Mutex
    subs map[chan Event]struct{}
}

func NewBroker() *Broker {
    return &Broker{subs: map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe() chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    b.subs[ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(ch chan Event) {
    b.mu.Lock()
    if _, ok := b.subs[ch]; ok {
        delete(b.subs, ch)
        close(ch)
    }
    b.mu.Unlock()
}

func (b *Broker) Publish(evt Event) {
    b.mu.Lock()
    for ch := range b.subs {
        select {
        case ch <- evt:
        default:
            metrics.EventsDropped.Inc()
        }
    }
    b.mu.Unlock()
}
