package api

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"

    "fleetsolve/internal/metrics"
)

// eventsChannel is the Redis Pub/Sub channel all instances share.
const eventsChannel = "fleetsolve.events"

// RedisBroker implements EventBroker over Redis Pub/Sub so events reach
// subscribers on every instance, not just the one that solved.
type RedisBroker struct {
    rdb  *redis.Client
    mu   sync.Mutex
    subs map[chan Event]*redis.PubSub
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
    return &RedisBroker{rdb: rdb, subs: map[chan Event]*redis.PubSub{}}
}

func (b *RedisBroker) Subscribe() chan Event {
    ch := make(chan Event, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, eventsChannel)
    // initial consume to ensure the subscription is live
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select {
                case ch <- evt:
                default:
                    metrics.EventsDropped.Inc()
                }
            }
        }
    }()
    return ch
}

// Unsubscribe closes the underlying PubSub; the reader goroutine then
// drains out and closes ch itself.
func (b *RedisBroker) Unsubscribe(ch chan Event) {
    b.mu.Lock()
    ps := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ps != nil {
        _ = ps.Close()
    }
}

func (b *RedisBroker) Publish(evt Event) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, eventsChannel, data).Err()
}
