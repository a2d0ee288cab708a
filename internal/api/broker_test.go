package api

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe()

    evt := Event{Type: "solve.completed", Data: map[string]any{"requestId": "r1"}}
    b.Publish(evt)

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["requestId"].(string) != "r1" { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(ch)
    select {
    case _, ok := <-ch:
        if ok { t.Fatal("channel should be closed after unsubscribe") }
    case <-time.After(50 * time.Millisecond):
        t.Fatal("channel should be closed after unsubscribe")
    }
}

func TestBrokerFanout(t *testing.T) {
    b := NewBroker()
    a := b.Subscribe()
    c := b.Subscribe()
    defer b.Unsubscribe(a)
    defer b.Unsubscribe(c)

    b.Publish(Event{Type: "solve.failed", Data: map[string]any{}})
    for _, ch := range []chan Event{a, c} {
        select {
        case got := <-ch:
            if got.Type != "solve.failed" { t.Fatalf("got %s", got.Type) }
        case <-time.After(200 * time.Millisecond):
            t.Fatal("subscriber did not receive event")
        }
    }
}

func TestBrokerDropsWhenSubscriberStalls(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe()
    defer b.Unsubscribe(ch)

    // never read; buffer is 8, the rest must be dropped without blocking
    done := make(chan struct{})
    go func() {
        for i := 0; i < 50; i++ {
            b.Publish(Event{Type: "solve.completed", Data: map[string]any{"i": i}})
        }
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("publish blocked on a stalled subscriber")
    }
    if n := len(ch); n != 8 {
        t.Fatalf("buffered %d events, want 8", n)
    }
}

func TestBrokerUnsubscribeTwice(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe()
    b.Unsubscribe(ch)
    b.Unsubscribe(ch) // second call must be a no-op, not a double close
}
