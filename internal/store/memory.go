package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"

    "fleetsolve/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// It mirrors the Postgres semantics closely enough for tests and for
// running the service without infrastructure.
type Memory struct {
    mu          sync.Mutex
    records     []model.SolveRecord  // insertion order, oldest first
    subs        []model.Subscription // insertion order
    deliveries  map[string]*memDelivery
    deliveryIDs []string // insertion order
}

func NewMemory() *Memory {
    return &Memory{
        deliveries: map[string]*memDelivery{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics state.
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) InsertSolveRecord(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if rec.ID == "" { rec.ID = uuid.New().String() }
    rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
    m.records = append(m.records, rec)
    return rec, nil
}

// ListSolveRecords returns the most recent records first.
func (m *Memory) ListSolveRecords(ctx context.Context, limit int) ([]model.SolveRecord, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 || limit > 500 { limit = 100 }
    out := []model.SolveRecord{}
    for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
        out = append(out, m.records[i])
    }
    return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{
        ID:        uuid.New().String(),
        URL:       req.URL,
        Events:    req.Events,
        Secret:    req.Secret,
        CreatedAt: time.Now().UTC().Format(time.RFC3339),
    }
    m.subs = append(m.subs, s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs {
        for _, e := range s.Events {
            if e == eventType { out = append(out, s); break }
        }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    start := 0
    if cursor != "" {
        for i := range m.subs {
            if m.subs[i].ID == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(m.subs) { end = len(m.subs) }
    items := append([]model.Subscription(nil), m.subs[start:end]...)
    next := ""
    if end < len(m.subs) { next = m.subs[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Subscription, 0, len(m.subs))
    found := false
    for _, s := range m.subs {
        if s.ID == id { found = true; continue }
        out = append(out, s)
    }
    if !found { return ErrNotFound }
    m.subs = out
    return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{
        WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0},
        NextAttemptAt:   time.Now(),
    }
    m.deliveries[id] = d
    m.deliveryIDs = append(m.deliveryIDs, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if d == nil { continue }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.Status = "dead"
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    return nil
}
