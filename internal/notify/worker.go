package notify

import (
    "bytes"
    "context"
    "fmt"
    "log"
    "net/http"
    "os"
    "strconv"
    "time"

    "fleetsolve/internal/metrics"
    "fleetsolve/internal/store"
)

// Worker drains the delivery queue in the background: one POST per due
// delivery, exponential backoff on failure, dead-letter after MaxAttempts.
type Worker struct {
    Store       store.Store
    HTTP        *http.Client
    Stop        chan struct{}
    MaxAttempts int
}

func NewWorker(s store.Store) *Worker {
    max := 8
    if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { max = n }
    }
    return &Worker{Store: s, HTTP: &http.Client{Timeout: 10 * time.Second}, Stop: make(chan struct{}), MaxAttempts: max}
}

func (w *Worker) Start() {
    go func() {
        ticker := time.NewTicker(1 * time.Second)
        defer ticker.Stop()
        for {
            select {
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce()
            }
        }
    }()
}

func (w *Worker) processOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
    if err != nil {
        log.Printf("webhooks: fetch due: %v", err)
        return
    }
    for _, it := range items {
        w.deliver(ctx, it)
    }
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err != nil {
        // a malformed URL never becomes deliverable
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
        metrics.WebhookDeliveries.WithLabelValues(it.EventType, "dead").Inc()
        return
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Event-Type", it.EventType)
    if it.Secret != "" {
        req.Header.Set("X-Signature", Sign(it.Secret, it.Payload))
    }
    start := time.Now()
    resp, err := w.HTTP.Do(req)
    latency := int(time.Since(start).Milliseconds())
    code := 0
    success := false
    if err == nil && resp != nil {
        code = resp.StatusCode
        if resp.Body != nil { _ = resp.Body.Close() }
        if code >= 200 && code < 300 { success = true }
    }
    if success {
        _ = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
        metrics.WebhookDeliveries.WithLabelValues(it.EventType, "delivered").Inc()
        metrics.WebhookLatency.WithLabelValues(it.EventType, "delivered").Observe(float64(latency))
        return
    }
    lastErr := fmt.Sprintf("http %d", code)
    if err != nil { lastErr = err.Error() }
    if it.Attempts+1 >= w.MaxAttempts {
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
        metrics.WebhookDeliveries.WithLabelValues(it.EventType, "dead").Inc()
        log.Printf("webhooks: delivery %s dead after %d attempts: %s", it.ID, it.Attempts+1, lastErr)
        return
    }
    next := time.Now().Add(nextBackoff(it.Attempts))
    _ = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
    metrics.WebhookDeliveries.WithLabelValues(it.EventType, "retry").Inc()
}

// nextBackoff doubles per attempt (1s, 2s, 4s, ...) capped at an hour.
func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 12 { attempts = 12 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
