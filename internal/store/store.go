package store

import (
    "context"
    "errors"
    "time"

    "fleetsolve/internal/model"
)

// Store is the persistence interface used by the API server and the
// webhook worker. It keeps solve audit rows, webhook subscriptions and
// the delivery queue; solutions themselves are never persisted.
type Store interface {
    // Solve audit
    InsertSolveRecord(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error)
    ListSolveRecords(ctx context.Context, limit int) ([]model.SolveRecord, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, cursor string, limit int) (items []model.Subscription, nextCursor string, err error)
    DeleteSubscription(ctx context.Context, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

var ErrNotFound = errors.New("not found")
