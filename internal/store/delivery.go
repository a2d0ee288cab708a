package store

// WebhookDelivery is one queued webhook POST as handed to the worker.
// Status is one of pending, retry, delivered, dead.
type WebhookDelivery struct {
    ID             string
    SubscriptionID string
    EventType      string
    URL            string
    Secret         string
    Payload        []byte
    Status         string
    Attempts       int
}
