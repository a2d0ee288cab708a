package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "encoding/hex"
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "fleetsolve/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
    return p.db.PingContext(ctx)
}

// MigrateDir applies every .sql file in dir in lexical order. Statements
// are expected to be idempotent (CREATE TABLE IF NOT EXISTS style), so
// re-running on boot is safe.
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") { continue }
        names = append(names, e.Name())
    }
    sort.Strings(names)
    for _, name := range names {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
    }
    return nil
}

func (p *Postgres) InsertSolveRecord(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error) {
    if rec.ID == "" { rec.ID = uuid.New().String() }
    now := time.Now().UTC()
    rec.CreatedAt = now.Format(time.RFC3339)
    _, err := p.db.ExecContext(ctx, `INSERT INTO solve_records (id, created_at, customers, vehicles, algorithm, requested_hint, solving_time, success, error, vehicles_used, customers_served, total_distance)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
        rec.ID, now, rec.Customers, rec.Vehicles, nullIfEmpty(rec.Algorithm), nullIfEmpty(rec.RequestedHint), rec.SolvingTime, rec.Success, nullIfEmpty(rec.Error), rec.VehiclesUsed, rec.CustomersServed, rec.TotalDistance)
    if err != nil { return model.SolveRecord{}, err }
    return rec, nil
}

func (p *Postgres) ListSolveRecords(ctx context.Context, limit int) ([]model.SolveRecord, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, created_at, customers, vehicles, COALESCE(algorithm,''), COALESCE(requested_hint,''), solving_time, success, COALESCE(error,''), vehicles_used, customers_served, total_distance
        FROM solve_records ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.SolveRecord{}
    for rows.Next() {
        var rec model.SolveRecord
        var created time.Time
        if err := rows.Scan(&rec.ID, &created, &rec.Customers, &rec.Vehicles, &rec.Algorithm, &rec.RequestedHint, &rec.SolvingTime, &rec.Success, &rec.Error, &rec.VehiclesUsed, &rec.CustomersServed, &rec.TotalDistance); err != nil { return nil, err }
        rec.CreatedAt = created.UTC().Format(time.RFC3339)
        out = append(out, rec)
    }
    return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    now := time.Now().UTC()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, secret, events, created_at) VALUES ($1,$2,$3,$4,$5)`,
        id, req.URL, nullIfEmpty(req.Secret), ev, now)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret, CreatedAt: now.Format(time.RFC3339)}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    key, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events, created_at FROM subscriptions WHERE events @> $1::jsonb`, string(key))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        s, err := scanSubscription(rows)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events, created_at FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events, created_at FROM subscriptions ORDER BY id LIMIT $1`, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    var last string
    for rows.Next() {
        s, err := scanSubscription(rows)
        if err != nil { return nil, "", err }
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

func scanSubscription(rows *sql.Rows) (model.Subscription, error) {
    var s model.Subscription
    var ev []byte
    var created time.Time
    if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev, &created); err != nil { return s, err }
    _ = json.Unmarshal(ev, &s.Events)
    s.CreatedAt = created.UTC().Format(time.RFC3339)
    return s, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// EnqueueWebhook queues one delivery. The dedup key derived from the
// payload keeps a double-enqueued event from producing double POSTs.
func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        var payload []byte
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        d.Payload = payload
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
            id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
        id, responseCode, latencyMs)
    return err
}

// FailWebhookDelivery dead-letters a delivery that exhausted its attempts.
func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='dead', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
        id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

// computeDedupKey prefers the event id inside the payload and falls
// back to a content hash for payloads without one.
func computeDedupKey(payload []byte) string {
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
