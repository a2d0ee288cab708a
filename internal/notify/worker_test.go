package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fleetsolve/internal/model"
	"fleetsolve/internal/store"
)

func subscriptionReq(url, event string) model.SubscriptionRequest {
	return model.SubscriptionRequest{URL: url, Events: []string{event}, Secret: "s"}
}

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}

type markRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}

type failRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerDeliversSignedPayload(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	body := []byte(`{"id":"evt1","type":"solve.completed"}`)
	if _, err := rs.Memory.EnqueueWebhook(context.Background(), "sub1", "solve.completed", srv.URL, "secret", body); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w.processOnce()

	if gotType != "solve.completed" {
		t.Fatalf("missing event type header, got %q", gotType)
	}
	if !Verify("secret", gotBody, gotSig) {
		t.Fatalf("signature did not verify: sig=%q", gotSig)
	}
	if len(rs.marks) != 1 || !rs.marks[0].Success || rs.marks[0].Code != 200 {
		t.Fatalf("expected success mark, got %+v", rs.marks)
	}
}

func TestWorkerSetsEventTypeWithoutSecret(t *testing.T) {
	var gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		w.WriteHeader(204)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "", "solve.failed", srv.URL, "", []byte(`{"id":"evt2"}`))

	w.processOnce()

	if gotType != "solve.failed" {
		t.Fatalf("event type header should be set without a secret, got %q", gotType)
	}
	if gotSig != "" {
		t.Fatalf("no signature expected without a secret, got %q", gotSig)
	}
}

func TestWorkerSchedulesRetryOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "", "solve.completed", srv.URL, "", []byte(`{"id":"evt3"}`))

	w.processOnce()

	if len(rs.marks) != 1 || rs.marks[0].Success {
		t.Fatalf("expected one retry mark, got %+v", rs.marks)
	}
	if rs.marks[0].LastErr != "http 500" {
		t.Fatalf("expected http 500 error text, got %q", rs.marks[0].LastErr)
	}
	// rescheduled a second out, so not due again yet
	due, _ := rs.Memory.FetchDueWebhookDeliveries(context.Background(), 10)
	if len(due) != 0 {
		t.Fatalf("retry should be scheduled in the future, got %+v", due)
	}
}

func TestWorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "", "solve.completed", srv.URL, "", []byte(`{"id":"evt4"}`))

	w.processOnce()

	if len(rs.fails) != 1 {
		t.Fatalf("expected dead letter, got marks=%+v fails=%+v", rs.marks, rs.fails)
	}
	due, _ := rs.Memory.FetchDueWebhookDeliveries(context.Background(), 10)
	if len(due) != 0 {
		t.Fatalf("dead delivery must not come due again, got %+v", due)
	}
}

func TestNextBackoff(t *testing.T) {
	if d := nextBackoff(0); d != 1*time.Second {
		t.Fatalf("attempt 0: want 1s, got %v", d)
	}
	if d := nextBackoff(3); d != 8*time.Second {
		t.Fatalf("attempt 3: want 8s, got %v", d)
	}
	if d := nextBackoff(30); d != time.Hour {
		t.Fatalf("attempt 30: want 1h cap, got %v", d)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"id":"evt5"}`)
	sig := Sign("topsecret", body)
	if !Verify("topsecret", body, sig) {
		t.Fatalf("signature should verify")
	}
	if Verify("topsecret", []byte(`{"id":"evt6"}`), sig) {
		t.Fatalf("tampered body should not verify")
	}
	if Verify("othersecret", body, sig) {
		t.Fatalf("wrong secret should not verify")
	}
	if Verify("topsecret", body, "not-hex") {
		t.Fatalf("malformed hex should not verify")
	}
}

func TestPublisherEnqueuesPerMatchingSubscription(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	_, _ = mem.CreateSubscription(ctx, subscriptionReq("https://a.test/hook", "solve.completed"))
	_, _ = mem.CreateSubscription(ctx, subscriptionReq("https://b.test/hook", "solve.completed"))
	_, _ = mem.CreateSubscription(ctx, subscriptionReq("https://c.test/hook", "solve.failed"))

	NewPublisher(mem).Emit(ctx, "solve.completed", map[string]any{"requestId": "r1"})

	due, err := mem.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 queued deliveries, got %d", len(due))
	}
	for _, d := range due {
		if d.EventType != "solve.completed" {
			t.Fatalf("wrong event type queued: %+v", d)
		}
	}
}
