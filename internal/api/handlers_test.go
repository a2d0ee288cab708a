package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "net/url"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"
)

// clearEnv pins every wiring knob to "unset" so tests get the in-memory
// store, no Redis, no external solver and no auth unless they opt in.
func clearEnv(t *testing.T) {
    t.Helper()
    for _, k := range []string{
        "DATABASE_URL", "REDIS_URL", "GEMINI_API_KEY", "API_KEYS",
        "RATE_RPS", "RATE_BURST", "MAPS_API_KEY", "MAPS_BASE_URL",
        "MAX_SOLVING_TIME", "DEFAULT_COST_PER_KM", "DEFAULT_SERVICE_TIME",
    } {
        t.Setenv(k, "")
    }
}

func newTestServer(t *testing.T) *Server {
    t.Helper()
    clearEnv(t)
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

func validSolveBody() []byte {
    return []byte(`{
        "depot": {"lat": 41.0082, "lng": 28.9784},
        "customers": [
            {"id": "C1", "name": "Kadikoy", "coordinate": {"lat": 40.9905, "lng": 29.0250}, "demand": 3},
            {"id": "C2", "name": "Besiktas", "coordinate": {"lat": 41.0430, "lng": 29.0046}, "demand": 2}
        ],
        "vehicles": [
            {"id": "V1", "name": "Truck 1", "type": "truck", "capacity": 10}
        ]
    }`)
}

type solveEnvelope struct {
    Success  bool           `json:"success"`
    Data     map[string]any `json:"data"`
    Error    string         `json:"error"`
    Details  []string       `json:"details"`
    Metadata map[string]any `json:"metadata"`
}

func TestSolveSuccessEnvelope(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/vrp/solve", bytes.NewReader(validSolveBody()))
    req.Header.Set("Content-Type", "application/json")
    s.SolveHandler(rr, req)
    if rr.Code != 200 { t.Fatalf("solve: got %d: %s", rr.Code, rr.Body.String()) }

    var resp solveEnvelope
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if !resp.Success { t.Fatalf("expected success, got error %q", resp.Error) }
    if got := resp.Data["algorithm"]; got != "Simple Multi-Vehicle" {
        t.Fatalf("algorithm: got %v", got)
    }
    if n := resp.Data["customersServed"].(float64); n != 2 {
        t.Fatalf("customersServed: got %v", n)
    }
    if id, _ := resp.Metadata["requestId"].(string); id == "" {
        t.Fatal("metadata.requestId missing")
    }
    if got := resp.Metadata["algorithm"]; got != "constraint" {
        t.Fatalf("metadata.algorithm: got %v (default hint should normalize to constraint)", got)
    }
    if got := resp.Metadata["objective"]; got != "balanced" {
        t.Fatalf("metadata.objective: got %v", got)
    }
    if got := resp.Metadata["timeWindowsEnabled"]; got != false {
        t.Fatalf("metadata.timeWindowsEnabled: got %v", got)
    }
    if _, ok := resp.Metadata["solvingTime"].(float64); !ok {
        t.Fatal("metadata.solvingTime missing")
    }
}

func TestSolveValidationFailure(t *testing.T) {
    s := newTestServer(t)
    body := []byte(`{"customers": [], "vehicles": []}`)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/vrp/solve", bytes.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    s.SolveHandler(rr, req)
    if rr.Code != http.StatusBadRequest { t.Fatalf("got %d, want 400", rr.Code) }

    var resp solveEnvelope
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if resp.Success { t.Fatal("expected success=false") }
    if resp.Error != "input validation failed" { t.Fatalf("error: got %q", resp.Error) }
    want := map[string]bool{
        "Depot coordinates are required":  false,
        "At least one customer is required": false,
        "At least one vehicle is required":  false,
    }
    for _, d := range resp.Details {
        if _, ok := want[d]; ok { want[d] = true }
    }
    for msg, seen := range want {
        if !seen { t.Fatalf("missing detail %q in %v", msg, resp.Details) }
    }
}

func TestSolveMalformedJSON(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/vrp/solve", strings.NewReader(`{nope`))
    s.SolveHandler(rr, req)
    if rr.Code != http.StatusBadRequest { t.Fatalf("got %d, want 400", rr.Code) }
    var p Problem
    if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil { t.Fatalf("decode: %v", err) }
    if p.Title != "Invalid JSON" { t.Fatalf("title: got %q", p.Title) }
}

func TestSolveMethodNotAllowed(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.SolveHandler(rr, httptest.NewRequest(http.MethodGet, "/api/vrp/solve", nil))
    if rr.Code != http.StatusMethodNotAllowed { t.Fatalf("got %d, want 405", rr.Code) }
}

func TestHistoryAfterSolve(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/vrp/solve", bytes.NewReader(validSolveBody()))
    s.SolveHandler(rr, req)
    if rr.Code != 200 { t.Fatalf("solve: %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.HistoryHandler(rr, httptest.NewRequest(http.MethodGet, "/api/vrp/history?limit=5", nil))
    if rr.Code != 200 { t.Fatalf("history: %d", rr.Code) }
    var resp struct {
        Success bool             `json:"success"`
        History []map[string]any `json:"history"`
        Count   int              `json:"count"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if !resp.Success || resp.Count < 1 || len(resp.History) != resp.Count {
        t.Fatalf("bad history envelope: %+v", resp)
    }
    rec := resp.History[0]
    if rec["success"] != true { t.Fatalf("record not successful: %+v", rec) }
    if rec["algorithm"] != "Simple Multi-Vehicle" { t.Fatalf("record algorithm: %v", rec["algorithm"]) }
    if rec["customers"].(float64) != 2 { t.Fatalf("record customers: %v", rec["customers"]) }
}

func TestStatsAfterSolve(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/api/vrp/solve", bytes.NewReader(validSolveBody())))
    if rr.Code != 200 { t.Fatalf("solve: %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.StatsHandler(rr, httptest.NewRequest(http.MethodGet, "/api/vrp/stats", nil))
    if rr.Code != 200 { t.Fatalf("stats: %d", rr.Code) }
    var resp struct {
        Success   bool           `json:"success"`
        Stats     map[string]any `json:"stats"`
        Timestamp string         `json:"timestamp"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if !resp.Success || resp.Timestamp == "" { t.Fatalf("bad stats envelope: %+v", resp) }
    if n := resp.Stats["total_requests"].(float64); n != 1 { t.Fatalf("total_requests: %v", n) }
    if n := resp.Stats["successful_solves"].(float64); n != 1 { t.Fatalf("successful_solves: %v", n) }
    if _, ok := resp.Stats["average_solving_time"]; !ok { t.Fatal("average_solving_time missing") }
}

func TestHealth(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
    if rr.Code != 200 { t.Fatalf("health: %d", rr.Code) }
    var resp map[string]any
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if resp["status"] != "healthy" || resp["service"] != "fleetsolve" {
        t.Fatalf("bad health body: %+v", resp)
    }
}

func TestConfigMasksSecrets(t *testing.T) {
    clearEnv(t)
    t.Setenv("GEMINI_API_KEY", "sek-123")
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }

    rr := httptest.NewRecorder()
    s.ConfigHandler(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))
    if rr.Code != 200 { t.Fatalf("config: %d", rr.Code) }
    var resp struct {
        Success bool           `json:"success"`
        Config  map[string]any `json:"config"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if resp.Config["geminiApiKey"] != "***" {
        t.Fatalf("geminiApiKey not masked: %v", resp.Config["geminiApiKey"])
    }
    if resp.Config["mapsApiKey"] != "" {
        t.Fatalf("unset mapsApiKey should be empty, got %v", resp.Config["mapsApiKey"])
    }
    chain, _ := resp.Config["algorithms"].([]any)
    if len(chain) != 3 || chain[0] != "greedy" || chain[1] != "external" || chain[2] != "constraint" {
        t.Fatalf("algorithms: %v", resp.Config["algorithms"])
    }
}

func TestSubscriptionsCRUD(t *testing.T) {
    s := newTestServer(t)
    h := s.Handler()

    body := []byte(`{"url":"https://example.invalid/hook","events":["solve.completed"],"secret":"shh"}`)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/subscriptions", bytes.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    h.ServeHTTP(rr, req)
    if rr.Code != http.StatusCreated { t.Fatalf("create: %d: %s", rr.Code, rr.Body.String()) }
    var sub struct{ ID string `json:"id"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil || sub.ID == "" {
        t.Fatalf("bad subscription body: %s", rr.Body.String())
    }

    rr = httptest.NewRecorder()
    h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/subscriptions?limit=10", nil))
    if rr.Code != 200 { t.Fatalf("list: %d", rr.Code) }
    var list struct{ Items []map[string]any `json:"items"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil { t.Fatalf("decode: %v", err) }
    if len(list.Items) != 1 { t.Fatalf("items: %d", len(list.Items)) }

    rr = httptest.NewRecorder()
    h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/subscriptions/"+sub.ID, nil))
    if rr.Code != http.StatusNoContent { t.Fatalf("delete: %d", rr.Code) }

    rr = httptest.NewRecorder()
    h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/subscriptions/"+sub.ID, nil))
    if rr.Code != http.StatusNotFound { t.Fatalf("delete twice: %d", rr.Code) }
}

func TestSubscriptionsRejectsMissingFields(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/subscriptions", strings.NewReader(`{"url":""}`))
    s.SubscriptionsHandler(rr, req)
    if rr.Code != http.StatusBadRequest { t.Fatalf("got %d, want 400", rr.Code) }
}

func TestAuthMiddleware(t *testing.T) {
    clearEnv(t)
    t.Setenv("API_KEYS", "k1, k2")
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }
    h := s.Handler()

    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vrp/stats", nil))
    if rr.Code != http.StatusUnauthorized { t.Fatalf("no key: got %d, want 401", rr.Code) }

    rr = httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/api/vrp/stats", nil)
    req.Header.Set("X-API-Key", "k2")
    h.ServeHTTP(rr, req)
    if rr.Code != 200 { t.Fatalf("with key: got %d", rr.Code) }

    rr = httptest.NewRecorder()
    req = httptest.NewRequest(http.MethodGet, "/api/vrp/stats", nil)
    req.Header.Set("Authorization", "Bearer k1")
    h.ServeHTTP(rr, req)
    if rr.Code != 200 { t.Fatalf("bearer: got %d", rr.Code) }

    // health stays public
    rr = httptest.NewRecorder()
    h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
}

func TestRateLimitMiddleware(t *testing.T) {
    clearEnv(t)
    t.Setenv("RATE_RPS", "1")
    t.Setenv("RATE_BURST", "1")
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }
    h := s.Handler()

    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vrp/stats", nil))
    if rr.Code != 200 { t.Fatalf("first: got %d", rr.Code) }

    rr = httptest.NewRecorder()
    h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vrp/stats", nil))
    if rr.Code != http.StatusTooManyRequests { t.Fatalf("second: got %d, want 429", rr.Code) }

    // public endpoints are exempt
    rr = httptest.NewRecorder()
    h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
}

func TestDirectionsProxy(t *testing.T) {
    var gotQuery url.Values
    upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        gotQuery = r.URL.Query()
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write([]byte(`{"status":"OK","routes":[{"summary":"E5"}]}`))
    }))
    defer upstream.Close()

    clearEnv(t)
    t.Setenv("MAPS_API_KEY", "mk")
    t.Setenv("MAPS_BASE_URL", upstream.URL)
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }

    body := []byte(`{"origin":{"lat":41,"lng":29},"destination":{"lat":40.99,"lng":29.03},"vehicleType":"truck"}`)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/directions", bytes.NewReader(body))
    s.DirectionsHandler(rr, req)
    if rr.Code != 200 { t.Fatalf("directions: %d: %s", rr.Code, rr.Body.String()) }

    var resp struct {
        Success bool           `json:"success"`
        Data    map[string]any `json:"data"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if !resp.Success || resp.Data["status"] != "OK" { t.Fatalf("bad envelope: %s", rr.Body.String()) }
    if gotQuery.Get("vehicleType") != "TRUCK" {
        t.Fatalf("vehicleType not applied upstream: %v", gotQuery)
    }
}

func TestDirectionsWithoutKey(t *testing.T) {
    s := newTestServer(t)
    body := []byte(`{"origin":{"lat":41,"lng":29},"destination":{"lat":40.99,"lng":29.03}}`)
    rr := httptest.NewRecorder()
    s.DirectionsHandler(rr, httptest.NewRequest(http.MethodPost, "/api/directions", bytes.NewReader(body)))
    if rr.Code != http.StatusServiceUnavailable { t.Fatalf("got %d, want 503", rr.Code) }
}

func TestDirectionsRequiresEndpoints(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.DirectionsHandler(rr, httptest.NewRequest(http.MethodPost, "/api/directions", strings.NewReader(`{"origin":{"lat":41,"lng":29}}`)))
    if rr.Code != http.StatusBadRequest { t.Fatalf("got %d, want 400", rr.Code) }
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
    hdr  http.Header
    buf  bytes.Buffer
    code int
}

func (r *sseRecorder) Header() http.Header { if r.hdr == nil { r.hdr = http.Header{} }; return r.hdr }
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *sseRecorder) Flush() {}

func TestEventsStreamSSE(t *testing.T) {
    s := newTestServer(t)

    sseReq := httptest.NewRequest(http.MethodGet, "/api/events/stream", nil)
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    sseReq = sseReq.WithContext(ctx)

    rec := &sseRecorder{}
    done := make(chan struct{})
    go func() {
        s.EventsStreamHandler(rec, sseReq)
        close(done)
    }()

    // give the handler time to subscribe before publishing
    time.Sleep(50 * time.Millisecond)
    s.Broker.Publish(Event{Type: "solve.completed", Data: map[string]any{"requestId": "sse-1"}})

    deadline := time.Now().Add(500 * time.Millisecond)
    for time.Now().Before(deadline) {
        if bytes.Contains(rec.buf.Bytes(), []byte("event: solve.completed")) {
            break
        }
        time.Sleep(10 * time.Millisecond)
    }
    if !bytes.Contains(rec.buf.Bytes(), []byte("event: solve.completed")) {
        t.Fatalf("SSE did not contain expected event. Body: %s", rec.buf.String())
    }
    if !bytes.Contains(rec.buf.Bytes(), []byte(`"requestId":"sse-1"`)) {
        t.Fatalf("SSE payload missing requestId. Body: %s", rec.buf.String())
    }
    cancel()
    select {
    case <-done:
    case <-time.After(200 * time.Millisecond):
        t.Fatal("handler did not exit after cancel")
    }
}

func TestEventsWebSocket(t *testing.T) {
    s := newTestServer(t)
    ts := httptest.NewServer(s.Handler())
    defer ts.Close()

    wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
    conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
    if err != nil { t.Fatalf("dial: %v", err) }
    defer conn.Close()
    _ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

    if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil { t.Fatalf("init: %v", err) }
    var msg wsMessage
    if err := conn.ReadJSON(&msg); err != nil { t.Fatalf("read ack: %v", err) }
    if msg.Type != "connection_ack" { t.Fatalf("got %q, want connection_ack", msg.Type) }

    sub := wsMessage{Type: "subscribe", ID: "1", Payload: []byte(`{"events":["solve.completed"]}`)}
    if err := conn.WriteJSON(sub); err != nil { t.Fatalf("subscribe: %v", err) }

    // the subscribe races the publish, so publish until the event lands
    stop := make(chan struct{})
    go func() {
        ticker := time.NewTicker(50 * time.Millisecond)
        defer ticker.Stop()
        for {
            select {
            case <-stop:
                return
            case <-ticker.C:
                s.Broker.Publish(Event{Type: "solve.completed", Data: map[string]any{"requestId": "ws-1"}})
                s.Broker.Publish(Event{Type: "solve.failed", Data: map[string]any{"requestId": "ws-2"}})
            }
        }
    }()
    defer close(stop)

    for {
        if err := conn.ReadJSON(&msg); err != nil { t.Fatalf("read next: %v", err) }
        if msg.Type == "next" { break }
    }
    if msg.ID != "1" { t.Fatalf("next id: %q", msg.ID) }
    var evt Event
    if err := json.Unmarshal(msg.Payload, &evt); err != nil { t.Fatalf("payload: %v", err) }
    if evt.Type != "solve.completed" {
        t.Fatalf("filter let through %q", evt.Type)
    }
}
