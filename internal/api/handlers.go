package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "net/http"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/google/uuid"

    "fleetsolve/internal/buildinfo"
    "fleetsolve/internal/maps"
    "fleetsolve/internal/model"
    "fleetsolve/internal/store"
)

// SolveHandler handles POST /api/vrp/solve. Solve failures are reported
// with HTTP 200 and success=false; only transport-level problems (bad
// JSON, validation) get non-200 statuses.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        writeProblem(w, http.StatusMethodNotAllowed, "Method not allowed", "use POST", r.URL.Path)
        return
    }
    var req model.SolveRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if details := validateSolveRequest(&req); len(details) > 0 {
        writeJSON(w, http.StatusBadRequest, map[string]any{
            "success": false,
            "error":   "input validation failed",
            "details": details,
        })
        return
    }

    p := req.Problem(s.Defaults)
    requestID := uuid.New().String()
    requestTime := time.Now().UTC().Format(time.RFC3339)
    log.Printf("api: solve %s: %d customers, %d vehicles, hint=%s objective=%s timeWindows=%v",
        requestID, len(p.Customers), len(p.Vehicles), p.Options.Algorithm, p.Options.Objective, p.Options.UseTimeWindows)

    start := time.Now()
    sol, err := s.Solver.Solve(r.Context(), p)
    solving := time.Since(start).Seconds()

    meta := map[string]any{
        "requestId":   requestID,
        "requestTime": requestTime,
        "solvingTime": solving,
        "algorithm":   p.Options.Algorithm,
    }
    rec := model.SolveRecord{
        ID:            requestID,
        CreatedAt:     requestTime,
        Customers:     len(p.Customers),
        Vehicles:      len(p.Vehicles),
        RequestedHint: p.Options.Algorithm,
        SolvingTime:   solving,
    }

    if err != nil {
        rec.Error = err.Error()
        s.recordAndNotify(r.Context(), rec, "solve.failed")
        writeJSON(w, http.StatusOK, map[string]any{
            "success":  false,
            "error":    err.Error(),
            "metadata": meta,
        })
        return
    }

    meta["objective"] = p.Options.Objective
    meta["timeWindowsEnabled"] = p.Options.UseTimeWindows
    rec.Algorithm = sol.Algorithm
    rec.Success = true
    rec.VehiclesUsed = sol.VehiclesUsed
    rec.CustomersServed = sol.CustomersServed
    rec.TotalDistance = sol.TotalDistance
    s.recordAndNotify(r.Context(), rec, "solve.completed")
    writeJSON(w, http.StatusOK, map[string]any{
        "success":  true,
        "data":     sol,
        "metadata": meta,
    })
}

// recordAndNotify persists the audit row and fans the lifecycle event out
// to live subscribers and webhook deliveries. Failures here never affect
// the solve response.
func (s *Server) recordAndNotify(ctx context.Context, rec model.SolveRecord, eventType string) {
    if _, err := s.Store.InsertSolveRecord(ctx, rec); err != nil {
        log.Printf("store: insert solve record: %v", err)
    }
    algorithm := rec.Algorithm
    if algorithm == "" {
        algorithm = rec.RequestedHint
    }
    data := map[string]any{
        "requestId":       rec.ID,
        "algorithm":       algorithm,
        "customers":       rec.Customers,
        "vehicles":        rec.Vehicles,
        "vehiclesUsed":    rec.VehiclesUsed,
        "customersServed": rec.CustomersServed,
        "solvingTime":     rec.SolvingTime,
    }
    if rec.Error != "" {
        data["error"] = rec.Error
    }
    s.Broker.Publish(Event{Type: eventType, Data: data})
    s.Pub.Emit(ctx, eventType, data)
}

// StatsHandler handles GET /api/vrp/stats.
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        writeProblem(w, http.StatusMethodNotAllowed, "Method not allowed", "use GET", r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "success":   true,
        "stats":     s.Stats.Snapshot(),
        "timestamp": time.Now().UTC().Format(time.RFC3339),
    })
}

// HistoryHandler handles GET /api/vrp/history?limit=N.
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        writeProblem(w, http.StatusMethodNotAllowed, "Method not allowed", "use GET", r.URL.Path)
        return
    }
    limit := 0
    if v := r.URL.Query().Get("limit"); v != "" {
        fmt.Sscanf(v, "%d", &limit)
    }
    items, err := s.Store.ListSolveRecords(r.Context(), limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List history failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "success": true,
        "history": items,
        "count":   len(items),
    })
}

// HealthHandler handles GET /api/health.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{
        "status":    "healthy",
        "service":   "fleetsolve",
        "version":   buildinfo.Version,
        "timestamp": time.Now().UTC().Format(time.RFC3339),
    })
}

// ConfigHandler handles GET /api/config. Secrets are masked, never echoed.
func (s *Server) ConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        writeProblem(w, http.StatusMethodNotAllowed, "Method not allowed", "use GET", r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "success": true,
        "config": map[string]any{
            "addr":               getEnv("ADDR", ":8080"),
            "maxSolvingTime":     s.Defaults.MaxSolvingTime,
            "defaultCostPerKm":   s.Defaults.CostPerKM,
            "defaultServiceTime": s.Defaults.ServiceTime,
            "geminiModel":        getEnv("GEMINI_MODEL", "gemini-pro"),
            "geminiApiKey":       mask(os.Getenv("GEMINI_API_KEY")),
            "mapsApiKey":         mask(os.Getenv("MAPS_API_KEY")),
            "databaseUrl":        mask(os.Getenv("DATABASE_URL")),
            "redisUrl":           mask(os.Getenv("REDIS_URL")),
            "rateRps":            envFloat("RATE_RPS", 0),
            "rateBurst":          envInt("RATE_BURST", 1),
            "webhookMaxAttempts": envInt("WEBHOOK_MAX_ATTEMPTS", 8),
            "llmTimeout":         envDuration("LLM_TIMEOUT", 45*time.Second).String(),
            "algorithms":         s.Solver.Chain(),
        },
    })
}

func mask(v string) string {
    if v == "" {
        return ""
    }
    return "***"
}

// SubscriptionsHandler handles POST/GET /api/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if strings.TrimSpace(req.URL) == "" || len(req.Events) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" {
            fmt.Sscanf(v, "%d", &limit)
        }
        items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        writeProblem(w, http.StatusMethodNotAllowed, "Method not allowed", "use POST or GET", r.URL.Path)
    }
}

// SubscriptionByIDHandler handles DELETE /api/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodDelete {
        writeProblem(w, http.StatusMethodNotAllowed, "Method not allowed", "use DELETE", r.URL.Path)
        return
    }
    id := strings.TrimPrefix(r.URL.Path, "/api/subscriptions/")
    if id == "" || strings.Contains(id, "/") {
        writeProblem(w, http.StatusNotFound, "Not found", "", r.URL.Path)
        return
    }
    if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
            return
        }
        writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// DirectionsHandler handles POST /api/directions, proxying the request to
// the maps provider with vehicle-type routing parameters applied.
func (s *Server) DirectionsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        writeProblem(w, http.StatusMethodNotAllowed, "Method not allowed", "use POST", r.URL.Path)
        return
    }
    var req maps.DirectionsRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.Origin == (model.Coordinate{}) || req.Destination == (model.Coordinate{}) {
        writeProblem(w, http.StatusBadRequest, "Invalid request", "origin and destination are required", r.URL.Path)
        return
    }
    if !s.Maps.Enabled() {
        writeProblem(w, http.StatusServiceUnavailable, "Maps not configured", "set MAPS_API_KEY to enable directions", r.URL.Path)
        return
    }
    data, err := s.Maps.Directions(r.Context(), req)
    if err != nil {
        s.writeMapsError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

// GeocodeHandler handles POST /api/geocode.
func (s *Server) GeocodeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        writeProblem(w, http.StatusMethodNotAllowed, "Method not allowed", "use POST", r.URL.Path)
        return
    }
    var req struct {
        Address string `json:"address"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if strings.TrimSpace(req.Address) == "" {
        writeProblem(w, http.StatusBadRequest, "Invalid request", "address is required", r.URL.Path)
        return
    }
    if !s.Maps.Enabled() {
        writeProblem(w, http.StatusServiceUnavailable, "Maps not configured", "set MAPS_API_KEY to enable geocoding", r.URL.Path)
        return
    }
    coord, err := s.Maps.Geocode(r.Context(), req.Address)
    if err != nil {
        s.writeMapsError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": coord})
}

// ReverseGeocodeHandler handles GET /api/geocode/reverse?lat=..&lng=..
func (s *Server) ReverseGeocodeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        writeProblem(w, http.StatusMethodNotAllowed, "Method not allowed", "use GET", r.URL.Path)
        return
    }
    lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
    lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
    if errLat != nil || errLng != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid request", "lat and lng query parameters are required", r.URL.Path)
        return
    }
    if !s.Maps.Enabled() {
        writeProblem(w, http.StatusServiceUnavailable, "Maps not configured", "set MAPS_API_KEY to enable geocoding", r.URL.Path)
        return
    }
    addr, err := s.Maps.ReverseGeocode(r.Context(), lat, lng)
    if err != nil {
        s.writeMapsError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]string{"address": addr}})
}

// writeMapsError maps provider failures onto the response contract:
// provider-reported statuses (ZERO_RESULTS, REQUEST_DENIED, ...) come back
// as HTTP 200 with success=false, transport failures as 502.
func (s *Server) writeMapsError(w http.ResponseWriter, r *http.Request, err error) {
    var ue *maps.UpstreamError
    if errors.As(err, &ue) {
        writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": ue.Message})
        return
    }
    log.Printf("maps: %v", err)
    writeProblem(w, http.StatusBadGateway, "Maps request failed", err.Error(), r.URL.Path)
}

// EventsStreamHandler handles GET /api/events/stream (SSE). Each solve
// lifecycle event is written as an SSE event with its kind as the event
// name and the JSON payload as data.
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
    flusher, ok := w.(http.Flusher)
    if !ok {
        writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    ch := s.Broker.Subscribe()
    defer s.Broker.Unsubscribe(ch)

    // initial comment forces headers out through buffering proxies
    fmt.Fprint(w, ": connected\n\n")
    flusher.Flush()

    heartbeat := time.NewTicker(15 * time.Second)
    defer heartbeat.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok {
                return
            }
            data, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
            flusher.Flush()
        case <-heartbeat.C:
            fmt.Fprint(w, ": ping\n\n")
            flusher.Flush()
        }
    }
}
