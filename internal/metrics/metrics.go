package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "fleetsolve_http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "fleetsolve_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // Solves counts solve attempts by winning/failing strategy and outcome
    Solves = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "fleetsolve_solves_total", Help: "Solve attempts by strategy and outcome."},
        []string{"algorithm", "outcome"},
    )
    // SolveDuration records end-to-end solve durations in seconds
    SolveDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "fleetsolve_solve_duration_seconds", Help: "Solve duration in seconds.", Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60}},
        []string{"algorithm"},
    )
    // ExternalSolverCalls counts generative-solver round trips by outcome
    ExternalSolverCalls = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "fleetsolve_external_solver_calls_total", Help: "External solver calls by outcome."},
        []string{"outcome"},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "fleetsolve_webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "fleetsolve_webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )

    // EventsDropped counts events discarded because a subscriber was slow
    EventsDropped = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "fleetsolve_events_dropped_total", Help: "Events dropped on full subscriber buffers."},
    )
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
    regOnce.Do(func() {
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(Solves)
        Registry.MustRegister(SolveDuration)
        Registry.MustRegister(ExternalSolverCalls)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        Registry.MustRegister(EventsDropped)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
