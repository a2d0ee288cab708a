package api

import (
    "bufio"
    "fmt"
    "net"
    "net/http"
    "strconv"
    "strings"
    "time"

    "fleetsolve/internal/metrics"
)

// statusWriter captures the response status for the metrics middleware.
// It forwards Flush and Hijack so SSE and WebSocket upgrades keep working
// through the chain.
type statusWriter struct {
    http.ResponseWriter
    status int
}

func (w *statusWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
    if f, ok := w.ResponseWriter.(http.Flusher); ok {
        f.Flush()
    }
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := w.ResponseWriter.(http.Hijacker)
    if !ok {
        return nil, nil, fmt.Errorf("response writer does not support hijacking")
    }
    return h.Hijack()
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
        start := time.Now()
        next.ServeHTTP(sw, r)
        code := strconv.Itoa(sw.status)
        path := pathLabel(r.URL.Path)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
    })
}

// pathLabel bounds metric cardinality for parameterized routes.
func pathLabel(path string) string {
    if strings.HasPrefix(path, "/api/subscriptions/") {
        return "/api/subscriptions/{id}"
    }
    return path
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if s.limiter != nil && !publicPath(r.URL.Path) && !s.limiter.Allow() {
            writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "too many requests", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if len(s.apiKeys) == 0 || publicPath(r.URL.Path) {
            next.ServeHTTP(w, r)
            return
        }
        key := r.Header.Get("X-API-Key")
        if key == "" {
            if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
                key = strings.TrimPrefix(v, "Bearer ")
            }
        }
        for _, k := range s.apiKeys {
            if key == k {
                next.ServeHTTP(w, r)
                return
            }
        }
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid API key", r.URL.Path)
    })
}

// publicPath lists endpoints that stay open regardless of API key or
// rate limit settings.
func publicPath(path string) bool {
    switch path {
    case "/api/health", "/metrics", "/openapi.yaml", "/docs", "/swagger":
        return true
    }
    return false
}
