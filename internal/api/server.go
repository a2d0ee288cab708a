// Package api implements the HTTP surface of the fleetsolve service.
package api

import (
    "log"
    "net/http"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    redis "github.com/redis/go-redis/v9"
    "golang.org/x/time/rate"

    "fleetsolve/internal/llm"
    "fleetsolve/internal/maps"
    "fleetsolve/internal/metrics"
    "fleetsolve/internal/model"
    "fleetsolve/internal/notify"
    "fleetsolve/internal/solver"
    "fleetsolve/internal/stats"
    "fleetsolve/internal/store"
)

type Server struct {
    Store    store.Store
    Stats    *stats.Counters
    Solver   *solver.Orchestrator
    Pub      *notify.Publisher
    Broker   EventBroker
    Maps     *maps.Client
    Defaults model.Defaults

    apiKeys []string
    limiter *rate.Limiter
}

// NewServer wires the service from the environment. With DATABASE_URL
// unset the audit store is in-memory; with REDIS_URL unset events fan out
// in-process only; with GEMINI_API_KEY unset the external solving strategy
// is skipped.
func NewServer() (*Server, error) {
    var st store.Store
    if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn == "" {
        st = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        if os.Getenv("DB_MIGRATE") != "false" {
            if err := sp.MigrateDir("db/migrations"); err != nil {
                log.Printf("store: migrate: %v", err)
            }
        }
        st = sp
    }

    var rdb *redis.Client
    if url := os.Getenv("REDIS_URL"); url != "" {
        if opt, err := redis.ParseURL(url); err == nil {
            rdb = redis.NewClient(opt)
        } else {
            log.Printf("api: REDIS_URL unusable, falling back to in-memory broker: %v", err)
        }
    }
    var broker EventBroker
    if rdb != nil {
        broker = NewRedisBroker(rdb)
    } else {
        broker = NewBroker()
    }

    var provider llm.Provider
    if key := os.Getenv("GEMINI_API_KEY"); key != "" {
        provider = llm.NewGemini(llm.GeminiConfig{
            APIKey:  key,
            Model:   os.Getenv("GEMINI_MODEL"),
            BaseURL: os.Getenv("GEMINI_BASE_URL"),
            Timeout: envDuration("LLM_TIMEOUT", 45*time.Second),
            RPS:     envFloat("LLM_RATE_RPS", 1),
        })
    }

    defaults := model.StandardDefaults()
    defaults.MaxSolvingTime = envInt("MAX_SOLVING_TIME", defaults.MaxSolvingTime)
    defaults.CostPerKM = envFloat("DEFAULT_COST_PER_KM", defaults.CostPerKM)
    defaults.ServiceTime = envInt("DEFAULT_SERVICE_TIME", defaults.ServiceTime)

    var keys []string
    for _, k := range strings.Split(os.Getenv("API_KEYS"), ",") {
        if k = strings.TrimSpace(k); k != "" {
            keys = append(keys, k)
        }
    }
    var limiter *rate.Limiter
    if rps := envFloat("RATE_RPS", 0); rps > 0 {
        burst := envInt("RATE_BURST", 1)
        if burst < 1 {
            burst = 1
        }
        limiter = rate.NewLimiter(rate.Limit(rps), burst)
    }

    counters := stats.New()
    metrics.RegisterDefault()

    return &Server{
        Store:  st,
        Stats:  counters,
        Solver: solver.NewOrchestrator(provider, counters),
        Pub:    notify.NewPublisher(st),
        Broker: broker,
        Maps: maps.New(maps.Config{
            APIKey:   os.Getenv("MAPS_API_KEY"),
            BaseURL:  os.Getenv("MAPS_BASE_URL"),
            Cache:    rdb,
            CacheTTL: envDuration("MAPS_CACHE_TTL", 10*time.Minute),
        }),
        Defaults: defaults,
        apiKeys:  keys,
        limiter:  limiter,
    }, nil
}

// NewWebhookWorker creates the background delivery worker for this
// server's store. The caller owns its lifecycle.
func (s *Server) NewWebhookWorker() *notify.Worker {
    return notify.NewWorker(s.Store)
}

// Handler builds the full route table wrapped in the middleware chain
// (metrics, then rate limit, then auth).
func (s *Server) Handler() http.Handler {
    mux := http.NewServeMux()

    mux.HandleFunc("/api/vrp/solve", s.SolveHandler)
    mux.HandleFunc("/api/vrp/stats", s.StatsHandler)
    mux.HandleFunc("/api/vrp/history", s.HistoryHandler)
    mux.HandleFunc("/api/health", s.HealthHandler)
    mux.HandleFunc("/api/config", s.ConfigHandler)

    mux.HandleFunc("/api/directions", s.DirectionsHandler)
    mux.HandleFunc("/api/geocode", s.GeocodeHandler)
    mux.HandleFunc("/api/geocode/reverse", s.ReverseGeocodeHandler)

    mux.HandleFunc("/api/subscriptions", s.SubscriptionsHandler)
    mux.HandleFunc("/api/subscriptions/", s.SubscriptionByIDHandler)

    mux.HandleFunc("/api/events/stream", s.EventsStreamHandler)
    mux.HandleFunc("/ws/events", s.EventsWSHandler)

    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("/docs", s.DocsHandler)
    mux.HandleFunc("/swagger", s.SwaggerHandler)
    mux.HandleFunc("/debug/config", s.DebugConfigHandler)

    return s.metricsMiddleware(s.rateLimitMiddleware(s.authMiddleware(mux)))
}

// getEnv returns the trimmed value of key, or def when unset or blank.
func getEnv(key, def string) string {
    if v := strings.TrimSpace(os.Getenv(key)); v != "" {
        return v
    }
    return def
}

func envInt(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        if n, err := strconv.Atoi(v); err == nil {
            return n
        }
    }
    return def
}

func envFloat(key string, def float64) float64 {
    if v := os.Getenv(key); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil {
            return f
        }
    }
    return def
}

func envDuration(key string, def time.Duration) time.Duration {
    if v := os.Getenv(key); v != "" {
        if d, err := time.ParseDuration(v); err == nil {
            return d
        }
    }
    return def
}
