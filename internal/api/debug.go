package api

import (
    "encoding/json"
    "net/http"
    "os"
    "time"

    "fleetsolve/internal/buildinfo"
)

func (s *Server) DebugConfigHandler(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "ADDR": os.Getenv("ADDR"),
            "RATE_RPS": os.Getenv("RATE_RPS"),
            "RATE_BURST": os.Getenv("RATE_BURST"),
            "WEBHOOK_MAX_ATTEMPTS": os.Getenv("WEBHOOK_MAX_ATTEMPTS"),
            "GEMINI_MODEL": os.Getenv("GEMINI_MODEL"),
            "LLM_TIMEOUT": os.Getenv("LLM_TIMEOUT"),
            "MAPS_CACHE_TTL": os.Getenv("MAPS_CACHE_TTL"),
            "HAS_DATABASE_URL": os.Getenv("DATABASE_URL") != "",
            "HAS_REDIS_URL": os.Getenv("REDIS_URL") != "",
            "HAS_GEMINI_API_KEY": os.Getenv("GEMINI_API_KEY") != "",
            "HAS_MAPS_API_KEY": os.Getenv("MAPS_API_KEY") != "",
            "HAS_API_KEYS": os.Getenv("API_KEYS") != "",
        },
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
