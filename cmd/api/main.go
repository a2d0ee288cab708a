package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"

    "fleetsolve/internal/api"
    "fleetsolve/internal/buildinfo"
)

func main() {
    if err := godotenv.Load(); err != nil {
        log.Println("no .env file found, relying on environment")
    }

    s, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }

    addr := os.Getenv("ADDR")
    if addr == "" {
        addr = ":8080"
    }

    srv := &http.Server{
        Addr:              addr,
        Handler:           s.Handler(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    worker := s.NewWebhookWorker()
    worker.Start()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    go func() {
        log.Printf("fleetsolve %s listening on %s", buildinfo.String(), addr)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatalf("server error: %v", err)
        }
    }()

    <-ctx.Done()
    log.Println("shutting down")
    close(worker.Stop)

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Printf("shutdown: %v", err)
    }
}
