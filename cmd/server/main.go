package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nivkeidan/hmochat"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "DEBUG" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	cfg := hmochat.DefaultConfig()
	if *configPath != "" {
		loaded, err := hmochat.LoadConfig(*configPath)
		if err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	// KB construction may embed the whole corpus on a cold cache.
	buildCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	engine, err := hmochat.New(buildCtx, cfg)
	cancel()
	if err != nil {
		slog.Error("building engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	slog.Info("engine ready",
		"kb_fingerprint", engine.KBFingerprint(),
		"kb_chunks", engine.KBSize(),
	)

	mux := http.NewServeMux()
	h := newHandler(engine)
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("GET /health", h.handleHealth)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           logMiddleware(recoveryMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}
