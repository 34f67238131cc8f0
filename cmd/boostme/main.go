// Entry point for the boostme notification engine — chi API, scheduler,
// catalog sync, optional MCP stdio and stdio control channel.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/boostme/boostme/control"
	"github.com/boostme/boostme/dbopen"
	"github.com/boostme/boostme/engine"
	"github.com/boostme/boostme/notify"
	"github.com/boostme/boostme/observability"
	"github.com/boostme/boostme/settings"
)

func main() {
	_ = godotenv.Load()

	port := env("PORT", "8090")
	configPath := env("CONFIG", "boostme.yaml")
	logLevel := env("LOG_LEVEL", "info")
	mcpTransport := env("MCP_TRANSPORT", "")
	controlMode := env("CONTROL", "")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Stdout carries protocol frames in the stdio modes; logs go to stderr.
	logOut := os.Stdout
	if mcpTransport == "stdio" || controlMode == "stdio" {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config with env overrides.
	cfg, err := engine.LoadConfig(configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CATALOG_URL"); v != "" {
		cfg.CatalogURL = v
	}
	if v := os.Getenv("MIRROR_URL"); v != "" {
		cfg.MirrorURL = v
	}
	if v := os.Getenv("ALLOW_PRIVATE_HOSTS"); v == "1" || v == "true" {
		cfg.AllowPrivateHosts = true
	}

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	events := observability.NewEventLogger(db)

	sinks := []notify.Sink{&notify.LogSink{Logger: logger}}
	for _, wc := range cfg.Sinks {
		sink, err := notify.NewWebhookSink(wc)
		if err != nil {
			slog.Error("webhook sink", "name", wc.Name, "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, sink)
	}

	svc, err := engine.New(db, cfg,
		engine.WithLogger(logger),
		engine.WithSinks(sinks...),
		engine.WithEventLogger(events),
	)
	if err != nil {
		slog.Error("engine", "error", err)
		os.Exit(1)
	}

	// Heartbeat.
	hb := observability.NewHeartbeatWriter(db, "boostme", 15*time.Second)
	hb.Start(ctx)
	defer hb.Stop()

	// Optional MCP stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "boostme",
			Version: "1.0.0",
		}, nil)
		control.RegisterMCP(mcpSrv, svc)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// Optional stdio control channel for a supervising foreground app.
	if controlMode == "stdio" && mcpTransport != "stdio" {
		d := control.NewDispatcher(svc)
		go func() {
			if err := control.ServeStdio(ctx, d, os.Stdin, os.Stdout, logger); err != nil && ctx.Err() == nil {
				slog.Error("control stdio", "error", err)
			}
		}()
	}

	// Scheduler + sync loops.
	svc.Start(ctx)
	defer svc.Stop()

	// Router.
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.GetSettings(r.Context())
		if errors.Is(err, settings.ErrNoSettings) {
			writeJSON(w, 200, nil)
			return
		}
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, st)
	})

	r.Put("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		var st settings.Settings
		if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
			writeError(w, 400, err)
			return
		}
		if err := svc.SaveSettings(r.Context(), &st); err != nil {
			writeError(w, 400, err)
			return
		}
		writeJSON(w, 200, map[string]bool{"saved": true})
	})

	r.Post("/api/boost", func(w http.ResponseWriter, r *http.Request) {
		svc.Boost(r.Context())
		writeJSON(w, 202, map[string]bool{"boosted": true})
	})

	r.Post("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]bool{"synced": svc.SyncNow(r.Context())})
	})

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, svc.Status(r.Context()))
	})

	r.Get("/api/history", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		recs, err := svc.RecentDeliveries(r.Context(), limit)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, recs)
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
