// Entry point for the boostme relay — registers device tokens with their
// preferences, keeps a shared quote catalog fresh and fans notifications out
// through a push provider.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/boostme/boostme/catalog"
	"github.com/boostme/boostme/dbopen"
	"github.com/boostme/boostme/notify"
	"github.com/boostme/boostme/observability"
	"github.com/boostme/boostme/relay"
	"github.com/boostme/boostme/settings"
)

func main() {
	_ = godotenv.Load()

	port := env("PORT", "8091")
	dbPath := env("DB_PATH", "db/relay.db")
	catalogURL := env("CATALOG_URL", "")
	pushURL := env("PUSH_URL", "")
	allowPrivate := os.Getenv("ALLOW_PRIVATE_HOSTS") == "1" || os.Getenv("ALLOW_PRIVATE_HOSTS") == "true"

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if pushURL == "" {
		slog.Error("PUSH_URL is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	initCtx := context.Background()
	if err := relay.ApplySchema(initCtx, db); err != nil {
		slog.Error("schema", "error", err)
		os.Exit(1)
	}
	if err := catalog.ApplySchema(initCtx, db); err != nil {
		slog.Error("schema", "error", err)
		os.Exit(1)
	}
	if err := observability.ApplySchema(initCtx, db); err != nil {
		slog.Error("schema", "error", err)
		os.Exit(1)
	}

	users := relay.NewStore(db)
	cat := catalog.NewStore(db, catalog.WithLogger(logger))

	// Catalog sync loop.
	if catalogURL != "" {
		var copts []catalog.ClientOption
		if allowPrivate {
			copts = append(copts, catalog.WithPrivateHost())
		}
		client, err := catalog.NewClient(catalogURL, copts...)
		if err != nil {
			slog.Error("catalog client", "error", err)
			os.Exit(1)
		}
		syncer := catalog.NewSyncer(cat, client, catalog.WithSyncLogger(logger))
		go func() {
			syncer.Sync(ctx)
			ticker := time.NewTicker(12 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					syncer.Sync(ctx)
				}
			}
		}()
	}

	// Push client + worker.
	var popts []notify.PushOption
	if key := os.Getenv("PUSH_API_KEY"); key != "" {
		popts = append(popts, notify.WithPushAPIKey(key))
	}
	if allowPrivate {
		popts = append(popts, notify.WithPrivatePushHost())
	}
	push, err := notify.NewPushClient(pushURL, popts...)
	if err != nil {
		slog.Error("push client", "error", err)
		os.Exit(1)
	}
	worker := relay.NewWorker(users, cat, push, relay.WorkerConfig{}, relay.WithWorkerLogger(logger))
	go worker.Run(ctx)

	// Heartbeat.
	hb := observability.NewHeartbeatWriter(db, "boostme-relay", 15*time.Second)
	hb.Start(ctx)
	defer hb.Stop()

	// Router. Serves the settings-mirror contract the device engine speaks.
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/settings", func(w http.ResponseWriter, r *http.Request) {
		var st settings.Settings
		if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
			writeError(w, 400, err)
			return
		}
		if st.PushToken == "" {
			writeJSON(w, 400, map[string]string{"error": "pushToken is required"})
			return
		}
		if err := users.Upsert(r.Context(), st.PushToken, &st); err != nil {
			writeError(w, 400, err)
			return
		}
		writeJSON(w, 200, map[string]bool{"saved": true})
	})

	r.Get("/settings", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeJSON(w, 400, map[string]string{"error": "token is required"})
			return
		}
		u, err := users.Get(r.Context(), token)
		if errors.Is(err, relay.ErrNotFound) {
			writeJSON(w, 200, nil)
			return
		}
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, u.Settings)
	})

	r.Delete("/settings", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		err := users.Delete(r.Context(), token)
		if errors.Is(err, relay.ErrNotFound) {
			writeJSON(w, 404, map[string]string{"error": "unknown token"})
			return
		}
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, map[string]bool{"deleted": true})
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("relay starting", "port", port)
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
	slog.Info("relay stopped")
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
