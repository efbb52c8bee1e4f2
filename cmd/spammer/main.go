package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/config"
)

func newRouter(spammer *Spammer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
		var req SpamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.Rate <= 0 {
			req.Rate = 10
		}
		duration, err := time.ParseDuration(req.Duration)
		if err != nil {
			http.Error(w, "Invalid duration format: "+err.Error(), http.StatusBadRequest)
			return
		}

		spammer.StartSpam(req.Rate, duration)

		writeJSON(w, map[string]any{
			"status":   "started",
			"rate":     req.Rate,
			"duration": duration.String(),
		})
	})

	r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
		spammer.StopSpam()
		writeJSON(w, map[string]any{
			"status":     "stopped",
			"total_sent": spammer.totalSent.Load(),
		})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, spammer.GetStats())
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func envDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	cfg := config.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var sender Sender
	switch target := envDefault("SPAMMER_TARGET", "http"); target {
	case "kafka":
		if !cfg.Kafka.Enabled() {
			logger.Fatal("SPAMMER_TARGET=kafka needs KAFKA_BROKERS")
		}
		sender = newKafkaSender(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("sending to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	case "http":
		server := envDefault("SPAMMER_SERVER", "http://localhost:8081")
		sender = newHTTPSender(server, cfg.Auth.IngestSecret)
		logger.Info("sending over http", zap.String("server", server))
	default:
		logger.Fatal("unknown SPAMMER_TARGET", zap.String("target", target))
	}

	shops := make([]string, 0, len(cfg.Shops))
	for name := range cfg.Shops {
		shops = append(shops, name)
	}
	sort.Strings(shops)

	spammer := NewSpammer(sender, shops, cfg.Kafka.Workers, logger)
	defer spammer.Close()

	srv := &http.Server{
		Addr:              ":" + envDefault("SPAMMER_PORT", "8082"),
		Handler:           newRouter(spammer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("spammer server started", zap.String("addr", srv.Addr), zap.Strings("shops", shops))
	logger.Info("endpoints: POST /start, POST /stop, GET /stats")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("listen", zap.Error(err))
	}
}
