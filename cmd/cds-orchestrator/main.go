// cmd/cds-orchestrator/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cds-orchestrator/internal/cds/audit"
	"cds-orchestrator/internal/cds/catalog"
	"cds-orchestrator/internal/cds/executor"
	"cds-orchestrator/internal/cds/feedback"
	"cds-orchestrator/internal/cds/model"
	"cds-orchestrator/internal/cds/orchestrator"
	"cds-orchestrator/internal/common/config"
	"cds-orchestrator/internal/common/database"
	"cds-orchestrator/internal/common/httpclient"
	"cds-orchestrator/internal/common/logger"
	"cds-orchestrator/internal/common/observability"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// triggerRequest is the body of POST /events/{event}.
type triggerRequest struct {
	PatientID   string                 `json:"patientId"`
	UserID      string                 `json:"userId"`
	EncounterID string                 `json:"encounterId,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// feedbackRequest is the body of POST /feedback.
type feedbackRequest struct {
	Card       model.Card        `json:"card"`
	Action     string            `json:"action"`
	Suggestion *model.Suggestion `json:"suggestion,omitempty"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting CDS orchestrator...",
		zap.String("environment", cfg.App.Environment),
		zap.String("cdsBaseUrl", cfg.CDS.BaseURL),
	)

	obs := observability.New("cds-orchestrator")
	defer obs.Shutdown()

	ctx := context.Background()

	client := httpclient.NewClient(30 * time.Second)

	// --- Init Redis with retry (optional, response cache) ---
	var responseCache executor.ResponseCache = executor.NewMemoryCache()
	if cfg.Database.Redis.Enabled {
		var redis *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		responseCache = executor.NewRedisCache(redis, log)
		zapLog.Info("Redis connected successfully")
	}

	// --- Assemble the CDS client stack ---
	cat := catalog.New(cfg.CDS.BaseURL, cfg.CDS.AuthToken, cfg.CDS.DiscoveryTTLDuration(), client, log)
	exec := executor.New(cfg.CDS.BaseURL, cfg.CDS.AuthToken, responseCache,
		cfg.CDS.ResponseTTLDuration(), cfg.CDS.ServiceTimeoutDuration(), client, log)
	reporter := feedback.New(cfg.CDS.BaseURL, cfg.CDS.AuthToken,
		time.Duration(cfg.CDS.FeedbackTimeout)*time.Millisecond, client, log)

	manager := orchestrator.New(cat, exec, orchestrator.Options{
		FHIRServer:    cfg.CDS.FHIRServer,
		Policies:      presentationPolicies(cfg.Policies),
		Events:        cfg.Events,
		DebounceDelay: cfg.CDS.DebounceDelayDuration(),
	}, obs, log)

	// --- Init Elasticsearch with retry (optional, firing audit trail) ---
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		recorder := audit.NewRecorder(esClient, cfg.Database.Elasticsearch.AuditIndex, log)
		manager.RegisterListener(recorder.Listener())
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- HTTP API ---
	mux := http.NewServeMux()

	mux.HandleFunc("POST /events/{event}", func(w http.ResponseWriter, r *http.Request) {
		event := r.PathValue("event")

		var body triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		manager.TriggerByWorkflowEvent(r.Context(), event, model.TriggerContext{
			PatientID:   body.PatientID,
			UserID:      body.UserID,
			EncounterID: body.EncounterID,
			Fields:      body.Fields,
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(manager.GetActiveAlerts())
	})

	mux.HandleFunc("GET /alerts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(manager.GetActiveAlerts())
	})

	mux.HandleFunc("DELETE /alerts/{hookType}", func(w http.ResponseWriter, r *http.Request) {
		manager.Clear(r.PathValue("hookType"))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /feedback", func(w http.ResponseWriter, r *http.Request) {
		var body feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		// Fire and forget; the outcome of the post never reaches the caller.
		go reporter.Report(context.Background(), body.Card, body.Action, body.Suggestion)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}

	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down API server", zap.Error(err))
	}

	zapLog.Info("CDS orchestrator stopped gracefully")
}

// presentationPolicies converts configured policies to their runtime form.
func presentationPolicies(policies map[string]config.PolicyConfig) map[string]model.PresentationPolicy {
	converted := make(map[string]model.PresentationPolicy, len(policies))
	for hookType, p := range policies {
		converted[hookType] = model.PresentationPolicy{
			Mode:      model.PresentationMode(p.Mode),
			Position:  p.Position,
			AutoHide:  p.AutoHide,
			MaxAlerts: p.MaxAlerts,
			Priority:  p.Priority,
		}
	}
	return converted
}
