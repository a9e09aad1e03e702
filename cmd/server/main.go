// Command server runs the duty recovery workflow API. main wires the store,
// scorer, notification sinks, and HTTP router; business logic lives in the
// internal services.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"

	auditHandler "dutyguard/internal/audit/handler"
	"dutyguard/internal/classify"
	classifyHandler "dutyguard/internal/classify/handler"
	classifyMetrics "dutyguard/internal/classify/metrics"
	"dutyguard/internal/classify/scorer"
	"dutyguard/internal/digest"
	"dutyguard/internal/notify"
	"dutyguard/internal/packet"
	packetHandler "dutyguard/internal/packet/handler"
	packetMetrics "dutyguard/internal/packet/metrics"
	"dutyguard/internal/pilot"
	pilotHandler "dutyguard/internal/pilot/handler"
	"dutyguard/internal/platform/config"
	"dutyguard/internal/platform/httpserver"
	"dutyguard/internal/platform/logger"
	"dutyguard/internal/review"
	reviewHandler "dutyguard/internal/review/handler"
	reviewMetrics "dutyguard/internal/review/metrics"
	"dutyguard/internal/storage"
	"dutyguard/internal/summary"
	summaryHandler "dutyguard/internal/summary/handler"
	httptransport "dutyguard/internal/transport/http"
	"dutyguard/pkg/platform/circuit"
)

func main() {
	// Missing .env is fine; production configures through real env vars.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	store, cleanup, err := buildStore(cfg)
	if err != nil {
		log.Error("store init failed", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	dispatcher, err := buildDispatcher(cfg, log)
	if err != nil {
		log.Error("notification init failed", "error", err)
		os.Exit(1)
	}

	classifySvc := classify.NewService(buildScorer(cfg, log), store, dispatcher, log, classifyMetrics.New(), classify.Thresholds{
		Approval: cfg.ApprovalThreshold,
		Risk:     cfg.RiskThreshold,
	})
	reviewSvc := review.NewService(store, dispatcher, log, reviewMetrics.New())
	pilotSvc := pilot.NewService(store, log)
	packetSvc := packet.NewService(store, dispatcher, log, packetMetrics.New())
	summarySvc := summary.NewService(store)

	router := httptransport.NewRouter(httptransport.Deps{
		Classify: classifyHandler.New(classifySvc, log),
		Review:   reviewHandler.New(reviewSvc, log),
		Pilot:    pilotHandler.New(pilotSvc, log),
		Packet:   packetHandler.New(packetSvc, log),
		Summary:  summaryHandler.New(summarySvc, log),
		Audit:    auditHandler.New(store, log),
	}, log)

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", "addr", cfg.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error { return dispatcher.Run(ctx) })

	if cfg.DigestSchedule != "" {
		dg, err := digest.New(cfg.DigestSchedule, summarySvc, dispatcher, log)
		if err != nil {
			log.Error("digest init failed", "schedule", cfg.DigestSchedule, "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return dg.Run(ctx) })
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// buildStore selects the persistence backend. The SQL store serves both
// postgres and sqlite through database/sql; memory is the default.
func buildStore(cfg config.Server) (storage.Store, func(), error) {
	switch cfg.StoreDriver {
	case "", "memory":
		return storage.NewMemoryStore(), func() {}, nil
	case "postgres", "sqlite":
		driver := cfg.StoreDriver
		if driver == "sqlite" {
			driver = "sqlite3"
		}
		db, err := sql.Open(driver, cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		store := storage.NewSQLStore(db, cfg.StoreDriver)
		if err := store.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil
	default:
		return nil, nil, errors.New("unknown store driver " + cfg.StoreDriver)
	}
}

// buildScorer prefers the LLM scorer when a key is configured, guarded by a
// circuit breaker that degrades to the heuristic scorer on sustained failures.
func buildScorer(cfg config.Server, log *slog.Logger) classify.Scorer {
	if cfg.AnthropicAPIKey != "" {
		log.Info("using anthropic scorer", "model", cfg.AnthropicModel)
		breaker := circuit.New("anthropic_scorer", circuit.WithFailureThreshold(3))
		return scorer.NewFallback(
			scorer.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel),
			scorer.NewHeuristic(),
			breaker,
			log,
		)
	}
	log.Info("using heuristic scorer")
	return scorer.NewHeuristic()
}

// buildDispatcher wires the configured sinks; the JSONL file sink is always
// present as the delivery fallback.
func buildDispatcher(cfg config.Server, log *slog.Logger) (*notify.Dispatcher, error) {
	var sinks []notify.Sink
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, notify.NewSlackSink(cfg.SlackWebhookURL))
	}
	if cfg.KafkaBrokers != "" {
		kafka, err := notify.NewKafkaSink(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, kafka)
	}
	fallback := notify.NewFileSink(cfg.FallbackPath)
	return notify.NewDispatcher(log, fallback, sinks...), nil
}
