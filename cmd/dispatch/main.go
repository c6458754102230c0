package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geohash-dispatch/internal/adapter/connectivity"
	"github.com/couchcryptid/geohash-dispatch/internal/adapter/djia"
	"github.com/couchcryptid/geohash-dispatch/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/geohash-dispatch/internal/adapter/kafka"
	"github.com/couchcryptid/geohash-dispatch/internal/adapter/store"
	"github.com/couchcryptid/geohash-dispatch/internal/config"
	"github.com/couchcryptid/geohash-dispatch/internal/coordinator"
	"github.com/couchcryptid/geohash-dispatch/internal/match"
	"github.com/couchcryptid/geohash-dispatch/internal/observability"
	"github.com/couchcryptid/geohash-dispatch/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	wakeZone, err := time.LoadLocation("America/New_York")
	if err != nil {
		logger.Error("load wake timezone", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	prober := connectivity.NewProber(cfg.ProbeAddr, cfg.DJIATimeout)
	source := djia.NewClient(cfg.DJIABaseURL, cfg.DJIATimeout, prober, logger)

	// Notification and broadcast surfaces, Kafka-backed when configured.
	var (
		notifier  match.Notifier = &match.LogNotifier{Logger: logger}
		broadcast coordinator.Broadcaster
	)
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer writer.Close()
		broadcast = writer

		kn := kafkaadapter.NewNotifier(cfg, logger)
		defer kn.Close()
		notifier = match.MultiNotifier{notifier, kn}
		logger.Info("kafka enabled",
			"destination_topic", cfg.KafkaDestinationTopic,
			"notification_topic", cfg.KafkaNotificationTopic,
		)
	} else {
		logger.Info("kafka disabled, notifications go to the log only")
	}

	policy, err := match.ParsePolicy(cfg.NotifyPolicy)
	if err != nil {
		logger.Error("parse notify policy", "error", err)
		os.Exit(1)
	}

	opts := coordinator.Options{
		AlarmEnabled:  cfg.AlarmEnabled,
		DailyWakeHour: cfg.DailyWakeHour,
		DailyWakeMin:  cfg.DailyWakeMin,
		RetryDelay:    cfg.RetryDelay,
		ProbeInterval: cfg.ProbeInterval,
		NotifySlots:   cfg.NotifySlots,
	}

	// The planner and coordinator reference each other; no wake can fire
	// before coord.Start, so the late binding is safe.
	var coord *coordinator.Coordinator
	planner := coordinator.NewTimerPlanner(clock, func(id coordinator.WakeID) { coord.OnWake(id) })
	defer planner.Stop()

	coord = coordinator.New(db, source, prober, planner, notifier, broadcast,
		db, opts, wakeZone, clock, logger, metrics)
	coord.SetMatcher(match.New(coord, policy, cfg.NotifySlots, cfg.GlobalNotify,
		cfg.GlobalThresholdKm, logger, metrics))

	sched := scheduler.New(logger)
	pruneJob := scheduler.NewPruneJob(db, cfg.RetentionDays, clock, logger, metrics)
	if err := sched.AddJob(cfg.PruneSchedule, pruneJob); err != nil {
		logger.Error("register prune job", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, coord, coord, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched.Start()
	coord.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Stop()

	logger.Info("shutdown complete")
}
