package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scentworks/fulfillment/internal/catalogue"
	"github.com/scentworks/fulfillment/internal/config"
	"github.com/scentworks/fulfillment/internal/events"
	kafkax "github.com/scentworks/fulfillment/internal/kafka"
	"github.com/scentworks/fulfillment/internal/logging"
	"github.com/scentworks/fulfillment/internal/postgres"
	"github.com/scentworks/fulfillment/internal/redisx"
	"github.com/scentworks/fulfillment/internal/replenish"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New("replenisher", cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &replenish.Service{
		Ledger:      &catalogue.Repo{DB: db},
		Redis:       rdb,
		ServiceName: "replenisher",
		Logger:      logger,
	}

	group := getenv("REPLENISHER_GROUP", "replenisher")
	workers := mustAtoi(os.Getenv("REPLENISHER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, events.TopicBatchCompleted, workers)

	go func() {
		logger.Info("replenisher consumer started",
			"group", group, "topic", events.TopicBatchCompleted, "workers", workers)
		if err := cons.Start(ctx, svc.HandleBatchCompleted); err != nil {
			logger.Error("consumer exit", "error", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
