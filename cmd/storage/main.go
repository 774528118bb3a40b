package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scentworks/fulfillment/internal/config"
	"github.com/scentworks/fulfillment/internal/events"
	"github.com/scentworks/fulfillment/internal/httpx"
	kafkax "github.com/scentworks/fulfillment/internal/kafka"
	"github.com/scentworks/fulfillment/internal/logging"
	"github.com/scentworks/fulfillment/internal/postgres"
	"github.com/scentworks/fulfillment/internal/warehouse"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New("storage-api", cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	prod := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicPackageShipped, 1024)
	prod.Start(ctx)

	router := httpx.NewRouter()
	h := &httpx.StorageHandler{
		Repo:     &warehouse.Repo{DB: db},
		Producer: prod,
		Service:  "storage-api",
		Secret:   cfg.InternalSecret,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.StorageHTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", "addr", cfg.StorageHTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	cancel()
	prod.WaitClosed()
}
