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

	"github.com/scentworks/fulfillment/internal/catalogue"
	"github.com/scentworks/fulfillment/internal/config"
	"github.com/scentworks/fulfillment/internal/events"
	"github.com/scentworks/fulfillment/internal/httpx"
	kafkax "github.com/scentworks/fulfillment/internal/kafka"
	"github.com/scentworks/fulfillment/internal/logging"
	"github.com/scentworks/fulfillment/internal/postgres"
	"github.com/scentworks/fulfillment/internal/receipts"
	"github.com/scentworks/fulfillment/internal/redisx"
	"github.com/scentworks/fulfillment/internal/sales"
	"github.com/scentworks/fulfillment/internal/storageclient"
	"github.com/scentworks/fulfillment/internal/token"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.ServiceName, cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers: completed & failed sales
	pOK := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicSaleCompleted, 1024)
	pOK.Start(ctx)
	pFail := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicSaleFailed, 1024)
	pFail.Start(ctx)

	// Wiring
	catRepo := &catalogue.Repo{DB: db}
	saleRepo := &sales.Repo{DB: db}
	orch := &sales.Orchestrator{
		Ledger:            catRepo,
		Shipper:           storageclient.New(cfg.StorageBaseURL, cfg.InternalSecret, cfg.RequestTimeout),
		Receipts:          receipts.NewClient(cfg.ReceiptsBaseURL, cfg.InternalSecret, cfg.ServiceName, cfg.RequestTimeout, logger),
		Tokens:            token.NewIssuer(cfg.InternalSecret),
		Sales:             saleRepo,
		Redis:             rdb,
		CompletedProducer: pOK,
		FailedProducer:    pFail,
		ServiceName:       cfg.ServiceName,
		WarehouseID:       cfg.FulfillmentWarehouseID,
		Logger:            logger,
	}

	router := httpx.NewRouter()
	h := &httpx.SalesHandler{
		Orchestrator: orch,
		Catalogue:    catRepo,
		Sales:        saleRepo,
		Redis:        rdb,
		Secret:       cfg.InternalSecret,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.SalesHTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", "addr", cfg.SalesHTTPAddr)
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
	pOK.Close()
	pFail.Close()
	cancel()
	pOK.WaitClosed()
	pFail.WaitClosed()
}
