package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v3"
	"github.com/gorilla/mux"
	"github.com/offlinefx/offlinefx/internal/application/service"
	"github.com/offlinefx/offlinefx/internal/config"
	"github.com/offlinefx/offlinefx/internal/domain/entity"
	"github.com/offlinefx/offlinefx/internal/infrastructure/api"
	"github.com/offlinefx/offlinefx/internal/infrastructure/db"
	"github.com/offlinefx/offlinefx/internal/infrastructure/handler"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
	"github.com/offlinefx/offlinefx/internal/infrastructure/middleware"
	"github.com/offlinefx/offlinefx/internal/metrics"
	"github.com/offlinefx/offlinefx/internal/proxy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.GetDefaultLogger().Fatal("Failed to load configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log := logger.NewJSONLogger(os.Stdout, logger.ParseLevel(cfg.LogLevel))
	logger.SetDefaultLogger(log)

	log.Info("Starting offline currency conversion service", map[string]interface{}{
		"version": cfg.BuildVersion,
		"addr":    cfg.HTTPAddr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setup BadgerDB
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal("Failed to create database directory", map[string]interface{}{
			"dir":   cfg.DataDir,
			"error": err.Error(),
		})
	}

	badgerOpts := badger.DefaultOptions(cfg.DataDir)
	badgerOpts.Logger = nil // Disable Badger's default logger

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		log.Fatal("Failed to open database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer func() {
		if err := badgerDB.Close(); err != nil {
			log.Error("Error closing BadgerDB", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	// Interception proxy: every outbound request goes through it.
	partitions, err := proxy.NewPartitionStore(badgerDB, cfg.ProxyHotEntries, log)
	if err != nil {
		log.Fatal("Failed to create proxy cache", map[string]interface{}{
			"error": err.Error(),
		})
	}

	manifest := make([]string, 0, len(cfg.AssetManifest))
	for _, path := range cfg.AssetManifest {
		manifest = append(manifest, cfg.AppOrigin+path)
	}

	interceptor := proxy.New(proxy.Config{
		Store:     partitions,
		Version:   cfg.BuildVersion,
		RateHosts: cfg.RateHosts(),
		Manifest:  manifest,
		Logger:    log,
		Metrics:   m,
	})

	if err := interceptor.Install(ctx); err != nil {
		log.Error("Proxy install incomplete", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := interceptor.Activate(ctx); err != nil {
		log.Error("Proxy activation incomplete", map[string]interface{}{
			"error": err.Error(),
		})
	}

	httpClient := &http.Client{
		Transport: interceptor,
		Timeout:   cfg.FetchTimeout,
	}

	// Rate store and API clients
	rateStore := db.NewBadgerRateStore(badgerDB, log)
	primary := api.NewPrimaryClient(cfg.PrimaryURL, cfg.PrimaryAPIKey, httpClient, log)
	fallback := api.NewFallbackClient(cfg.FallbackURL, httpClient, log)

	// Services
	rateService := service.NewRateService(rateStore, []service.RateSource{
		{Source: entity.SourcePrimary, Provider: primary},
		{Source: entity.SourceFallback, Provider: fallback},
	}, log, m)
	conversionService := service.NewConversionService(rateStore, log, m)

	poller := service.NewFreshnessPoller(rateService, cfg.FreshnessPoll, log, m)
	if err := poller.Start(ctx); err != nil {
		log.Error("Failed to start freshness poller", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Router
	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(log))

	rateHandler := handler.NewRateHandler(rateService, conversionService, log)
	rateHandler.RegisterRoutes(router)

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Info("Server listening", map[string]interface{}{
			"addr": cfg.HTTPAddr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down", nil)
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("Server shutdown error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
